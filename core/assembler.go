package orchestration

import (
	"context"
	"sync"
)

// SentenceAssembler accumulates inbound speech fragments into the sentence
// that is currently being received. Sentence boundaries come only from the
// remote lifecycle events.
type SentenceAssembler struct {
	queue *PlaybackQueue
	// discarding reports whether fragments are stale and must be dropped.
	discarding func() bool

	mu  sync.Mutex
	buf []byte
}

func NewSentenceAssembler(queue *PlaybackQueue, discarding func() bool) *SentenceAssembler {
	if discarding == nil {
		discarding = func() bool { return false }
	}
	return &SentenceAssembler{queue: queue, discarding: discarding}
}

// Append adds a fragment to the current sentence. It reports false when the
// fragment was dropped because an interrupt is pending.
func (a *SentenceAssembler) Append(fragment []byte) bool {
	if len(fragment) == 0 {
		return true
	}
	if a.discarding() {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf = append(a.buf, fragment...)
	return true
}

// Flush moves the current sentence into the playback queue. It reports
// whether there was anything to flush. The sentence keeps the queue
// generation of the moment it was finalized even if pushing has to wait.
func (a *SentenceAssembler) Flush(ctx context.Context) (bool, error) {
	a.mu.Lock()
	if len(a.buf) == 0 {
		a.mu.Unlock()
		return false, nil
	}
	sentence := Sentence{Audio: a.buf, generation: a.queue.Generation()}
	a.buf = nil
	a.mu.Unlock()

	if err := a.queue.push(ctx, sentence); err != nil {
		return false, err
	}
	return true, nil
}

// Discard drops the current sentence and returns its size.
func (a *SentenceAssembler) Discard() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.buf)
	a.buf = nil
	return n
}

// Buffered returns the size of the current sentence.
func (a *SentenceAssembler) Buffered() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buf)
}
