package orchestration

import (
	"context"
	"errors"
	"sync"
)

const defaultPlaybackQueueCapacity = 200

var ErrQueueClosed = errors.New("playback queue closed")

// Sentence is one finalized unit of remote speech.
type Sentence struct {
	Audio []byte
	// generation is the queue generation the sentence was finalized in. A
	// sentence from an earlier generation was cut off by an interrupt.
	generation uint64
}

// PlaybackQueue is a bounded FIFO of sentences with a single consumer.
// Clearing it starts a new generation, so sentences that were already taken
// out or were still on their way in are recognizably stale.
type PlaybackQueue struct {
	items chan Sentence

	mu         sync.Mutex
	generation uint64

	closeOnce sync.Once
	closed    chan struct{}
}

func NewPlaybackQueue(capacity int) *PlaybackQueue {
	if capacity <= 0 {
		capacity = defaultPlaybackQueueCapacity
	}
	return &PlaybackQueue{
		items:  make(chan Sentence, capacity),
		closed: make(chan struct{}),
	}
}

// Generation returns the current generation for stamping a sentence that is
// about to be pushed.
func (q *PlaybackQueue) Generation() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.generation
}

// Push appends a sentence of the current generation, blocking while the
// queue is full.
func (q *PlaybackQueue) Push(ctx context.Context, audio []byte) error {
	return q.push(ctx, Sentence{Audio: audio, generation: q.Generation()})
}

func (q *PlaybackQueue) push(ctx context.Context, sentence Sentence) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}

	select {
	case q.items <- sentence:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closed:
		return ErrQueueClosed
	}
}

// Pop blocks until a sentence is available.
func (q *PlaybackQueue) Pop(ctx context.Context) (Sentence, error) {
	select {
	case sentence := <-q.items:
		return sentence, nil
	case <-ctx.Done():
		return Sentence{}, ctx.Err()
	case <-q.closed:
		return Sentence{}, ErrQueueClosed
	}
}

// Clear drops every queued sentence and starts a new generation. It returns
// the number of sentences dropped.
func (q *PlaybackQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.generation++
	dropped := 0
	for {
		select {
		case <-q.items:
			dropped++
		default:
			return dropped
		}
	}
}

// IsCurrent reports whether the sentence survived every Clear since it was
// finalized.
func (q *PlaybackQueue) IsCurrent(sentence Sentence) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return sentence.generation == q.generation
}

func (q *PlaybackQueue) Len() int {
	return len(q.items)
}

func (q *PlaybackQueue) Cap() int {
	return cap(q.items)
}

func (q *PlaybackQueue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}
