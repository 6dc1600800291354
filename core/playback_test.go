package orchestration

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-duplex/core/sink"
)

func TestPlaybackQueueIsFIFO(t *testing.T) {
	queue := NewPlaybackQueue(10)
	ctx := context.Background()

	for _, audio := range []string{"one", "two", "three"} {
		if err := queue.Push(ctx, []byte(audio)); err != nil {
			t.Fatalf("expected push to succeed, got %v", err)
		}
	}

	for _, want := range []string{"one", "two", "three"} {
		sentence, err := queue.Pop(ctx)
		if err != nil {
			t.Fatalf("expected pop to succeed, got %v", err)
		}
		if string(sentence.Audio) != want {
			t.Fatalf("expected %q, got %q", want, sentence.Audio)
		}
	}
}

func TestPlaybackQueueBlocksProducerWhenFull(t *testing.T) {
	queue := NewPlaybackQueue(5)
	ctx := context.Background()
	for i := range 5 {
		if err := queue.Push(ctx, []byte{byte(i)}); err != nil {
			t.Fatalf("expected push %d to succeed, got %v", i, err)
		}
	}

	pushed := make(chan error, 1)
	go func() { pushed <- queue.Push(ctx, []byte{5}) }()

	select {
	case <-pushed:
		t.Fatalf("expected sixth push to block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := queue.Pop(ctx); err != nil {
		t.Fatalf("expected pop to succeed, got %v", err)
	}

	select {
	case err := <-pushed:
		if err != nil {
			t.Fatalf("expected blocked push to succeed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected blocked push to complete after a pop")
	}
	if queue.Len() != 5 {
		t.Fatalf("expected queue to be full again, got %d", queue.Len())
	}
}

func TestPlaybackQueueClearStartsNewGeneration(t *testing.T) {
	queue := NewPlaybackQueue(10)
	ctx := context.Background()
	_ = queue.Push(ctx, []byte("a"))
	_ = queue.Push(ctx, []byte("b"))
	popped, _ := queue.Pop(ctx)

	if dropped := queue.Clear(); dropped != 1 {
		t.Fatalf("expected one queued sentence to be dropped, got %d", dropped)
	}
	if queue.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", queue.Len())
	}
	if queue.IsCurrent(popped) {
		t.Fatalf("expected a sentence taken before the clear to be stale")
	}

	_ = queue.Push(ctx, []byte("c"))
	fresh, _ := queue.Pop(ctx)
	if !queue.IsCurrent(fresh) {
		t.Fatalf("expected a sentence pushed after the clear to be current")
	}
}

func TestPlaybackQueueClose(t *testing.T) {
	queue := NewPlaybackQueue(1)
	queue.Close()

	if _, err := queue.Pop(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed from pop, got %v", err)
	}
	if err := queue.Push(context.Background(), []byte("x")); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed from push, got %v", err)
	}
}

func TestSentenceAssemblerConcatenatesFragments(t *testing.T) {
	queue := NewPlaybackQueue(10)
	assembler := NewSentenceAssembler(queue, nil)

	assembler.Append([]byte("hel"))
	assembler.Append([]byte("lo"))
	flushed, err := assembler.Flush(context.Background())
	if err != nil || !flushed {
		t.Fatalf("expected a flushed sentence, got flushed=%v err=%v", flushed, err)
	}

	sentence, _ := queue.Pop(context.Background())
	if string(sentence.Audio) != "hello" {
		t.Fatalf("expected concatenated fragments, got %q", sentence.Audio)
	}
	if assembler.Buffered() != 0 {
		t.Fatalf("expected the buffer to be empty after a flush")
	}
}

func TestSentenceAssemblerSkipsEmptyFlush(t *testing.T) {
	queue := NewPlaybackQueue(10)
	assembler := NewSentenceAssembler(queue, nil)

	flushed, err := assembler.Flush(context.Background())
	if err != nil || flushed {
		t.Fatalf("expected nothing to flush, got flushed=%v err=%v", flushed, err)
	}
	if queue.Len() != 0 {
		t.Fatalf("expected no empty sentences in the queue")
	}
}

func TestSentenceAssemblerDropsFragmentsWhileDiscarding(t *testing.T) {
	queue := NewPlaybackQueue(10)
	discarding := true
	assembler := NewSentenceAssembler(queue, func() bool { return discarding })

	if assembler.Append([]byte("stale")) {
		t.Fatalf("expected fragment to be dropped")
	}
	discarding = false
	if !assembler.Append([]byte("fresh")) {
		t.Fatalf("expected fragment to be kept")
	}
	if got := assembler.Discard(); got != len("fresh") {
		t.Fatalf("expected discard to report %d bytes, got %d", len("fresh"), got)
	}
	if assembler.Buffered() != 0 {
		t.Fatalf("expected the buffer to be empty after a discard")
	}
}

func startPlayer(t *testing.T, queue *PlaybackQueue, output sink.Sink) (*Player, func()) {
	t.Helper()
	player := NewPlayer(queue, output, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- player.Run(ctx) }()

	return player, func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("expected player to stop cleanly, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatalf("expected player to stop")
		}
	}
}

func TestPlayerWritesSentencesInOrder(t *testing.T) {
	queue := NewPlaybackQueue(10)
	output := newFakeSink()
	_, stop := startPlayer(t, queue, output)
	defer stop()

	for _, audio := range []string{"first", "second", "third"} {
		_ = queue.Push(context.Background(), []byte(audio))
	}

	waitFor(t, "three writes", func() bool { return len(output.written()) == 3 })
	for i, want := range []string{"first", "second", "third"} {
		if got := string(output.written()[i]); got != want {
			t.Fatalf("expected write %d to be %q, got %q", i, want, got)
		}
	}
	if output.startCount() != 1 {
		t.Fatalf("expected the sink to stay up between sentences, got %d starts", output.startCount())
	}
}

func TestPlayerRecoversFromWriteError(t *testing.T) {
	queue := NewPlaybackQueue(10)
	output := newFakeSink()
	output.failWrites = 1
	restarts := 0
	player := NewPlayer(queue, output, nil)
	player.onRestart = func(string) { restarts++ }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- player.Run(ctx) }()

	_ = queue.Push(ctx, []byte("lost"))
	_ = queue.Push(ctx, []byte("delivered"))

	waitFor(t, "second sentence", func() bool { return len(output.written()) == 1 })
	if got := string(output.written()[0]); got != "delivered" {
		t.Fatalf("expected the next sentence to be delivered, got %q", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected player to keep running through write errors, got %v", err)
	}
	if restarts != 1 || output.startCount() != 2 {
		t.Fatalf("expected one restart, got restarts=%d starts=%d", restarts, output.startCount())
	}
}

func TestPlayerRestartsDeadSink(t *testing.T) {
	queue := NewPlaybackQueue(10)
	output := newFakeSink()
	_, stop := startPlayer(t, queue, output)
	defer stop()

	waitFor(t, "sink start", func() bool { return output.IsAlive() })
	output.kill()
	_ = queue.Push(context.Background(), []byte("after exit"))

	waitFor(t, "write after restart", func() bool { return len(output.written()) == 1 })
	if output.startCount() != 2 {
		t.Fatalf("expected sink to be restarted once, got %d starts", output.startCount())
	}
}

func TestPlayerInterruptAbortsWriteAndDropsQueue(t *testing.T) {
	queue := NewPlaybackQueue(10)
	output := newFakeSink()
	output.setBlockWrites(true)
	player, stop := startPlayer(t, queue, output)
	defer stop()

	ctx := context.Background()
	_ = queue.Push(ctx, []byte("playing"))
	<-output.writing
	_ = queue.Push(ctx, []byte("queued-1"))
	_ = queue.Push(ctx, []byte("queued-2"))

	output.setBlockWrites(false)
	if dropped := player.Interrupt(); dropped != 2 {
		t.Fatalf("expected two queued sentences to be dropped, got %d", dropped)
	}
	if queue.Len() != 0 {
		t.Fatalf("expected empty queue after interrupt, got %d", queue.Len())
	}
	if !output.IsAlive() {
		t.Fatalf("expected sink to be restarted after interrupt")
	}

	_ = queue.Push(ctx, []byte("next"))
	waitFor(t, "next sentence", func() bool { return len(output.written()) == 1 })
	if got := output.written(); !bytes.Equal(got[0], []byte("next")) {
		t.Fatalf("expected only the new sentence to be played, got %q", got)
	}
}

// stalledCheckSink holds the player at its first liveness check until the
// sink has been stopped.
type stalledCheckSink struct {
	*fakeSink
	checking chan struct{}
	once     sync.Once
}

func (s *stalledCheckSink) IsAlive() bool {
	s.once.Do(func() {
		s.fakeSink.mu.Lock()
		stopped := s.fakeSink.stopped
		s.fakeSink.mu.Unlock()
		close(s.checking)
		<-stopped
	})
	return s.fakeSink.IsAlive()
}

func TestPlayerDropsSentenceInterruptedDuringSinkCheck(t *testing.T) {
	queue := NewPlaybackQueue(10)
	output := &stalledCheckSink{fakeSink: newFakeSink(), checking: make(chan struct{})}
	player, stop := startPlayer(t, queue, output)
	defer stop()

	ctx := context.Background()
	_ = queue.Push(ctx, []byte("stale"))
	<-output.checking
	player.Interrupt()

	_ = queue.Push(ctx, []byte("next"))
	waitFor(t, "next sentence", func() bool { return len(output.written()) == 1 })
	if got := output.written(); !bytes.Equal(got[0], []byte("next")) {
		t.Fatalf("expected the interrupted sentence to be dropped, got %q", got)
	}
}

type restartingSink struct {
	*fakeSink
	restarts int
}

func (s *restartingSink) Restart() error {
	s.restarts++
	_ = s.Stop()
	return s.Start()
}

func TestPlayerInterruptRestartsSinkOutput(t *testing.T) {
	queue := NewPlaybackQueue(10)
	output := &restartingSink{fakeSink: newFakeSink()}
	player := NewPlayer(queue, output, nil)
	if err := output.Start(); err != nil {
		t.Fatalf("expected sink to start, got %v", err)
	}

	player.Interrupt()

	if output.restarts != 1 {
		t.Fatalf("expected the sink output to be replaced once, got %d restarts", output.restarts)
	}
	if !output.IsAlive() {
		t.Fatalf("expected sink to be running after interrupt")
	}
}
