package orchestration

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"testing"
	"time"
)

type framerHarness struct {
	clock    *fakeClock
	gate     *TurnGate
	recorder *turnRecorder
	framer   *OutboundFramer
	frames   []Frame
	onFrame  func(Frame)
}

func newFramerHarness(capacity int) *framerHarness {
	h := &framerHarness{clock: newFakeClock(), recorder: &turnRecorder{}}
	h.gate = NewTurnGate(700*time.Millisecond, 800*time.Millisecond, h.recorder.hooks())
	h.gate.now = h.clock.Now
	h.framer = newOutboundFramer(h.gate, framerConfig{queueCapacity: capacity}, func(frame Frame) error {
		h.frames = append(h.frames, frame)
		h.recorder.record(fmt.Sprintf("frame:%d", frame.Index))
		if h.onFrame != nil {
			h.onFrame(frame)
		}
		return nil
	}, nil)
	h.framer.now = h.clock.Now
	h.framer.wait = h.clock.Wait
	h.framer.next = h.clock.Now()
	return h
}

func (h *framerHarness) feed(t *testing.T, blocks ...[]byte) {
	t.Helper()
	for _, block := range blocks {
		if err := h.framer.consume(context.Background(), block); err != nil {
			t.Fatalf("expected block to be consumed, got %v", err)
		}
	}
}

func TestFramerUtteranceFromEnergySequence(t *testing.T) {
	h := newFramerHarness(0)
	frameBytes := testFrameBytes

	// energies 0, 0, 0.5, 0.6, 0.02, just below 0.01, then silence
	blocks := [][]byte{
		silentFrame(),
		silentFrame(),
		pcmBlock(frameBytes, 16384),
		pcmBlock(frameBytes, 19661),
		pcmBlock(frameBytes, 656),
		pcmBlock(frameBytes, 327),
	}
	for range 7 {
		blocks = append(blocks, silentFrame())
	}
	h.feed(t, blocks...)

	if got := h.recorder.count("start"); got != 1 {
		t.Fatalf("expected one utterance start, got %d", got)
	}
	if got := h.recorder.count("finish"); got != 1 {
		t.Fatalf("expected one utterance finish, got %d", got)
	}
	if len(h.frames) != 9 {
		t.Fatalf("expected 9 frames from first voice until 700ms of silence, got %d", len(h.frames))
	}
	for i, frame := range h.frames {
		if frame.Index != uint32(i) {
			t.Fatalf("expected frame %d to carry index %d, got %d", i, i, frame.Index)
		}
		if frame.Last {
			t.Fatalf("expected no last frame from a live source")
		}
	}

	entries := h.recorder.entries()
	if entries[0] != "start" || entries[1] != "frame:0" || entries[len(entries)-1] != "finish" {
		t.Fatalf("expected start before the first frame and finish after the last, got %v", entries)
	}
}

func TestFramerSendsNothingWhileIdleAndSilent(t *testing.T) {
	h := newFramerHarness(0)

	h.feed(t, silentFrame(), silentFrame(), silentFrame())

	if len(h.frames) != 0 || len(h.recorder.entries()) != 0 {
		t.Fatalf("expected no traffic for silence, got frames=%d hooks=%v", len(h.frames), h.recorder.entries())
	}
}

func TestFramerRechunksBlocksIntoFrames(t *testing.T) {
	h := newFramerHarness(0)
	voice := pcmBlock(testFrameBytes*2+1000, 16384)

	h.feed(t, voice[:1000], voice[1000:5000], voice[5000:])

	if len(h.frames) != 2 {
		t.Fatalf("expected two whole frames, got %d", len(h.frames))
	}
	for _, frame := range h.frames {
		if len(frame.Audio) != testFrameBytes {
			t.Fatalf("expected frame of %d bytes, got %d", testFrameBytes, len(frame.Audio))
		}
	}
	if !bytes.Equal(append(h.frames[0].Audio, h.frames[1].Audio...), voice[:2*testFrameBytes]) {
		t.Fatalf("expected frames to carry the captured bytes in order")
	}
	if len(h.framer.pending) != 1000 {
		t.Fatalf("expected 1000 bytes to wait for the next frame, got %d", len(h.framer.pending))
	}
}

func TestFramerDropsFramesWhileRemoteSpeaks(t *testing.T) {
	h := newFramerHarness(0)
	h.gate.OnRemoteSentenceStart()

	h.feed(t, loudFrame(), loudFrame())

	if len(h.frames) != 0 {
		t.Fatalf("expected no frames while the remote speaks, got %d", len(h.frames))
	}
	if got := h.recorder.count("interrupt"); got != 1 {
		t.Fatalf("expected one debounced interrupt request, got %d", got)
	}
}

func TestFramerPacesOnAbsoluteSchedule(t *testing.T) {
	h := newFramerHarness(0)
	start := h.clock.Now()

	h.feed(t, loudFrame(), loudFrame(), loudFrame())

	if got := h.clock.Now().Sub(start); got != 360*time.Millisecond {
		t.Fatalf("expected three frame slots to take 360ms, took %s", got)
	}
}

func TestFramerResyncsWhenFallingBehind(t *testing.T) {
	h := newFramerHarness(0)
	start := h.clock.Now()
	stalled := false
	h.onFrame = func(Frame) {
		if !stalled {
			stalled = true
			h.clock.Advance(500 * time.Millisecond)
		}
	}

	h.feed(t, loudFrame(), loudFrame())

	if got := h.clock.Now().Sub(start); got != 620*time.Millisecond {
		t.Fatalf("expected schedule to restart after the stall, elapsed %s", got)
	}
}

func TestFramerPadsFinalFrameAtEndOfStream(t *testing.T) {
	h := newFramerHarness(0)
	h.framer.Submit(pcmBlock(testFrameBytes+1000, 16384))
	h.framer.EndOfStream()

	if err := h.framer.Run(context.Background()); err != nil {
		t.Fatalf("expected framer to finish cleanly, got %v", err)
	}

	if len(h.frames) != 2 {
		t.Fatalf("expected a full frame and a padded last frame, got %d frames", len(h.frames))
	}
	last := h.frames[1]
	if !last.Last || last.Index != 1 {
		t.Fatalf("expected last frame with index 1, got %+v", last)
	}
	if len(last.Audio) != testFrameBytes {
		t.Fatalf("expected padded frame of %d bytes, got %d", testFrameBytes, len(last.Audio))
	}
	if !bytes.Equal(last.Audio[1000:], make([]byte, testFrameBytes-1000)) {
		t.Fatalf("expected padding to be silence")
	}
	if got := h.recorder.entries(); !slices.Equal(got, []string{"start", "frame:0", "frame:1", "finish"}) {
		t.Fatalf("unexpected traffic: %v", got)
	}
	if h.gate.State() != TurnIdle {
		t.Fatalf("expected idle after end of stream, got %s", h.gate.State())
	}
}

func TestFramerExactEndOfStreamHasNoExtraFrame(t *testing.T) {
	h := newFramerHarness(0)
	h.framer.Submit(loudFrame())
	h.framer.EndOfStream()

	if err := h.framer.Run(context.Background()); err != nil {
		t.Fatalf("expected framer to finish cleanly, got %v", err)
	}

	if len(h.frames) != 1 || h.frames[0].Last {
		t.Fatalf("expected one regular frame, got %+v", h.frames)
	}
	if got := h.recorder.count("finish"); got != 1 {
		t.Fatalf("expected end of stream to finish the utterance, got %d finishes", got)
	}
}

func TestFramerSubmitDropsNewestWhenFull(t *testing.T) {
	h := newFramerHarness(2)
	dropped := 0
	h.framer.onDropped = func() { dropped++ }

	h.framer.Submit([]byte{1, 1})
	h.framer.Submit([]byte{2, 2})
	h.framer.Submit([]byte{3, 3})

	if dropped != 1 {
		t.Fatalf("expected one dropped block, got %d", dropped)
	}
	first, second := <-h.framer.blocks, <-h.framer.blocks
	if first[0] != 1 || second[0] != 2 {
		t.Fatalf("expected the oldest blocks to be kept, got %v and %v", first, second)
	}
}

func TestFramerStopsOnCancel(t *testing.T) {
	h := newFramerHarness(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- h.framer.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on cancel, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected framer to stop after cancel")
	}
}
