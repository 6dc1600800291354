package orchestration

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/koscakluka/ema-duplex/core/audio"
)

const (
	defaultCaptureQueueCapacity = 50
	defaultFrameDuration        = 120 * time.Millisecond
	defaultEnergyThreshold      = 0.01
)

// Frame is one fixed-size piece of a local utterance.
type Frame struct {
	// Index increases by one per frame and restarts at 0 with every
	// utterance.
	Index uint32
	// Last marks the final frame of a finite source.
	Last  bool
	Audio []byte
}

type framerConfig struct {
	encoding      audio.EncodingInfo
	frameDuration time.Duration
	threshold     float64
	queueCapacity int
}

// OutboundFramer cuts captured audio into fixed frames, runs voice activity
// detection on each and sends the frames the turn gate lets through, paced
// at the rate they were recorded.
type OutboundFramer struct {
	gate       *TurnGate
	sendFrame  func(Frame) error
	encoding   audio.EncodingInfo
	frameBytes int
	duration   time.Duration
	threshold  float64
	logger     *slog.Logger

	blocks chan []byte
	eos    chan struct{}
	eosOne sync.Once

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error

	onDropped func()
	onSent    func(Frame)

	pending []byte
	next    time.Time
}

func newOutboundFramer(gate *TurnGate, cfg framerConfig, sendFrame func(Frame) error, logger *slog.Logger) *OutboundFramer {
	if cfg.encoding.IsZero() {
		cfg.encoding = audio.GetDefaultEncodingInfo()
	}
	if cfg.frameDuration <= 0 {
		cfg.frameDuration = defaultFrameDuration
	}
	if cfg.queueCapacity <= 0 {
		cfg.queueCapacity = defaultCaptureQueueCapacity
	}
	if cfg.threshold <= 0 {
		cfg.threshold = defaultEnergyThreshold
	}
	if logger == nil {
		logger = defaultLogger
	}
	frameBytes := cfg.encoding.BytesPerFrame(cfg.frameDuration)
	if frameBytes <= 0 {
		cfg.encoding = audio.GetDefaultEncodingInfo()
		frameBytes = cfg.encoding.BytesPerFrame(cfg.frameDuration)
	}

	return &OutboundFramer{
		gate:       gate,
		sendFrame:  sendFrame,
		encoding:   cfg.encoding,
		frameBytes: frameBytes,
		duration:   cfg.frameDuration,
		threshold:  cfg.threshold,
		logger:     logger,
		blocks:     make(chan []byte, cfg.queueCapacity),
		eos:        make(chan struct{}),
		now:        time.Now,
		wait:       sleepContext,
	}
}

// Submit hands a captured block to the framer without blocking. When the
// framer has fallen behind the newest block is dropped.
func (f *OutboundFramer) Submit(block []byte) {
	if len(block) == 0 {
		return
	}
	select {
	case f.blocks <- block:
	default:
		f.logger.Debug("capture queue full, dropping block", "bytes", len(block))
		if f.onDropped != nil {
			f.onDropped()
		}
	}
}

// EndOfStream marks the source as exhausted. Blocks submitted before it are
// still framed; the remainder is padded into a final frame.
func (f *OutboundFramer) EndOfStream() {
	f.eosOne.Do(func() { close(f.eos) })
}

func (f *OutboundFramer) Run(ctx context.Context) error {
	f.next = f.now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case block := <-f.blocks:
			if err := f.consume(ctx, block); err != nil {
				return nil
			}
		case <-f.eos:
			return f.drain(ctx)
		}
	}
}

func (f *OutboundFramer) consume(ctx context.Context, block []byte) error {
	f.pending = append(f.pending, block...)
	for len(f.pending) >= f.frameBytes {
		frame := make([]byte, f.frameBytes)
		copy(frame, f.pending)
		f.pending = f.pending[f.frameBytes:]

		f.process(frame, false)
		if err := f.pace(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (f *OutboundFramer) drain(ctx context.Context) error {
	for drained := false; !drained; {
		select {
		case block := <-f.blocks:
			if err := f.consume(ctx, block); err != nil {
				return nil
			}
		default:
			drained = true
		}
	}

	if len(f.pending) > 0 {
		frame := make([]byte, f.frameBytes)
		n := copy(frame, f.pending)
		if silence := f.encoding.SilenceValue(); silence != 0 {
			for i := n; i < len(frame); i++ {
				frame[i] = silence
			}
		}
		f.pending = nil
		f.process(frame, true)
	}

	f.gate.OnLocalStreamEnded(f.now())
	return nil
}

func (f *OutboundFramer) process(frame []byte, last bool) {
	now := f.now()
	energy := audio.Energy(frame, f.encoding)
	active := energy > f.threshold

	if active {
		f.gate.OnLocalVoiceActive(energy, now)
	}

	f.gate.WithOutbound(func() {
		index, ok := f.gate.AcquireFrame()
		if !ok {
			return
		}
		out := Frame{Index: index, Last: last, Audio: frame}
		if err := f.sendFrame(out); err != nil {
			f.logger.Warn("failed to send audio frame", "index", index, "error", err)
			return
		}
		if f.onSent != nil {
			f.onSent(out)
		}
	})

	if !active {
		f.gate.OnLocalSilence(now)
	}
}

// pace waits for the slot of the next frame on an absolute schedule. If the
// framer is more than a frame behind the schedule restarts from now instead
// of bursting to catch up.
func (f *OutboundFramer) pace(ctx context.Context) error {
	f.next = f.next.Add(f.duration)
	now := f.now()
	lag := now.Sub(f.next)
	if lag > f.duration {
		f.next = now
		return nil
	}
	if lag >= 0 {
		return nil
	}
	return f.wait(ctx, -lag)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
