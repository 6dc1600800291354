package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/koscakluka/ema-duplex/core/sink"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Player is the single consumer of the playback queue. It writes every
// sentence whole to a sink that is kept running between sentences.
type Player struct {
	queue  *PlaybackQueue
	output sink.Sink
	logger *slog.Logger

	// onPlayed is called after a sentence has been written.
	onPlayed func(Sentence)
	// onRestart is called whenever the sink had to be brought back up.
	onRestart func(reason string)

	// mu is held from the staleness check of a sentence until its write
	// returns, so an interrupt can never be followed by a stale write.
	mu sync.Mutex
}

func NewPlayer(queue *PlaybackQueue, output sink.Sink, logger *slog.Logger) *Player {
	if logger == nil {
		logger = defaultLogger
	}
	return &Player{queue: queue, output: output, logger: logger}
}

// Run plays sentences until ctx is done or the queue is closed. The sink is
// stopped on return.
func (p *Player) Run(ctx context.Context) error {
	defer func() {
		if err := p.output.Stop(); err != nil {
			p.logger.Warn("failed to stop audio sink", "error", err)
		}
	}()

	p.mu.Lock()
	if err := p.output.Start(); err != nil {
		p.recordError(ctx, "failed to start audio sink", err)
	}
	p.mu.Unlock()

	for {
		sentence, err := p.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		p.play(ctx, sentence)
	}
}

func (p *Player) play(ctx context.Context, sentence Sentence) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.queue.IsCurrent(sentence) {
		p.logger.Debug("dropping interrupted sentence", "bytes", len(sentence.Audio))
		return
	}

	if !p.output.IsAlive() {
		if err := p.output.Start(); err != nil {
			p.recordError(ctx, "failed to restart audio sink, dropping sentence", err)
			return
		}
		p.restarted("sink exited")
	}

	// An interrupt may have cleared the queue while the sink was down.
	if !p.queue.IsCurrent(sentence) {
		p.logger.Debug("dropping interrupted sentence", "bytes", len(sentence.Audio))
		return
	}

	if err := p.output.Write(sentence.Audio); err != nil {
		if !p.queue.IsCurrent(sentence) {
			// Cut off by an interrupt, which restarts the sink itself.
			return
		}
		p.recordError(ctx, "failed to write sentence to audio sink", err)
		_ = p.output.Stop()
		if err := p.output.Start(); err != nil {
			p.recordError(ctx, "failed to restart audio sink", err)
			return
		}
		p.restarted("write failed")
		return
	}

	if p.onPlayed != nil {
		p.onPlayed(sentence)
	}
}

// Interrupt drops everything queued, kills the sink so a write in flight is
// aborted and buffered audio goes silent, and brings it up again. It returns the
// number of queued sentences that were dropped.
func (p *Player) Interrupt() int {
	dropped := p.queue.Clear()
	if err := p.output.Stop(); err != nil {
		p.logger.Warn("failed to stop audio sink", "error", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.bringUpAfterInterrupt(); err != nil {
		p.logger.Error("failed to restart audio sink after interrupt", "error", err)
		return dropped
	}
	p.restarted("interrupt")
	return dropped
}

// bringUpAfterInterrupt replaces the sink output when the sink supports it,
// so nothing the old output buffered survives the interrupt.
func (p *Player) bringUpAfterInterrupt() error {
	if restarter, ok := p.output.(sink.Restarter); ok {
		return restarter.Restart()
	}
	return p.output.Start()
}

func (p *Player) restarted(reason string) {
	p.logger.Debug("audio sink restarted", "reason", reason)
	if p.onRestart != nil {
		p.onRestart(reason)
	}
}

func (p *Player) recordError(ctx context.Context, msg string, err error) {
	p.logger.Error(msg, "error", err)
	recordedErr := fmt.Errorf("%s: %w", msg, err)
	span := trace.SpanFromContext(ctx)
	span.RecordError(recordedErr)
	span.SetStatus(codes.Error, recordedErr.Error())
}
