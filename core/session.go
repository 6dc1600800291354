package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koscakluka/ema-duplex/core/events"
	"github.com/koscakluka/ema-duplex/core/protocol"
	"github.com/koscakluka/ema-duplex/core/sink"
	"github.com/koscakluka/ema-duplex/core/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var (
	ErrTransportClosed = errors.New("transport closed")
	ErrSessionStarted  = errors.New("session already started")
)

// Session runs one half-duplex voice conversation over a transport. It
// captures and sends local speech, plays remote speech and arbitrates who
// holds the turn.
type Session struct {
	config    SessionConfig
	transport transport.Transport
	source    AudioSource
	output    sink.Sink
	logger    *slog.Logger
	onEvent   events.Handler

	now   func() time.Time
	wait  func(context.Context, time.Duration) error
	newID func() string

	builder   *protocol.Builder
	gate      *TurnGate
	framer    *OutboundFramer
	assembler *SentenceAssembler
	queue     *PlaybackQueue
	player    *Player
	heartbeat *Heartbeat
	input     *audioInput

	performance performanceTracker
	metrics     sessionMetrics

	// sendMu serializes every write to the transport.
	sendMu sync.Mutex

	ctxMu sync.RWMutex
	ctx   context.Context

	started atomic.Bool
}

func NewSession(conn transport.Transport, opts ...SessionOption) (*Session, error) {
	if conn == nil {
		return nil, errors.New("transport is required")
	}

	s := &Session{
		config:    DefaultSessionConfig(""),
		transport: conn,
		logger:    defaultLogger,
		now:       time.Now,
		wait:      sleepContext,
		ctx:       context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.source != nil && !s.source.EncodingInfo().IsZero() {
		s.config.Encoding = s.source.EncodingInfo()
	}
	s.config.applyDefaults()

	if s.output == nil {
		ffplay, err := sink.NewFFPlay("")
		if err != nil {
			return nil, fmt.Errorf("failed to create default audio sink: %w", err)
		}
		s.output = ffplay
	}

	s.builder = protocol.NewBuilder(s.config.UID)
	if s.newID != nil {
		s.builder.WithIDGenerator(s.newID)
	}
	s.metrics = newSessionMetrics()

	s.gate = NewTurnGate(s.config.SilenceDuration, s.config.InterruptDebounce, s.turnHooks())
	s.gate.now = s.now

	s.queue = NewPlaybackQueue(s.config.PlaybackQueueCapacity)
	s.assembler = NewSentenceAssembler(s.queue, s.gate.DiscardingInbound)

	s.player = NewPlayer(s.queue, s.output, s.logger)
	s.player.onPlayed = func(sentence Sentence) {
		s.metrics.sentencesPlayed.Add(s.context(), 1)
		s.emit(events.NewAssistantPlaybackSentencePlayed(len(sentence.Audio)))
	}
	s.player.onRestart = func(reason string) {
		s.metrics.sinkRestarts.Add(s.context(), 1, metric.WithAttributes(attribute.String("reason", reason)))
	}

	s.framer = newOutboundFramer(s.gate, framerConfig{
		encoding:      s.config.Encoding,
		frameDuration: s.config.FrameDuration,
		threshold:     s.config.EnergyThreshold,
		queueCapacity: s.config.CaptureQueueCapacity,
	}, s.sendFrame, s.logger)
	s.framer.now = s.now
	s.framer.wait = s.wait
	s.framer.onDropped = func() { s.metrics.captureBlocksDropped.Add(s.context(), 1) }
	s.framer.onSent = func(Frame) { s.metrics.framesSent.Add(s.context(), 1) }

	s.input = newAudioInput(s.source, s.framer.Submit, s.framer.EndOfStream, s.logger)
	s.heartbeat = NewHeartbeat(s.config.HeartbeatInterval, s.sendPing, s.logger)

	return s, nil
}

func (s *Session) Config() SessionConfig { return s.config }
func (s *Session) State() TurnState      { return s.gate.State() }

// Performance returns the response latencies measured so far.
func (s *Session) Performance() []PerformanceSample { return s.performance.snapshot() }

// Run drives the session until ctx is done or the transport fails. A session
// can only be run once. Cancellation returns nil; a broken transport returns
// an error wrapping ErrTransportClosed.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrSessionStarted
	}

	ctx, span := tracer.Start(ctx, "duplex session", trace.WithAttributes(
		attribute.String("session.bot_id", s.config.BotID),
		attribute.String("session.id", s.config.SessionID),
		attribute.String("session.request_id", s.config.RequestID),
	))
	defer span.End()

	s.logger.Info("duplex session started",
		"bot_id", s.config.BotID,
		"session_id", s.config.SessionID,
		"request_id", s.config.RequestID,
		"capture", s.input.IsConfigured(),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	s.setContext(groupCtx)

	workers := []struct {
		name string
		run  func(context.Context) error
	}{
		{name: "capture", run: s.input.Run},
		{name: "framer", run: s.framer.Run},
		{name: "receiver", run: s.receive},
		{name: "player", run: s.player.Run},
		{name: "heartbeat", run: s.heartbeat.Run},
	}
	for _, worker := range workers {
		run := panicSafeNamedWorker(worker.name, worker.run)
		group.Go(func() error { return run(groupCtx) })
	}

	err := group.Wait()
	s.teardown(ctx)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("duplex session ended", "error", err)
		return err
	}
	s.logger.Info("duplex session ended")
	return nil
}

func (s *Session) teardown(ctx context.Context) {
	s.queue.Close()

	var errs error
	if err := s.input.Close(); err != nil {
		errs = errors.Join(errs, fmt.Errorf("failed to close audio input: %w", err))
	}
	if err := s.transport.Close(); err != nil {
		errs = errors.Join(errs, fmt.Errorf("failed to close transport: %w", err))
	}
	if errs != nil {
		s.logger.Warn("session teardown incomplete", "error", errs)
		span := trace.SpanFromContext(ctx)
		span.RecordError(errs)
	}

	if average, count := s.performance.average(); count > 0 {
		s.logger.Info("response latency", "average", average, "samples", count)
	}
}

func (s *Session) receive(ctx context.Context) error {
	done := withContextCancelHook(ctx, func() {
		if err := s.transport.Close(); err != nil {
			s.logger.Debug("failed to close transport", "error", err)
		}
	})
	defer close(done)

	for {
		messageType, message, err := s.transport.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrTransportClosed, err)
		}

		switch messageType {
		case transport.MessageBinary:
			s.HandleBinary(message)
		case transport.MessageText:
			s.HandleText(ctx, message)
		}
	}
}

// HandleBinary appends a fragment of remote speech to the current sentence.
func (s *Session) HandleBinary(message []byte) {
	if !s.assembler.Append(message) {
		s.logger.Debug("discarding speech after interrupt", "bytes", len(message))
	}
}

// HandleText interprets a control message from the remote. Malformed and
// unknown messages are logged and ignored.
func (s *Session) HandleText(ctx context.Context, message []byte) {
	in, err := protocol.Parse(message)
	if err != nil {
		if errors.Is(err, protocol.ErrInvalidAudio) {
			s.logger.Warn("skipping undecodable audio message", "error", err)
			return
		}
		s.metrics.unknownMessages.Add(ctx, 1)
		s.logger.Warn("ignoring malformed message", "error", err, "size", len(message))
		return
	}

	switch in.Kind {
	case protocol.KindSentenceStart:
		s.gate.OnRemoteSentenceStart()
		if sample, ok := s.performance.recordResponseStart(s.now()); ok {
			average, _ := s.performance.average()
			s.metrics.responseLatency.Record(ctx, sample.Latency.Seconds())
			s.logger.Debug("response latency", "latency", sample.Latency, "average", average)
			s.emit(events.NewTurnResponseLatency(sample.Latency, average))
		}
		s.emit(events.NewAssistantSentenceStarted(in.Text))

	case protocol.KindSentenceComplete:
		s.gate.OnRemoteComplete(false)

	case protocol.KindTurnComplete:
		s.gate.OnRemoteComplete(true)

	case protocol.KindInterrupt:
		s.gate.OnRemoteInterruptAck()

	case protocol.KindTranscript:
		s.emit(events.NewUserTranscript(in.Text, in.Partial))

	case protocol.KindResponseText:
		s.emit(events.NewAssistantResponseText(in.Text))

	case protocol.KindAudio:
		s.HandleBinary(in.Audio)

	case protocol.KindHeartbeat:
		s.logger.Debug("heartbeat", "content_type", in.ContentType)

	case protocol.KindEvent:
		s.logger.Debug("unhandled event", "event_type", in.EventType)

	default:
		s.metrics.unknownMessages.Add(ctx, 1)
		s.logger.Warn("ignoring unknown message", "content_type", in.ContentType)
	}
}

func (s *Session) turnHooks() TurnHooks {
	return TurnHooks{
		AudioStart:  func() { s.sendControl("audio start", s.builder.AudioStart) },
		AudioFinish: func() { s.sendControl("audio finish", s.builder.AudioFinish) },
		Interrupt:   func() { s.sendControl("interrupt", s.builder.Interrupt) },

		FlushSentence: s.flushSentence,
		ClearPlayback: func() {
			dropped := s.player.Interrupt()
			discarded := s.assembler.Discard()
			s.logger.Debug("playback cleared", "sentences", dropped, "buffered_bytes", discarded)
			s.emit(events.NewAssistantPlaybackCleared(dropped))
		},

		StateChanged: func(from, to TurnState, at time.Time) {
			s.logger.Debug("turn state changed", "from", from, "to", to)
			s.emit(events.NewTurnStateChanged(from.String(), to.String(), at))
		},
		UtteranceStarted: func(energy float64, at time.Time) {
			s.emit(events.NewUserSpeechStarted(energy, at))
		},
		UtteranceFinished: func(frames uint32, preempted bool, at time.Time) {
			if !preempted {
				s.performance.recordUtteranceEnd(at)
			}
			s.emit(events.NewUserSpeechEnded(frames, preempted, at))
		},
		InterruptRequested: func(energy float64, at time.Time) {
			s.metrics.interruptsRequested.Add(s.context(), 1)
			s.logger.Info("interrupt requested", "energy", energy)
			s.emit(events.NewTurnInterruptRequested(energy, at))
		},
		InterruptAcknowledged: func() {
			s.metrics.interruptsAcknowledged.Add(s.context(), 1)
			s.emit(events.NewTurnInterruptAcknowledged())
		},
	}
}

func (s *Session) flushSentence() {
	ctx := s.context()
	size := s.assembler.Buffered()
	flushed, err := s.assembler.Flush(ctx)
	if err != nil {
		if !errors.Is(err, ErrQueueClosed) && ctx.Err() == nil {
			s.logger.Warn("failed to queue sentence", "error", err)
		}
		return
	}
	if !flushed {
		return
	}
	s.metrics.sentencesQueued.Add(ctx, 1)
	s.emit(events.NewAssistantSentenceQueued(size))
}

func (s *Session) sendFrame(frame Frame) error {
	index := int64(frame.Index)
	if frame.Last && s.config.LegacyEndOfStreamIndex {
		index = ^index
	}
	message, err := s.builder.Audio(index, frame.Audio)
	if err != nil {
		return err
	}
	return s.send(message)
}

func (s *Session) sendPing() error {
	message, err := s.builder.Ping()
	if err != nil {
		return err
	}
	return s.send(message)
}

func (s *Session) sendControl(name string, build func() ([]byte, error)) {
	message, err := build()
	if err == nil {
		err = s.send(message)
	}
	if err != nil {
		recordedErr := fmt.Errorf("failed to send %s: %w", name, err)
		s.logger.Warn("failed to send control message", "message", name, "error", err)
		span := trace.SpanFromContext(s.context())
		span.RecordError(recordedErr)
		span.SetStatus(codes.Error, recordedErr.Error())
	}
}

func (s *Session) send(message []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.transport.WriteText(string(message))
}

func (s *Session) emit(event events.Event) {
	if s.onEvent != nil {
		s.onEvent(event)
	}
}

func (s *Session) setContext(ctx context.Context) {
	s.ctxMu.Lock()
	defer s.ctxMu.Unlock()
	s.ctx = ctx
}

func (s *Session) context() context.Context {
	s.ctxMu.RLock()
	defer s.ctxMu.RUnlock()
	return s.ctx
}
