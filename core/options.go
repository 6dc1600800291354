package orchestration

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-duplex/core/audio"
	"github.com/koscakluka/ema-duplex/core/events"
	"github.com/koscakluka/ema-duplex/core/sink"
)

const (
	defaultSilenceDuration   = 700 * time.Millisecond
	defaultInterruptDebounce = 800 * time.Millisecond
)

// SessionConfig identifies a session and tunes its turn taking. The zero
// value of every tuning field means the default.
type SessionConfig struct {
	BotID     string
	SessionID string
	RequestID string
	UID       string

	Encoding              audio.EncodingInfo
	FrameDuration         time.Duration
	EnergyThreshold       float64
	SilenceDuration       time.Duration
	InterruptDebounce     time.Duration
	PlaybackQueueCapacity int
	CaptureQueueCapacity  int
	HeartbeatInterval     time.Duration

	// LegacyEndOfStreamIndex sends the last frame of a finite source with the
	// bitwise complement of its index, as older servers expect.
	LegacyEndOfStreamIndex bool
}

// DefaultSessionConfig returns the defaults with fresh session and request
// identifiers for botID.
func DefaultSessionConfig(botID string) SessionConfig {
	return SessionConfig{
		BotID:                 botID,
		SessionID:             botID + uuid.NewString(),
		RequestID:             uuid.NewString(),
		Encoding:              audio.GetDefaultEncodingInfo(),
		FrameDuration:         defaultFrameDuration,
		EnergyThreshold:       defaultEnergyThreshold,
		SilenceDuration:       defaultSilenceDuration,
		InterruptDebounce:     defaultInterruptDebounce,
		PlaybackQueueCapacity: defaultPlaybackQueueCapacity,
		CaptureQueueCapacity:  defaultCaptureQueueCapacity,
		HeartbeatInterval:     defaultHeartbeatInterval,
	}
}

func (c *SessionConfig) applyDefaults() {
	defaults := DefaultSessionConfig(c.BotID)
	if c.SessionID == "" {
		c.SessionID = defaults.SessionID
	}
	if c.RequestID == "" {
		c.RequestID = defaults.RequestID
	}
	if c.UID == "" {
		c.UID = uuid.NewString()
	}
	if c.Encoding.IsZero() {
		c.Encoding = defaults.Encoding
	}
	if c.FrameDuration <= 0 {
		c.FrameDuration = defaults.FrameDuration
	}
	if c.EnergyThreshold <= 0 {
		c.EnergyThreshold = defaults.EnergyThreshold
	}
	if c.SilenceDuration <= 0 {
		c.SilenceDuration = defaults.SilenceDuration
	}
	if c.InterruptDebounce <= 0 {
		c.InterruptDebounce = defaults.InterruptDebounce
	}
	if c.PlaybackQueueCapacity <= 0 {
		c.PlaybackQueueCapacity = defaults.PlaybackQueueCapacity
	}
	if c.CaptureQueueCapacity <= 0 {
		c.CaptureQueueCapacity = defaults.CaptureQueueCapacity
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaults.HeartbeatInterval
	}
}

type SessionOption func(*Session)

// WithSessionConfig replaces the whole configuration. Options applied after
// it still override individual fields.
func WithSessionConfig(config SessionConfig) SessionOption {
	return func(s *Session) { s.config = config }
}

func WithUID(uid string) SessionOption {
	return func(s *Session) { s.config.UID = uid }
}

// WithAudioSource sets the capture source. Without one the session only
// listens.
func WithAudioSource(source AudioSource) SessionOption {
	return func(s *Session) { s.source = source }
}

// WithSink sets where remote speech is played. It defaults to an ffplay
// subprocess.
func WithSink(output sink.Sink) SessionOption {
	return func(s *Session) { s.output = output }
}

func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEventHandler registers an observer for session events. It is called
// synchronously from the session workers and must not block.
func WithEventHandler(handler events.Handler) SessionOption {
	return func(s *Session) { s.onEvent = handler }
}

func WithEncoding(encoding audio.EncodingInfo) SessionOption {
	return func(s *Session) { s.config.Encoding = encoding }
}

func WithFrameDuration(d time.Duration) SessionOption {
	return func(s *Session) { s.config.FrameDuration = d }
}

func WithEnergyThreshold(threshold float64) SessionOption {
	return func(s *Session) { s.config.EnergyThreshold = threshold }
}

func WithSilenceDuration(d time.Duration) SessionOption {
	return func(s *Session) { s.config.SilenceDuration = d }
}

func WithInterruptDebounce(d time.Duration) SessionOption {
	return func(s *Session) { s.config.InterruptDebounce = d }
}

func WithHeartbeatInterval(d time.Duration) SessionOption {
	return func(s *Session) { s.config.HeartbeatInterval = d }
}

func WithQueueCapacities(capture, playback int) SessionOption {
	return func(s *Session) {
		s.config.CaptureQueueCapacity = capture
		s.config.PlaybackQueueCapacity = playback
	}
}

func WithLegacyEndOfStreamIndex() SessionOption {
	return func(s *Session) { s.config.LegacyEndOfStreamIndex = true }
}

func withClock(now func() time.Time, wait func(context.Context, time.Duration) error) SessionOption {
	return func(s *Session) {
		s.now = now
		s.wait = wait
	}
}

func withMessageIDs(newID func() string) SessionOption {
	return func(s *Session) { s.newID = newID }
}
