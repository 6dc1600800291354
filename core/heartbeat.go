package orchestration

import (
	"context"
	"log/slog"
	"time"
)

const defaultHeartbeatInterval = 10 * time.Second

// Heartbeat keeps the connection alive by sending a ping right away and then
// on every interval. A failed ping is logged and retried on the next tick.
type Heartbeat struct {
	interval time.Duration
	send     func() error
	logger   *slog.Logger
}

func NewHeartbeat(interval time.Duration, send func() error, logger *slog.Logger) *Heartbeat {
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	if logger == nil {
		logger = defaultLogger
	}
	return &Heartbeat{interval: interval, send: send, logger: logger}
}

func (h *Heartbeat) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		if err := h.send(); err != nil {
			h.logger.Warn("failed to send ping", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
