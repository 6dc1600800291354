package orchestration

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const scopeName = "github.com/koscakluka/ema-duplex/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)

	defaultLogger = logger
)

var latencyBuckets = []float64{0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5, 10}

type sessionMetrics struct {
	framesSent             metric.Int64Counter
	captureBlocksDropped   metric.Int64Counter
	sentencesQueued        metric.Int64Counter
	sentencesPlayed        metric.Int64Counter
	sinkRestarts           metric.Int64Counter
	interruptsRequested    metric.Int64Counter
	interruptsAcknowledged metric.Int64Counter
	unknownMessages        metric.Int64Counter
	responseLatency        metric.Float64Histogram
}

func newSessionMetrics() sessionMetrics {
	noopMeter := noop.NewMeterProvider().Meter(scopeName)
	counter := func(name, description string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(description))
		if err != nil {
			logger.Warn("failed to create metric", "name", name, "error", err)
			c, _ = noopMeter.Int64Counter(name)
		}
		return c
	}

	latency, err := meter.Float64Histogram("duplex.response.latency",
		metric.WithDescription("Time from the end of a local utterance to the start of the remote response"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	)
	if err != nil {
		logger.Warn("failed to create metric", "name", "duplex.response.latency", "error", err)
		latency, _ = noopMeter.Float64Histogram("duplex.response.latency")
	}

	return sessionMetrics{
		framesSent:             counter("duplex.frames.sent", "Outbound audio frames sent"),
		captureBlocksDropped:   counter("duplex.capture.blocks_dropped", "Captured blocks dropped because the framer fell behind"),
		sentencesQueued:        counter("duplex.sentences.queued", "Remote sentences queued for playback"),
		sentencesPlayed:        counter("duplex.sentences.played", "Remote sentences written to the audio sink"),
		sinkRestarts:           counter("duplex.sink.restarts", "Audio sink restarts"),
		interruptsRequested:    counter("duplex.interrupts.requested", "Local interrupt requests sent"),
		interruptsAcknowledged: counter("duplex.interrupts.acknowledged", "Interrupts acknowledged by the remote"),
		unknownMessages:        counter("duplex.messages.unknown", "Inbound messages that could not be interpreted"),
		responseLatency:        latency,
	}
}
