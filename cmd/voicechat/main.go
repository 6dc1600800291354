// Command voicechat holds a half-duplex voice conversation with a remote
// voice bot over a WebSocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	orchestration "github.com/koscakluka/ema-duplex/core"
	"github.com/koscakluka/ema-duplex/core/audio"
	"github.com/koscakluka/ema-duplex/core/events"
	"github.com/koscakluka/ema-duplex/core/transport/websocket"
	"github.com/koscakluka/ema-duplex/internal/config"
	"github.com/koscakluka/ema-duplex/internal/telemetry"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "voicechat:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "", "path to a YAML config file")
		printSchema = flag.Bool("schema", false, "print the config file JSON schema and exit")
		useTUI      = flag.Bool("tui", false, "show a live conversation view")
		input       = flag.String("input", "", "audio input: auto, miniaudio, portaudio, file or none")
		file        = flag.String("file", "", "raw PCM file for the file input")
		botID       = flag.String("bot", "", "bot id to talk to")
		logFile     = flag.String("log-file", "", "write logs to this file instead of stderr")
	)
	flag.Parse()

	if *printSchema {
		schema, err := config.Schema()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(os.Stdout, string(schema))
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *input != "" {
		cfg.Audio.Input = *input
	}
	if *file != "" {
		cfg.Audio.File = *file
	}
	if *botID != "" {
		cfg.Server.BotID = *botID
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logOutput, closeLog, err := openLogOutput(*logFile, *useTUI)
	if err != nil {
		return err
	}
	defer closeLog()
	logger := newLogger(cfg.Telemetry, logOutput)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.Setup(ctx, cfg.Telemetry, version, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	if cfg.Telemetry.PrometheusBind != "" {
		stopMetrics := serveMetrics(cfg.Telemetry.PrometheusBind, providers.MetricsHandler, logger)
		defer stopMetrics()
	}

	format, ok := audio.ParseFormat(cfg.Audio.Format)
	if !ok {
		return fmt.Errorf("unsupported audio format %q", cfg.Audio.Format)
	}
	encoding := audio.EncodingInfo{SampleRate: cfg.Audio.SampleRate, Channels: cfg.Audio.Channels, Format: format}

	source := openSource(cfg.Audio, encoding, logger)
	output, err := openSink(cfg.Playback, encoding)
	if err != nil {
		if source != nil {
			source.Close()
		}
		return err
	}

	sessionConfig := orchestration.DefaultSessionConfig(cfg.Server.BotID)
	sessionConfig.UID = cfg.Server.UID
	sessionConfig.Encoding = encoding
	sessionConfig.FrameDuration = cfg.Audio.FrameDuration()
	sessionConfig.EnergyThreshold = cfg.Audio.EnergyThreshold
	sessionConfig.SilenceDuration = cfg.Turn.Silence()
	sessionConfig.InterruptDebounce = cfg.Turn.InterruptDebounce()
	sessionConfig.CaptureQueueCapacity = cfg.Turn.CaptureQueue
	sessionConfig.PlaybackQueueCapacity = cfg.Turn.PlaybackQueue
	sessionConfig.HeartbeatInterval = cfg.Turn.HeartbeatInterval()
	sessionConfig.LegacyEndOfStreamIndex = cfg.Turn.LegacyEndOfStreamIndex

	conn, err := websocket.Dial(ctx, websocket.Options{
		URL:              cfg.Server.URL,
		Token:            cfg.Server.Token,
		BotID:            sessionConfig.BotID,
		SessionID:        sessionConfig.SessionID,
		RequestID:        sessionConfig.RequestID,
		HandshakeTimeout: cfg.Server.HandshakeTimeout(),
		WriteTimeout:     cfg.Server.WriteTimeout(),
	})
	if err != nil {
		if source != nil {
			source.Close()
		}
		return err
	}

	opts := []orchestration.SessionOption{
		orchestration.WithSessionConfig(sessionConfig),
		orchestration.WithSink(output),
		orchestration.WithLogger(logger),
	}
	if source != nil {
		opts = append(opts, orchestration.WithAudioSource(source))
	}

	if *useTUI {
		return runWithTUI(ctx, conn, opts)
	}

	opts = append(opts, orchestration.WithEventHandler(logEvents(logger)))
	session, err := orchestration.NewSession(conn, opts...)
	if err != nil {
		_ = conn.Close()
		return err
	}
	return session.Run(ctx)
}

func openLogOutput(path string, quiet bool) (io.Writer, func(), error) {
	switch {
	case path != "":
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return f, func() { _ = f.Close() }, nil
	case quiet:
		return io.Discard, func() {}, nil
	default:
		return os.Stderr, func() {}, nil
	}
}

func newLogger(cfg config.TelemetryConfig, output io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.LogFormat) == "json" {
		return slog.New(slog.NewJSONHandler(output, opts))
	}
	return slog.New(slog.NewTextHandler(output, opts))
}

func serveMetrics(addr string, handler http.Handler, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}

func logEvents(logger *slog.Logger) events.Handler {
	return func(event events.Event) {
		switch e := event.(type) {
		case events.UserTranscript:
			if !e.Partial {
				logger.Info("you said", "text", e.Transcript)
			}
		case events.AssistantSentenceStarted:
			if e.Text != "" {
				logger.Info("bot says", "text", e.Text)
			}
		case events.AssistantResponseText:
			logger.Info("bot response", "text", e.Text)
		case events.TurnResponseLatency:
			logger.Info("response latency", "latency", e.Latency, "average", e.Average)
		case events.TurnInterruptRequested:
			logger.Info("interrupting bot", "energy", e.Energy)
		}
	}
}
