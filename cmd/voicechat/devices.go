package main

import (
	"fmt"
	"log/slog"
	"time"

	orchestration "github.com/koscakluka/ema-duplex/core"
	"github.com/koscakluka/ema-duplex/core/audio"
	"github.com/koscakluka/ema-duplex/core/audio/miniaudio"
	"github.com/koscakluka/ema-duplex/core/audio/pcmfile"
	"github.com/koscakluka/ema-duplex/core/audio/portaudio"
	"github.com/koscakluka/ema-duplex/core/sink"
	"github.com/koscakluka/ema-duplex/internal/config"
)

const captureBlock = 20 * time.Millisecond

// openSource picks the capture source. In auto mode the microphone backends
// are tried in turn and the PCM file is the last resort; with nothing
// available the session only listens.
func openSource(cfg config.AudioConfig, encoding audio.EncodingInfo, logger *slog.Logger) orchestration.AudioSource {
	switch cfg.Input {
	case "none":
		return nil
	case "miniaudio":
		return tryMiniaudio(encoding, logger)
	case "portaudio":
		return tryPortaudio(encoding, logger)
	case "file":
		return tryFile(cfg.File, encoding, logger)
	}

	if source := tryMiniaudio(encoding, logger); source != nil {
		return source
	}
	if source := tryPortaudio(encoding, logger); source != nil {
		return source
	}
	if source := tryFile(cfg.File, encoding, logger); source != nil {
		return source
	}
	logger.Warn("no audio input available, listening only")
	return nil
}

func tryMiniaudio(encoding audio.EncodingInfo, logger *slog.Logger) orchestration.AudioSource {
	client, err := miniaudio.NewClient(encoding)
	if err != nil {
		logger.Warn("miniaudio capture unavailable", "error", err)
		return nil
	}
	logger.Info("capturing from microphone", "backend", "miniaudio")
	return client
}

func tryPortaudio(encoding audio.EncodingInfo, logger *slog.Logger) orchestration.AudioSource {
	samples := encoding.BytesPerFrame(captureBlock) / 2
	client, err := portaudio.NewClient(samples, encoding.SampleRate)
	if err != nil {
		logger.Warn("portaudio capture unavailable", "error", err)
		return nil
	}
	logger.Info("capturing from microphone", "backend", "portaudio")
	return client
}

func tryFile(path string, encoding audio.EncodingInfo, logger *slog.Logger) orchestration.AudioSource {
	if path == "" {
		return nil
	}
	source, err := pcmfile.Open(path, encoding, pcmfile.WithBlockDuration(captureBlock))
	if err != nil {
		logger.Warn("audio file unavailable", "path", path, "error", err)
		return nil
	}
	logger.Info("streaming audio file", "path", path)
	return source
}

func openSink(cfg config.PlaybackConfig, encoding audio.EncodingInfo) (sink.Sink, error) {
	switch cfg.Sink {
	case "miniaudio":
		return miniaudio.NewPCMSink(encoding), nil
	case "ffplay", "":
		ffplay, err := sink.NewFFPlay(cfg.Command)
		if err != nil {
			return nil, fmt.Errorf("failed to create ffplay sink: %w", err)
		}
		return ffplay, nil
	}
	return nil, fmt.Errorf("unsupported sink %q", cfg.Sink)
}
