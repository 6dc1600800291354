package orchestration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/koscakluka/ema-duplex/core/audio"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AudioSource produces captured microphone audio. Stream either blocks until
// ctx is done or starts delivery in the background and returns nil. A finite
// source returns io.EOF once everything has been delivered.
type AudioSource interface {
	EncodingInfo() audio.EncodingInfo
	Stream(ctx context.Context, onAudio func(audio []byte)) error
	Close()
}

// AudioSourceFine is implemented by sources with explicit capture controls.
type AudioSourceFine interface {
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
}

type audioInput struct {
	base AudioSource
	// fineCaptureControl is set when the source supports explicit capture controls.
	fineCaptureControl AudioSourceFine
	logger             *slog.Logger

	connected   atomic.Bool
	isCapturing atomic.Bool

	onInputAudio func(audio []byte)
	// onEnded is called once a finite source has delivered all of its audio.
	onEnded func()
}

func newAudioInput(client AudioSource, onInputAudio func(audio []byte), onEnded func(), logger *slog.Logger) *audioInput {
	if onInputAudio == nil {
		onInputAudio = func(audio []byte) {}
	}
	if logger == nil {
		logger = defaultLogger
	}

	input := audioInput{onInputAudio: onInputAudio, onEnded: onEnded, logger: logger}
	input.base = client
	if client != nil {
		input.connected.Store(true)
		if fine, ok := client.(AudioSourceFine); ok {
			input.fineCaptureControl = fine
		}
	}
	return &input
}

func (a *audioInput) IsConfigured() bool            { return a != nil && a.connected.Load() }
func (a *audioInput) SupportsCaptureControls() bool { return a != nil && a.fineCaptureControl != nil }
func (a *audioInput) IsCapturing() bool             { return a != nil && a.isCapturing.Load() }

// Run is the capture worker. It keeps running until ctx is done even after
// the source has ended or failed, because the remote side of the
// conversation can outlive local capture.
func (a *audioInput) Run(ctx context.Context) error {
	if !a.IsConfigured() {
		<-ctx.Done()
		return nil
	}

	a.isCapturing.Store(true)
	defer a.isCapturing.Store(false)

	var err error
	if a.SupportsCaptureControls() {
		err = a.fineCaptureControl.StartCapture(ctx, a.onInputAudio)
	} else {
		err = a.base.Stream(ctx, a.onInputAudio)
	}

	switch {
	case errors.Is(err, io.EOF):
		a.logger.Info("audio source ended")
		a.isCapturing.Store(false)
		callIfSet(a.onEnded)
	case err != nil && ctx.Err() == nil:
		a.isCapturing.Store(false)
		recordedErr := fmt.Errorf("failed to capture audio: %w", err)
		a.logger.Error("audio capture stopped", "error", err)
		span := trace.SpanFromContext(ctx)
		span.RecordError(recordedErr)
		span.SetStatus(codes.Error, recordedErr.Error())
	}

	<-ctx.Done()
	return nil
}

func (a *audioInput) Close() error {
	if !a.IsConfigured() {
		return nil
	}

	var errs error
	if a.fineCaptureControl != nil {
		if err := a.fineCaptureControl.StopCapture(); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	a.base.Close()
	a.isCapturing.Store(false)

	return errs
}
