package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-duplex/core/audio"
	"github.com/koscakluka/ema-duplex/core/sink"
)

var _ sink.Sink = (*PCMSink)(nil)

// PCMSink plays raw linear16 speech on the default output device. It is the
// in-process alternative to an external decoder when the remote sends PCM.
type PCMSink struct {
	encoding audio.EncodingInfo

	mu           sync.Mutex
	audioContext *malgo.AllocatedContext
	device       *malgo.Device

	audioMu       sync.Mutex
	leftoverAudio []byte
}

func NewPCMSink(encoding audio.EncodingInfo) *PCMSink {
	if encoding.IsZero() {
		encoding = audio.GetDefaultEncodingInfo()
	}
	return &PCMSink{encoding: encoding}
}

func (s *PCMSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device != nil {
		return nil
	}

	if s.encoding.Format != audio.EncodingLinear16 {
		return fmt.Errorf("unsupported playback format %q", s.encoding.Format.Name())
	}

	audioCtx, err := initContext()
	if err != nil {
		return err
	}

	channels := s.encoding.Channels
	if channels <= 0 {
		channels = 1
	}
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = uint32(s.encoding.SampleRate)
	config.Playback.Format = format
	config.Playback.Channels = uint32(channels)
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = uint32(s.encoding.SampleRate / 10) // ~100ms of audio
	config.Periods = 4

	device, err := malgo.InitDevice(audioCtx.Context, config, malgo.DeviceCallbacks{Data: s.processAudio(bytesPerFrame)})
	if err != nil {
		_ = audioCtx.Uninit()
		audioCtx.Free()
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = audioCtx.Uninit()
		audioCtx.Free()
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	s.audioContext = audioCtx
	s.device = device
	return nil
}

// Stop releases the device and drops anything not yet played.
func (s *PCMSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	if s.audioContext != nil {
		_ = s.audioContext.Uninit()
		s.audioContext.Free()
		s.audioContext = nil
	}

	s.audioMu.Lock()
	s.leftoverAudio = nil
	s.audioMu.Unlock()
	return nil
}

func (s *PCMSink) Write(p []byte) error {
	if !s.IsAlive() {
		return sink.ErrSinkNotRunning
	}

	s.audioMu.Lock()
	defer s.audioMu.Unlock()
	s.leftoverAudio = append(s.leftoverAudio, p...)
	return nil
}

func (s *PCMSink) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device != nil && s.device.IsStarted()
}

func (s *PCMSink) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame

		s.audioMu.Lock()
		defer s.audioMu.Unlock()
		if len(s.leftoverAudio) == 0 {
			return
		}

		if len(s.leftoverAudio) < need {
			n := copy(pOutput, s.leftoverAudio)
			clear(pOutput[n:need])
			s.leftoverAudio = nil
			return
		}

		_ = copy(pOutput, s.leftoverAudio[:need])
		s.leftoverAudio = s.leftoverAudio[need:]
	}
}
