package portaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-duplex/core/audio"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-duplex/core/audio/portaudio"

var logger = otelslog.NewLogger(scopeName)

// Client captures mono linear16 audio from the default input device with a
// blocking portaudio stream.
type Client struct {
	bufferSize int
	sampleRate int
	stream     *portaudio.Stream

	in []int16

	closeOnce sync.Once
}

// NewClient opens the default input. bufferSize is the number of samples
// read per block.
func NewClient(bufferSize int, sampleRate int) (*Client, error) {
	if bufferSize <= 0 {
		return nil, fmt.Errorf("invalid buffer size %d", bufferSize)
	}
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	in := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), bufferSize, in)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		sampleRate: sampleRate,
		stream:     stream,
		in:         in,
	}, nil
}

// Stream reads blocks until ctx is done. Input overflows are logged and
// reading continues.
func (c *Client) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start portaudio stream: %w", err)
	}
	defer func() {
		if err := c.stream.Stop(); err != nil {
			logger.Debug("failed to stop portaudio stream", "error", err)
		}
	}()
	logger.Info("microphone capture started", "sample_rate", c.sampleRate, "block_samples", c.bufferSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := c.stream.Read(); err != nil {
			if err == portaudio.InputOverflowed {
				logger.Debug("portaudio input overflowed")
			} else {
				return fmt.Errorf("failed to read from portaudio stream: %w", err)
			}
		}

		block := make([]byte, len(c.in)*2)
		for i, sample := range c.in {
			binary.LittleEndian.PutUint16(block[i*2:], uint16(sample))
		}
		onAudio(block)
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.stream.Close()
		_ = portaudio.Terminate()
	})
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: c.sampleRate,
		Channels:   1,
		Format:     audio.EncodingLinear16,
	}
}
