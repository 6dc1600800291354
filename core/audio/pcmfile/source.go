// Package pcmfile replays raw PCM from a file as if it were a microphone.
package pcmfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/koscakluka/ema-duplex/core/audio"
)

// Source delivers a finite recording in blocks and reports io.EOF from
// Stream once the whole file has been delivered.
type Source struct {
	path      string
	encoding  audio.EncodingInfo
	blockSize int
	realtime  bool

	mu     sync.Mutex
	file   io.ReadCloser
	closed bool
}

type Option func(*Source)

// WithBlockDuration sets how much audio each delivered block holds.
func WithBlockDuration(d time.Duration) Option {
	return func(s *Source) {
		if n := s.encoding.BytesPerFrame(d); n > 0 {
			s.blockSize = n
		}
	}
}

// WithoutPacing delivers blocks as fast as they can be read instead of at
// the recording's own rate.
func WithoutPacing() Option {
	return func(s *Source) { s.realtime = false }
}

func Open(path string, encoding audio.EncodingInfo, opts ...Option) (*Source, error) {
	if encoding.IsZero() {
		encoding = audio.GetDefaultEncodingInfo()
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcm file: %w", err)
	}

	s := newSource(file, encoding, opts...)
	s.path = path
	return s, nil
}

// FromReader wraps an already open recording.
func FromReader(r io.Reader, encoding audio.EncodingInfo, opts ...Option) *Source {
	if encoding.IsZero() {
		encoding = audio.GetDefaultEncodingInfo()
	}
	rc, ok := r.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(r)
	}
	return newSource(rc, encoding, opts...)
}

func newSource(file io.ReadCloser, encoding audio.EncodingInfo, opts ...Option) *Source {
	s := &Source{
		file:     file,
		encoding: encoding,
		realtime: true,
	}
	s.blockSize = encoding.BytesPerFrame(20 * time.Millisecond)
	for _, opt := range opts {
		opt(s)
	}
	if s.blockSize <= 0 {
		s.blockSize = 640
	}
	return s
}

func (s *Source) EncodingInfo() audio.EncodingInfo { return s.encoding }

// Stream reads the file to the end. It returns io.EOF when the recording is
// exhausted and nil if ctx is cancelled first.
func (s *Source) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	s.mu.Lock()
	file := s.file
	closed := s.closed
	s.mu.Unlock()
	if closed || file == nil {
		return io.EOF
	}

	blockDuration := s.encoding.Duration(s.blockSize)
	next := time.Now()
	for {
		block := make([]byte, s.blockSize)
		n, err := io.ReadFull(file, block)
		if n > 0 {
			onAudio(block[:n])
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return io.EOF
		} else if err != nil {
			return fmt.Errorf("failed to read pcm file %s: %w", s.path, err)
		}

		if !s.realtime {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		next = next.Add(blockDuration)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (s *Source) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.file != nil {
		_ = s.file.Close()
	}
}
