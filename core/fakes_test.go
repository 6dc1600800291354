package orchestration

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-duplex/core/audio"
	"github.com/koscakluka/ema-duplex/core/sink"
	"github.com/koscakluka/ema-duplex/core/transport"
)

var errTestTransportClosed = errors.New("test transport closed")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Wait advances the clock instead of sleeping.
func (c *fakeClock) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

type fakeMessage struct {
	messageType transport.MessageType
	data        []byte
}

type fakeTransport struct {
	mu      sync.Mutex
	written []string
	notify  chan struct{}

	inbound   chan fakeMessage
	closed    chan struct{}
	closeOnce sync.Once
	closes    int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		notify:  make(chan struct{}, 1),
		inbound: make(chan fakeMessage, 64),
		closed:  make(chan struct{}),
	}
}

func (f *fakeTransport) WriteText(message string) error {
	f.mu.Lock()
	f.written = append(f.written, message)
	f.mu.Unlock()
	select {
	case f.notify <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeTransport) WriteBinary(message []byte) error {
	return f.WriteText(string(message))
}

func (f *fakeTransport) ReadMessage() (transport.MessageType, []byte, error) {
	select {
	case msg := <-f.inbound:
		return msg.messageType, msg.data, nil
	case <-f.closed:
		return 0, nil, errTestTransportClosed
	}
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) pushText(message string) {
	f.inbound <- fakeMessage{messageType: transport.MessageText, data: []byte(message)}
}

func (f *fakeTransport) pushBinary(data []byte) {
	f.inbound <- fakeMessage{messageType: transport.MessageBinary, data: data}
}

// sent returns the decoded outbound messages.
func (f *fakeTransport) sent(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]map[string]any, 0, len(f.written))
	for _, raw := range f.written {
		var msg map[string]any
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			t.Fatalf("expected outbound json, got %q: %v", raw, err)
		}
		out = append(out, msg)
	}
	return out
}

func (f *fakeTransport) contentTypes(t *testing.T) []string {
	t.Helper()
	var types []string
	for _, msg := range f.sent(t) {
		contentType, _ := msg["contentType"].(string)
		types = append(types, contentType)
	}
	return types
}

// waitFor polls until cond holds or a second has passed.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fakeSink struct {
	mu      sync.Mutex
	running bool
	stopped chan struct{}

	starts int
	stops  int
	writes [][]byte

	failWrites  int
	blockWrites bool
	startErr    error

	writing chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{writing: make(chan struct{}, 16)}
}

var _ sink.Sink = (*fakeSink)(nil)

func (s *fakeSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	if !s.running {
		s.running = true
		s.stopped = make(chan struct{})
	}
	s.starts++
	return nil
}

func (s *fakeSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		close(s.stopped)
		s.running = false
	}
	s.stops++
	return nil
}

func (s *fakeSink) Write(p []byte) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return sink.ErrSinkNotRunning
	}
	if s.failWrites > 0 {
		s.failWrites--
		s.mu.Unlock()
		return errors.New("broken pipe")
	}
	block, stopped := s.blockWrites, s.stopped
	s.mu.Unlock()

	if block {
		s.writing <- struct{}{}
		<-stopped
		return errors.New("sink killed")
	}

	s.mu.Lock()
	s.writes = append(s.writes, append([]byte(nil), p...))
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *fakeSink) kill() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		close(s.stopped)
		s.running = false
	}
}

func (s *fakeSink) setBlockWrites(block bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockWrites = block
}

func (s *fakeSink) written() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.writes...)
}

func (s *fakeSink) startCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// fakeSource delivers its blocks and then reports a finite end.
type fakeSource struct {
	encoding audio.EncodingInfo
	blocks   [][]byte
	closed   bool
}

func (s *fakeSource) EncodingInfo() audio.EncodingInfo { return s.encoding }

func (s *fakeSource) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	for _, block := range s.blocks {
		if ctx.Err() != nil {
			return nil
		}
		onAudio(block)
	}
	return io.EOF
}

func (s *fakeSource) Close() { s.closed = true }

// pcmBlock returns n bytes of linear16 audio holding a constant sample, whose
// energy is sample/32768.
func pcmBlock(n int, sample int16) []byte {
	block := make([]byte, n)
	for i := 0; i+1 < n; i += 2 {
		binary.LittleEndian.PutUint16(block[i:], uint16(sample))
	}
	return block
}

const testFrameBytes = 3840

func loudFrame() []byte   { return pcmBlock(testFrameBytes, 16384) }
func silentFrame() []byte { return make([]byte, testFrameBytes) }
