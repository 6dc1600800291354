package sink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// DefaultFFPlayCommand plays an MP3 stream from stdin without a window and
// keeps reading until stdin is closed.
const DefaultFFPlayCommand = "ffplay -nodisp -autoexit -loglevel quiet -f mp3 -i pipe:0"

// ProcessSink pipes audio into the stdin of a long running player process.
type ProcessSink struct {
	args   []string
	stderr io.Writer

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

type ProcessOption func(*ProcessSink)

// WithStderr forwards the player's diagnostics, which are discarded by
// default.
func WithStderr(w io.Writer) ProcessOption {
	return func(s *ProcessSink) {
		s.stderr = w
	}
}

// NewProcess parses a shell-style command line into a sink. The command is
// only started by Start.
func NewProcess(command string, opts ...ProcessOption) (*ProcessSink, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse player command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("player command empty")
	}

	s := &ProcessSink{args: args}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewFFPlay creates a sink around ffplay, or around command when it is set.
func NewFFPlay(command string, opts ...ProcessOption) (*ProcessSink, error) {
	if command == "" {
		command = DefaultFFPlayCommand
	}
	return NewProcess(command, opts...)
}

func (s *ProcessSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

func (s *ProcessSink) startLocked() error {
	if s.cmd != nil {
		return nil
	}

	cmd := exec.Command(s.args[0], s.args[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open player stdin: %w", err)
	}
	cmd.Stdout = io.Discard
	if s.stderr != nil {
		cmd.Stderr = s.stderr
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start %s: %w", s.args[0], err)
	}
	logger.Debug("player started", "command", s.args[0], "pid", cmd.Process.Pid)

	s.cmd = cmd
	s.stdin = stdin
	go func(c *exec.Cmd) {
		err := c.Wait()
		s.mu.Lock()
		if s.cmd == c {
			s.cmd = nil
			s.stdin = nil
			logger.Warn("player exited", "error", err)
		}
		s.mu.Unlock()
	}(cmd)
	return nil
}

// Write is not serialised with Stop so that killing the player unblocks a
// write stuck on a full pipe.
func (s *ProcessSink) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	s.mu.Lock()
	stdin := s.stdin
	s.mu.Unlock()
	if stdin == nil {
		return ErrSinkNotRunning
	}
	if _, err := stdin.Write(p); err != nil {
		return fmt.Errorf("write to player: %w", err)
	}
	return nil
}

func (s *ProcessSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *ProcessSink) stopLocked() error {
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			logger.Debug("failed to kill player", "error", err)
		}
	}
	s.cmd = nil
	s.stdin = nil
	return nil
}

var _ Restarter = (*ProcessSink)(nil)

// Restart replaces the player process with a fresh one.
func (s *ProcessSink) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.stopLocked()
	return s.startLocked()
}

func (s *ProcessSink) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil
}
