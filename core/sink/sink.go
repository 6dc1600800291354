// Package sink contains the persistent audio output used for remote speech.
//
// A Sink is started once and then written to sentence by sentence without
// being reopened, so consecutive sentences play back to back. Stopping a sink
// must abort any write in flight and Start must bring it back, which is how
// queued speech is cut off when the remote yields its turn.
package sink

import "errors"

var ErrSinkNotRunning = errors.New("sink is not running")

type Sink interface {
	// Start brings the sink up. Starting a running sink is a no-op.
	Start() error
	// Stop tears the sink down, unblocking a concurrent Write.
	Stop() error
	// Write delivers one chunk of encoded audio.
	Write(p []byte) error
	IsAlive() bool
}

// Restarter is implemented by sinks that can swap their output for a fresh
// one in a single step. A restart drops whatever audio the old output still
// buffered, even when the sink is already running.
type Restarter interface {
	Restart() error
}
