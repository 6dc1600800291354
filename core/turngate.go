package orchestration

import (
	"sync"
	"time"
)

// TurnState is who currently holds the half-duplex channel.
type TurnState int

const (
	TurnIdle TurnState = iota
	TurnLocalSpeaking
	TurnRemoteSpeaking
	// TurnInterrupting is entered when the remote acknowledges an interrupt
	// and lasts until the local side speaks or the remote moves on.
	TurnInterrupting
)

func (s TurnState) String() string {
	switch s {
	case TurnIdle:
		return "idle"
	case TurnLocalSpeaking:
		return "local_speaking"
	case TurnRemoteSpeaking:
		return "remote_speaking"
	case TurnInterrupting:
		return "interrupting"
	}
	return "unknown"
}

// TurnHooks are the side effects of turn transitions. Outbound hooks
// (AudioStart, AudioFinish, Interrupt) run while outbound traffic is held so
// that no audio frame can be sent out of order with them. The rest run after
// the gate is released. Any hook may be nil.
type TurnHooks struct {
	AudioStart  func()
	AudioFinish func()
	Interrupt   func()

	// FlushSentence finalizes the in-progress remote sentence.
	FlushSentence func()
	// ClearPlayback drops queued and in-progress remote speech and restarts
	// the output.
	ClearPlayback func()

	StateChanged          func(from, to TurnState, at time.Time)
	UtteranceStarted      func(energy float64, at time.Time)
	UtteranceFinished     func(frames uint32, preempted bool, at time.Time)
	InterruptRequested    func(energy float64, at time.Time)
	InterruptAcknowledged func()
}

// TurnGate owns the turn state. All transitions go through its methods and
// are decided under a single lock.
type TurnGate struct {
	silence  time.Duration
	debounce time.Duration
	now      func() time.Time
	hooks    TurnHooks

	// outboundMu orders outbound control messages with audio frames.
	outboundMu sync.Mutex

	mu                   sync.Mutex
	state                TurnState
	lastVoice            time.Time
	lastInterruptRequest time.Time
	nextIndex            uint32
	interruptRequested   bool
	discardInbound       bool
}

func NewTurnGate(silence, debounce time.Duration, hooks TurnHooks) *TurnGate {
	return &TurnGate{
		silence:  silence,
		debounce: debounce,
		now:      time.Now,
		hooks:    hooks,
	}
}

type transition struct {
	outbound []func()
	after    []func()
}

func (t *transition) send(fn func()) {
	if fn != nil {
		t.outbound = append(t.outbound, fn)
	}
}

func (t *transition) then(fn func()) {
	if fn != nil {
		t.after = append(t.after, fn)
	}
}

func (g *TurnGate) apply(decide func(t *transition)) {
	var t transition

	g.outboundMu.Lock()
	g.mu.Lock()
	decide(&t)
	g.mu.Unlock()
	for _, fn := range t.outbound {
		fn()
	}
	g.outboundMu.Unlock()

	for _, fn := range t.after {
		fn()
	}
}

// setStateLocked records a state change and schedules its notification.
func (g *TurnGate) setStateLocked(t *transition, to TurnState, at time.Time) {
	from := g.state
	if from == to {
		return
	}
	g.state = to
	if hook := g.hooks.StateChanged; hook != nil {
		t.then(func() { hook(from, to, at) })
	}
}

func (g *TurnGate) State() TurnState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// CanSend reports whether local audio may go out at all.
func (g *TurnGate) CanSend() bool {
	state := g.State()
	return state != TurnRemoteSpeaking && state != TurnInterrupting
}

// InterruptPending reports whether a local interrupt request is waiting for
// the remote to yield.
func (g *TurnGate) InterruptPending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.interruptRequested
}

// DiscardingInbound reports whether inbound speech is currently stale and
// must not be buffered. It is set by an interrupt from either side and
// cleared when the remote starts a new sentence.
func (g *TurnGate) DiscardingInbound() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.discardInbound
}

// OnLocalVoiceActive is called for every frame whose energy crossed the
// voice threshold.
func (g *TurnGate) OnLocalVoiceActive(energy float64, now time.Time) {
	g.apply(func(t *transition) {
		switch g.state {
		case TurnIdle, TurnInterrupting:
			g.lastVoice = now
			g.nextIndex = 0
			g.interruptRequested = false
			g.setStateLocked(t, TurnLocalSpeaking, now)
			t.send(g.hooks.AudioStart)
			if hook := g.hooks.UtteranceStarted; hook != nil {
				t.then(func() { hook(energy, now) })
			}

		case TurnLocalSpeaking:
			g.lastVoice = now

		case TurnRemoteSpeaking:
			if !g.lastInterruptRequest.IsZero() && now.Sub(g.lastInterruptRequest) < g.debounce {
				return
			}
			g.lastInterruptRequest = now
			g.interruptRequested = true
			g.discardInbound = true
			t.send(g.hooks.Interrupt)
			if hook := g.hooks.InterruptRequested; hook != nil {
				t.then(func() { hook(energy, now) })
			}
		}
	})
}

// OnLocalSilence is called for every frame below the voice threshold and
// ends the utterance once the silence has lasted long enough.
func (g *TurnGate) OnLocalSilence(now time.Time) {
	g.apply(func(t *transition) {
		if g.state != TurnLocalSpeaking || now.Sub(g.lastVoice) < g.silence {
			return
		}
		g.finishUtteranceLocked(t, false, now)
	})
}

// OnLocalStreamEnded ends the current utterance because the audio source has
// no more audio.
func (g *TurnGate) OnLocalStreamEnded(now time.Time) {
	g.apply(func(t *transition) {
		if g.state != TurnLocalSpeaking {
			return
		}
		g.finishUtteranceLocked(t, false, now)
	})
}

func (g *TurnGate) finishUtteranceLocked(t *transition, preempted bool, at time.Time) {
	frames := g.nextIndex
	if preempted {
		g.setStateLocked(t, TurnRemoteSpeaking, at)
	} else {
		g.setStateLocked(t, TurnIdle, at)
	}
	t.send(g.hooks.AudioFinish)
	if hook := g.hooks.UtteranceFinished; hook != nil {
		t.then(func() { hook(frames, preempted, at) })
	}
}

// OnRemoteSentenceStart hands the turn to the remote. A local utterance that
// was still open is finished first.
func (g *TurnGate) OnRemoteSentenceStart() {
	g.apply(func(t *transition) {
		now := g.now()
		if g.state == TurnLocalSpeaking {
			g.finishUtteranceLocked(t, true, now)
		} else {
			g.setStateLocked(t, TurnRemoteSpeaking, now)
		}
		g.interruptRequested = false
		g.discardInbound = false
		t.then(g.hooks.FlushSentence)
	})
}

// OnRemoteComplete finalizes the current sentence. A full turn completion
// also returns the channel to idle unless the local side already holds it.
func (g *TurnGate) OnRemoteComplete(isFullTurn bool) {
	g.apply(func(t *transition) {
		t.then(g.hooks.FlushSentence)
		if !isFullTurn {
			return
		}
		if g.state == TurnRemoteSpeaking || g.state == TurnInterrupting {
			g.setStateLocked(t, TurnIdle, g.now())
		}
	})
}

// OnRemoteInterruptAck handles the remote yielding its turn. Playback is
// cleared in every state.
func (g *TurnGate) OnRemoteInterruptAck() {
	g.apply(func(t *transition) {
		if g.state == TurnRemoteSpeaking {
			g.setStateLocked(t, TurnInterrupting, g.now())
		}
		g.interruptRequested = false
		g.discardInbound = true
		t.then(g.hooks.ClearPlayback)
		t.then(g.hooks.InterruptAcknowledged)
	})
}

// AcquireFrame reserves the next frame index of the current utterance. ok is
// false unless the local side holds the turn.
func (g *TurnGate) AcquireFrame() (index uint32, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != TurnLocalSpeaking {
		return 0, false
	}
	index = g.nextIndex
	g.nextIndex++
	return index, true
}

// WithOutbound runs fn while no turn transition can emit control messages.
func (g *TurnGate) WithOutbound(fn func()) {
	g.outboundMu.Lock()
	defer g.outboundMu.Unlock()
	fn()
}
