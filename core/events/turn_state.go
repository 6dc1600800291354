package events

import "time"

const (
	// KindTurnStateChanged identifies a turn state transition.
	KindTurnStateChanged Kind = "turn_state.changed"
	// KindTurnInterruptRequested identifies a local request to interrupt the remote.
	KindTurnInterruptRequested Kind = "turn_state.interrupt_requested"
	// KindTurnInterruptAcknowledged identifies the remote yielding its turn.
	KindTurnInterruptAcknowledged Kind = "turn_state.interrupt_acknowledged"
	// KindTurnResponseLatency identifies a measured response latency.
	KindTurnResponseLatency Kind = "turn_state.response_latency"
)

// TurnStateChanged carries a turn state transition by state name.
type TurnStateChanged struct {
	Base
	From string
	To   string
}

// NewTurnStateChanged creates a turn state changed event.
func NewTurnStateChanged(from, to string, at time.Time) TurnStateChanged {
	return TurnStateChanged{Base: NewBaseAt(KindTurnStateChanged, at), From: from, To: to}
}

// TurnInterruptRequested marks a debounced local interrupt request.
type TurnInterruptRequested struct {
	Base
	Energy float64
}

// NewTurnInterruptRequested creates an interrupt requested event.
func NewTurnInterruptRequested(energy float64, at time.Time) TurnInterruptRequested {
	return TurnInterruptRequested{Base: NewBaseAt(KindTurnInterruptRequested, at), Energy: energy}
}

// TurnInterruptAcknowledged marks the remote confirming an interrupt.
type TurnInterruptAcknowledged struct{ Base }

// NewTurnInterruptAcknowledged creates an interrupt acknowledged event.
func NewTurnInterruptAcknowledged() TurnInterruptAcknowledged {
	return TurnInterruptAcknowledged{Base: NewBase(KindTurnInterruptAcknowledged)}
}

// TurnResponseLatency carries the time from the end of a local utterance to
// the start of the remote response.
type TurnResponseLatency struct {
	Base
	Latency time.Duration
	Average time.Duration
}

// NewTurnResponseLatency creates a response latency event.
func NewTurnResponseLatency(latency, average time.Duration) TurnResponseLatency {
	return TurnResponseLatency{Base: NewBase(KindTurnResponseLatency), Latency: latency, Average: average}
}
