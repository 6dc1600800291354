package events

import "time"

type Kind string

type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return NewBaseAt(kind, time.Now())
}

// NewBaseAt creates a base stamped with the time the underlying observation
// was made rather than the time the event value was built.
func NewBaseAt(kind Kind, timestamp time.Time) Base {
	return Base{kind: kind, timestamp: timestamp}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}

// Handler receives session events. Implementations are called synchronously
// from session workers and must not block.
type Handler func(Event)
