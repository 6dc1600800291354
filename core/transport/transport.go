// Package transport defines the bidirectional message stream a duplex
// session runs over.
package transport

type MessageType int

const (
	MessageText MessageType = iota + 1
	MessageBinary
)

func (t MessageType) String() string {
	switch t {
	case MessageText:
		return "text"
	case MessageBinary:
		return "binary"
	}
	return "unknown"
}

// Transport carries whole messages in both directions. Writes may be called
// from several goroutines but callers serialise them; ReadMessage is called
// from a single goroutine. Close must unblock a pending ReadMessage.
type Transport interface {
	WriteText(message string) error
	WriteBinary(message []byte) error
	ReadMessage() (MessageType, []byte, error)
	Close() error
}
