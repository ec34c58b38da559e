// Package broadcast relays operator chat between connected sessions.
package broadcast

import "errors"

// System notice sent to a session as soon as it connects.
const (
	SystemUsername  = "Sistema"
	ConnectedNotice = "Nuevo operador conectado"
	DefaultUsername = "Operador"
)

var (
	// ErrEmptyMessage marks a message that was blank after trimming. It is
	// dropped without telling the sender.
	ErrEmptyMessage = errors.New("empty chat message")

	ErrSessionClosed       = errors.New("session closed")
	ErrSessionBackpressure = errors.New("session send queue full")
)

// Message is one chat line as delivered to operators.
type Message struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// Inbound is a chat line as sent by an operator.
type Inbound struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// Session is one connected operator.
type Session interface {
	ID() string
	DisplayName() string
	// Deliver queues m for the operator. It must not block.
	Deliver(m Message) error
}
