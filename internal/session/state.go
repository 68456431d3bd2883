package session

import "fmt"

// State is a session lifecycle state.
type State int32

// Session states. Closed and Failed are terminal.
const (
	StateNew State = iota
	StateConnecting
	StateHandshaking
	StateOpen
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// canTransition encodes the allowed edges of the state machine.
func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case StateConnecting:
		return from == StateNew
	case StateHandshaking:
		return from == StateNew || from == StateConnecting
	case StateOpen:
		return from == StateHandshaking
	case StateClosing:
		return true
	case StateClosed:
		return from == StateClosing
	case StateFailed:
		return true
	}
	return false
}

// Role tells whether the session accepted or initiated the connection.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}

// PingState tracks the keepalive exchange.
type PingState int32

const (
	// PingAlive means inbound activity was seen since the last timer expiry
	PingAlive PingState = iota
	// PingSending means a ping write is in progress
	PingSending
	// PingSent means a ping went out and nothing has arrived since
	PingSent
)

func (p PingState) String() string {
	switch p {
	case PingAlive:
		return "alive"
	case PingSending:
		return "sending"
	case PingSent:
		return "sent"
	default:
		return fmt.Sprintf("unknown(%d)", int32(p))
	}
}
