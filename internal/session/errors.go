package session

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrInvalidState is returned when an operation is not valid for the
	// session's role or current state.
	ErrInvalidState = errors.New("invalid session state")

	// ErrSessionClosed is returned when the session was closed while an
	// operation was in flight.
	ErrSessionClosed = errors.New("session closed")

	// ErrDuplicateOpcode is returned when an opcode is registered twice.
	ErrDuplicateOpcode = errors.New("duplicate opcode")

	// errFrameTooLarge marks an inbound frame above the receive limit.
	errFrameTooLarge = errors.New("frame exceeds receive limit")
)

// isClosedConnError reports errors produced by operations on a socket we
// closed ourselves.
func isClosedConnError(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, ErrSessionClosed)
}
