package session

import "github.com/muurk/wsgate/internal/protocol"

// Observer receives session events, typically to feed metrics. Methods are
// called from session goroutines and must not block.
type Observer interface {
	StateChanged(from, to State)
	FrameReceived(op protocol.Opcode, size int)
	FrameDropped(reason string)
	MessageSent(op protocol.Opcode, size int)
}

// Reasons passed to Observer.FrameDropped
const (
	DropTooLarge      = "too_large"
	DropTooShort      = "too_short"
	DropUnknownOpcode = "unknown_opcode"
	DropNoInbox       = "no_inbox"
)

type nopObserver struct{}

func (nopObserver) StateChanged(State, State) {}
func (nopObserver) FrameReceived(protocol.Opcode, int) {}
func (nopObserver) FrameDropped(string) {}
func (nopObserver) MessageSent(protocol.Opcode, int) {}
