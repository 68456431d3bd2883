package protocol

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// DefaultMaxMessageSize is the largest payload accepted in either direction
// unless configured otherwise (1 GiB).
const DefaultMaxMessageSize = 1024 * 1024 * 1024

// MinFrameSize is the smallest frame that carries an opcode and a payload.
const MinFrameSize = 2

var (
	// ErrFrameTooShort is returned for frames without at least one payload byte
	ErrFrameTooShort = errors.New("frame too short")

	// ErrMessageTooLarge is returned when a payload exceeds the size limit
	ErrMessageTooLarge = errors.New("message too large")

	// ErrEmptyPayload is returned when encoding a message without payload
	ErrEmptyPayload = errors.New("empty payload")
)

// Message is one opcode-tagged payload. The zero value is not useful; build
// messages with NewMessage or Decode.
type Message struct {
	opcode  Opcode
	payload []byte
}

// NewMessage builds a message from a copy of payload, so later changes to the
// caller's slice do not leak into queued messages.
func NewMessage(op Opcode, payload []byte) Message {
	p := make([]byte, len(payload))
	copy(p, payload)
	return Message{opcode: op, payload: p}
}

// NewTextMessage is a convenience wrapper for string payloads.
func NewTextMessage(op Opcode, payload string) Message {
	return Message{opcode: op, payload: []byte(payload)}
}

// Opcode returns the message opcode.
func (m Message) Opcode() Opcode {
	return m.opcode
}

// Payload returns the payload bytes. Callers must not modify the slice.
func (m Message) Payload() []byte {
	return m.payload
}

// Len returns the payload length.
func (m Message) Len() int {
	return len(m.payload)
}

// Encode returns the wire form: opcode byte followed by the payload.
func (m Message) Encode() []byte {
	frame := make([]byte, 0, 1+len(m.payload))
	frame = append(frame, byte(m.opcode))
	frame = append(frame, m.payload...)
	return frame
}

// IsText reports whether the encoded frame can travel as a text message.
func (m Message) IsText() bool {
	return m.opcode.Valid() && utf8.Valid(m.payload)
}

// String returns a debug representation of the message
func (m Message) String() string {
	return fmt.Sprintf("Message{Opcode=%s, Length=%d}", m.opcode, len(m.payload))
}

// Validate checks a message against the outbound size limit.
// maxSize <= 0 means DefaultMaxMessageSize.
func (m Message) Validate(maxSize int) error {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	if len(m.payload) == 0 {
		return ErrEmptyPayload
	}
	if len(m.payload) > maxSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, len(m.payload), maxSize)
	}
	return nil
}

// Decode parses a raw frame into a Message. The payload is copied out of
// frame. maxSize <= 0 means DefaultMaxMessageSize.
func Decode(frame []byte, maxSize int) (Message, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	if len(frame) < MinFrameSize {
		return Message{}, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(frame))
	}
	payloadLen := len(frame) - 1
	if payloadLen > maxSize {
		return Message{}, fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, payloadLen, maxSize)
	}
	return NewMessage(Opcode(frame[0]), frame[1:]), nil
}
