package protocol

import "fmt"

// Opcode is the leading byte of every frame. Opcodes are small integers sent
// as their ASCII decimal digit, so opcode 0 travels as '0' (0x30).
type Opcode byte

// Known opcodes
const (
	OpPing         Opcode = '0'
	OpDataRequest  Opcode = '1'
	OpDataResponse Opcode = '2'
	OpServerStatus Opcode = '3'
)

// Number returns the opcode's integer value ('0' -> 0).
func (o Opcode) Number() int {
	return int(o) - '0'
}

// Valid reports whether the opcode is a single decimal digit.
func (o Opcode) Valid() bool {
	return o >= '0' && o <= '9'
}

// Name returns the registered name of a known opcode.
func (o Opcode) Name() string {
	switch o {
	case OpPing:
		return "PING"
	case OpDataRequest:
		return "DATA_REQUEST"
	case OpDataResponse:
		return "DATA_RESPONSE"
	case OpServerStatus:
		return "SERVER_STATUS"
	default:
		return "UNKNOWN"
	}
}

// String returns the decimal form for digit opcodes and hex otherwise.
func (o Opcode) String() string {
	if o.Valid() {
		return fmt.Sprintf("%d", o.Number())
	}
	return fmt.Sprintf("0x%02X", byte(o))
}

// OpcodeFromNumber converts an integer 0..9 to its wire opcode.
func OpcodeFromNumber(n int) (Opcode, error) {
	if n < 0 || n > 9 {
		return 0, fmt.Errorf("opcode %d out of range 0..9", n)
	}
	return Opcode('0' + n), nil
}
