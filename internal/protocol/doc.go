// Package protocol defines the wsgate message format.
//
// Every WebSocket message carries one application message: a single opcode
// byte followed by the payload. Opcodes are the ASCII digits of their
// number so text frames stay readable in captures:
//
//	'0' PING            echoed back unchanged
//	'1' DATA_REQUEST    CSV payload sent by a client
//	'2' DATA_RESPONSE   the server's answer to DATA_REQUEST
//	'3' SERVER_STATUS   periodic broadcast from the server
//
// A frame shorter than MinFrameSize (opcode plus at least one payload byte)
// is rejected by Decode, as is a payload longer than the configured maximum
// (DefaultMaxMessageSize, 1 GiB, unless overridden).
//
// Messages with a valid UTF-8 payload are sent as text frames; all others
// as binary frames. Receivers accept both.
package protocol
