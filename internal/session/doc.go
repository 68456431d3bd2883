// Package session implements a WebSocket session: its lifecycle state
// machine, outbound send queue, inbound opcode routing and keepalive, plus
// the registry that tracks live sessions.
//
// # Lifecycle
//
//	New -> Connecting -> Handshaking -> Open -> Closing -> Closed
//	                                             \-> Failed (from any non-terminal state)
//
// Server sessions skip Connecting: RunAsServer moves New straight to
// Handshaking. Client sessions start with ConnectAsClient, which dials on
// its own goroutine and returns immediately.
//
// # Routing
//
// Each inbound WebSocket message is one frame: an opcode byte followed by the
// payload. The read loop decodes the frame, looks the opcode up in the
// Operations table and pushes a bound handler call onto the session's
// dispatch queue. Handlers run later, on whichever goroutine drains the queue
// (normally the tick loop), and may call Send.
//
// # Keepalive
//
// Every inbound frame, including ping and pong control frames, marks the peer
// alive and rearms the timer. When the timer expires on a live peer a ping is
// written; when it expires again without any activity in between the session
// is closed.
//
// # Locking
//
// Session state and the send queue live under the session mutex; the Registry
// has its own mutex. Neither is held across socket I/O or handler execution,
// and the registry lock is never taken while a session lock is held.
package session
