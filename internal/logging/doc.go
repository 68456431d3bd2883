// Package logging provides structured logging for wsgate.
//
// This package wraps a zap logger in a small Logger type that is created once
// at process start and passed down to every component (network manager,
// listener, sessions, handlers). There is no package-level logger.
//
// # Log Levels
//
//   - Debug: state transitions, frame dumps, ping/pong, cancelled operations
//   - Info: connections, handshakes, session lifecycle
//   - Warn: dropped frames, unknown opcodes, failed sessions, liveness timeouts
//   - Error: listener and startup failures
//
// # Configuration
//
//	logger, err := logging.New("debug")
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
// An empty level falls back to WSGATE_LOG_LEVEL; if that is empty too the
// logger is a no-op.
//
// # Specialized Logging
//
//	logger.LogConnection(sessionID, remoteAddr, "handshake_complete")
//	logger.LogWebSocketMessage(sessionID, "received", websocket.TextMessage, frame)
//	logger.LogRawBytes("HTTP 101 Response", raw)
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
