package logging

import (
	"encoding/hex"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "WSGATE_LOG_LEVEL"

// dumpLimit caps hex/ascii dumps so a 1 GiB frame does not end up in the log
const dumpLimit = 256

// Logger is the logging sink handed to every component. It embeds the zap
// logger so the usual Info/Warn/Debug/Error methods are available directly.
type Logger struct {
	*zap.Logger
}

// New creates a logger with the specified level.
// If level is empty, it checks WSGATE_LOG_LEVEL environment variable.
// If neither is set, logging is disabled (silent mode).
func New(level string) (*Logger, error) {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	if level == "" {
		return Nop(), nil
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(parseLevel(level)),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	zl, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return &Logger{Logger: zl}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Wrap adapts an existing zap logger, e.g. one built on an observer core in tests.
func Wrap(zl *zap.Logger) *Logger {
	if zl == nil {
		return Nop()
	}
	return &Logger{Logger: zl}
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		// Unknown level - use info as default when explicitly set to something
		return zapcore.InfoLevel
	}
}

// Named returns a child logger scoped to a component.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Logger: l.Logger.Named(component)}
}

// With returns a child logger carrying the given fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// LogConnection logs a connection event
func (l *Logger) LogConnection(sessionID, remoteAddr, event string) {
	l.Info("Connection event",
		zap.String("session_id", sessionID),
		zap.String("remote_addr", remoteAddr),
		zap.String("event", event),
	)
}

// LogStateChange logs a session state machine transition
func (l *Logger) LogStateChange(sessionID, from, to string) {
	l.Debug("Session state changed",
		zap.String("session_id", sessionID),
		zap.String("from", from),
		zap.String("to", to),
	)
}

// LogHTTPRequest logs an HTTP upgrade request
func (l *Logger) LogHTTPRequest(remoteAddr, method, path string, headers map[string]string) {
	l.Debug("HTTP request received",
		zap.String("remote_addr", remoteAddr),
		zap.String("method", method),
		zap.String("path", path),
		zap.Any("headers", headers),
	)
}

// LogWebSocketMessage logs a WebSocket message
func (l *Logger) LogWebSocketMessage(sessionID, direction string, messageType int, data []byte) {
	if !l.Core().Enabled(zapcore.DebugLevel) {
		return
	}

	fields := []zap.Field{
		zap.String("session_id", sessionID),
		zap.String("direction", direction),
		zap.String("message_type", wsMessageTypeName(messageType)),
		zap.Int("length", len(data)),
	}

	if messageType == 2 {
		fields = append(fields, zap.String("hex_dump", hexDump(data)))
	} else {
		fields = append(fields, zap.String("content", asciiDump(data)))
	}

	l.Debug("WebSocket message", fields...)
}

// LogRawBytes logs raw bytes (useful for debugging protocol issues)
func (l *Logger) LogRawBytes(label string, data []byte) {
	l.Debug(label,
		zap.Int("length", len(data)),
		zap.String("hex", hexDump(data)),
		zap.String("ascii", asciiDump(data)),
	)
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() {
	if l != nil && l.Logger != nil {
		_ = l.Logger.Sync()
	}
}

func wsMessageTypeName(msgType int) string {
	switch msgType {
	case 1:
		return "text"
	case 2:
		return "binary"
	case 8:
		return "close"
	case 9:
		return "ping"
	case 10:
		return "pong"
	default:
		return fmt.Sprintf("unknown(%d)", msgType)
	}
}

func hexDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if len(data) > dumpLimit {
		return hex.EncodeToString(data[:dumpLimit]) + "..."
	}
	return hex.EncodeToString(data)
}

func asciiDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if len(data) > dumpLimit {
		data = data[:dumpLimit]
	}

	result := make([]byte, len(data))
	for i, b := range data {
		if b >= 32 && b <= 126 {
			result[i] = b
		} else {
			result[i] = '.'
		}
	}
	return string(result)
}
