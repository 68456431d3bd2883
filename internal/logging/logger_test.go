package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewSilentWhenNoLevel(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")

	logger, err := New("")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if logger.Core().Enabled(zapcore.ErrorLevel) {
		t.Error("logger without level should be a no-op")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"loud", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLogWebSocketMessageDebugOnly(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := Wrap(zap.New(core))

	logger.LogWebSocketMessage("abc", "received", 1, []byte("0hello"))
	if logs.Len() != 0 {
		t.Errorf("expected no entries at info level, got %d", logs.Len())
	}

	core, logs = observer.New(zapcore.DebugLevel)
	logger = Wrap(zap.New(core))
	logger.LogWebSocketMessage("abc", "received", 1, []byte("0hello"))
	if logs.Len() != 1 {
		t.Fatalf("expected 1 entry at debug level, got %d", logs.Len())
	}
	fields := logs.All()[0].ContextMap()
	if fields["content"] != "0hello" {
		t.Errorf("content = %v, want 0hello", fields["content"])
	}
}

func TestDumpsAreTruncated(t *testing.T) {
	data := []byte(strings.Repeat("a", dumpLimit+10))

	if got := asciiDump(data); len(got) != dumpLimit {
		t.Errorf("asciiDump length = %d, want %d", len(got), dumpLimit)
	}
	if got := hexDump(data); !strings.HasSuffix(got, "...") {
		t.Errorf("hexDump should end with ..., got %q", got[len(got)-5:])
	}
	if got := asciiDump([]byte{0x00, 'A', 0x7f}); got != ".A." {
		t.Errorf("asciiDump = %q, want %q", got, ".A.")
	}
}

func TestWrapNil(t *testing.T) {
	logger := Wrap(nil)
	logger.Info("no panic")
	logger.Sync()
}
