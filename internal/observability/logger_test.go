package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TestParseLogLevel verifies that parseLogLevel correctly parses log level
// strings from environment variables, handling case-insensitivity and whitespace.
func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		env    string
		expect zapcore.Level
	}{
		{"", zap.InfoLevel},
		{"INFO", zap.InfoLevel},
		{"DEBUG", zap.DebugLevel},
		{"WARN", zap.WarnLevel},
		{"ERROR", zap.ErrorLevel},
		{"debug", zap.DebugLevel},
		{"  warn  ", zap.WarnLevel},
		{"invalid", zap.InfoLevel},
	}
	for _, tt := range tests {
		level := parseLogLevel(tt.env)
		if got := level.Level(); got != tt.expect {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.env, got, tt.expect)
		}
	}
}

// TestNewLogger verifies that NewLogger creates a valid logger instance
// that can be used for logging operations.
func TestNewLogger(t *testing.T) {
	logger, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if logger == nil {
		t.Fatal("NewLogger() returned nil logger")
	}

	logger.Info("test message")
	_ = logger.Sync() // best-effort; can fail on /dev/stderr in test env
}

func TestLoggerConfig(t *testing.T) {
	env := func(vals map[string]string) func(string) string {
		return func(k string) string { return vals[k] }
	}

	cfg := loggerConfig(env(nil))
	if cfg.Encoding != "json" {
		t.Errorf("default Encoding = %q, want json", cfg.Encoding)
	}
	if got := cfg.InitialFields["service"]; got != ServiceName {
		t.Errorf("InitialFields[service] = %v, want %s", got, ServiceName)
	}
	if cfg.EncoderConfig.TimeKey != "timestamp" {
		t.Errorf("TimeKey = %q, want timestamp", cfg.EncoderConfig.TimeKey)
	}

	cfg = loggerConfig(env(map[string]string{"LOG_FORMAT": " Console ", "LOG_LEVEL": "debug"}))
	if cfg.Encoding != "console" {
		t.Errorf("Encoding = %q, want console", cfg.Encoding)
	}
	if got := cfg.Level.Level(); got != zap.DebugLevel {
		t.Errorf("Level = %v, want debug", got)
	}
}

func TestLoggerFrom(t *testing.T) {
	fallback := zap.NewNop()
	if got := LoggerFrom(context.Background(), fallback); got != fallback {
		t.Error("LoggerFrom() without a stored logger should return fallback")
	}
	scoped := zap.NewExample()
	ctx := WithLogger(context.Background(), scoped)
	if got := LoggerFrom(ctx, fallback); got != scoped {
		t.Error("LoggerFrom() should return the stored logger")
	}
}

func TestCorrelationID(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID() = %q, want empty", got)
	}
	ctx := WithCorrelationID(context.Background(), "abc-123")
	if got := CorrelationID(ctx); got != "abc-123" {
		t.Errorf("CorrelationID() = %q, want abc-123", got)
	}
}
