package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
)

// captureLogOutput captures log output for testing by temporarily
// redirecting the logger to write to a buffer.
func captureLogOutput(f func()) string {
	var buf bytes.Buffer

	oldLogger := defaultLogger
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	defaultLogger = slog.New(handler)

	f()

	defaultLogger = oldLogger
	return buf.String()
}

// captureLogOutputWithInit captures output by reinitializing the logger
// to write to a buffer. This tests the actual InitLogger ReplaceAttr logic.
func captureLogOutputWithInit(level Level, format Format, f func()) string {
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	outCh := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		outCh <- buf.String()
	}()

	InitLogger(level, format)
	f()

	w.Close()
	os.Stdout = oldStdout

	output := <-outCh
	InitLogger(LevelInfo, FormatJSON)
	return output
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name   string
		level  Level
		format Format
	}{
		{"Debug level JSON format", LevelDebug, FormatJSON},
		{"Info level JSON format", LevelInfo, FormatJSON},
		{"Warn level JSON format", LevelWarn, FormatJSON},
		{"Error level JSON format", LevelError, FormatJSON},
		{"Info level Text format", LevelInfo, FormatText},
		{"Debug level Text format", LevelDebug, FormatText},
		{"Default level (invalid value)", Level(999), FormatJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			InitLogger(tt.level, tt.format)
			if GetLogger() == nil {
				t.Error("expected logger to be initialized, got nil")
			}
		})
	}
}

func TestGetLogger(t *testing.T) {
	InitLogger(LevelInfo, FormatJSON)
	if GetLogger() == nil {
		t.Error("expected logger to be non-nil")
	}
}

func TestWithOperationID(t *testing.T) {
	ctx := context.Background()
	newCtx := WithOperationID(ctx, "checkpoint-123")

	if got := GetOperationID(newCtx); got != "checkpoint-123" {
		t.Errorf("GetOperationID = %q, want %q", got, "checkpoint-123")
	}
}

func TestGetOperationID(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		expected string
	}{
		{"context with operation ID", context.WithValue(context.Background(), OperationIDKey, "op-1"), "op-1"},
		{"context without operation ID", context.Background(), ""},
		{"context with wrong type value", context.WithValue(context.Background(), OperationIDKey, 12345), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetOperationID(tt.ctx); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestLoggerFromContext(t *testing.T) {
	InitLogger(LevelInfo, FormatJSON)

	tests := []struct {
		name string
		ctx  context.Context
	}{
		{"context with operation ID", WithOperationID(context.Background(), "op-42")},
		{"context without operation ID", context.Background()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if LoggerFromContext(tt.ctx) == nil {
				t.Error("expected logger to be non-nil")
			}
		})
	}
}

func TestLoggingFunctions(t *testing.T) {
	InitLogger(LevelDebug, FormatJSON)

	tests := []struct {
		name string
		fn   func()
	}{
		{"Debug", func() { Debug("debug message", "key", "value") }},
		{"Info", func() { Info("info message", "key", "value") }},
		{"Warn", func() { Warn("warning message", "key", "value") }},
		{"Error", func() { Error("error message", "key", "value") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if output := captureLogOutput(tt.fn); output == "" {
				t.Error("expected log output, got empty string")
			}
		})
	}
}

func TestContextLoggingFunctions(t *testing.T) {
	InitLogger(LevelDebug, FormatJSON)
	ctx := WithOperationID(context.Background(), "op-context-test")

	tests := []struct {
		name string
		fn   func()
	}{
		{"DebugContext", func() { DebugContext(ctx, "debug message", "key", "value") }},
		{"InfoContext", func() { InfoContext(ctx, "info message", "key", "value") }},
		{"WarnContext", func() { WarnContext(ctx, "warning message", "key", "value") }},
		{"ErrorContext", func() { ErrorContext(ctx, "error message", "key", "value") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := captureLogOutput(tt.fn)
			if output == "" {
				t.Error("expected log output, got empty string")
			}
			if !strings.Contains(output, "op-context-test") {
				t.Error("expected output to contain operation ID")
			}
		})
	}
}

func TestCheckpoint(t *testing.T) {
	InitLogger(LevelInfo, FormatJSON)

	output := captureLogOutput(func() {
		Checkpoint("test.db", 12, 4096*12)
	})

	if output == "" {
		t.Error("expected log output, got empty string")
	}
	if !strings.Contains(output, "checkpoint") {
		t.Error("expected output to contain checkpoint")
	}
	if !strings.Contains(output, "pages_written") {
		t.Error("expected output to contain pages_written")
	}
}

func TestJournalRecovery(t *testing.T) {
	InitLogger(LevelInfo, FormatJSON)

	output := captureLogOutput(func() {
		JournalRecovery("test.db", 3)
	})

	if output == "" {
		t.Error("expected log output, got empty string")
	}
	if !strings.Contains(output, "journal_recovery") {
		t.Error("expected output to contain journal_recovery")
	}
	if !strings.Contains(output, "pages_restored") {
		t.Error("expected output to contain pages_restored")
	}
}

func TestCacheEviction(t *testing.T) {
	InitLogger(LevelDebug, FormatJSON)

	output := captureLogOutput(func() {
		CacheEviction(7, 99, 4096*99)
	})

	if output == "" {
		t.Error("expected log output, got empty string")
	}
	if !strings.Contains(output, "cache_eviction") {
		t.Error("expected output to contain cache_eviction")
	}
}

func TestLockTransition(t *testing.T) {
	InitLogger(LevelDebug, FormatJSON)

	output := captureLogOutput(func() {
		LockTransition("test.db", "upgrade", "shared", "reserved")
	})

	if output == "" {
		t.Error("expected log output, got empty string")
	}
	if !strings.Contains(output, "lock_transition") {
		t.Error("expected output to contain lock_transition")
	}
}

func TestBusyRetry(t *testing.T) {
	InitLogger(LevelInfo, FormatJSON)

	output := captureLogOutput(func() {
		BusyRetry("test.db", 3)
	})

	if output == "" {
		t.Error("expected log output, got empty string")
	}
	if !strings.Contains(output, "busy_retry") {
		t.Error("expected output to contain busy_retry")
	}
	if !strings.Contains(output, "attempt") {
		t.Error("expected output to contain attempt")
	}
}

func TestReplaceAttrTimestamp(t *testing.T) {
	output := captureLogOutputWithInit(LevelInfo, FormatJSON, func() {
		Info("timestamp test")
	})

	if output == "" {
		t.Error("expected log output")
	}
	if !strings.Contains(output, "T") {
		t.Error("expected timestamp to be in RFC3339 format")
	}
	if !strings.Contains(output, "timestamp test") {
		t.Error("expected output to contain test message")
	}
}

func TestReplaceAttrNonTimestamp(t *testing.T) {
	output := captureLogOutputWithInit(LevelInfo, FormatJSON, func() {
		Info("test message", "custom_key", "custom_value", "number", 42)
	})

	if output == "" {
		t.Error("expected log output")
	}
	if !strings.Contains(output, "custom_key") {
		t.Error("expected output to contain custom_key")
	}
	if !strings.Contains(output, "custom_value") {
		t.Error("expected output to contain custom_value")
	}

	output = captureLogOutputWithInit(LevelInfo, FormatText, func() {
		Info("test message text", "key", "value")
	})

	if output == "" {
		t.Error("expected log output for text format")
	}
	if !strings.Contains(output, "test message text") {
		t.Error("expected output to contain test message")
	}
}

func TestInit(t *testing.T) {
	if defaultLogger == nil {
		t.Error("expected defaultLogger to be initialized by init()")
	}
}

func TestContextKeyType(t *testing.T) {
	var key ContextKey = "test"
	if string(key) != "test" {
		t.Errorf("expected key to be 'test', got '%s'", string(key))
	}
	if OperationIDKey != "operation_id" {
		t.Errorf("expected OperationIDKey to be 'operation_id', got '%s'", OperationIDKey)
	}
}

func TestLevelConstants(t *testing.T) {
	if LevelDebug >= LevelInfo {
		t.Error("expected LevelDebug < LevelInfo")
	}
	if LevelInfo >= LevelWarn {
		t.Error("expected LevelInfo < LevelWarn")
	}
	if LevelWarn >= LevelError {
		t.Error("expected LevelWarn < LevelError")
	}
}

func TestFormatConstants(t *testing.T) {
	if FormatJSON == FormatText {
		t.Error("expected FormatJSON != FormatText")
	}
}
