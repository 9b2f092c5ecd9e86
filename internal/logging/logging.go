// Package logging provides structured logging for the pager, built on
// Go's slog package.
package logging

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

const (
	// OperationIDKey is the context key correlating log lines emitted
	// during a single pager operation (a transaction, a checkpoint, a
	// recovery pass) back to one another.
	OperationIDKey ContextKey = "operation_id"
)

var (
	// defaultLogger is the global logger instance.
	defaultLogger *slog.Logger
)

func init() {
	InitLogger(LevelInfo, FormatJSON)
}

// Level represents a log level.
type Level int

const (
	// LevelDebug is for debug messages.
	LevelDebug Level = iota
	// LevelInfo is for informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// Format represents a log output format.
type Format int

const (
	// FormatJSON outputs logs in JSON format.
	FormatJSON Format = iota
	// FormatText outputs logs in human-readable text format.
	FormatText
)

// InitLogger initializes the global logger with the specified level and format.
func InitLogger(level Level, format Format) {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// GetLogger returns the global logger instance.
func GetLogger() *slog.Logger {
	return defaultLogger
}

// WithOperationID attaches an operation ID to the context.
func WithOperationID(ctx context.Context, operationID string) context.Context {
	return context.WithValue(ctx, OperationIDKey, operationID)
}

// GetOperationID retrieves the operation ID from the context.
func GetOperationID(ctx context.Context) string {
	if id, ok := ctx.Value(OperationIDKey).(string); ok {
		return id
	}
	return ""
}

// LoggerFromContext returns a logger with context values attached.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	logger := defaultLogger
	if id := GetOperationID(ctx); id != "" {
		logger = logger.With("operation_id", id)
	}
	return logger
}

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// Info logs an info message with optional key-value pairs.
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// Warn logs a warning message with optional key-value pairs.
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// Error logs an error message with optional key-value pairs.
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}

// DebugContext logs a debug message with context.
func DebugContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Debug(msg, args...)
}

// InfoContext logs an info message with context.
func InfoContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Info(msg, args...)
}

// WarnContext logs a warning message with context.
func WarnContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Warn(msg, args...)
}

// ErrorContext logs an error message with context.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Error(msg, args...)
}

// Checkpoint logs the outcome of a WAL checkpoint: how many pages were
// copied back into the main database file and its resulting size.
func Checkpoint(path string, pagesWritten int, dbSizeBytes int64, args ...any) {
	allArgs := []any{
		"path", path,
		"pages_written", pagesWritten,
		"db_size", humanize.Bytes(uint64(dbSizeBytes)),
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Info("checkpoint", allArgs...)
}

// JournalRecovery logs a hot journal being rolled back during Open.
func JournalRecovery(path string, pagesRestored int, args ...any) {
	allArgs := []any{
		"path", path,
		"pages_restored", pagesRestored,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Warn("journal_recovery", allArgs...)
}

// CacheEviction logs a page cache eviction triggered by memory pressure.
func CacheEviction(pgno uint32, cacheSize int, cacheBytes int64, args ...any) {
	allArgs := []any{
		"pgno", pgno,
		"cache_pages", cacheSize,
		"cache_size", humanize.Bytes(uint64(cacheBytes)),
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Debug("cache_eviction", allArgs...)
}

// LockTransition logs a VFS lock level change acquired or released by a
// connection.
func LockTransition(path, operation, from, to string, args ...any) {
	allArgs := []any{
		"path", path,
		"operation", operation,
		"from", from,
		"to", to,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Debug("lock_transition", allArgs...)
}

// BusyRetry logs a connection backing off after a conflicting lock
// prevented it from proceeding.
func BusyRetry(path string, attempt int, args ...any) {
	allArgs := []any{
		"path", path,
		"attempt", attempt,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Warn("busy_retry", allArgs...)
}
