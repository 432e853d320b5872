package mapindex

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with index-storage specific helpers.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithPath adds the storage path to every record.
func (l *Logger) WithPath(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("path", path),
	}
}

// LogOpen logs opening a storage.
func (l *Logger) LogOpen(ctx context.Context, keyHashTracking bool, truncated int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed", "error", err)
		return
	}
	if truncated > 0 {
		l.WarnContext(ctx, "side index tail truncated", "bytes", truncated)
	}
	l.DebugContext(ctx, "storage opened", "key_hash_tracking", keyHashTracking)
}

// LogFlush logs a flush.
func (l *Logger) LogFlush(ctx context.Context, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"duration", duration,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "flush completed",
			"duration", duration,
		)
	}
}

// LogClear logs a full reset.
func (l *Logger) LogClear(ctx context.Context, err error) {
	if err != nil {
		l.ErrorContext(ctx, "clear failed", "error", err)
	} else {
		l.InfoContext(ctx, "storage cleared")
	}
}

// LogScan logs how a scoped scan resolved its hash filter.
func (l *Logger) LogScan(ctx context.Context, source HashFilterSource, largestID uint32, hashes uint64, duration time.Duration) {
	l.DebugContext(ctx, "hash filter resolved",
		"source", source,
		"largest_id", largestID,
		"hashes", hashes,
		"duration", duration,
	)
}

// LogEviction logs a failed write-back of an evicted container.
func (l *Logger) LogEviction(ctx context.Context, err error) {
	l.ErrorContext(ctx, "write-back failed", "error", err)
}

// LogSnapshot logs a hash-filter snapshot operation. Snapshot failures are
// not fatal and are logged at debug level.
func (l *Logger) LogSnapshot(ctx context.Context, op, filename string, err error) {
	if err != nil {
		l.DebugContext(ctx, "snapshot "+op+" failed",
			"filename", filename,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "snapshot "+op,
			"filename", filename,
		)
	}
}

// LogCloseError logs an error that is deliberately not returned.
func (l *Logger) LogCloseError(ctx context.Context, what string, err error) {
	if err != nil {
		l.WarnContext(ctx, "close failed", "what", what, "error", err)
	}
}
