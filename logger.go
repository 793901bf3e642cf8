package ecstore

import (
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with ecstore-specific context.
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
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithArchetype adds the store's archetype prefix to the logger.
func (l *Logger) WithArchetype(prefix uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("archetype", prefix),
	}
}

// LogCreate logs a create operation.
func (l *Logger) LogCreate(prefix uint64, count int, err error) {
	if err != nil {
		l.Error("create failed",
			"archetype", prefix,
			"count", count,
			"error", err,
		)
	} else {
		l.Debug("create completed",
			"archetype", prefix,
			"count", count,
		)
	}
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(id ID) {
	l.Debug("delete completed",
		"id", uint64(id),
	)
}

// LogCompaction logs an exclusive cleanup pass.
func (l *Logger) LogCompaction(prefix, live, removed uint64, elapsed time.Duration) {
	l.Debug("compaction completed",
		"archetype", prefix,
		"live", live,
		"removed", removed,
		"elapsed", elapsed,
	)
}
