package pallet

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with pallet-specific context.
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
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithTree adds the tree name to every record.
func (l *Logger) WithTree(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("tree", name),
	}
}

// LogOpen logs the opening of a store.
func (l *Logger) LogOpen(ctx context.Context, records int, generation uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed", "error", err)
		return
	}
	l.InfoContext(ctx, "store opened",
		"records", records,
		"index_generation", generation,
	)
}

// LogCreate logs a create operation.
func (l *Logger) LogCreate(ctx context.Context, ids []uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "create failed",
			"count", len(ids),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "create completed",
			"ids", ids,
		)
	}
}

// LogUpdate logs an update operation.
func (l *Logger) LogUpdate(ctx context.Context, ids []uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "update failed",
			"ids", ids,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "update completed",
			"ids", ids,
		)
	}
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(ctx context.Context, ids []uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"ids", ids,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"ids", ids,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, query string, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"query", query,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"query", query,
			"elapsed", elapsed,
		)
	}
}

// LogReindex logs a full index rebuild.
func (l *Logger) LogReindex(ctx context.Context, indexed, purged int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "reindex failed",
			"indexed", indexed,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "reindex completed",
			"indexed", indexed,
			"purged", purged,
			"elapsed", elapsed,
		)
	}
}
