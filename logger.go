package flathits

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with flathits-specific context.
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
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithSource adds the file and tree of a load to the logger.
func (l *Logger) WithSource(path, tree string) *Logger {
	return &Logger{
		Logger: l.Logger.With("path", path, "tree", tree),
	}
}

// WithColumn adds a column field to the logger.
func (l *Logger) WithColumn(column string) *Logger {
	return &Logger{
		Logger: l.Logger.With("column", column),
	}
}

// WithCount adds a count field to the logger.
func (l *Logger) WithCount(count int) *Logger {
	return &Logger{
		Logger: l.Logger.With("count", count),
	}
}

// LogLoad logs a table load.
func (l *Logger) LogLoad(ctx context.Context, selection string, hits, events int, duration time.Duration, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "load failed",
			"selection", selection,
			"error", err,
		)
	case hits == 0:
		l.WarnContext(ctx, "load selected no hits",
			"selection", selection,
			"duration", duration,
		)
	default:
		l.InfoContext(ctx, "load completed",
			"selection", selection,
			"hits", hits,
			"events", events,
			"duration", duration,
		)
	}
}

// LogFilter logs a non-destructive filter.
func (l *Logger) LogFilter(ctx context.Context, column, spec string, in, out int, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "filter failed",
			"column", column,
			"filter", spec,
			"error", err,
		)
	case out == 0:
		l.WarnContext(ctx, "filter matched no hits",
			"column", column,
			"filter", spec,
			"hits", in,
		)
	default:
		l.DebugContext(ctx, "filter completed",
			"column", column,
			"filter", spec,
			"hits", in,
			"matched", out,
		)
	}
}

// LogTrim logs an in-place trim.
func (l *Logger) LogTrim(ctx context.Context, column, spec string, before, after int, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "trim failed",
			"column", column,
			"filter", spec,
			"error", err,
		)
	case after == 0:
		l.WarnContext(ctx, "trim removed every hit",
			"column", column,
			"filter", spec,
			"removed", before,
		)
	default:
		l.InfoContext(ctx, "trim completed",
			"column", column,
			"filter", spec,
			"kept", after,
			"removed", before-after,
		)
	}
}
