package kcore

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with kcore-specific context.
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
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithComponent tags the logger with the emitting component.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", name),
	}
}

// WithDev adds a device number field to the logger.
func (l *Logger) WithDev(dev uint32) *Logger {
	return &Logger{
		Logger: l.Logger.With("dev", dev),
	}
}

// WithWorker adds a worker index field to the logger.
func (l *Logger) WithWorker(id int) *Logger {
	return &Logger{
		Logger: l.Logger.With("worker", id),
	}
}

// LogOpen logs construction of a Core.
func (l *Logger) LogOpen(ctx context.Context, s Stats) {
	l.InfoContext(ctx, "core opened",
		"cache_buckets", s.Cache.Buckets,
		"cache_entries", s.Cache.Buckets*s.Cache.Capacity,
		"block_size", s.Cache.BlockSize,
		"frames", s.Pages.Frames,
	)
}

// LogClose logs shutdown of a Core.
func (l *Logger) LogClose(ctx context.Context, err error) {
	if err != nil {
		l.ErrorContext(ctx, "core close failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "core closed")
	}
}

// LogStats logs a statistics snapshot.
func (l *Logger) LogStats(ctx context.Context, s Stats) {
	l.InfoContext(ctx, "core stats",
		"cache_hits", s.Cache.Hits,
		"cache_misses", s.Cache.Misses,
		"cache_evictions", s.Cache.Evictions,
		"disk_reads", s.Cache.Reads,
		"disk_writes", s.Cache.Writes,
		"pages_free", s.Pages.Free,
		"pages_allocs", s.Pages.Allocs,
		"pages_failures", s.Pages.Failures,
	)
}

// LogWorkload logs the outcome of a stress workload.
func (l *Logger) LogWorkload(ctx context.Context, name string, ops int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "workload failed",
			"workload", name,
			"ops", ops,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "workload completed",
			"workload", name,
			"ops", ops,
		)
	}
}
