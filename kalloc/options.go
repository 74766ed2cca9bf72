package kalloc

import (
	"log/slog"
)

// DefaultPageSize is the frame size in bytes.
const DefaultPageSize = 4096

const (
	// allocJunk fills a freshly allocated frame.
	allocJunk = 0x05
	// freeJunk fills a frame returned to the free list.
	freeJunk = 0x01
)

// Options configures an Allocator.
type Options struct {
	// PageSize is the frame size in bytes. Must be a power of two.
	// If 0, defaults to DefaultPageSize.
	PageSize uint64

	// Poison fills frames with junk on Alloc and on release to surface
	// use-before-init and use-after-free bugs. Meant for tests and debugging.
	Poison bool

	// Logger receives allocator events. If nil, logging is discarded.
	Logger *slog.Logger

	// Metrics observes allocator events. If nil, a no-op observer is used.
	Metrics MetricsObserver

	// tracer observes lock transitions; set by lock-order tests.
	tracer lockTracer
}

// WithPageSize sets the frame size.
func WithPageSize(size uint64) func(*Options) {
	return func(o *Options) {
		o.PageSize = size
	}
}

// WithPoison enables junk fills on allocation and release.
func WithPoison(enabled bool) func(*Options) {
	return func(o *Options) {
		o.Poison = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) func(*Options) {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithMetricsObserver sets the metrics observer.
func WithMetricsObserver(m MetricsObserver) func(*Options) {
	return func(o *Options) {
		o.Metrics = m
	}
}

func (o *Options) setDefaults() {
	if o.PageSize == 0 {
		o.PageSize = DefaultPageSize
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetricsObserver{}
	}
}
