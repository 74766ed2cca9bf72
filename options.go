package kcore

import (
	"log/slog"

	"github.com/hupe1980/kcore/bcache"
	"github.com/hupe1980/kcore/disk"
	"github.com/hupe1980/kcore/kalloc"
)

const (
	// DefaultPhysBase is the first physical address managed by default.
	DefaultPhysBase kalloc.PA = 0x80000000
	// DefaultPhysSize is the size of the default physical range in bytes.
	DefaultPhysSize = 128 << 20
)

type options struct {
	logger    *Logger
	metrics   MetricsCollector
	device    disk.Device
	blockSize int
	cacheOpts []func(*bcache.Options)
	physStart kalloc.PA
	physEnd   kalloc.PA
	allocOpts []func(*kalloc.Options)
}

// Option configures Open.
type Option func(*options)

// WithDevice sets the block device behind the cache.
// If unset, an in-memory device is used.
func WithDevice(dev disk.Device) Option {
	return func(o *options) {
		o.device = dev
	}
}

// WithBlockSize sets the block size of the cache and of the default device.
func WithBlockSize(size int) Option {
	return func(o *options) {
		o.blockSize = size
	}
}

// WithCacheOptions passes options through to bcache.New. They are applied
// after the options derived from the Core configuration.
//
// Example:
//
//	core, _ := kcore.Open(kcore.WithCacheOptions(
//	    bcache.WithBuckets(31),
//	    bcache.WithEntries(31*16),
//	))
func WithCacheOptions(optFns ...func(*bcache.Options)) Option {
	return func(o *options) {
		o.cacheOpts = append(o.cacheOpts, optFns...)
	}
}

// WithPhysicalMemory sets the physical range [start, end) managed by the page
// allocator, plus allocator options.
func WithPhysicalMemory(start, end kalloc.PA, optFns ...func(*kalloc.Options)) Option {
	return func(o *options) {
		o.physStart = start
		o.physEnd = end
		o.allocOpts = append(o.allocOpts, optFns...)
	}
}

// WithMetricsCollector configures a collector for cache and allocator events.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &kcore.BasicMetricsCollector{}
//	core, _ := kcore.Open(kcore.WithMetricsCollector(metrics))
//	// ... use core ...
//	fmt.Printf("hit ratio: %.2f\n", metrics.GetStats().HitRatio())
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metrics = mc
	}
}

// WithLogger configures structured logging.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := kcore.NewJSONLogger(slog.LevelInfo)
//	core, _ := kcore.Open(kcore.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		blockSize: disk.DefaultBlockSize,
		physStart: DefaultPhysBase,
		physEnd:   DefaultPhysBase + DefaultPhysSize,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metrics == nil {
		o.metrics = NoopMetricsCollector{}
	}
	if o.device == nil {
		o.device = disk.NewMemory(o.blockSize)
	}
	return o
}
