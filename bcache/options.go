package bcache

import (
	"log/slog"

	"github.com/hupe1980/kcore/disk"
)

const (
	// DefaultBuckets is the number of buckets. A prime spreads sequential
	// block numbers evenly.
	DefaultBuckets = 13
	// DefaultBucketCapacity is the number of entries per bucket when
	// Options.Entries is not set.
	DefaultBucketCapacity = 30
)

// Options configures a Cache.
type Options struct {
	// Buckets is the number of shards. If 0, defaults to DefaultBuckets.
	Buckets int

	// Entries is the total number of cached blocks, split evenly across
	// buckets (the remainder is dropped). If 0, defaults to
	// Buckets*DefaultBucketCapacity.
	Entries int

	// BlockSize is the payload size in bytes. If 0, defaults to
	// disk.DefaultBlockSize.
	BlockSize int

	// Clock stamps idle ticks. If nil, a LogicalClock is used.
	Clock Clock

	// Logger receives cache events. If nil, logging is discarded.
	Logger *slog.Logger

	// Metrics observes cache events. If nil, a no-op observer is used.
	Metrics MetricsObserver
}

// WithBuckets sets the number of buckets.
func WithBuckets(n int) func(*Options) {
	return func(o *Options) {
		o.Buckets = n
	}
}

// WithEntries sets the total number of entries.
func WithEntries(n int) func(*Options) {
	return func(o *Options) {
		o.Entries = n
	}
}

// WithBlockSize sets the block size.
func WithBlockSize(size int) func(*Options) {
	return func(o *Options) {
		o.BlockSize = size
	}
}

// WithClock sets the idle-tick clock.
func WithClock(c Clock) func(*Options) {
	return func(o *Options) {
		o.Clock = c
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
	if o.Buckets == 0 {
		o.Buckets = DefaultBuckets
	}
	if o.Entries == 0 {
		o.Entries = o.Buckets * DefaultBucketCapacity
	}
	if o.BlockSize == 0 {
		o.BlockSize = disk.DefaultBlockSize
	}
	if o.Clock == nil {
		o.Clock = &LogicalClock{}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetricsObserver{}
	}
}

func (o *Options) validate() error {
	if o.Buckets < 0 || o.Entries < 0 || o.BlockSize < 0 {
		return ErrInvalidConfig
	}
	if o.Entries < o.Buckets {
		return ErrInvalidConfig
	}
	return nil
}
