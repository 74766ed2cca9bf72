package kcore

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/kcore/bcache"
	"github.com/hupe1980/kcore/kalloc"
)

// MetricsCollector observes both the block cache and the page allocator.
// Implement this interface to integrate with monitoring systems; see
// package observability for a Prometheus implementation.
type MetricsCollector interface {
	bcache.MetricsObserver
	kalloc.MetricsObserver
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

// OnLookup implements bcache.MetricsObserver.
func (NoopMetricsCollector) OnLookup(bool) {}

// OnEvict implements bcache.MetricsObserver.
func (NoopMetricsCollector) OnEvict(int) {}

// OnTransfer implements bcache.MetricsObserver.
func (NoopMetricsCollector) OnTransfer(bool, time.Duration, error) {}

// OnAlloc implements kalloc.MetricsObserver.
func (NoopMetricsCollector) OnAlloc(bool) {}

// OnFree implements kalloc.MetricsObserver.
func (NoopMetricsCollector) OnFree(bool) {}

// OnAddRef implements kalloc.MetricsObserver.
func (NoopMetricsCollector) OnAddRef() {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	CacheHits          atomic.Int64
	CacheMisses        atomic.Int64
	CacheEvictions     atomic.Int64
	DiskReads          atomic.Int64
	DiskWrites         atomic.Int64
	TransferErrors     atomic.Int64
	TransferTotalNanos atomic.Int64
	Allocs             atomic.Int64
	AllocFailures      atomic.Int64
	Frees              atomic.Int64
	Reclaims           atomic.Int64
	AddRefs            atomic.Int64
}

// OnLookup implements bcache.MetricsObserver.
func (b *BasicMetricsCollector) OnLookup(hit bool) {
	if hit {
		b.CacheHits.Add(1)
	} else {
		b.CacheMisses.Add(1)
	}
}

// OnEvict implements bcache.MetricsObserver.
func (b *BasicMetricsCollector) OnEvict(int) {
	b.CacheEvictions.Add(1)
}

// OnTransfer implements bcache.MetricsObserver.
func (b *BasicMetricsCollector) OnTransfer(write bool, duration time.Duration, err error) {
	b.TransferTotalNanos.Add(duration.Nanoseconds())
	switch {
	case err != nil:
		b.TransferErrors.Add(1)
	case write:
		b.DiskWrites.Add(1)
	default:
		b.DiskReads.Add(1)
	}
}

// OnAlloc implements kalloc.MetricsObserver.
func (b *BasicMetricsCollector) OnAlloc(ok bool) {
	if ok {
		b.Allocs.Add(1)
	} else {
		b.AllocFailures.Add(1)
	}
}

// OnFree implements kalloc.MetricsObserver.
func (b *BasicMetricsCollector) OnFree(reclaimed bool) {
	b.Frees.Add(1)
	if reclaimed {
		b.Reclaims.Add(1)
	}
}

// OnAddRef implements kalloc.MetricsObserver.
func (b *BasicMetricsCollector) OnAddRef() {
	b.AddRefs.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CacheHits:        b.CacheHits.Load(),
		CacheMisses:      b.CacheMisses.Load(),
		CacheEvictions:   b.CacheEvictions.Load(),
		DiskReads:        b.DiskReads.Load(),
		DiskWrites:       b.DiskWrites.Load(),
		TransferErrors:   b.TransferErrors.Load(),
		TransferAvgNanos: b.getAvgTransferNanos(),
		Allocs:           b.Allocs.Load(),
		AllocFailures:    b.AllocFailures.Load(),
		Frees:            b.Frees.Load(),
		Reclaims:         b.Reclaims.Load(),
		AddRefs:          b.AddRefs.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgTransferNanos() int64 {
	count := b.DiskReads.Load() + b.DiskWrites.Load() + b.TransferErrors.Load()
	if count == 0 {
		return 0
	}
	return b.TransferTotalNanos.Load() / count
}

// HitRatio returns hits / (hits + misses), or 0 before the first lookup.
func (s BasicMetricsStats) HitRatio() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	CacheHits        int64
	CacheMisses      int64
	CacheEvictions   int64
	DiskReads        int64
	DiskWrites       int64
	TransferErrors   int64
	TransferAvgNanos int64
	Allocs           int64
	AllocFailures    int64
	Frees            int64
	Reclaims         int64
	AddRefs          int64
}
