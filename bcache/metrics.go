package bcache

import "time"

// MetricsObserver defines the interface for observing cache events.
type MetricsObserver interface {
	// OnLookup is called for every Acquire; hit is false when an entry had
	// to be (re)assigned.
	OnLookup(hit bool)

	// OnEvict is called when an entry holding another block is reused.
	OnEvict(bucket int)

	// OnTransfer is called after every disk transfer.
	OnTransfer(write bool, duration time.Duration, err error)
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver struct{}

func (NoopMetricsObserver) OnLookup(bool)                        {}
func (NoopMetricsObserver) OnEvict(int)                          {}
func (NoopMetricsObserver) OnTransfer(bool, time.Duration, error) {}
