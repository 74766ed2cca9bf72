package kalloc

// MetricsObserver defines the interface for observing allocator events.
type MetricsObserver interface {
	// OnAlloc is called after each Alloc; ok is false on exhaustion.
	OnAlloc(ok bool)

	// OnFree is called after each Free; reclaimed is true when the frame
	// went back to the free list.
	OnFree(reclaimed bool)

	// OnAddRef is called after each successful AddRef.
	OnAddRef()
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver struct{}

func (NoopMetricsObserver) OnAlloc(bool) {}
func (NoopMetricsObserver) OnFree(bool)  {}
func (NoopMetricsObserver) OnAddRef()    {}
