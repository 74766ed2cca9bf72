package kalloc

import (
	"context"
	"fmt"
	"log/slog"
	"math/bits"
	"sync/atomic"

	"github.com/hupe1980/kcore/internal/conv"
	"github.com/hupe1980/kcore/internal/lock"
	"github.com/hupe1980/kcore/internal/mmap"
)

// PA is a physical address.
type PA uint64

const (
	refDomain  = "kalloc.ref"
	freeDomain = "kalloc.freelist"
)

// lockTracer observes lock domain transitions.
type lockTracer interface {
	Acquired(domain string)
	Released(domain string)
}

// Stats tracks allocator activity.
type Stats struct {
	Frames   int    // Frames managed
	Free     int    // Frames currently on the free list
	Allocs   uint64 // Successful allocations
	Failures uint64 // Allocations that found the free list empty
	Frees    uint64 // Free calls
	Reclaims uint64 // Frees that returned a frame to the free list
	AddRefs  uint64 // Successful AddRef calls
}

type atomicStats struct {
	allocs   atomic.Uint64
	failures atomic.Uint64
	frees    atomic.Uint64
	reclaims atomic.Uint64
	addRefs  atomic.Uint64
}

// Allocator is a reference-counted physical page allocator.
//
// All methods are safe for concurrent use.
type Allocator struct {
	start     PA
	end       PA
	pageSize  uint64
	pageShift uint

	// refLock guards counts. Writers hold it; RefCount reads without it.
	refLock lock.Spin
	counts  []atomic.Int32

	// freeLock guards free. Never held together with refLock.
	freeLock lock.Spin
	free     freeList

	mem  *mmap.Mapping
	data []byte

	poison  bool
	logger  *slog.Logger
	metrics MetricsObserver
	tracer  lockTracer
	stats   atomicStats
}

// New creates an allocator over the physical range [start, end) and seeds the
// free list with every frame in it.
//
// Both bounds must be aligned to the page size.
func New(start, end PA, optFns ...func(*Options)) (*Allocator, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.setDefaults()

	if opts.PageSize&(opts.PageSize-1) != 0 {
		return nil, ErrInvalidPageSize
	}
	if uint64(start)%opts.PageSize != 0 || uint64(end)%opts.PageSize != 0 {
		return nil, ErrMisaligned
	}
	if end <= start {
		return nil, ErrEmptyRange
	}

	size := uint64(end - start)
	if _, err := conv.Uint64ToUint32(size / opts.PageSize); err != nil {
		return nil, fmt.Errorf("kalloc: too many frames: %w", err)
	}
	nframes := size / opts.PageSize

	length, err := conv.Uint64ToInt(size)
	if err != nil {
		return nil, fmt.Errorf("kalloc: range too large: %w", err)
	}

	mem, err := mmap.MapAnon(length)
	if err != nil {
		return nil, err
	}
	_ = mem.Advise(mmap.AccessRandom)

	a := &Allocator{
		start:     start,
		end:       end,
		pageSize:  opts.PageSize,
		pageShift: uint(bits.TrailingZeros64(opts.PageSize)),
		counts:    make([]atomic.Int32, nframes),
		free:      newFreeList(int(nframes)),
		mem:       mem,
		data:      mem.Bytes(),
		poison:    opts.Poison,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		tracer:    opts.tracer,
	}
	a.refLock.Init(refDomain)
	a.freeLock.Init(freeDomain)

	// Seed from the top down so the lowest frame ends up on top of the stack.
	for i := int(nframes) - 1; i >= 0; i-- {
		idx := uint32(i)
		a.counts[idx].Store(1)
		a.put(idx)
	}

	a.logger.InfoContext(context.Background(), "page allocator initialized",
		"start", uint64(start),
		"end", uint64(end),
		"page_size", a.pageSize,
		"frames", nframes,
	)

	return a, nil
}

// Alloc removes a frame from the free list and returns its address with a
// reference count of exactly one.
//
// It returns ErrOutOfMemory when no frame is free. Alloc never blocks or
// retries; the caller decides what exhaustion means.
func (a *Allocator) Alloc() (PA, error) {
	a.lockFree()
	idx, ok := a.free.pop()
	a.unlockFree()

	if !ok {
		a.stats.failures.Add(1)
		a.metrics.OnAlloc(false)
		a.logger.Warn("page allocator exhausted", "frames", len(a.counts))
		return 0, ErrOutOfMemory
	}

	a.lockRef()
	a.counts[idx].Store(1)
	a.unlockRef()

	if a.poison {
		fill(a.frame(idx), allocJunk)
	}

	a.stats.allocs.Add(1)
	a.metrics.OnAlloc(true)
	return a.addr(idx), nil
}

// Free drops one reference to the frame at pa. When the last reference goes
// away the frame is returned to the free list.
//
// Free panics with an *AddressError if pa is misaligned or outside the
// managed range, and with a *DoubleFreeError if the frame is already free.
// Neither panic modifies allocator state.
func (a *Allocator) Free(pa PA) {
	idx, ok := a.index(pa)
	if !ok {
		err := &AddressError{Op: "free", Addr: pa}
		a.logger.Error("invalid free", "addr", uint64(pa), "error", err)
		panic(err)
	}

	a.stats.frees.Add(1)
	reclaimed := a.put(idx)
	if reclaimed {
		a.stats.reclaims.Add(1)
	}
	a.metrics.OnFree(reclaimed)
}

// put drops one reference to frame idx and pushes it onto the free list when
// the count reaches zero. It reports whether the frame was reclaimed.
func (a *Allocator) put(idx uint32) bool {
	a.lockRef()
	if a.counts[idx].Load() <= 0 {
		a.unlockRef()
		a.doubleFree(idx)
	}
	n := a.counts[idx].Add(-1)
	a.unlockRef()

	if n > 0 {
		return false
	}

	// The count is durably zero and no owner remains, so the frame can be
	// scribbled on before anyone can pop it.
	if a.poison {
		fill(a.frame(idx), freeJunk)
	}

	a.lockFree()
	pushed := a.free.push(idx)
	a.unlockFree()

	if !pushed {
		a.doubleFree(idx)
	}

	return true
}

func (a *Allocator) doubleFree(idx uint32) {
	err := &DoubleFreeError{Addr: a.addr(idx)}
	a.logger.Error("double free", "addr", uint64(err.Addr), "error", err)
	panic(err)
}

// AddRef adds a reference to the frame at pa, typically when a copy-on-write
// mapping is duplicated.
//
// An invalid address is reported as an *AddressError rather than a panic. A
// frame that is currently free has no owner to share it, so AddRef leaves it
// alone and returns ErrNotAllocated.
func (a *Allocator) AddRef(pa PA) error {
	idx, ok := a.index(pa)
	if !ok {
		return &AddressError{Op: "addref", Addr: pa}
	}

	a.lockRef()
	if a.counts[idx].Load() <= 0 {
		a.unlockRef()
		return fmt.Errorf("%w: %#x", ErrNotAllocated, uint64(pa))
	}
	a.counts[idx].Add(1)
	a.unlockRef()

	a.stats.addRefs.Add(1)
	a.metrics.OnAddRef()
	return nil
}

// RefCount returns the reference count of the frame at pa, or -1 for an
// invalid address.
//
// The read takes no lock. The value is for diagnostics and heuristics only
// and must not drive correctness decisions.
func (a *Allocator) RefCount(pa PA) int {
	idx, ok := a.index(pa)
	if !ok {
		return -1
	}
	return int(a.counts[idx].Load())
}

// Page returns the contents of the frame at pa.
// The slice aliases physical memory and is valid until Close.
// It panics with an *AddressError for an invalid address.
func (a *Allocator) Page(pa PA) []byte {
	idx, ok := a.index(pa)
	if !ok {
		panic(&AddressError{Op: "page", Addr: pa})
	}
	return a.frame(idx)
}

// FreeFrames returns the number of frames on the free list.
func (a *Allocator) FreeFrames() int {
	a.lockFree()
	defer a.unlockFree()
	return a.free.len()
}

// PageSize returns the frame size in bytes.
func (a *Allocator) PageSize() uint64 {
	return a.pageSize
}

// Range returns the managed physical range [start, end).
func (a *Allocator) Range() (start, end PA) {
	return a.start, a.end
}

// Stats returns a snapshot of allocator statistics.
func (a *Allocator) Stats() Stats {
	return Stats{
		Frames:   len(a.counts),
		Free:     a.FreeFrames(),
		Allocs:   a.stats.allocs.Load(),
		Failures: a.stats.failures.Load(),
		Frees:    a.stats.frees.Load(),
		Reclaims: a.stats.reclaims.Load(),
		AddRefs:  a.stats.addRefs.Load(),
	}
}

// Close releases the physical memory backing. Frames must not be touched
// afterwards.
func (a *Allocator) Close() error {
	a.data = nil
	return a.mem.Close()
}

func (a *Allocator) index(pa PA) (uint32, bool) {
	if uint64(pa)&(a.pageSize-1) != 0 || pa < a.start || pa >= a.end {
		return 0, false
	}
	return uint32(uint64(pa-a.start) >> a.pageShift), true
}

func (a *Allocator) addr(idx uint32) PA {
	return a.start + PA(uint64(idx)<<a.pageShift)
}

func (a *Allocator) frame(idx uint32) []byte {
	off := uint64(idx) << a.pageShift
	return a.data[off : off+a.pageSize : off+a.pageSize]
}

func (a *Allocator) lockRef() {
	a.refLock.Lock()
	if a.tracer != nil {
		a.tracer.Acquired(refDomain)
	}
}

func (a *Allocator) unlockRef() {
	if a.tracer != nil {
		a.tracer.Released(refDomain)
	}
	a.refLock.Unlock()
}

func (a *Allocator) lockFree() {
	a.freeLock.Lock()
	if a.tracer != nil {
		a.tracer.Acquired(freeDomain)
	}
}

func (a *Allocator) unlockFree() {
	if a.tracer != nil {
		a.tracer.Released(freeDomain)
	}
	a.freeLock.Unlock()
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
