package bcache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/hupe1980/kcore/disk"
	"github.com/hupe1980/kcore/internal/lock"
)

type bucket struct {
	id      int
	lock    lock.Spin
	entries []entry
}

// Stats tracks cache activity.
type Stats struct {
	Buckets   int    // Number of buckets
	Capacity  int    // Entries per bucket
	BlockSize int    // Payload size in bytes
	Hits      uint64 // Acquires that found the block cached
	Misses    uint64 // Acquires that assigned an entry
	Evictions uint64 // Misses that displaced another block
	Reads     uint64 // Disk reads
	Writes    uint64 // Disk writes
}

// BucketStats describes the occupancy of one bucket.
type BucketStats struct {
	ID       int
	Capacity int
	Assigned int // Entries holding a block identity
	Valid    int // Entries whose payload is loaded
	Busy     int // Entries with references
}

type atomicStats struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	reads     atomic.Uint64
	writes    atomic.Uint64
}

// Cache is a sharded disk-block cache.
//
// All methods are safe for concurrent use.
type Cache struct {
	device    disk.Device
	buckets   []bucket
	capacity  int
	blockSize int

	leases  atomic.Uint64
	clock   Clock
	logger  *slog.Logger
	metrics MetricsObserver
	stats   atomicStats
}

// New creates a cache in front of device. All entries are allocated up front;
// none holds a block until first use.
func New(device disk.Device, optFns ...func(*Options)) (*Cache, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.setDefaults()

	if device == nil {
		return nil, fmt.Errorf("%w: nil device", ErrInvalidConfig)
	}
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("%w: buckets=%d entries=%d block_size=%d",
			err, opts.Buckets, opts.Entries, opts.BlockSize)
	}

	capacity := opts.Entries / opts.Buckets
	c := &Cache{
		device:    device,
		buckets:   make([]bucket, opts.Buckets),
		capacity:  capacity,
		blockSize: opts.BlockSize,
		clock:     opts.Clock,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}

	// One slab for all payloads.
	slab := make([]byte, opts.Buckets*capacity*opts.BlockSize)
	for i := range c.buckets {
		bk := &c.buckets[i]
		bk.id = i
		bk.lock.Init("bcache.bucket" + strconv.Itoa(i))
		bk.entries = make([]entry, capacity)
		for j := range bk.entries {
			e := &bk.entries[j]
			e.bucket = bk
			e.lock.Init("bcache.buffer")
			off := (i*capacity + j) * opts.BlockSize
			e.data = slab[off : off+opts.BlockSize : off+opts.BlockSize]
		}
	}

	return c, nil
}

// Acquire returns a lease on the entry for (dev, blockno), assigning one if
// the block is not cached. The payload is not loaded; check Buf.Valid or use
// Read.
//
// Acquire blocks while another lease on the same block is outstanding. It
// panics with an *ExhaustedError if the block is not cached and every entry
// of its bucket is referenced.
func (c *Cache) Acquire(dev, blockno uint32) *Buf {
	bk := c.bucketFor(blockno)

	bk.lock.Lock()

	var victim *entry
	for i := range bk.entries {
		e := &bk.entries[i]
		if e.assigned && e.dev == dev && e.blockno == blockno {
			e.refcnt++
			bk.lock.Unlock()

			c.stats.hits.Add(1)
			c.metrics.OnLookup(true)
			return c.lease(e)
		}
		if e.refcnt == 0 && (victim == nil || e.idle < victim.idle) {
			victim = e
		}
	}

	if victim == nil {
		bk.lock.Unlock()
		c.exhausted(bk, dev, blockno)
	}

	evicted := victim.assigned
	oldDev, oldBlock := victim.dev, victim.blockno

	victim.dev = dev
	victim.blockno = blockno
	victim.assigned = true
	victim.valid.Store(false)
	victim.refcnt = 1
	bk.lock.Unlock()

	c.stats.misses.Add(1)
	c.metrics.OnLookup(false)
	if evicted {
		c.stats.evictions.Add(1)
		c.metrics.OnEvict(bk.id)
		c.logger.Debug("block evicted",
			"bucket", bk.id,
			"dev", oldDev,
			"blockno", oldBlock,
			"for_dev", dev,
			"for_blockno", blockno,
		)
	}

	return c.lease(victim)
}

// Read returns a lease on (dev, blockno) with its payload loaded from disk.
//
// If the transfer fails the lease is released, the entry stays invalid and
// the error is returned.
func (c *Cache) Read(ctx context.Context, dev, blockno uint32) (*Buf, error) {
	b := c.Acquire(dev, blockno)
	if b.e.valid.Load() {
		return b, nil
	}

	if err := c.transfer(ctx, b, false); err != nil {
		c.Release(b)
		return nil, fmt.Errorf("bcache: read dev %d block %d: %w", dev, blockno, err)
	}

	b.e.valid.Store(true)
	return b, nil
}

// Write writes the payload of b to disk. The lease is kept.
//
// Write panics with a *LeaseError if b is not the current lease.
func (c *Cache) Write(ctx context.Context, b *Buf) error {
	if !b.e.lock.Holding(b.lease) {
		c.notHolder("write", b)
	}

	if err := c.transfer(ctx, b, true); err != nil {
		return fmt.Errorf("bcache: write dev %d block %d: %w", b.e.dev, b.e.blockno, err)
	}

	// The payload now matches the disk.
	b.e.valid.Store(true)
	return nil
}

// Release ends the lease b. When the last reference goes away the entry
// becomes an eviction candidate, stamped with the current idle tick.
//
// Release panics with a *LeaseError if b is not the current lease, including
// when b was already released.
func (c *Cache) Release(b *Buf) {
	e := b.e
	if !e.lock.Holding(b.lease) {
		c.notHolder("release", b)
	}
	e.lock.Unlock(b.lease)

	bk := e.bucket
	bk.lock.Lock()
	e.refcnt--
	if e.refcnt == 0 {
		e.idle = c.clock.Now()
	}
	bk.lock.Unlock()
}

// Pin adds a reference to the entry behind b so it is not evicted after the
// lease is released.
//
// Pin must be called while the lease is held; it panics with a *LeaseError
// otherwise. Unpin may be called after Release, with the same Buf.
func (c *Cache) Pin(b *Buf) {
	if !b.e.lock.Holding(b.lease) {
		c.notHolder("pin", b)
	}

	bk := b.e.bucket
	bk.lock.Lock()
	b.e.refcnt++
	bk.lock.Unlock()
}

// Unpin drops a reference added by Pin. It panics with ErrRefUnderflow if the
// entry has no references.
//
// The entry cannot be reassigned while pinned, so b still names the pinned
// block. Passing a Buf that was never pinned is caller misuse.
func (c *Cache) Unpin(b *Buf) {
	e := b.e
	bk := e.bucket

	bk.lock.Lock()
	if e.refcnt == 0 {
		bk.lock.Unlock()
		err := fmt.Errorf("%w: dev %d block %d", ErrRefUnderflow, e.dev, e.blockno)
		c.logger.Error("unpin without reference", "dev", e.dev, "blockno", e.blockno, "error", err)
		panic(err)
	}
	e.refcnt--
	bk.lock.Unlock()
}

// InvalidateDevice forgets every unreferenced cached block of dev, so the next
// access reads from disk. Referenced entries are left alone. It returns the
// number of entries invalidated.
func (c *Cache) InvalidateDevice(dev uint32) int {
	n := 0
	for i := range c.buckets {
		bk := &c.buckets[i]
		bk.lock.Lock()
		for j := range bk.entries {
			e := &bk.entries[j]
			if e.assigned && e.dev == dev && e.refcnt == 0 {
				e.assigned = false
				e.valid.Store(false)
				e.idle = 0
				n++
			}
		}
		bk.lock.Unlock()
	}

	if n > 0 {
		c.logger.Info("device invalidated", "dev", dev, "entries", n)
	}
	return n
}

// Stats returns a snapshot of cache statistics.
func (c *Cache) Stats() Stats {
	return Stats{
		Buckets:   len(c.buckets),
		Capacity:  c.capacity,
		BlockSize: c.blockSize,
		Hits:      c.stats.hits.Load(),
		Misses:    c.stats.misses.Load(),
		Evictions: c.stats.evictions.Load(),
		Reads:     c.stats.reads.Load(),
		Writes:    c.stats.writes.Load(),
	}
}

// BucketStats returns the occupancy of every bucket.
func (c *Cache) BucketStats() []BucketStats {
	out := make([]BucketStats, len(c.buckets))
	for i := range c.buckets {
		bk := &c.buckets[i]
		s := BucketStats{ID: bk.id, Capacity: c.capacity}

		bk.lock.Lock()
		for j := range bk.entries {
			e := &bk.entries[j]
			if e.assigned {
				s.Assigned++
			}
			if e.valid.Load() {
				s.Valid++
			}
			if e.refcnt > 0 {
				s.Busy++
			}
		}
		bk.lock.Unlock()

		out[i] = s
	}
	return out
}

// BlockSize returns the payload size in bytes.
func (c *Cache) BlockSize() int {
	return c.blockSize
}

func (c *Cache) bucketFor(blockno uint32) *bucket {
	return &c.buckets[int(blockno%uint32(len(c.buckets)))]
}

func (c *Cache) lease(e *entry) *Buf {
	token := c.leases.Add(1)
	e.lock.Lock(token)
	return &Buf{e: e, lease: token}
}

func (c *Cache) transfer(ctx context.Context, b *Buf, write bool) error {
	start := time.Now()
	err := c.device.Transfer(ctx, b, write)
	c.metrics.OnTransfer(write, time.Since(start), err)

	if err != nil {
		c.logger.ErrorContext(ctx, "disk transfer failed",
			"dev", b.e.dev,
			"blockno", b.e.blockno,
			"write", write,
			"error", err,
		)
		return err
	}

	if write {
		c.stats.writes.Add(1)
	} else {
		c.stats.reads.Add(1)
	}
	return nil
}

func (c *Cache) exhausted(bk *bucket, dev, blockno uint32) {
	err := &ExhaustedError{Bucket: bk.id, Capacity: c.capacity, Dev: dev, BlockNo: blockno}
	c.logger.Error("buffer cache exhausted",
		"bucket", bk.id,
		"capacity", c.capacity,
		"dev", dev,
		"blockno", blockno,
	)
	panic(err)
}

func (c *Cache) notHolder(op string, b *Buf) {
	// A stale lease may point at an entry that was since reassigned.
	bk := b.e.bucket
	bk.lock.Lock()
	err := &LeaseError{Op: op, Dev: b.e.dev, BlockNo: b.e.blockno}
	bk.lock.Unlock()

	c.logger.Error("lease not held", "op", op, "dev", err.Dev, "blockno", err.BlockNo)
	panic(err)
}
