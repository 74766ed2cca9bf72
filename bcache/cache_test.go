package bcache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/kcore/disk"
	"github.com/hupe1980/kcore/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const testBlockSize = 64

var errBoom = errors.New("boom")

func newTestCache(t *testing.T, buckets, entries int, optFns ...func(*Options)) (*Cache, *disk.Memory) {
	t.Helper()

	mem := disk.NewMemory(testBlockSize)
	opts := append([]func(*Options){
		WithBuckets(buckets),
		WithEntries(entries),
		WithBlockSize(testBlockSize),
	}, optFns...)

	c, err := New(mem, opts...)
	require.NoError(t, err)
	return c, mem
}

// cached reports whether (dev, blockno) currently has an entry.
func cached(c *Cache, dev, blockno uint32) bool {
	bk := c.bucketFor(blockno)
	bk.lock.Lock()
	defer bk.lock.Unlock()

	for i := range bk.entries {
		e := &bk.entries[i]
		if e.assigned && e.dev == dev && e.blockno == blockno {
			return true
		}
	}
	return false
}

func readRelease(t *testing.T, c *Cache, dev, blockno uint32) {
	t.Helper()

	b, err := c.Read(context.Background(), dev, blockno)
	require.NoError(t, err)
	c.Release(b)
}

// faultDevice fails every transfer while fail is set.
type faultDevice struct {
	disk.Device
	fail atomic.Bool
}

func (d *faultDevice) Transfer(ctx context.Context, b disk.Block, write bool) error {
	if d.fail.Load() {
		return errBoom
	}
	return d.Device.Transfer(ctx, b, write)
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c, err := New(disk.NewMemory(0))
		require.NoError(t, err)

		s := c.Stats()
		assert.Equal(t, DefaultBuckets, s.Buckets)
		assert.Equal(t, DefaultBucketCapacity, s.Capacity)
		assert.Equal(t, disk.DefaultBlockSize, s.BlockSize)
		assert.Equal(t, disk.DefaultBlockSize, c.BlockSize())
	})

	t.Run("remainder entries are dropped", func(t *testing.T) {
		c, _ := newTestCache(t, 3, 10)
		assert.Equal(t, 3, c.Stats().Capacity)
	})

	tests := []struct {
		name   string
		device disk.Device
		optFns []func(*Options)
	}{
		{"nil device", nil, nil},
		{"fewer entries than buckets", disk.NewMemory(0), []func(*Options){WithBuckets(4), WithEntries(3)}},
		{"negative buckets", disk.NewMemory(0), []func(*Options){WithBuckets(-1)}},
		{"negative block size", disk.NewMemory(0), []func(*Options){WithBlockSize(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.device, tt.optFns...)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestRead(t *testing.T) {
	ctx := context.Background()

	t.Run("unwritten block reads as zeros", func(t *testing.T) {
		c, _ := newTestCache(t, 2, 4)

		b, err := c.Read(ctx, 1, 3)
		require.NoError(t, err)
		defer c.Release(b)

		assert.True(t, b.Valid())
		assert.Equal(t, uint32(1), b.Dev())
		assert.Equal(t, uint32(3), b.BlockNo())
		assert.Equal(t, make([]byte, testBlockSize), b.Data())
	})

	t.Run("second read is served from cache", func(t *testing.T) {
		c, _ := newTestCache(t, 2, 4)

		readRelease(t, c, 1, 3)
		readRelease(t, c, 1, 3)

		s := c.Stats()
		assert.Equal(t, uint64(1), s.Reads)
		assert.Equal(t, uint64(1), s.Misses)
		assert.Equal(t, uint64(1), s.Hits)
	})

	t.Run("transfer error releases the lease", func(t *testing.T) {
		dev := &faultDevice{Device: disk.NewMemory(testBlockSize)}
		c, err := New(dev, WithBuckets(1), WithEntries(2), WithBlockSize(testBlockSize))
		require.NoError(t, err)

		dev.fail.Store(true)
		_, err = c.Read(ctx, 1, 9)
		require.ErrorIs(t, err, errBoom)
		assert.Equal(t, uint64(0), c.Stats().Reads)

		// The entry is free again and still invalid.
		b := c.Acquire(1, 9)
		assert.False(t, b.Valid())
		c.Release(b)

		dev.fail.Store(false)
		b, err = c.Read(ctx, 1, 9)
		require.NoError(t, err)
		assert.True(t, b.Valid())
		c.Release(b)

		bs := c.BucketStats()
		assert.Equal(t, 0, bs[0].Busy)
	})

	t.Run("canceled context", func(t *testing.T) {
		c, _ := newTestCache(t, 1, 2)

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := c.Read(cctx, 0, 1)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestWrite_ReadAfterWrite(t *testing.T) {
	ctx := context.Background()
	c, mem := newTestCache(t, 1, 2)

	want := make([]byte, testBlockSize)
	testutil.NewRNG(42).FillBytes(want)

	b, err := c.Read(ctx, 0, 7)
	require.NoError(t, err)
	copy(b.Data(), want)
	require.NoError(t, c.Write(ctx, b))
	c.Release(b)

	// Cycle other blocks through the bucket until 7 is evicted.
	readRelease(t, c, 0, 8)
	readRelease(t, c, 0, 9)
	require.False(t, cached(c, 0, 7))

	b, err = c.Read(ctx, 0, 7)
	require.NoError(t, err)
	defer c.Release(b)

	assert.Equal(t, want, b.Data())
	assert.True(t, mem.Written(0).Contains(7))
	assert.Equal(t, uint64(1), c.Stats().Writes)
}

func TestWrite_Error(t *testing.T) {
	ctx := context.Background()
	dev := &faultDevice{Device: disk.NewMemory(testBlockSize)}
	c, err := New(dev, WithBuckets(1), WithEntries(2), WithBlockSize(testBlockSize))
	require.NoError(t, err)

	b, err := c.Read(ctx, 0, 1)
	require.NoError(t, err)

	dev.fail.Store(true)
	err = c.Write(ctx, b)
	require.ErrorIs(t, err, errBoom)

	// The lease survives a failed write.
	c.Release(b)
}

func TestAcquire_SameBlockSerialized(t *testing.T) {
	c, _ := newTestCache(t, 2, 4)

	b1 := c.Acquire(1, 5)
	b1.Data()[0] = 0xAB

	acquired := make(chan *Buf, 1)
	go func() {
		acquired <- c.Acquire(1, 5)
	}()

	select {
	case <-acquired:
		t.Fatal("second lease granted while the first is held")
	case <-time.After(50 * time.Millisecond):
	}

	c.Release(b1)

	select {
	case b2 := <-acquired:
		assert.Same(t, b1.e, b2.e)
		assert.Equal(t, byte(0xAB), b2.Data()[0])
		c.Release(b2)
	case <-time.After(5 * time.Second):
		t.Fatal("second lease never granted")
	}
}

func TestAcquire_Eviction(t *testing.T) {
	t.Run("least recently released goes first", func(t *testing.T) {
		c, _ := newTestCache(t, 1, 3)

		b1 := c.Acquire(0, 1)
		b2 := c.Acquire(0, 2)
		b3 := c.Acquire(0, 3)
		c.Release(b2)
		c.Release(b3)
		c.Release(b1)

		c.Release(c.Acquire(0, 4))

		assert.False(t, cached(c, 0, 2))
		assert.True(t, cached(c, 0, 1))
		assert.True(t, cached(c, 0, 3))
		assert.True(t, cached(c, 0, 4))
		assert.Equal(t, uint64(1), c.Stats().Evictions)
	})

	t.Run("referenced entries are never evicted", func(t *testing.T) {
		c, _ := newTestCache(t, 1, 2)

		held := c.Acquire(0, 1)
		defer c.Release(held)

		readRelease(t, c, 0, 2)
		readRelease(t, c, 0, 3)

		assert.True(t, cached(c, 0, 1))
		assert.False(t, cached(c, 0, 2))
		assert.True(t, cached(c, 0, 3))
	})

	t.Run("clock decides order", func(t *testing.T) {
		// A clock that runs backwards makes the most recent release the
		// oldest candidate.
		var tick atomic.Uint64
		tick.Store(1000)
		clock := ClockFunc(func() uint64 { return tick.Add(^uint64(0)) })

		c, _ := newTestCache(t, 1, 2, WithClock(clock))
		readRelease(t, c, 0, 1)
		readRelease(t, c, 0, 2)
		readRelease(t, c, 0, 3)

		assert.True(t, cached(c, 0, 1))
		assert.False(t, cached(c, 0, 2))
	})

	t.Run("other buckets are not searched", func(t *testing.T) {
		c, _ := newTestCache(t, 2, 4)

		// Blocks 0 and 2 fill bucket 0; bucket 1 is empty.
		b0 := c.Acquire(0, 0)
		b2 := c.Acquire(0, 2)

		err := testutil.RecoverError(func() { c.Acquire(0, 4) })
		require.ErrorIs(t, err, ErrNoBuffers)

		var ee *ExhaustedError
		require.ErrorAs(t, err, &ee)
		assert.Equal(t, 0, ee.Bucket)
		assert.Equal(t, 2, ee.Capacity)
		assert.Equal(t, uint32(4), ee.BlockNo)

		c.Release(c.Acquire(0, 1))
		c.Release(b0)
		c.Release(b2)
	})
}

func TestAcquire_Exhaustion(t *testing.T) {
	c, _ := newTestCache(t, 1, 4)

	var held []*Buf
	for i := range uint32(4) {
		held = append(held, c.Acquire(1, i))
	}

	err := testutil.RecoverError(func() { c.Acquire(1, 99) })
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoBuffers)
	assert.False(t, cached(c, 1, 99))

	// Existing blocks are still reachable.
	for _, b := range held {
		c.Release(b)
	}
	c.Release(c.Acquire(1, 99))
}

func TestRelease_WithoutLease(t *testing.T) {
	t.Run("double release", func(t *testing.T) {
		c, _ := newTestCache(t, 1, 2)

		b := c.Acquire(0, 1)
		c.Release(b)

		err := testutil.RecoverError(func() { c.Release(b) })
		require.ErrorIs(t, err, ErrNotHolder)

		var le *LeaseError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, "release", le.Op)
		assert.Equal(t, uint32(1), le.BlockNo)
	})

	t.Run("stale lease on a re-leased entry", func(t *testing.T) {
		c, _ := newTestCache(t, 1, 2)

		stale := c.Acquire(0, 1)
		c.Release(stale)
		current := c.Acquire(0, 1)

		err := testutil.RecoverError(func() { c.Release(stale) })
		require.ErrorIs(t, err, ErrNotHolder)

		// The current holder is unaffected.
		c.Release(current)
		assert.Equal(t, 0, c.BucketStats()[0].Busy)
	})

	t.Run("write", func(t *testing.T) {
		c, _ := newTestCache(t, 1, 2)

		b := c.Acquire(0, 1)
		c.Release(b)

		err := testutil.RecoverError(func() { _ = c.Write(context.Background(), b) })
		require.ErrorIs(t, err, ErrNotHolder)

		var le *LeaseError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, "write", le.Op)
		assert.Equal(t, uint64(0), c.Stats().Writes)
	})
}

func TestPin(t *testing.T) {
	ctx := context.Background()

	t.Run("pinned block survives release", func(t *testing.T) {
		c, _ := newTestCache(t, 1, 2)

		b, err := c.Read(ctx, 0, 1)
		require.NoError(t, err)
		c.Pin(b)
		c.Release(b)

		readRelease(t, c, 0, 2)
		readRelease(t, c, 0, 3)
		assert.True(t, cached(c, 0, 1))
		assert.False(t, cached(c, 0, 2))

		c.Unpin(b)
		readRelease(t, c, 0, 4)
		assert.False(t, cached(c, 0, 1))
		assert.True(t, cached(c, 0, 3))
	})

	t.Run("pinned bucket exhausts", func(t *testing.T) {
		c, _ := newTestCache(t, 1, 1)

		b := c.Acquire(0, 1)
		c.Pin(b)
		c.Release(b)

		err := testutil.RecoverError(func() { c.Acquire(0, 2) })
		assert.ErrorIs(t, err, ErrNoBuffers)

		c.Unpin(b)
		c.Release(c.Acquire(0, 2))
	})

	t.Run("stale lease", func(t *testing.T) {
		c, _ := newTestCache(t, 1, 1)

		stale := c.Acquire(0, 1)
		c.Release(stale)
		c.Release(c.Acquire(0, 2))

		err := testutil.RecoverError(func() { c.Pin(stale) })
		require.ErrorIs(t, err, ErrNotHolder)

		var le *LeaseError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, "pin", le.Op)

		// Block 2 was not pinned, so the entry can still be reused.
		assert.Equal(t, 0, c.BucketStats()[0].Busy)
		c.Release(c.Acquire(0, 3))
	})

	t.Run("unpin underflow", func(t *testing.T) {
		c, _ := newTestCache(t, 1, 2)

		b := c.Acquire(0, 1)
		c.Release(b)

		err := testutil.RecoverError(func() { c.Unpin(b) })
		require.ErrorIs(t, err, ErrRefUnderflow)
		assert.Equal(t, 0, c.BucketStats()[0].Busy)

		// The entry still works.
		c.Release(c.Acquire(0, 1))
	})
}

func TestInvalidateDevice(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, 2, 8)

	readRelease(t, c, 1, 1)
	readRelease(t, c, 2, 1)
	held, err := c.Read(ctx, 1, 2)
	require.NoError(t, err)

	assert.Equal(t, 1, c.InvalidateDevice(1))
	assert.False(t, cached(c, 1, 1))
	assert.True(t, cached(c, 2, 1))
	assert.True(t, cached(c, 1, 2))
	assert.True(t, held.Valid())
	c.Release(held)

	reads := c.Stats().Reads
	readRelease(t, c, 1, 1)
	assert.Equal(t, reads+1, c.Stats().Reads)

	assert.Equal(t, 0, c.InvalidateDevice(3))
}

func TestBucketStats(t *testing.T) {
	c, _ := newTestCache(t, 2, 4)

	readRelease(t, c, 0, 0)
	b := c.Acquire(0, 1)
	defer c.Release(b)

	bs := c.BucketStats()
	require.Len(t, bs, 2)

	assert.Equal(t, BucketStats{ID: 0, Capacity: 2, Assigned: 1, Valid: 1, Busy: 0}, bs[0])
	assert.Equal(t, BucketStats{ID: 1, Capacity: 2, Assigned: 1, Valid: 0, Busy: 1}, bs[1])
}

func TestConcurrentCounters(t *testing.T) {
	const (
		workers = 8
		rounds  = 200
		blocks  = 16
	)

	ctx := context.Background()
	c, _ := newTestCache(t, 4, 32)

	var g errgroup.Group
	for w := range workers {
		g.Go(func() error {
			rng := testutil.NewRNG(int64(w))
			for range rounds {
				blockno := rng.Uint32n(blocks)
				b, err := c.Read(ctx, 0, blockno)
				if err != nil {
					return err
				}
				n := binary.LittleEndian.Uint64(b.Data())
				binary.LittleEndian.PutUint64(b.Data(), n+1)
				if err := c.Write(ctx, b); err != nil {
					c.Release(b)
					return err
				}
				c.Release(b)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var total uint64
	for i := range uint32(blocks) {
		b, err := c.Read(ctx, 0, i)
		require.NoError(t, err)
		total += binary.LittleEndian.Uint64(b.Data())
		c.Release(b)
	}
	assert.Equal(t, uint64(workers*rounds), total)
}

func TestConcurrentPinUnpin(t *testing.T) {
	c, _ := newTestCache(t, 1, 4)

	b := c.Acquire(0, 1)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				c.Pin(b)
				c.Unpin(b)
			}
		}()
	}
	wg.Wait()

	c.Release(b)
	assert.Equal(t, 0, c.BucketStats()[0].Busy)
}

func TestBucketStats_ConcurrentWithTraffic(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, 1, 4)

	done := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		defer close(done)
		for i := range 2000 {
			b, err := c.Read(ctx, 0, uint32(i%8))
			if err != nil {
				return err
			}
			if i%3 == 0 {
				if err := c.Write(ctx, b); err != nil {
					c.Release(b)
					return err
				}
			}
			c.Release(b)
		}
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case <-done:
				return nil
			default:
			}
			for _, s := range c.BucketStats() {
				if s.Valid > s.Capacity || s.Busy > s.Capacity {
					return fmt.Errorf("bucket %d: %+v", s.ID, s)
				}
			}
		}
	})
	require.NoError(t, g.Wait())

	s := c.BucketStats()[0]
	assert.Equal(t, 4, s.Valid)
	assert.Equal(t, 0, s.Busy)
}

type recordingObserver struct {
	mu        sync.Mutex
	hits      int
	misses    int
	evictions int
	reads     int
	writes    int
	failures  int
}

func (r *recordingObserver) OnLookup(hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

func (r *recordingObserver) OnEvict(int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictions++
}

func (r *recordingObserver) OnTransfer(write bool, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case err != nil:
		r.failures++
	case write:
		r.writes++
	default:
		r.reads++
	}
}

func TestMetricsObserver(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	c, _ := newTestCache(t, 1, 1, WithMetricsObserver(obs))

	b, err := c.Read(ctx, 0, 1)
	require.NoError(t, err)
	require.NoError(t, c.Write(ctx, b))
	c.Release(b)

	readRelease(t, c, 0, 1)
	readRelease(t, c, 0, 2)

	assert.Equal(t, 1, obs.hits)
	assert.Equal(t, 2, obs.misses)
	assert.Equal(t, 1, obs.evictions)
	assert.Equal(t, 2, obs.reads)
	assert.Equal(t, 1, obs.writes)
	assert.Equal(t, 0, obs.failures)
}

func TestLogicalClock(t *testing.T) {
	var c LogicalClock
	a := c.Now()
	b := c.Now()
	assert.Less(t, a, b)
}
