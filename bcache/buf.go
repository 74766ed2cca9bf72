package bcache

import (
	"sync/atomic"

	"github.com/hupe1980/kcore/internal/lock"
)

// entry is one cached block. Identity (dev, blockno, assigned), refcnt and
// idle are guarded by the bucket lock; data by the sleep lock. valid is set
// by the lease holder and cleared under the bucket lock when the entry is
// reassigned, so it is atomic for BucketStats.
type entry struct {
	lock lock.Sleep

	bucket   *bucket
	dev      uint32
	blockno  uint32
	assigned bool
	valid    atomic.Bool
	refcnt   int
	idle     uint64

	data []byte
}

// Buf is a lease on a cached block. It is returned by Acquire and Read and is
// valid until passed to Release.
//
// Buf implements disk.Block.
type Buf struct {
	e     *entry
	lease uint64
}

// Dev returns the device number of the leased block.
func (b *Buf) Dev() uint32 { return b.e.dev }

// BlockNo returns the block number of the leased block.
func (b *Buf) BlockNo() uint32 { return b.e.blockno }

// Data returns the block payload. The slice may only be used while the lease
// is held.
func (b *Buf) Data() []byte { return b.e.data }

// Valid reports whether the payload holds the block's disk contents.
func (b *Buf) Valid() bool { return b.e.valid.Load() }
