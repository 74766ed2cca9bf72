package integration_test

import (
	"context"
	"testing"

	"github.com/hupe1980/kcore"
	"github.com/hupe1980/kcore/bcache"
	"github.com/hupe1980/kcore/blobstore"
	"github.com/hupe1980/kcore/disk"
	"github.com/hupe1980/kcore/internal/codec"
	"github.com/hupe1980/kcore/kalloc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blockSize = 512

func openCore(t *testing.T, dev disk.Device, optFns ...kcore.Option) *kcore.Core {
	t.Helper()

	opts := append([]kcore.Option{
		kcore.WithDevice(dev),
		kcore.WithBlockSize(blockSize),
		kcore.WithCacheOptions(bcache.WithBuckets(3), bcache.WithEntries(12)),
		kcore.WithPhysicalMemory(kcore.DefaultPhysBase, kcore.DefaultPhysBase+32*kalloc.DefaultPageSize),
	}, optFns...)

	c, err := kcore.Open(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func writeBlock(t *testing.T, c *bcache.Cache, dev, blockno uint32, payload string) {
	t.Helper()
	ctx := context.Background()

	b, err := c.Read(ctx, dev, blockno)
	require.NoError(t, err)
	defer c.Release(b)

	clear(b.Data())
	copy(b.Data(), payload)
	require.NoError(t, c.Write(ctx, b))
}

func readBlock(t *testing.T, c *bcache.Cache, dev, blockno uint32) []byte {
	t.Helper()

	b, err := c.Read(context.Background(), dev, blockno)
	require.NoError(t, err)
	defer c.Release(b)

	return append([]byte(nil), b.Data()...)
}

func TestE2E_Restart(t *testing.T) {
	devices := []struct {
		name string
		open func(t *testing.T, dir string) (disk.Device, func() error)
	}{
		{"file", func(t *testing.T, dir string) (disk.Device, func() error) {
			f, err := disk.NewFile(dir, blockSize)
			require.NoError(t, err)
			return f, f.Close
		}},
		{"blob", func(_ *testing.T, dir string) (disk.Device, func() error) {
			return disk.NewBlob(blobstore.NewLocalStore(dir), blockSize, disk.WithCompression(codec.LZ4)), func() error { return nil }
		}},
	}

	for _, d := range devices {
		t.Run(d.name, func(t *testing.T) {
			dir := t.TempDir()

			// 1. Write enough blocks to force eviction, then close.
			dev, closeDev := d.open(t, dir)
			c, err := kcore.Open(
				kcore.WithDevice(dev),
				kcore.WithBlockSize(blockSize),
				kcore.WithCacheOptions(bcache.WithBuckets(2), bcache.WithEntries(4)),
				kcore.WithPhysicalMemory(kcore.DefaultPhysBase, kcore.DefaultPhysBase+kalloc.DefaultPageSize),
			)
			require.NoError(t, err)

			for i := uint32(0); i < 20; i++ {
				writeBlock(t, c.Cache(), 1, i, "block-"+string(rune('a'+i)))
			}
			assert.Positive(t, c.Stats().Cache.Evictions)

			require.NoError(t, c.Close())
			require.NoError(t, closeDev())

			// 2. Reopen with a cold cache and verify every block.
			dev, closeDev = d.open(t, dir)
			defer closeDev()
			c = openCore(t, dev)

			for i := uint32(0); i < 20; i++ {
				got := readBlock(t, c.Cache(), 1, i)
				assert.Equal(t, "block-"+string(rune('a'+i)), string(got[:7]))
			}
			assert.Equal(t, uint64(20), c.Stats().Cache.Reads)
		})
	}
}

func TestE2E_InvalidateDeviceRereads(t *testing.T) {
	mem := disk.NewMemory(blockSize)
	c := openCore(t, mem)

	writeBlock(t, c.Cache(), 2, 5, "cached")

	// Another writer changes the disk behind the cache's back.
	other := openCore(t, mem)
	writeBlock(t, other.Cache(), 2, 5, "rewritten")

	assert.Equal(t, "cached", string(readBlock(t, c.Cache(), 2, 5)[:6]))

	assert.Equal(t, 1, c.Cache().InvalidateDevice(2))
	assert.Equal(t, "rewritten", string(readBlock(t, c.Cache(), 2, 5)[:9]))
}

func TestE2E_CopyOnWriteFork(t *testing.T) {
	c := openCore(t, disk.NewMemory(blockSize))
	pages := c.Pages()

	// Parent maps three pages.
	parent := make([]kalloc.PA, 3)
	for i := range parent {
		pa, err := pages.Alloc()
		require.NoError(t, err)
		copy(pages.Page(pa), "parent")
		parent[i] = pa
	}

	// Fork shares every page.
	for _, pa := range parent {
		require.NoError(t, pages.AddRef(pa))
	}

	// Child writes to page 1: copy it out.
	fresh, err := pages.Alloc()
	require.NoError(t, err)
	copy(pages.Page(fresh), pages.Page(parent[1]))
	copy(pages.Page(fresh), "child!")
	pages.Free(parent[1])

	assert.Equal(t, 1, pages.RefCount(parent[1]))
	assert.Equal(t, "parent", string(pages.Page(parent[1])[:6]))
	assert.Equal(t, "child!", string(pages.Page(fresh)[:6]))

	// Child exits.
	child := []kalloc.PA{parent[0], fresh, parent[2]}
	for _, pa := range child {
		pages.Free(pa)
	}
	for _, pa := range parent {
		assert.Equal(t, 1, pages.RefCount(pa))
	}

	// Parent exits.
	for _, pa := range parent {
		pages.Free(pa)
	}
	assert.Equal(t, 32, pages.FreeFrames())
}
