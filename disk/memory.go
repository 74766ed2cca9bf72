package disk

import (
	"context"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

type blockKey struct {
	dev     uint32
	blockno uint32
}

// Memory is an in-memory Device.
//
// It is safe for concurrent use.
type Memory struct {
	blockSize int

	mu      sync.RWMutex
	blocks  map[blockKey][]byte
	written map[uint32]*roaring.Bitmap
}

// NewMemory creates an empty in-memory device with the given block size.
// A size of 0 selects DefaultBlockSize.
func NewMemory(blockSize int) *Memory {
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	return &Memory{
		blockSize: blockSize,
		blocks:    make(map[blockKey][]byte),
		written:   make(map[uint32]*roaring.Bitmap),
	}
}

// Transfer implements Device.
func (m *Memory) Transfer(ctx context.Context, b Block, write bool) error {
	if err := ctx.Err(); err != nil {
		return transferError(b, write, err)
	}

	data := b.Data()
	if len(data) != m.blockSize {
		return transferError(b, write, ErrShortTransfer)
	}

	key := blockKey{dev: b.Dev(), blockno: b.BlockNo()}

	if write {
		m.mu.Lock()
		buf, ok := m.blocks[key]
		if !ok {
			buf = make([]byte, m.blockSize)
			m.blocks[key] = buf
		}
		copy(buf, data)

		bm, ok := m.written[key.dev]
		if !ok {
			bm = roaring.New()
			m.written[key.dev] = bm
		}
		bm.Add(key.blockno)
		m.mu.Unlock()
		return nil
	}

	m.mu.RLock()
	buf, ok := m.blocks[key]
	if ok {
		copy(data, buf)
	}
	m.mu.RUnlock()

	if !ok {
		clear(data)
	}
	return nil
}

// Written returns the set of blocks of dev that have been written at least
// once. The bitmap is a copy.
func (m *Memory) Written(dev uint32) *roaring.Bitmap {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if bm, ok := m.written[dev]; ok {
		return bm.Clone()
	}
	return roaring.New()
}

// BlockSize returns the device block size.
func (m *Memory) BlockSize() int {
	return m.blockSize
}
