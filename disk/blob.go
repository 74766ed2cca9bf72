package disk

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/kcore/blobstore"
	"github.com/hupe1980/kcore/internal/codec"
)

// BlobOptions configures a Blob device.
type BlobOptions struct {
	// Compression is applied to every stored block. Defaults to codec.None.
	Compression codec.Type
}

// WithCompression sets the block compression.
func WithCompression(t codec.Type) func(*BlobOptions) {
	return func(o *BlobOptions) {
		o.Compression = t
	}
}

// Blob is a Device that stores every block as its own object,
// named "<dev>/<blockno>.blk".
type Blob struct {
	store       blobstore.Store
	blockSize   int
	compression codec.Type
}

// NewBlob creates a Blob device on store.
func NewBlob(store blobstore.Store, blockSize int, optFns ...func(*BlobOptions)) *Blob {
	opts := BlobOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}

	return &Blob{
		store:       store,
		blockSize:   blockSize,
		compression: opts.Compression,
	}
}

// ObjectName returns the object name of a block.
func ObjectName(dev, blockno uint32) string {
	return fmt.Sprintf("%d/%d.blk", dev, blockno)
}

// Transfer implements Device.
func (d *Blob) Transfer(ctx context.Context, b Block, write bool) error {
	data := b.Data()
	if len(data) != d.blockSize {
		return transferError(b, write, ErrShortTransfer)
	}

	name := ObjectName(b.Dev(), b.BlockNo())

	if write {
		frame, err := codec.Encode(data, d.compression)
		if err != nil {
			return transferError(b, write, err)
		}
		if err := d.store.Put(ctx, name, frame); err != nil {
			return transferError(b, write, err)
		}
		return nil
	}

	frame, err := d.store.Get(ctx, name)
	if errors.Is(err, blobstore.ErrNotFound) {
		clear(data)
		return nil
	}
	if err != nil {
		return transferError(b, write, err)
	}

	payload, err := codec.Decode(frame, d.blockSize)
	if err != nil {
		return transferError(b, write, err)
	}
	if len(payload) != d.blockSize {
		return transferError(b, write, ErrShortTransfer)
	}
	copy(data, payload)
	return nil
}

// BlockSize returns the device block size.
func (d *Blob) BlockSize() int {
	return d.blockSize
}
