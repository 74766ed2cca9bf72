package disk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/hupe1980/kcore/internal/fs"
)

// FileOptions configures a File device.
type FileOptions struct {
	// FS is the file system. If nil, fs.Default is used.
	FS fs.FileSystem
	// SyncWrites fsyncs the image after every write.
	SyncWrites bool
}

// WithFileSystem sets the file system used by a File device.
func WithFileSystem(fsys fs.FileSystem) func(*FileOptions) {
	return func(o *FileOptions) {
		o.FS = fsys
	}
}

// WithSyncWrites makes every write durable before Transfer returns.
func WithSyncWrites() func(*FileOptions) {
	return func(o *FileOptions) {
		o.SyncWrites = true
	}
}

// File is a Device backed by image files, one per device number, named
// dev<N>.img below a root directory. Block n lives at offset n*blockSize.
type File struct {
	root      string
	blockSize int
	fs        fs.FileSystem
	sync      bool

	mu     sync.Mutex
	images map[uint32]fs.File
	closed bool
}

// NewFile creates a File device rooted at dir, creating dir if needed.
func NewFile(dir string, blockSize int, optFns ...func(*FileOptions)) (*File, error) {
	opts := FileOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.FS == nil {
		opts.FS = fs.Default
	}
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}

	if err := opts.FS.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("disk: create %s: %w", dir, err)
	}

	return &File{
		root:      dir,
		blockSize: blockSize,
		fs:        opts.FS,
		sync:      opts.SyncWrites,
		images:    make(map[uint32]fs.File),
	}, nil
}

// ImagePath returns the path of the image file for dev.
func (d *File) ImagePath(dev uint32) string {
	return filepath.Join(d.root, fmt.Sprintf("dev%d.img", dev))
}

func (d *File) image(dev uint32) (fs.File, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, os.ErrClosed
	}
	if f, ok := d.images[dev]; ok {
		return f, nil
	}

	f, err := d.fs.OpenFile(d.ImagePath(dev), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	d.images[dev] = f
	return f, nil
}

// Transfer implements Device.
func (d *File) Transfer(ctx context.Context, b Block, write bool) error {
	if err := ctx.Err(); err != nil {
		return transferError(b, write, err)
	}

	data := b.Data()
	if len(data) != d.blockSize {
		return transferError(b, write, ErrShortTransfer)
	}

	f, err := d.image(b.Dev())
	if err != nil {
		return transferError(b, write, err)
	}

	off := int64(b.BlockNo()) * int64(d.blockSize)

	if write {
		n, err := f.WriteAt(data, off)
		if err != nil {
			return transferError(b, write, err)
		}
		if n != len(data) {
			return transferError(b, write, ErrShortTransfer)
		}
		if d.sync {
			if err := f.Sync(); err != nil {
				return transferError(b, write, err)
			}
		}
		return nil
	}

	n, err := f.ReadAt(data, off)
	if errors.Is(err, io.EOF) {
		// Past the end of the image: never written.
		clear(data[n:])
		return nil
	}
	if err != nil {
		return transferError(b, write, err)
	}
	return nil
}

// Sync flushes every open image.
func (d *File) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for _, f := range d.images {
		if err := f.Sync(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every open image. Transfers after Close fail.
func (d *File) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	var errs []error
	for dev, f := range d.images {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(d.images, dev)
	}
	return errors.Join(errs...)
}

// BlockSize returns the device block size.
func (d *File) BlockSize() int {
	return d.blockSize
}
