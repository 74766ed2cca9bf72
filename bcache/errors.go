package bcache

import (
	"errors"
	"fmt"
)

var (
	// ErrNotHolder indicates Write, Release or Pin with a lease that is not held.
	ErrNotHolder = errors.New("bcache: lease not held")
	// ErrNoBuffers indicates a bucket with no unreferenced entry to evict.
	ErrNoBuffers = errors.New("bcache: no buffers")
	// ErrRefUnderflow indicates Unpin on an entry without references.
	ErrRefUnderflow = errors.New("bcache: reference count underflow")
	// ErrInvalidConfig is returned by New for unusable options.
	ErrInvalidConfig = errors.New("bcache: invalid config")
)

// LeaseError describes an operation attempted without holding the lease.
//
// The underlying sentinel (ErrNotHolder) can be accessed via errors.Unwrap.
type LeaseError struct {
	Op      string
	Dev     uint32
	BlockNo uint32
}

func (e *LeaseError) Error() string {
	return fmt.Sprintf("bcache: %s dev %d block %d: lease not held", e.Op, e.Dev, e.BlockNo)
}

func (e *LeaseError) Unwrap() error { return ErrNotHolder }

// ExhaustedError describes a bucket whose entries are all referenced.
//
// The underlying sentinel (ErrNoBuffers) can be accessed via errors.Unwrap.
type ExhaustedError struct {
	Bucket   int
	Capacity int
	Dev      uint32
	BlockNo  uint32
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("bcache: no buffers in bucket %d (capacity %d) for dev %d block %d",
		e.Bucket, e.Capacity, e.Dev, e.BlockNo)
}

func (e *ExhaustedError) Unwrap() error { return ErrNoBuffers }
