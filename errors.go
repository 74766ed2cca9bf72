package kcore

import (
	"errors"

	"github.com/hupe1980/kcore/bcache"
	"github.com/hupe1980/kcore/kalloc"
)

// Sentinels re-exported for callers that only import the root package.
var (
	ErrNotHolder      = bcache.ErrNotHolder
	ErrNoBuffers      = bcache.ErrNoBuffers
	ErrRefUnderflow   = bcache.ErrRefUnderflow
	ErrOutOfMemory    = kalloc.ErrOutOfMemory
	ErrInvalidAddress = kalloc.ErrInvalidAddress
	ErrDoubleFree     = kalloc.ErrDoubleFree
	ErrNotAllocated   = kalloc.ErrNotAllocated
)

// IsContractViolation reports whether err (typically recovered from a panic)
// is one of the fatal conditions: caller misuse, or a cache bucket with no
// eviction candidate. Exhaustion of physical memory is not one of them.
func IsContractViolation(err error) bool {
	return errors.Is(err, ErrNotHolder) ||
		errors.Is(err, ErrNoBuffers) ||
		errors.Is(err, ErrRefUnderflow) ||
		errors.Is(err, ErrInvalidAddress) ||
		errors.Is(err, ErrDoubleFree)
}
