package kalloc

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfMemory is returned by Alloc when no frame is free.
	ErrOutOfMemory = errors.New("kalloc: out of memory")
	// ErrInvalidAddress indicates a misaligned or out-of-range frame address.
	ErrInvalidAddress = errors.New("kalloc: invalid address")
	// ErrDoubleFree indicates Free on a frame whose reference count is already zero.
	ErrDoubleFree = errors.New("kalloc: double free")
	// ErrNotAllocated indicates AddRef on a frame that is on the free list.
	ErrNotAllocated = errors.New("kalloc: frame not allocated")
	// ErrMisaligned is returned by New when a range bound is not page aligned.
	ErrMisaligned = errors.New("kalloc: range not page aligned")
	// ErrEmptyRange is returned by New when the range holds no frame.
	ErrEmptyRange = errors.New("kalloc: empty range")
	// ErrInvalidPageSize is returned by New when the page size is not a power of two.
	ErrInvalidPageSize = errors.New("kalloc: page size must be a power of two")
)

// AddressError describes an address rejected by Free, AddRef or Page.
//
// The underlying sentinel (ErrInvalidAddress) can be accessed via errors.Unwrap.
type AddressError struct {
	Op   string
	Addr PA
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("kalloc: %s: invalid address %#x", e.Op, uint64(e.Addr))
}

func (e *AddressError) Unwrap() error { return ErrInvalidAddress }

// DoubleFreeError describes a Free on a frame that is already free.
type DoubleFreeError struct {
	Addr PA
}

func (e *DoubleFreeError) Error() string {
	return fmt.Sprintf("kalloc: double free of %#x", uint64(e.Addr))
}

func (e *DoubleFreeError) Unwrap() error { return ErrDoubleFree }
