package mmap

import "errors"

// AccessPattern is a paging hint for a mapping.
type AccessPattern int

const (
	// AccessDefault removes any earlier hint.
	AccessDefault AccessPattern = iota
	// AccessRandom disables read-ahead. Frames are touched in no
	// particular order.
	AccessRandom
	// AccessSequential favours aggressive read-ahead.
	AccessSequential
)

var (
	// ErrClosed is returned when attempting to access a closed mapping.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidSize is returned when the requested size is not positive.
	ErrInvalidSize = errors.New("mmap: invalid size")
)
