package disk

import (
	"context"
	"errors"
	"fmt"
)

// DefaultBlockSize is the block size in bytes used when none is configured.
const DefaultBlockSize = 1024

// ErrShortTransfer is returned when a device cannot move a whole block.
var ErrShortTransfer = errors.New("disk: short transfer")

// Block is the unit a Device transfers: a fixed-size payload identified by
// device and block number.
type Block interface {
	Dev() uint32
	BlockNo() uint32
	// Data returns the payload. Its length is the block size.
	Data() []byte
}

// Device is the disk driver contract.
//
// Transfer is synchronous. A read fully fills b.Data() with the contents of
// (b.Dev(), b.BlockNo()); a write fully flushes it. Partial transfers are
// reported as errors, never as success. Blocks that were never written read
// as zeros.
type Device interface {
	Transfer(ctx context.Context, b Block, write bool) error
}

// TransferError describes a failed block transfer.
//
// The original underlying error can be accessed via errors.Unwrap.
type TransferError struct {
	Dev     uint32
	BlockNo uint32
	Write   bool
	cause   error
}

func (e *TransferError) Error() string {
	op := "read"
	if e.Write {
		op = "write"
	}
	return fmt.Sprintf("disk: %s dev %d block %d: %v", op, e.Dev, e.BlockNo, e.cause)
}

func (e *TransferError) Unwrap() error { return e.cause }

func transferError(b Block, write bool, cause error) error {
	return &TransferError{Dev: b.Dev(), BlockNo: b.BlockNo(), Write: write, cause: cause}
}
