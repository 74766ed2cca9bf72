// Package disk defines the block device contract the buffer cache talks to,
// plus a few devices.
//
// A Device moves whole blocks between memory and backing storage:
//
//	type Device interface {
//	    Transfer(ctx context.Context, b Block, write bool) error
//	}
//
// # Devices
//
//   - Memory: in-process map, for tests and simulations
//   - File: one image file per device number under a directory
//   - Blob: one object per block in a blobstore.Store, optionally compressed
//   - Throttle: wraps another Device with concurrency and bandwidth limits
//
// All devices are safe for concurrent use. Callers serialise access to any
// single block; devices do not order concurrent transfers of the same block.
package disk
