// Package bcache implements a sharded disk-block cache with exclusive leases.
//
// # Structure
//
// The cache holds a fixed number of block-sized entries, pre-allocated at New
// and split evenly across buckets. A block lives in bucket blockno % Buckets.
// Each bucket has a spin lock guarding entry selection and metadata
// (identity, reference count, idle tick). Each entry has a sleep lock that
// grants exclusive access to its payload; it is held across disk transfers.
//
// # Leases
//
// Acquire and Read return a *Buf: a lease on one entry. Only one lease per
// entry exists at a time; a second request for the same block blocks until
// the first is released. Write, Release and Pin must be called with the current
// lease and panic otherwise.
//
//	b, err := c.Read(ctx, dev, blockno)
//	if err != nil { ... }
//	copy(b.Data(), payload)
//	if err := c.Write(ctx, b); err != nil { ... }
//	c.Release(b)
//
// Pin and Unpin keep an entry resident across several lease cycles, for
// example while a write-ahead log still refers to it.
//
// # Eviction
//
// On a miss the cache reuses the entry in the target bucket that has no
// references and the smallest idle tick. Other buckets are never searched,
// trading exact cache-wide LRU for low contention. If every entry of the
// bucket is referenced, Acquire panics with an *ExhaustedError.
package bcache
