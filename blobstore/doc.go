// Package blobstore provides whole-object storage used by object-backed
// block devices.
//
// Store is the interface for reading and writing named blobs.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-memory, for tests
//   - LocalStore: local filesystem with atomic rename on Put
//   - s3.Store: Amazon S3 and S3-compatible endpoints
//   - minio.Store: MinIO
//
// # Custom Implementations
//
// Implement the Store interface to support custom storage backends:
//
//	type Store interface {
//	    Get(ctx, name) ([]byte, error)   // ErrNotFound if missing
//	    Put(ctx, name, data) error       // Atomic replace
//	    Delete(ctx, name) error          // Missing is not an error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
