// Package s3 provides an S3 implementation of the blobstore.Store interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("disks/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	dev := disk.NewBlob(store)
//
// # Features
//
//   - CRC32C checksums on every upload
//   - Automatic pagination for listing
//   - Custom endpoints and path-style addressing for S3-compatible services
//   - Configurable prefix for multi-tenant isolation
package s3
