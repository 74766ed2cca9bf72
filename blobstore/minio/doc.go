// Package minio provides a blobstore.Store implementation using the MinIO client.
//
// MinIO is an S3-compatible object storage system. This package uses the
// official MinIO Go client and also works with other S3-compatible systems
// such as Ceph, SeaweedFS and Garage.
//
// # Basic Usage
//
//	store, err := minioblob.Connect("localhost:9000", "minioadmin", "minioadmin", false, "disks", "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := store.EnsureBucket(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	dev := disk.NewBlob(store)
//
// A preconfigured *minio.Client can be passed to NewStore instead.
package minio
