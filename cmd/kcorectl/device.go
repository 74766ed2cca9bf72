package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hupe1980/kcore/blobstore"
	"github.com/hupe1980/kcore/blobstore/minio"
	"github.com/hupe1980/kcore/blobstore/s3"
	"github.com/hupe1980/kcore/disk"
	"github.com/hupe1980/kcore/internal/codec"
)

// openDevice builds the block device selected by the flags. The returned
// close function releases whatever the device holds open.
func (g *globalOptions) openDevice(ctx context.Context) (disk.Device, func() error, error) {
	noop := func() error { return nil }

	var (
		dev     disk.Device
		closeFn = noop
	)

	switch g.device {
	case "memory":
		dev = disk.NewMemory(g.blockSize)
	case "file":
		if g.dir == "" {
			return nil, nil, errors.New("--device=file requires --dir")
		}
		f, err := disk.NewFile(g.dir, g.blockSize)
		if err != nil {
			return nil, nil, err
		}
		dev, closeFn = f, f.Close
	case "blob":
		store, err := g.openStore(ctx)
		if err != nil {
			return nil, nil, err
		}
		ct, err := codec.ParseType(g.compression)
		if err != nil {
			return nil, nil, err
		}
		dev = disk.NewBlob(store, g.blockSize, disk.WithCompression(ct))
	default:
		return nil, nil, fmt.Errorf("unknown device %q (want memory, file or blob)", g.device)
	}

	if g.maxInFlight > 0 || g.rate > 0 {
		dev = disk.NewThrottle(dev, g.maxInFlight, g.rate)
	}

	return dev, closeFn, nil
}

func (g *globalOptions) openStore(ctx context.Context) (blobstore.Store, error) {
	switch g.store {
	case "local":
		if g.dir == "" {
			return nil, errors.New("--store=local requires --dir")
		}
		return blobstore.NewLocalStore(g.dir), nil
	case "s3":
		if g.bucket == "" {
			return nil, errors.New("--store=s3 requires --bucket")
		}
		var opts []func(*s3.Options)
		if g.prefix != "" {
			opts = append(opts, s3.WithPrefix(g.prefix))
		}
		if g.region != "" {
			opts = append(opts, s3.WithRegion(g.region))
		}
		if g.endpoint != "" {
			opts = append(opts, s3.WithEndpoint(g.endpoint))
		}
		return s3.New(ctx, g.bucket, opts...)
	case "minio":
		if g.bucket == "" || g.endpoint == "" {
			return nil, errors.New("--store=minio requires --bucket and --endpoint")
		}
		store, err := minio.Connect(
			g.endpoint,
			os.Getenv("MINIO_ACCESS_KEY"),
			os.Getenv("MINIO_SECRET_KEY"),
			os.Getenv("MINIO_SECURE") == "true",
			g.bucket,
			g.prefix,
		)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store %q (want local, s3 or minio)", g.store)
	}
}
