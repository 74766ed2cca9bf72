// Package kcore provides the concurrent resource-management core of a small
// Unix-like kernel as a Go library.
//
// Two independent components make up the core:
//
//   - bcache: a sharded disk-block cache with exclusive leases, pinning and
//     per-bucket eviction
//   - kalloc: a physical page allocator with per-frame reference counts for
//     copy-on-write sharing
//
// Both are built on package internal/lock (spin and sleep locks) and report
// through the same logging and metrics hooks. Core wires them together from
// a single set of options.
//
// # Quick Start
//
//	metrics := &kcore.BasicMetricsCollector{}
//	core, err := kcore.Open(
//	    kcore.WithBlockSize(1024),
//	    kcore.WithDevice(disk.NewMemory(1024)),
//	    kcore.WithMetricsCollector(metrics),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer core.Close()
//
//	b, err := core.Cache().Read(ctx, dev, blockno)
//	if err != nil {
//	    return err
//	}
//	copy(b.Data(), payload)
//	err = core.Cache().Write(ctx, b)
//	core.Cache().Release(b)
//
//	pa, err := core.Pages().Alloc()
//	if errors.Is(err, kcore.ErrOutOfMemory) {
//	    // caller decides
//	}
//	_ = core.Pages().AddRef(pa) // duplicated mapping
//	core.Pages().Free(pa)
//	core.Pages().Free(pa)       // last owner gone, frame reclaimed
//
// # Contract Violations
//
// Misuse such as releasing a lease that is not held, unpinning below zero,
// freeing an invalid address or freeing twice panics with a typed error that
// wraps one of the exported sentinels. A cache bucket with every entry
// referenced is fatal in the same way (ErrNoBuffers). IsContractViolation
// classifies a recovered value. Exhaustion of physical memory is an ordinary
// error (ErrOutOfMemory) and is not a violation.
//
// # Backends
//
// Package disk provides memory, file, object-store and throttled devices.
// Package blobstore and its s3 and minio subpackages provide the object
// stores. Package observability exports metrics to Prometheus.
package kcore
