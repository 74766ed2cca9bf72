// Package mmap provides anonymous memory mappings used as simulated physical
// memory.
//
// # Overview
//
// MapAnon reserves a read-write region outside the Go heap. The page
// allocator carves that region into fixed-size frames, so frame contents are
// never moved or scanned by the garbage collector.
//
// # Usage
//
//	m, err := mmap.MapAnon(64 * 4096)
//	if err != nil { ... }
//	defer m.Close()
//
//	mem := m.Bytes()
//	_ = m.Advise(mmap.AccessRandom)
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with MAP_ANON|MAP_PRIVATE, madvise(2) hints
//   - Windows: VirtualAlloc with demand paging (advise is a no-op)
//
// # Thread Safety
//
// Bytes and Size are safe for concurrent use. Close is idempotent; callers
// must ensure no goroutine touches Bytes() after Close returns.
package mmap
