// Package kalloc implements a physical page allocator with per-frame
// reference counting for copy-on-write sharing.
//
// # Model
//
// The allocator manages the page-aligned half-open address range
// [start, end). Each PageSize frame in the range has a reference count:
//
//   - count 0: the frame is on the free list, or the allocator is still
//     seeding it; never both
//   - count n>0: n logical owners (page-table mappings) share the frame
//
// Alloc hands out a frame with count 1. AddRef adds an owner when a mapping
// is duplicated (fork with copy-on-write). Free drops one owner; the frame
// returns to the free list only when the last owner is gone.
//
// # Lock Domains
//
// Two independent spin locks guard the allocator:
//
//   - "kalloc.ref": the reference table
//   - "kalloc.freelist": the free-list stack
//
// They are never held at the same time. A count reaches zero and its lock is
// released before the frame is pushed onto the free list, so a frame is only
// reachable through the free list once its count is durably zero.
//
// # Contract Violations
//
// Free panics with an *AddressError for a misaligned or out-of-range address
// and with ErrDoubleFree for a frame whose count is already zero. In both
// cases the allocator state is left untouched. AddRef reports an invalid
// address as an error instead, because copy-on-write duplication checks
// addresses speculatively. AddRef on a frame that is on the free list
// returns ErrNotAllocated.
//
// # Physical Memory
//
// Frame contents live in an anonymous memory mapping outside the Go heap.
// With Options.Poison set, frames are filled with 0x05 on allocation and 0x01
// on release so that use-before-init and use-after-free bugs show up as junk.
package kalloc
