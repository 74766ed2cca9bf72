package kalloc

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// freeList is a LIFO stack of free frame indices.
//
// members mirrors the stack contents so that pushing a frame twice is caught
// instead of handing the same frame to two owners later. Both fields are
// guarded by Allocator.freeLock.
type freeList struct {
	stack   []uint32
	members *roaring.Bitmap
}

func newFreeList(capacity int) freeList {
	return freeList{
		stack:   make([]uint32, 0, capacity),
		members: roaring.New(),
	}
}

// push adds idx to the top of the stack. It returns false, leaving the list
// unchanged, if idx is already on it.
func (f *freeList) push(idx uint32) bool {
	if !f.members.CheckedAdd(idx) {
		return false
	}
	f.stack = append(f.stack, idx)
	return true
}

// pop removes and returns the top of the stack.
func (f *freeList) pop() (uint32, bool) {
	n := len(f.stack)
	if n == 0 {
		return 0, false
	}
	idx := f.stack[n-1]
	f.stack = f.stack[:n-1]
	f.members.Remove(idx)
	return idx, true
}

func (f *freeList) len() int {
	return len(f.stack)
}

func (f *freeList) contains(idx uint32) bool {
	return f.members.Contains(idx)
}
