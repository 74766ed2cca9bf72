package lock

import (
	"runtime"
	"sync/atomic"
)

// Spin is a busy-wait mutual exclusion lock.
// The zero value is an unlocked lock.
type Spin struct {
	name   string
	locked atomic.Bool
}

// NewSpin creates a named spin lock. The name only shows up in panics.
func NewSpin(name string) *Spin {
	return &Spin{name: name}
}

// Init sets the lock name. It must be called before the lock is shared.
func (l *Spin) Init(name string) {
	l.name = name
}

// Name returns the lock name.
func (l *Spin) Name() string {
	return l.name
}

// Lock spins until the lock is acquired.
func (l *Spin) Lock() {
	for !l.locked.CompareAndSwap(false, true) {
		// Yield so a preempted holder gets to run on small GOMAXPROCS.
		runtime.Gosched()
	}
}

// TryLock acquires the lock if it is free and reports whether it did.
func (l *Spin) TryLock() bool {
	return l.locked.CompareAndSwap(false, true)
}

// Unlock releases the lock. Unlocking a free lock panics.
func (l *Spin) Unlock() {
	if !l.locked.Swap(false) {
		panic("lock: unlock of unlocked spin lock " + l.name)
	}
}

// Locked reports whether some goroutine currently holds the lock.
// The answer may be stale by the time the caller looks at it.
func (l *Spin) Locked() bool {
	return l.locked.Load()
}
