package lock

import (
	"sync"
)

// Sleep is a blocking lock that tracks which holder owns it.
//
// Holders identify themselves with a non-zero token; the lock does not know
// about goroutines. Sleep must be initialised with Init before use.
type Sleep struct {
	mu     sync.Mutex
	cond   sync.Cond
	locked bool
	holder uint64
	name   string
}

// Init prepares the lock for use.
func (l *Sleep) Init(name string) {
	l.name = name
	l.cond.L = &l.mu
}

// Name returns the lock name.
func (l *Sleep) Name() string {
	return l.name
}

// Lock blocks until the lock is free, then records holder as its owner.
func (l *Sleep) Lock(holder uint64) {
	if holder == 0 {
		panic("lock: zero holder token for sleep lock " + l.name)
	}

	l.mu.Lock()
	for l.locked {
		l.cond.Wait()
	}
	l.locked = true
	l.holder = holder
	l.mu.Unlock()
}

// Unlock releases the lock and wakes all waiters.
// It panics if holder does not own the lock.
func (l *Sleep) Unlock(holder uint64) {
	l.mu.Lock()
	if !l.locked || l.holder != holder {
		l.mu.Unlock()
		panic("lock: release of sleep lock " + l.name + " by non-holder")
	}
	l.locked = false
	l.holder = 0
	l.cond.Broadcast()
	l.mu.Unlock()
}

// Holding reports whether holder currently owns the lock.
func (l *Sleep) Holding(holder uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked && l.holder == holder
}

// Locked reports whether the lock is held by anyone.
func (l *Sleep) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}
