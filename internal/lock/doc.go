// Package lock provides the two lock classes used by the resource core.
//
//   - [Spin]: a busy-wait mutex for short critical sections (bucket metadata,
//     reference counts, free lists). It must never be held across an
//     operation that can block.
//   - [Sleep]: a blocking lock that records its holder. Waiters are parked
//     rather than spinning, so it may be held across a synchronous disk
//     transfer.
//
// Neither lock is reentrant and neither supports cancellation: a waiter waits
// until the lock is released. Deadlock is a programming error.
package lock
