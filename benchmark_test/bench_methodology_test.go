package benchmark_test

import (
	"runtime"
	"testing"
)

// WarmupIterations is the number of iterations run before measurement so the
// cache and free list reach a steady state.
const WarmupIterations = 64

// BenchLoop runs fn with warmup, a GC to clear setup garbage, and a timer
// reset. Each b.N iteration is exactly one operation.
//
// The keyCount parameter cycles the index passed to fn (i % keyCount).
func BenchLoop(b *testing.B, keyCount int, fn func(i int)) {
	b.Helper()

	for i := 0; i < WarmupIterations; i++ {
		fn(i % keyCount)
	}

	runtime.GC()

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		fn(i % keyCount)
	}
}
