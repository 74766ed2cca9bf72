package benchmark_test

import (
	"testing"

	"github.com/hupe1980/kcore/kalloc"
)

const benchBase kalloc.PA = 0x80000000

func newBenchAllocator(b *testing.B, pages int, optFns ...func(*kalloc.Options)) *kalloc.Allocator {
	b.Helper()

	a, err := kalloc.New(benchBase, benchBase+kalloc.PA(pages)*kalloc.DefaultPageSize, optFns...)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = a.Close() })
	return a
}

func BenchmarkAlloc_AllocFree(b *testing.B) {
	for _, poison := range []bool{false, true} {
		name := "plain"
		if poison {
			name = "poison"
		}
		b.Run(name, func(b *testing.B) {
			a := newBenchAllocator(b, 1024, kalloc.WithPoison(poison))

			BenchLoop(b, 1, func(int) {
				pa, err := a.Alloc()
				if err != nil {
					b.Fatal(err)
				}
				a.Free(pa)
			})
		})
	}
}

func BenchmarkAlloc_SharedFree(b *testing.B) {
	a := newBenchAllocator(b, 1024, kalloc.WithPoison(false))

	BenchLoop(b, 1, func(int) {
		pa, err := a.Alloc()
		if err != nil {
			b.Fatal(err)
		}
		if err := a.AddRef(pa); err != nil {
			b.Fatal(err)
		}
		a.Free(pa)
		a.Free(pa)
	})
}

func BenchmarkAlloc_Parallel(b *testing.B) {
	a := newBenchAllocator(b, 4096, kalloc.WithPoison(false))

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			pa, err := a.Alloc()
			if err != nil {
				b.Error(err)
				return
			}
			a.Free(pa)
		}
	})
}

func BenchmarkAlloc_RefCount(b *testing.B) {
	a := newBenchAllocator(b, 16)
	pa, err := a.Alloc()
	if err != nil {
		b.Fatal(err)
	}

	BenchLoop(b, 1, func(int) {
		if a.RefCount(pa) != 1 {
			b.Fatal("unexpected refcount")
		}
	})
}
