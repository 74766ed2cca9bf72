package kcore_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/kcore"
	"github.com/hupe1980/kcore/bcache"
	"github.com/hupe1980/kcore/kalloc"
)

func Example() {
	ctx := context.Background()

	core, err := kcore.Open(
		kcore.WithBlockSize(512),
		kcore.WithCacheOptions(bcache.WithBuckets(4), bcache.WithEntries(16)),
		kcore.WithPhysicalMemory(kcore.DefaultPhysBase, kcore.DefaultPhysBase+4*kalloc.DefaultPageSize),
	)
	if err != nil {
		panic(err)
	}
	defer core.Close()

	b, err := core.Cache().Read(ctx, 1, 2)
	if err != nil {
		panic(err)
	}
	copy(b.Data(), "hello")
	if err := core.Cache().Write(ctx, b); err != nil {
		panic(err)
	}
	core.Cache().Release(b)

	b, _ = core.Cache().Read(ctx, 1, 2)
	fmt.Println(string(b.Data()[:5]))
	core.Cache().Release(b)

	s := core.Cache().Stats()
	fmt.Println("hits:", s.Hits, "misses:", s.Misses)

	// Output:
	// hello
	// hits: 1 misses: 1
}

func Example_copyOnWrite() {
	core, err := kcore.Open(
		kcore.WithPhysicalMemory(kcore.DefaultPhysBase, kcore.DefaultPhysBase+2*kalloc.DefaultPageSize),
	)
	if err != nil {
		panic(err)
	}
	defer core.Close()

	pages := core.Pages()

	pa, _ := pages.Alloc()
	_ = pages.AddRef(pa) // fork shares the frame
	fmt.Println("refs:", pages.RefCount(pa))

	pages.Free(pa) // child exits
	pages.Free(pa) // parent exits
	fmt.Println("free frames:", pages.FreeFrames())

	_, _ = pages.Alloc()
	_, _ = pages.Alloc()
	_, err = pages.Alloc()
	fmt.Println(errors.Is(err, kcore.ErrOutOfMemory))

	// Output:
	// refs: 2
	// free frames: 2
	// true
}
