package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hupe1980/kcore"
	"github.com/hupe1980/kcore/kalloc"
	"github.com/hupe1980/kcore/testutil"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type allocOptions struct {
	workers    int
	ops        int
	maxHeld    int
	shareRatio float64
	seed       int64
}

func newAllocCmd(g *globalOptions) *cobra.Command {
	o := &allocOptions{}

	cmd := &cobra.Command{
		Use:   "alloc",
		Short: "Run concurrent alloc/share/free traffic through the page allocator",
		Long: `The alloc command starts --workers goroutines that allocate frames,
share them the way a copy-on-write fork would, and free them again. Every
frame is stamped with its owner on allocation and checked before each free.
When all workers are done every frame must be back on the free list.

Example:
  kcorectl alloc --workers 8 --ops 100000 --pages 256`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAlloc(cmd, g, o)
		},
	}

	f := cmd.Flags()
	f.IntVar(&o.workers, "workers", 4, "Concurrent workers")
	f.IntVar(&o.ops, "ops", 10000, "Operations per worker")
	f.IntVar(&o.maxHeld, "max-held", 64, "References a worker holds before it starts freeing")
	f.Float64Var(&o.shareRatio, "share-ratio", 0.3, "Fraction of operations that share a held frame")
	f.Int64Var(&o.seed, "seed", 1, "Random seed")

	return cmd
}

// allocResult is the outcome of an alloc workload.
type allocResult struct {
	Ops       int64         `json:"ops"`
	Exhausted int64         `json:"exhausted"`
	Duration  time.Duration `json:"duration_ns"`
	Stats     kalloc.Stats  `json:"stats"`
}

func runAlloc(cmd *cobra.Command, g *globalOptions, o *allocOptions) error {
	if o.workers <= 0 || o.maxHeld <= 0 {
		return fmt.Errorf("--workers and --max-held must be positive")
	}

	ctx := cmd.Context()
	s, err := g.open(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	pages := s.core.Pages()
	var ops, exhausted atomic.Int64
	start := time.Now()

	eg, ctx := errgroup.WithContext(ctx)
	for w := 0; w < o.workers; w++ {
		rng := testutil.NewRNG(o.seed + int64(w))
		stamp := uint64(w) + 1

		eg.Go(func() error {
			var held []kalloc.PA

			release := func(i int) error {
				pa := held[i]
				if got := binary.LittleEndian.Uint64(pages.Page(pa)); got != stamp {
					return fmt.Errorf("frame %#x: owner stamp %d, want %d", uint64(pa), got, stamp)
				}
				held[i] = held[len(held)-1]
				held = held[:len(held)-1]
				pages.Free(pa)
				return nil
			}

			for i := 0; i < o.ops; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				ops.Add(1)

				switch r := rng.Float64(); {
				case len(held) > 0 && (len(held) >= o.maxHeld || r < 0.3):
					if err := release(rng.Intn(len(held))); err != nil {
						return err
					}
				case len(held) > 0 && r < 0.3+o.shareRatio:
					pa := held[rng.Intn(len(held))]
					if err := pages.AddRef(pa); err != nil {
						return err
					}
					held = append(held, pa)
				default:
					pa, err := pages.Alloc()
					if errors.Is(err, kcore.ErrOutOfMemory) {
						exhausted.Add(1)
						continue
					}
					if err != nil {
						return err
					}
					binary.LittleEndian.PutUint64(pages.Page(pa), stamp)
					held = append(held, pa)
				}
			}

			for len(held) > 0 {
				if err := release(len(held) - 1); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err = eg.Wait()
	s.sampleGauges()
	s.logger.LogWorkload(cmd.Context(), "alloc", ops.Load(), err)
	if err != nil {
		return err
	}

	res := allocResult{
		Ops:       ops.Load(),
		Exhausted: exhausted.Load(),
		Duration:  time.Since(start),
		Stats:     pages.Stats(),
	}
	if res.Stats.Free != res.Stats.Frames {
		return fmt.Errorf("leaked frames: %d of %d free after workload", res.Stats.Free, res.Stats.Frames)
	}

	if g.jsonOut {
		return printJSON(cmd.OutOrStdout(), res)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "alloc workload: %d ops in %v\n", res.Ops, res.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  allocs:    %d\n", res.Stats.Allocs)
	fmt.Fprintf(out, "  addrefs:   %d\n", res.Stats.AddRefs)
	fmt.Fprintf(out, "  frees:     %d\n", res.Stats.Frees)
	fmt.Fprintf(out, "  reclaims:  %d\n", res.Stats.Reclaims)
	fmt.Fprintf(out, "  exhausted: %d\n", res.Exhausted)
	fmt.Fprintf(out, "  frames free: %d/%d\n", res.Stats.Free, res.Stats.Frames)
	return nil
}
