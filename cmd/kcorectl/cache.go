package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hupe1980/kcore"
	"github.com/hupe1980/kcore/bcache"
	"github.com/hupe1980/kcore/internal/conv"
	"github.com/hupe1980/kcore/testutil"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type cacheOptions struct {
	workers    int
	ops        int
	devs       int
	blocks     int
	writeRatio float64
	seed       int64
}

func newCacheCmd(g *globalOptions) *cobra.Command {
	o := &cacheOptions{}

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Run concurrent read/write traffic through the block cache",
		Long: `The cache command starts --workers goroutines that each perform --ops
random block accesses. A write increments a counter stored in the first eight
bytes of the block. After the run every block is read back and the counters
must add up to the number of writes performed.

Example:
  kcorectl cache --workers 8 --ops 10000 --blocks 512
  kcorectl cache --device file --dir /tmp/kcore --write-ratio 0.5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCache(cmd, g, o)
		},
	}

	f := cmd.Flags()
	f.IntVar(&o.workers, "workers", 4, "Concurrent workers")
	f.IntVar(&o.ops, "ops", 1000, "Block accesses per worker")
	f.IntVar(&o.devs, "devs", 2, "Number of devices to spread traffic over")
	f.IntVar(&o.blocks, "blocks", 256, "Blocks per device")
	f.Float64Var(&o.writeRatio, "write-ratio", 0.2, "Fraction of accesses that write")
	f.Int64Var(&o.seed, "seed", 1, "Random seed")

	return cmd
}

// cacheResult is the outcome of a cache workload.
type cacheResult struct {
	Ops      int64         `json:"ops"`
	Writes   int64         `json:"writes"`
	Duration time.Duration `json:"duration_ns"`
	Stats    kcore.Stats   `json:"stats"`
	HitRatio float64       `json:"hit_ratio"`
}

func runCache(cmd *cobra.Command, g *globalOptions, o *cacheOptions) error {
	if o.workers <= 0 || o.devs <= 0 || o.blocks <= 0 {
		return fmt.Errorf("--workers, --devs and --blocks must be positive")
	}
	devs, err := conv.IntToUint32(o.devs)
	if err != nil {
		return fmt.Errorf("--devs: %w", err)
	}
	blocks, err := conv.IntToUint32(o.blocks)
	if err != nil {
		return fmt.Errorf("--blocks: %w", err)
	}
	if g.blockSize < 8 {
		return fmt.Errorf("--block-size must be at least 8 for the cache workload")
	}

	ctx := cmd.Context()
	s, err := g.open(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	// Each worker holds at most one lease, so a bucket can never run dry as
	// long as every bucket has an entry per worker.
	if capacity := s.core.Cache().Stats().Capacity; o.workers > capacity {
		return fmt.Errorf("--workers %d exceeds bucket capacity %d", o.workers, capacity)
	}

	// Persistent devices may carry counters from earlier runs.
	base, err := sumCounters(ctx, s.core.Cache(), devs, blocks)
	if err != nil {
		return err
	}

	var ops, writes atomic.Int64
	start := time.Now()

	eg, ctx := errgroup.WithContext(ctx)
	for w := 0; w < o.workers; w++ {
		rng := testutil.NewRNG(o.seed + int64(w))
		log := s.logger.WithWorker(w)

		eg.Go(func() error {
			for i := 0; i < o.ops; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}

				dev := rng.Uint32n(devs)
				blockno := rng.Uint32n(blocks)
				write := rng.Float64() < o.writeRatio

				if err := touchBlock(ctx, s.core.Cache(), dev, blockno, write); err != nil {
					log.Error("block access failed", "dev", dev, "blockno", blockno, "error", err)
					return err
				}

				ops.Add(1)
				if write {
					writes.Add(1)
				}
			}
			return nil
		})
	}

	err = eg.Wait()
	s.sampleGauges()
	s.logger.LogWorkload(cmd.Context(), "cache", ops.Load(), err)
	if err != nil {
		return err
	}

	sum, err := sumCounters(cmd.Context(), s.core.Cache(), devs, blocks)
	if err != nil {
		return err
	}
	if sum-base != uint64(writes.Load()) {
		return fmt.Errorf("lost updates: block counters grew by %d, want %d", sum-base, writes.Load())
	}

	res := cacheResult{
		Ops:      ops.Load(),
		Writes:   writes.Load(),
		Duration: time.Since(start),
		Stats:    s.core.Stats(),
		HitRatio: s.metrics.GetStats().HitRatio(),
	}
	s.logger.LogStats(cmd.Context(), res.Stats)

	if g.jsonOut {
		return printJSON(cmd.OutOrStdout(), res)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "cache workload: %d ops (%d writes) in %v\n", res.Ops, res.Writes, res.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  hits:      %d\n", res.Stats.Cache.Hits)
	fmt.Fprintf(out, "  misses:    %d\n", res.Stats.Cache.Misses)
	fmt.Fprintf(out, "  evictions: %d\n", res.Stats.Cache.Evictions)
	fmt.Fprintf(out, "  hit ratio: %.3f\n", res.HitRatio)
	fmt.Fprintf(out, "  counters verified: %d\n", sum-base)
	return nil
}

func touchBlock(ctx context.Context, c *bcache.Cache, dev, blockno uint32, write bool) error {
	b, err := c.Read(ctx, dev, blockno)
	if err != nil {
		return err
	}
	defer c.Release(b)

	if !write {
		return nil
	}

	data := b.Data()
	binary.LittleEndian.PutUint64(data, binary.LittleEndian.Uint64(data)+1)
	return c.Write(ctx, b)
}

func sumCounters(ctx context.Context, c *bcache.Cache, devs, blocks uint32) (uint64, error) {
	var sum uint64
	for dev := range devs {
		for blockno := range blocks {
			b, err := c.Read(ctx, dev, blockno)
			if err != nil {
				return 0, err
			}
			sum += binary.LittleEndian.Uint64(b.Data())
			c.Release(b)
		}
	}
	return sum, nil
}
