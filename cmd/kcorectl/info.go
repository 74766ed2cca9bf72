package main

import (
	"fmt"

	"github.com/hupe1980/kcore/bcache"
	"github.com/spf13/cobra"
)

func newInfoCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the cache and allocator layout for the current flags",
		Long: `The info command opens the configured cache and allocator without
running any traffic and reports how they are laid out.

Example:
  kcorectl info --buckets 31 --entries 496
  kcorectl info --pages 4096 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInfo(cmd, g)
		},
	}
}

// infoResult describes an opened core.
type infoResult struct {
	Device    string               `json:"device"`
	BlockSize int                  `json:"block_size"`
	Buckets   []bcache.BucketStats `json:"buckets"`
	Capacity  int                  `json:"bucket_capacity"`
	PageSize  uint64               `json:"page_size"`
	PhysStart uint64               `json:"phys_start"`
	PhysEnd   uint64               `json:"phys_end"`
	Frames    int                  `json:"frames"`
	Free      int                  `json:"free"`
}

func runInfo(cmd *cobra.Command, g *globalOptions) error {
	s, err := g.open(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	cs := s.core.Cache().Stats()
	ps := s.core.Pages().Stats()
	start, end := s.core.Pages().Range()

	res := infoResult{
		Device:    g.device,
		BlockSize: cs.BlockSize,
		Buckets:   s.core.Cache().BucketStats(),
		Capacity:  cs.Capacity,
		PageSize:  s.core.Pages().PageSize(),
		PhysStart: uint64(start),
		PhysEnd:   uint64(end),
		Frames:    ps.Frames,
		Free:      ps.Free,
	}

	if g.jsonOut {
		return printJSON(cmd.OutOrStdout(), res)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Block cache:\n")
	fmt.Fprintf(out, "  device:     %s\n", res.Device)
	fmt.Fprintf(out, "  block size: %d\n", res.BlockSize)
	fmt.Fprintf(out, "  buckets:    %d x %d entries\n", len(res.Buckets), res.Capacity)
	fmt.Fprintf(out, "Page allocator:\n")
	fmt.Fprintf(out, "  range:      [%#x, %#x)\n", res.PhysStart, res.PhysEnd)
	fmt.Fprintf(out, "  page size:  %d\n", res.PageSize)
	fmt.Fprintf(out, "  frames:     %d (%d free)\n", res.Frames, res.Free)
	return nil
}
