package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/hupe1980/kcore"
	"github.com/hupe1980/kcore/bcache"
	"github.com/hupe1980/kcore/kalloc"
	"github.com/spf13/cobra"
)

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	logLevel  string
	logJSON   bool
	jsonOut   bool
	blockSize int
	buckets   int
	entries   int
	pages     int
	poison    bool

	device      string
	dir         string
	store       string
	bucket      string
	prefix      string
	endpoint    string
	region      string
	compression string
	maxInFlight int64
	rate        int64

	metricsAddr string
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "kcorectl",
		Short: "Exercise the kcore block cache and page allocator",
		Long: `kcorectl builds a block cache over a configurable device and a page
allocator over a physical range, then runs concurrent workloads against them.

Devices:
  memory   blocks live in process memory (default)
  file     one image file per device under --dir
  blob     one object per block in a blob store (--store local|s3|minio)`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&g.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	f.BoolVar(&g.logJSON, "log-json", false, "Emit logs as JSON")
	f.BoolVar(&g.jsonOut, "json", false, "Output in JSON format")
	f.IntVar(&g.blockSize, "block-size", 1024, "Block size in bytes")
	f.IntVar(&g.buckets, "buckets", bcache.DefaultBuckets, "Number of cache buckets")
	f.IntVar(&g.entries, "entries", bcache.DefaultBuckets*bcache.DefaultBucketCapacity, "Number of cache entries")
	f.IntVar(&g.pages, "pages", 1024, "Number of physical frames managed by the allocator")
	f.BoolVar(&g.poison, "poison", true, "Fill frames with junk on alloc and free")

	f.StringVar(&g.device, "device", "memory", "Block device (memory, file, blob)")
	f.StringVar(&g.dir, "dir", "", "Directory for file images or the local blob store")
	f.StringVar(&g.store, "store", "local", "Blob store for --device=blob (local, s3, minio)")
	f.StringVar(&g.bucket, "bucket", "", "Bucket for the s3 and minio stores")
	f.StringVar(&g.prefix, "prefix", "", "Object key prefix for the s3 and minio stores")
	f.StringVar(&g.endpoint, "endpoint", "", "Custom endpoint for the s3 and minio stores")
	f.StringVar(&g.region, "region", "", "AWS region for the s3 store")
	f.StringVar(&g.compression, "compression", "none", "Block compression for --device=blob (none, lz4, zstd)")
	f.Int64Var(&g.maxInFlight, "max-inflight", 0, "Cap on concurrent device transfers (0 disables)")
	f.Int64Var(&g.rate, "rate", 0, "Device bandwidth limit in bytes per second (0 disables)")

	f.StringVar(&g.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")

	cmd.AddCommand(
		newCacheCmd(g),
		newAllocCmd(g),
		newInfoCmd(g),
	)

	return cmd
}

func (g *globalOptions) logger(w io.Writer) (*kcore.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", g.logLevel, err)
	}

	hopts := &slog.HandlerOptions{Level: level}
	if g.logJSON {
		return kcore.NewLogger(slog.NewJSONHandler(w, hopts)), nil
	}
	return kcore.NewLogger(slog.NewTextHandler(w, hopts)), nil
}

// coreOptions maps the flags onto kcore options. The device and metrics
// collector are built by the caller.
func (g *globalOptions) coreOptions() ([]kcore.Option, error) {
	if g.pages <= 0 {
		return nil, fmt.Errorf("--pages must be positive, got %d", g.pages)
	}

	end := kcore.DefaultPhysBase + kalloc.PA(g.pages)*kalloc.DefaultPageSize

	return []kcore.Option{
		kcore.WithBlockSize(g.blockSize),
		kcore.WithCacheOptions(
			bcache.WithBuckets(g.buckets),
			bcache.WithEntries(g.entries),
		),
		kcore.WithPhysicalMemory(kcore.DefaultPhysBase, end, kalloc.WithPoison(g.poison)),
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
