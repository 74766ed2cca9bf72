package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCmd executes kcorectl with args and returns stdout.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

var smallCore = []string{
	"--block-size", "64",
	"--buckets", "2",
	"--entries", "8",
	"--pages", "16",
}

func args(sub string, extra ...string) []string {
	return append(append([]string{sub}, smallCore...), extra...)
}

func TestInfo(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		out, err := runCmd(t, args("info")...)
		require.NoError(t, err)
		assert.Contains(t, out, "buckets:    2 x 4 entries")
		assert.Contains(t, out, "frames:     16 (16 free)")
		assert.Contains(t, out, "[0x80000000, 0x80010000)")
	})

	t.Run("json", func(t *testing.T) {
		out, err := runCmd(t, args("info", "--json")...)
		require.NoError(t, err)

		var res infoResult
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, "memory", res.Device)
		assert.Equal(t, 64, res.BlockSize)
		assert.Len(t, res.Buckets, 2)
		assert.Equal(t, 4, res.Capacity)
		assert.Equal(t, 16, res.Frames)
	})
}

func TestCache(t *testing.T) {
	tests := []struct {
		name  string
		extra func(t *testing.T) []string
	}{
		{"memory", func(t *testing.T) []string { return nil }},
		{"file", func(t *testing.T) []string {
			return []string{"--device", "file", "--dir", t.TempDir()}
		}},
		{"blob lz4", func(t *testing.T) []string {
			return []string{"--device", "blob", "--dir", t.TempDir(), "--compression", "lz4"}
		}},
		{"blob zstd", func(t *testing.T) []string {
			return []string{"--device", "blob", "--dir", t.TempDir(), "--compression", "zstd"}
		}},
		{"throttled", func(t *testing.T) []string {
			return []string{"--max-inflight", "2"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extra := append([]string{
				"--workers", "3",
				"--ops", "200",
				"--devs", "2",
				"--blocks", "16",
				"--write-ratio", "0.5",
			}, tt.extra(t)...)

			out, err := runCmd(t, args("cache", extra...)...)
			require.NoError(t, err)
			assert.Contains(t, out, "cache workload: 600 ops")
			assert.Contains(t, out, "counters verified")
		})
	}
}

func TestCache_PersistentDevice(t *testing.T) {
	dir := t.TempDir()
	extra := []string{"--device", "file", "--dir", dir, "--workers", "2", "--ops", "100", "--blocks", "8", "--write-ratio", "1", "--json"}

	for range 2 {
		out, err := runCmd(t, args("cache", extra...)...)
		require.NoError(t, err)

		var res cacheResult
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, int64(200), res.Ops)
		assert.Equal(t, int64(200), res.Writes)
	}
}

func TestCache_TooManyWorkers(t *testing.T) {
	_, err := runCmd(t, args("cache", "--workers", "5")...)
	assert.ErrorContains(t, err, "exceeds bucket capacity 4")
}

func TestAlloc(t *testing.T) {
	out, err := runCmd(t, args("alloc", "--workers", "4", "--ops", "2000", "--max-held", "8", "--json")...)
	require.NoError(t, err)

	var res allocResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, int64(8000), res.Ops)
	assert.Equal(t, 16, res.Stats.Free)
	assert.Equal(t, res.Stats.Allocs+res.Stats.AddRefs, res.Stats.Frees)
	assert.Equal(t, res.Stats.Allocs, res.Stats.Reclaims)
}

func TestMetricsServer(t *testing.T) {
	out, err := runCmd(t, args("alloc", "--ops", "100", "--metrics-addr", "127.0.0.1:0")...)
	require.NoError(t, err)
	assert.Contains(t, out, "frames free: 16/16")
}

func TestInvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"device", args("info", "--device", "tape"), `unknown device "tape"`},
		{"store", args("info", "--device", "blob", "--store", "ftp"), `unknown store "ftp"`},
		{"file without dir", args("info", "--device", "file"), "requires --dir"},
		{"compression", args("info", "--device", "blob", "--dir", "x", "--compression", "gzip"), "gzip"},
		{"log level", args("info", "--log-level", "loud"), "invalid --log-level"},
		{"pages", args("info", "--pages", "0"), "--pages must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCmd(t, tt.args...)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
