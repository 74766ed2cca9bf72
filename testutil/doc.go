// Package testutil provides testing utilities for kcore.
//
// This package is intended for use in tests, benchmarks and the kcorectl
// stress commands only.
//
// # Deterministic Randomness
//
//	rng := testutil.NewRNG(seed)
//	blockno := rng.Intn(64)
//	rng.FillBytes(buf)
//
// # Contract Violations
//
// The cache and the page allocator panic with typed errors when a caller
// breaks their contract. RecoverError runs a function and hands back the
// error it panicked with, so tests can use errors.Is / errors.As:
//
//	err := testutil.RecoverError(func() { c.Release(stale) })
//	require.ErrorIs(t, err, bcache.ErrNotHolder)
package testutil
