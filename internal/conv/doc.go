// Package conv provides checked integer conversions.
//
// Frame indices and block numbers are uint32 while sizes and flag values
// arrive as int or uint64; these helpers reject values that would wrap.
// Provably bounded conversions (loop indices, masked values) use plain casts.
package conv
