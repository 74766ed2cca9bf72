// Package codec frames and compresses block payloads for object storage.
//
// A frame is a 13-byte header followed by the payload:
//
//	[Type uint8][UncompressedSize uint32][StoredSize uint32][CRC32C uint32][Data...]
//
// The checksum covers the stored bytes. Decode takes an upper bound on the
// payload size so a damaged header cannot force a large allocation.
//
// The header records the algorithm that was actually applied, so Decode
// needs no configuration. Payloads that do not compress to at most 90% of
// their size are stored raw with Type None.
package codec
