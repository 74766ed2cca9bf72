package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/kcore/internal/hash"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type defines the compression algorithm used.
type Type uint8

const (
	// None stores payloads raw.
	None Type = 0
	// LZ4 uses LZ4 block compression (fast).
	LZ4 Type = 1
	// ZSTD uses zstd (better ratio).
	ZSTD Type = 2
)

const headerSize = 13

var (
	// ErrCorrupt is returned by Decode for malformed frames.
	ErrCorrupt = errors.New("codec: corrupt frame")
	// ErrUnknownType is returned for unsupported compression types.
	ErrUnknownType = errors.New("codec: unknown compression type")
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// ParseType parses "none", "lz4" or "zstd".
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil)
}

// Encode compresses data with t and returns a frame.
func Encode(data []byte, t Type) ([]byte, error) {
	var (
		compressed []byte
		err        error
	)

	switch t {
	case None:
	case LZ4:
		compressed, err = compressLZ4(data)
	case ZSTD:
		compressed, err = compressZSTD(data)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
	}
	if err != nil {
		return nil, err
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		return frame(None, data, data), nil
	}
	return frame(t, data, compressed), nil
}

func frame(t Type, raw, stored []byte) []byte {
	out := make([]byte, headerSize+len(stored))
	out[0] = byte(t)
	binary.LittleEndian.PutUint32(out[1:], uint32(len(raw)))
	binary.LittleEndian.PutUint32(out[5:], uint32(len(stored)))
	binary.LittleEndian.PutUint32(out[9:], hash.CRC32C(stored))
	copy(out[headerSize:], stored)
	return out
}

func compressLZ4(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	compressed := make([]byte, lz4.CompressBlockBound(len(data)))

	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil // Incompressible
	}
	return compressed[:n], nil
}

func compressZSTD(data []byte) ([]byte, error) {
	enc, err := getZstdEncoder()
	if err != nil {
		return nil, err
	}
	defer zstdEncoderPool.Put(enc)

	return enc.EncodeAll(data, nil), nil
}

// Decode parses a frame produced by Encode and returns the payload.
//
// Frames declaring a payload larger than maxSize are rejected with ErrCorrupt
// before anything is allocated. A maxSize of 0 disables the check.
func Decode(f []byte, maxSize int) ([]byte, error) {
	if len(f) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(f))
	}

	t := Type(f[0])
	rawSize := binary.LittleEndian.Uint32(f[1:])
	storedSize := binary.LittleEndian.Uint32(f[5:])

	if maxSize > 0 && uint64(rawSize) > uint64(maxSize) {
		return nil, fmt.Errorf("%w: payload size %d exceeds %d", ErrCorrupt, rawSize, maxSize)
	}
	if uint64(len(f)-headerSize) != uint64(storedSize) {
		return nil, fmt.Errorf("%w: stored size %d, have %d", ErrCorrupt, storedSize, len(f)-headerSize)
	}
	stored := f[headerSize:]
	if sum := binary.LittleEndian.Uint32(f[9:]); sum != hash.CRC32C(stored) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	switch t {
	case None:
		if storedSize != rawSize {
			return nil, fmt.Errorf("%w: raw frame size mismatch", ErrCorrupt)
		}
		out := make([]byte, rawSize)
		copy(out, stored)
		return out, nil

	case LZ4:
		out := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(stored, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint32(n) != rawSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil

	case ZSTD:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, err
		}
		defer zstdDecoderPool.Put(dec)

		out, err := dec.DecodeAll(stored, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint32(len(out)) != rawSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
	}
}
