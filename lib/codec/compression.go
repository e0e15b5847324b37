package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/arbordb/arbor/lib/db"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// --------------------------------------------------------------------------
// Tier Selection
// --------------------------------------------------------------------------

// Payload size breakpoints for tier selection. Small payloads get the
// fastest codec, large payloads the one with the best ratio.
const (
	tierSimpleAt = 1 << 10  // 1 KiB
	tierLZ77At   = 16 << 10 // 16 KiB
)

// Hints carry the resource-state bias into an encode call. They only shift
// which tier is picked, never whether the result is kept.
type Hints struct {
	// ForceCompression compresses payloads below the size threshold too
	// (low memory mode).
	ForceCompression bool
	// PreferHighRatio bumps the selected tier one step up, trading CPU for
	// bytes (constrained network or battery).
	PreferHighRatio bool
}

// selectTier picks the compression tier for a payload of the given size.
// The choice is deterministic for a fixed size and hint set.
func selectTier(size int, h Hints) db.CompressionTier {
	var tier db.CompressionTier
	switch {
	case size >= tierLZ77At:
		tier = db.TierLZ77
	case size >= tierSimpleAt:
		tier = db.TierSimple
	default:
		tier = db.TierFast
	}
	if h.PreferHighRatio && tier < db.TierLZ77 {
		tier++
	}
	return tier
}

// --------------------------------------------------------------------------
// Compression
// --------------------------------------------------------------------------

// Compress compresses data using the codec backing the specified tier.
func Compress(t db.CompressionTier, data []byte) ([]byte, error) {
	switch t {
	case db.TierNone:
		return data, nil

	case db.TierFast:
		return snappy.Encode(nil, data), nil

	case db.TierSimple:
		return compressLZ4(data, lz4.Fast)

	case db.TierLZ77:
		return compressZstd(data, zstd.SpeedDefault)

	default:
		return nil, fmt.Errorf("unsupported compression tier: %s", t)
	}
}

// compressLZ4 compresses data using LZ4.
func compressLZ4(data []byte, level lz4.CompressionLevel) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if err := w.Apply(lz4.CompressionLevelOption(level)); err != nil {
		return nil, fmt.Errorf("lz4 apply level: %w", err)
	}
	_, err := w.Write(data)
	if err != nil {
		return nil, fmt.Errorf("lz4 write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4 close: %w", err)
	}
	return buf.Bytes(), nil
}

// compressZstd compresses data using Zstandard.
func compressZstd(data []byte, level zstd.EncoderLevel) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	return encoder.EncodeAll(data, nil), nil
}

// Decompress decompresses data using the codec backing the specified tier.
// Decompression must exactly invert Compress for the same tier.
func Decompress(t db.CompressionTier, data []byte) ([]byte, error) {
	switch t {
	case db.TierNone:
		return data, nil

	case db.TierFast:
		return snappy.Decode(nil, data)

	case db.TierSimple:
		return decompressLZ4(data)

	case db.TierLZ77:
		return decompressZstd(data)

	default:
		return nil, fmt.Errorf("unsupported compression tier: %s", t)
	}
}

// decompressLZ4 decompresses LZ4 data.
func decompressLZ4(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	return io.ReadAll(r)
}

// decompressZstd decompresses Zstandard data.
func decompressZstd(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	defer decoder.Close()
	return decoder.DecodeAll(data, nil)
}
