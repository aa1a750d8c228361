package hitfile

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression defines the block compression algorithm.
type Compression uint8

const (
	// CompressionNone stores blocks raw.
	CompressionNone Compression = 0
	// CompressionLZ4 is fast, good for files read repeatedly.
	CompressionLZ4 Compression = 1
	// CompressionZSTD gives a better ratio, good for archived runs.
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("hitfile: unknown compression %q", s)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

const blockHeaderSize = 8

// compressBlock frames data as [uncompressed u32][compressed u32][payload].
// A compressed size of 0 marks a raw payload, used whenever compression
// saves less than 10%.
func compressBlock(data []byte, c Compression) ([]byte, error) {
	var compressed []byte
	switch c {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		out := make([]byte, blockHeaderSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		copy(out[blockHeaderSize:], data)
		return out, nil
	}

	out := make([]byte, blockHeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[blockHeaderSize:], compressed)
	return out, nil
}

func decompressBlock(block []byte, c Compression) ([]byte, error) {
	if len(block) < blockHeaderSize {
		return nil, fmt.Errorf("%w: block too small for header", ErrCorrupted)
	}
	size := binary.LittleEndian.Uint32(block[0:])
	csize := binary.LittleEndian.Uint32(block[4:])

	if csize == 0 {
		if uint64(len(block)) < blockHeaderSize+uint64(size) {
			return nil, fmt.Errorf("%w: raw block truncated", ErrCorrupted)
		}
		return block[blockHeaderSize : blockHeaderSize+size], nil
	}
	if uint64(len(block)) < blockHeaderSize+uint64(csize) {
		return nil, fmt.Errorf("%w: compressed block truncated", ErrCorrupted)
	}
	payload := block[blockHeaderSize : blockHeaderSize+csize]
	out := make([]byte, size)

	switch c {
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
		}
		if uint32(n) != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupted)
		}
		return out, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		decoded, err := dec.DecodeAll(payload, out[:0])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
		}
		if uint32(len(decoded)) != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupted)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("%w: compressed block in file with compression %s", ErrCorrupted, c)
	}
}
