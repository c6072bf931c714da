package store

import (
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// compress lz4-block-compresses data. Incompressible input is returned as
// is with compressed=false; callers record that in the row.
func compress(data []byte) (out []byte, compressed bool, err error) {
	buf := make([]byte, lz4.CompressBlockBound(len(data)))
	var hashTable [1 << 16]int
	n, err := lz4.CompressBlock(data, buf, hashTable[:])
	if err != nil {
		return nil, false, fmt.Errorf("compressing snapshot: %w", err)
	}
	if n == 0 || n >= len(data) {
		return data, false, nil
	}
	return buf[:n], true, nil
}

// decompress reverses compress. rawSize is the original payload length.
func decompress(data []byte, compressed bool, rawSize int) ([]byte, error) {
	if !compressed {
		return data, nil
	}
	out := make([]byte, rawSize)
	n, err := lz4.UncompressBlock(data, out)
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot: %w", err)
	}
	if n != rawSize {
		return nil, fmt.Errorf("decompressed %d bytes, expected %d", n, rawSize)
	}
	return out, nil
}
