package compression

import (
	"encoding/binary"
	"errors"

	"github.com/pierrec/lz4/v4"
)

// LZ4 block compression does not record the uncompressed length, so the
// on-disk representation carries a uvarint length prefix ahead of the block.

func compressLZ4(src []byte) ([]byte, error) {
	dst := binary.AppendUvarint(nil, uint64(len(src)))
	prefix := len(dst)

	var c lz4.Compressor
	dst = append(dst, make([]byte, lz4.CompressBlockBound(len(src)))...)
	n, err := c.CompressBlock(src, dst[prefix:])
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Incompressible input; store the raw bytes after the prefix.
		return append(dst[:prefix], src...), nil
	}
	return dst[:prefix+n], nil
}

func decompressLZ4(src []byte) ([]byte, error) {
	logical, n := binary.Uvarint(src)
	if n <= 0 {
		return nil, errors.New("lz4: malformed length prefix")
	}
	src = src[n:]

	dst := make([]byte, logical)
	if uint64(len(src)) == logical {
		// Raw passthrough written by compressLZ4 for incompressible input.
		// Try block decode first; fall back to the raw bytes on failure.
		if m, err := lz4.UncompressBlock(src, dst); err == nil && uint64(m) == logical {
			return dst[:m], nil
		}
		copy(dst, src)
		return dst, nil
	}
	m, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, err
	}
	if uint64(m) != logical {
		return nil, errors.New("lz4: decompressed length mismatch")
	}
	return dst[:m], nil
}
