// Package compression implements the per-record value codecs used by blob
// files. The codec is chosen per file and recorded in the file header; every
// record in the file shares it.
package compression

import (
	"errors"
	"fmt"
)

// Type identifies the codec applied to record values.
type Type uint8

const (
	None Type = iota
	Snappy
	Zstd
	LZ4
	S2
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Snappy:
		return "snappy"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	case S2:
		return "s2"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Valid reports whether t is a known codec tag.
func (t Type) Valid() bool {
	return t <= S2
}

var ErrUnknownCodec = errors.New("unknown compression codec")

// Compress returns the on-disk representation of src under codec t.
// For None, src is returned as-is.
func Compress(t Type, src []byte) ([]byte, error) {
	switch t {
	case None:
		return src, nil
	case Snappy:
		return compressSnappy(src), nil
	case Zstd:
		return compressZstd(src)
	case LZ4:
		return compressLZ4(src)
	case S2:
		return compressS2(src), nil
	default:
		return nil, ErrUnknownCodec
	}
}

// Decompress restores the logical value bytes from their on-disk
// representation. Malformed input yields an error; the caller maps it to a
// corruption status.
func Decompress(t Type, src []byte) ([]byte, error) {
	switch t {
	case None:
		return src, nil
	case Snappy:
		return decompressSnappy(src)
	case Zstd:
		return decompressZstd(src)
	case LZ4:
		return decompressLZ4(src)
	case S2:
		return decompressS2(src)
	default:
		return nil, ErrUnknownCodec
	}
}
