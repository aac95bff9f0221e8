package compression

import (
	"github.com/DataDog/zstd"
)

func compressZstd(src []byte) ([]byte, error) {
	return zstd.Compress(nil, src)
}

func decompressZstd(src []byte) ([]byte, error) {
	return zstd.Decompress(nil, src)
}
