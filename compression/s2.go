package compression

import (
	"github.com/klauspost/compress/s2"
)

func compressS2(src []byte) []byte {
	return s2.Encode(nil, src)
}

func decompressS2(src []byte) ([]byte, error) {
	return s2.Decode(nil, src)
}
