package compression

import (
	"github.com/golang/snappy"
)

func compressSnappy(src []byte) []byte {
	return snappy.Encode(nil, src)
}

func decompressSnappy(src []byte) ([]byte, error) {
	return snappy.Decode(nil, src)
}
