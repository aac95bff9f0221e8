package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func allCodecs() []Type {
	return []Type{None, Snappy, Zstd, LZ4, S2}
}

func TestRoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		[]byte("x"),
		[]byte("blob0"),
		bytes.Repeat([]byte("0123456789abcdef"), 64),
		bytes.Repeat([]byte{0}, 4096),
	}

	for _, codec := range allCodecs() {
		for _, payload := range payloads {
			compressed, err := Compress(codec, payload)
			require.NoError(t, err, "codec %s", codec)

			restored, err := Decompress(codec, compressed)
			require.NoError(t, err, "codec %s", codec)
			require.Equal(t, len(payload), len(restored), "codec %s", codec)
			require.True(t, bytes.Equal(payload, restored), "codec %s", codec)
		}
	}
}

func TestCompressibleInputShrinks(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789abcdef"), 64)
	for _, codec := range []Type{Snappy, Zstd, LZ4, S2} {
		compressed, err := Compress(codec, payload)
		require.NoError(t, err)
		require.Less(t, len(compressed), len(payload), "codec %s", codec)
	}
}

func TestDecompressGarbage(t *testing.T) {
	garbage := []byte{0xff, 0xfe, 0xfd, 0xfc, 0xfb, 0xfa}
	for _, codec := range []Type{Snappy, Zstd} {
		_, err := Decompress(codec, garbage)
		require.Error(t, err, "codec %s", codec)
	}
}

func TestUnknownCodec(t *testing.T) {
	_, err := Compress(Type(200), []byte("x"))
	require.ErrorIs(t, err, ErrUnknownCodec)

	_, err = Decompress(Type(200), []byte("x"))
	require.ErrorIs(t, err, ErrUnknownCodec)

	require.False(t, Type(200).Valid())
	require.True(t, LZ4.Valid())
}
