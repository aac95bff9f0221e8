package blobsource

import (
	"io"

	"github.com/cockroachdb/errors"
)

// DefaultReadAheadSize is the prefetch window used when none is specified.
const DefaultReadAheadSize = 256 << 10

// PrefetchBuffer is an optional read-ahead buffer for sequential record
// access within one file. When supplied to GetBlob, positioned reads are
// served from the buffered window where possible; a miss refills the window
// with a single larger read. Not safe for concurrent use; a buffer belongs
// to one scan.
type PrefetchBuffer struct {
	readAhead int
	offset    uint64
	buf       []byte
}

// NewPrefetchBuffer returns a buffer with the given read-ahead window size;
// readAhead <= 0 selects DefaultReadAheadSize.
func NewPrefetchBuffer(readAhead int) *PrefetchBuffer {
	if readAhead <= 0 {
		readAhead = DefaultReadAheadSize
	}
	return &PrefetchBuffer{readAhead: readAhead}
}

func (p *PrefetchBuffer) read(f io.ReaderAt, dst []byte, offset uint64, stats *Stats) error {
	if p.contains(offset, uint64(len(dst))) {
		copy(dst, p.buf[offset-p.offset:])
		return nil
	}

	n := len(dst)
	if n < p.readAhead {
		n = p.readAhead
	}
	if cap(p.buf) < n {
		p.buf = make([]byte, n)
	}
	p.buf = p.buf[:n]
	m, err := f.ReadAt(p.buf, int64(offset))
	if err != nil && err != io.EOF {
		return errors.Wrapf(err, "prefetching %d bytes at offset %d", n, offset)
	}
	if m < len(dst) {
		return errors.Newf("short read at offset %d: got %d bytes, want %d", offset, m, len(dst))
	}
	p.buf = p.buf[:m]
	p.offset = offset
	stats.StorageReads.Add(1)
	stats.StorageBytesRead.Add(uint64(m))
	copy(dst, p.buf)
	return nil
}

func (p *PrefetchBuffer) contains(offset, length uint64) bool {
	return offset >= p.offset && offset+length <= p.offset+uint64(len(p.buf))
}
