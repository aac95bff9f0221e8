package blobsource

import (
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/miretskiy/blobsource/bloblog"
	"github.com/miretskiy/blobsource/compression"
)

// FileReader is an open, ready-to-read handle to one blob file. The header
// is parsed once at open; reads are positioned and stateless, so a single
// reader serves any number of concurrent callers.
type FileReader struct {
	f          *os.File
	fileNumber uint64
	fileSize   uint64
	header     bloblog.Header
}

// OpenFileReader opens the blob file with the given number and parses its
// header and footer. A missing file or malformed envelope is an I/O error.
func OpenFileReader(dir string, fileNumber uint64) (*FileReader, error) {
	name := bloblog.BlobFileName(dir, fileNumber)
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := uint64(fi.Size())
	if size < bloblog.HeaderSize+bloblog.FooterSize {
		f.Close()
		return nil, errors.Newf("blob file %s too small (%d bytes)", name, size)
	}

	var buf [bloblog.HeaderSize]byte
	if _, err := f.ReadAt(buf[:], 0); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "reading header of %s", name)
	}
	header, err := bloblog.DecodeHeader(buf[:])
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "parsing header of %s", name)
	}

	var fbuf [bloblog.FooterSize]byte
	if _, err := f.ReadAt(fbuf[:], int64(size)-bloblog.FooterSize); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "reading footer of %s", name)
	}
	if _, err := bloblog.DecodeFooter(fbuf[:]); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "parsing footer of %s", name)
	}

	return &FileReader{f: f, fileNumber: fileNumber, fileSize: size, header: header}, nil
}

// FileNumber returns the file's number.
func (r *FileReader) FileNumber() uint64 { return r.fileNumber }

// FileSize returns the file's size in bytes.
func (r *FileReader) FileSize() uint64 { return r.fileSize }

// CompressionType returns the codec applied to every value in the file.
func (r *FileReader) CompressionType() compression.Type { return r.header.Compression }

// HasTTL reports whether the file's records carry expirations.
func (r *FileReader) HasTTL() bool { return r.header.HasTTL }

// ColumnFamilyID returns the column family the file belongs to.
func (r *FileReader) ColumnFamilyID() uint32 { return r.header.ColumnFamilyID }

// Close closes the underlying file.
func (r *FileReader) Close() error {
	return r.f.Close()
}

// ReadBlob reads the value addressed by (offset, valueSize) and returns its
// logical bytes. offset addresses the value payload within the record; with
// checksum verification the whole record is read by stepping back over the
// record header and key. The compression tag must match the file's.
func (r *FileReader) ReadBlob(
	key []byte,
	offset, valueSize uint64,
	comp compression.Type,
	prefetch *PrefetchBuffer,
	verifyChecksums bool,
	stats *Stats,
) ([]byte, error) {
	if comp != r.header.Compression {
		return nil, corruptionf("compression mismatch: request %s, file %s",
			comp, r.header.Compression)
	}
	keyLen := uint64(len(key))
	if offset < bloblog.HeaderSize+bloblog.RecordHeaderSize+keyLen ||
		offset+valueSize+bloblog.FooterSize > r.fileSize {
		return nil, corruptionf("record out of bounds: offset %d size %d in file of %d bytes",
			offset, valueSize, r.fileSize)
	}

	var value []byte
	if verifyChecksums {
		recordOffset := offset - bloblog.RecordHeaderSize - keyLen
		buf := make([]byte, bloblog.RecordSize(keyLen, valueSize))
		if err := r.readAt(buf, recordOffset, prefetch, stats); err != nil {
			return nil, err
		}
		rh, err := bloblog.DecodeRecordHeader(buf)
		if err != nil {
			return nil, errors.Mark(err, ErrCorruption)
		}
		if rh.KeyLen != keyLen || rh.ValueLen != valueSize {
			return nil, corruptionf("record length mismatch: stored key/value %d/%d, expected %d/%d",
				rh.KeyLen, rh.ValueLen, keyLen, valueSize)
		}
		storedKey := buf[bloblog.RecordHeaderSize : bloblog.RecordHeaderSize+keyLen]
		value = buf[bloblog.RecordHeaderSize+keyLen:]

		start := time.Now()
		computed := bloblog.BlobCRC(storedKey, value)
		stats.ChecksumNanos.Add(time.Since(start).Nanoseconds())
		if computed != rh.BlobCRC {
			return nil, corruptionf("blob checksum mismatch at offset %d: stored %d, computed %d",
				offset, rh.BlobCRC, computed)
		}
	} else {
		value = make([]byte, valueSize)
		if err := r.readAt(value, offset, prefetch, stats); err != nil {
			return nil, err
		}
	}

	if comp == compression.None {
		return value, nil
	}
	start := time.Now()
	logical, err := compression.Decompress(comp, value)
	stats.DecompressNanos.Add(time.Since(start).Nanoseconds())
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "decompressing blob at offset %d", offset), ErrCorruption)
	}
	return logical, nil
}

func (r *FileReader) readAt(buf []byte, offset uint64, prefetch *PrefetchBuffer, stats *Stats) error {
	if prefetch != nil {
		return prefetch.read(r.f, buf, offset, stats)
	}
	n, err := r.f.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return errors.Wrapf(err, "reading %d bytes at offset %d", len(buf), offset)
	}
	if n != len(buf) {
		return errors.Newf("short read at offset %d: got %d bytes, want %d", offset, n, len(buf))
	}
	stats.StorageReads.Add(1)
	stats.StorageBytesRead.Add(uint64(n))
	return nil
}
