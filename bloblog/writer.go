package bloblog

import (
	"fmt"
	"os"

	"github.com/miretskiy/blobsource/compression"
)

// Writer appends records to a new blob file. It is not safe for concurrent
// use; each write generation owns its writer.
type Writer struct {
	f           *os.File
	header      Header
	offset      uint64
	recordCount uint64
	fsync       bool
	closed      bool
}

// Create creates the blob file for fileNumber in dir and writes its header.
func Create(dir string, fileNumber uint64, h Header, fsync bool) (*Writer, error) {
	f, err := os.OpenFile(BlobFileName(dir, fileNumber), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	w := &Writer{f: f, header: h, fsync: fsync}
	buf := AppendHeader(nil, h)
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return nil, err
	}
	w.offset = HeaderSize
	return w, nil
}

// AddRecord compresses value with the file's codec and appends one record.
// It returns the offset of the value payload within the file and the payload's
// on-disk size; together with the key length these address the record on the
// read path.
func (w *Writer) AddRecord(key, value []byte, expiration uint64) (valueOffset, valueSize uint64, err error) {
	if w.closed {
		return 0, 0, fmt.Errorf("writer is closed")
	}
	onDisk, err := compression.Compress(w.header.Compression, value)
	if err != nil {
		return 0, 0, err
	}

	rh := RecordHeader{
		KeyLen:     uint64(len(key)),
		ValueLen:   uint64(len(onDisk)),
		Expiration: expiration,
		BlobCRC:    BlobCRC(key, onDisk),
	}
	buf := AppendRecordHeader(nil, rh)
	buf = append(buf, key...)
	buf = append(buf, onDisk...)
	if _, err := w.f.Write(buf); err != nil {
		return 0, 0, err
	}

	valueOffset = w.offset + RecordHeaderSize + uint64(len(key))
	valueSize = uint64(len(onDisk))
	w.offset += uint64(len(buf))
	w.recordCount++
	return valueOffset, valueSize, nil
}

// Close writes the footer and seals the file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	buf := AppendFooter(nil, Footer{
		RecordCount:     w.recordCount,
		ExpirationRange: w.header.ExpirationRange,
	})
	if _, err := w.f.Write(buf); err != nil {
		w.f.Close()
		return err
	}
	if w.fsync {
		if err := w.f.Sync(); err != nil {
			w.f.Close()
			return err
		}
	}
	return w.f.Close()
}
