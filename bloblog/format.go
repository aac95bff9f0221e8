// Package bloblog defines the on-disk format of blob files: a fixed header,
// a sequence of records (record header + key + value), and a fixed footer.
// Values may be compressed; the codec is recorded once in the header.
package bloblog

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"path/filepath"

	"github.com/miretskiy/blobsource/compression"
)

const (
	// Magic appears at the start of the header and the footer.
	Magic   = 0xB10BC0DE
	Version = 1

	HeaderSize       = 30 // Magic(4) + Version(4) + CFID(4) + Codec(1) + Flags(1) + Expiration(16)
	RecordHeaderSize = 32 // KeyLen(8) + ValueLen(8) + Expiration(8) + BlobCRC(4) + HeaderCRC(4)
	FooterSize       = 32 // Magic(4) + RecordCount(8) + Expiration(16) + CRC(4)
)

const flagHasTTL = 1 << 0

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// BlobFileName returns the path of the blob file with the given number.
func BlobFileName(dir string, fileNumber uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%06d.blob", fileNumber))
}

// ExpirationRange bounds the expiration times of all records in one file.
// Zero for files without TTL.
type ExpirationRange struct {
	Since uint64
	Until uint64
}

// Header is written once at the start of every blob file.
type Header struct {
	ColumnFamilyID  uint32
	Compression     compression.Type
	HasTTL          bool
	ExpirationRange ExpirationRange
}

// AppendHeader appends the encoded header to buf.
func AppendHeader(buf []byte, h Header) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, Magic)
	buf = binary.LittleEndian.AppendUint32(buf, Version)
	buf = binary.LittleEndian.AppendUint32(buf, h.ColumnFamilyID)
	buf = append(buf, byte(h.Compression))
	var flags byte
	if h.HasTTL {
		flags |= flagHasTTL
	}
	buf = append(buf, flags)
	buf = binary.LittleEndian.AppendUint64(buf, h.ExpirationRange.Since)
	buf = binary.LittleEndian.AppendUint64(buf, h.ExpirationRange.Until)
	return buf
}

// DecodeHeader decodes and validates a file header.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("buffer too small for header (need %d bytes, got %d)",
			HeaderSize, len(buf))
	}
	if magic := binary.LittleEndian.Uint32(buf[0:4]); magic != Magic {
		return Header{}, fmt.Errorf("bad header magic %#x", magic)
	}
	if version := binary.LittleEndian.Uint32(buf[4:8]); version != Version {
		return Header{}, fmt.Errorf("unsupported format version %d", version)
	}
	h := Header{
		ColumnFamilyID: binary.LittleEndian.Uint32(buf[8:12]),
		Compression:    compression.Type(buf[12]),
		HasTTL:         buf[13]&flagHasTTL != 0,
		ExpirationRange: ExpirationRange{
			Since: binary.LittleEndian.Uint64(buf[14:22]),
			Until: binary.LittleEndian.Uint64(buf[22:30]),
		},
	}
	if !h.Compression.Valid() {
		return Header{}, fmt.Errorf("bad compression tag %d", buf[12])
	}
	return h, nil
}

// RecordHeader precedes every record's key and value bytes. BlobCRC covers
// the key and the on-disk (possibly compressed) value; a trailing CRC covers
// the header fields themselves.
type RecordHeader struct {
	KeyLen     uint64
	ValueLen   uint64
	Expiration uint64
	BlobCRC    uint32
}

// AppendRecordHeader appends the encoded record header, including its
// self-checksum, to buf.
func AppendRecordHeader(buf []byte, rh RecordHeader) []byte {
	start := len(buf)
	buf = binary.LittleEndian.AppendUint64(buf, rh.KeyLen)
	buf = binary.LittleEndian.AppendUint64(buf, rh.ValueLen)
	buf = binary.LittleEndian.AppendUint64(buf, rh.Expiration)
	buf = binary.LittleEndian.AppendUint32(buf, rh.BlobCRC)
	headerCRC := crc32.Checksum(buf[start:start+28], castagnoli)
	return binary.LittleEndian.AppendUint32(buf, headerCRC)
}

// DecodeRecordHeader decodes a record header, verifying its self-checksum.
func DecodeRecordHeader(buf []byte) (RecordHeader, error) {
	if len(buf) < RecordHeaderSize {
		return RecordHeader{}, fmt.Errorf("buffer too small for record header (need %d bytes, got %d)",
			RecordHeaderSize, len(buf))
	}
	stored := binary.LittleEndian.Uint32(buf[28:32])
	if computed := crc32.Checksum(buf[0:28], castagnoli); computed != stored {
		return RecordHeader{}, fmt.Errorf("record header checksum mismatch: stored %d, computed %d",
			stored, computed)
	}
	return RecordHeader{
		KeyLen:     binary.LittleEndian.Uint64(buf[0:8]),
		ValueLen:   binary.LittleEndian.Uint64(buf[8:16]),
		Expiration: binary.LittleEndian.Uint64(buf[16:24]),
		BlobCRC:    binary.LittleEndian.Uint32(buf[24:28]),
	}, nil
}

// BlobCRC computes the checksum stored in a record header, covering the key
// and the on-disk value bytes.
func BlobCRC(key, value []byte) uint32 {
	crc := crc32.Update(0, castagnoli, key)
	return crc32.Update(crc, castagnoli, value)
}

// RecordSize returns the full on-disk footprint of one record.
func RecordSize(keyLen, valueLen uint64) uint64 {
	return RecordHeaderSize + keyLen + valueLen
}

// Footer is written once at the end of every sealed blob file.
type Footer struct {
	RecordCount     uint64
	ExpirationRange ExpirationRange
}

// AppendFooter appends the encoded footer to buf.
func AppendFooter(buf []byte, f Footer) []byte {
	start := len(buf)
	buf = binary.LittleEndian.AppendUint32(buf, Magic)
	buf = binary.LittleEndian.AppendUint64(buf, f.RecordCount)
	buf = binary.LittleEndian.AppendUint64(buf, f.ExpirationRange.Since)
	buf = binary.LittleEndian.AppendUint64(buf, f.ExpirationRange.Until)
	crc := crc32.Checksum(buf[start:start+28], castagnoli)
	return binary.LittleEndian.AppendUint32(buf, crc)
}

// DecodeFooter decodes and validates a file footer.
func DecodeFooter(buf []byte) (Footer, error) {
	if len(buf) < FooterSize {
		return Footer{}, fmt.Errorf("buffer too small for footer (need %d bytes, got %d)",
			FooterSize, len(buf))
	}
	if magic := binary.LittleEndian.Uint32(buf[0:4]); magic != Magic {
		return Footer{}, fmt.Errorf("bad footer magic %#x", magic)
	}
	stored := binary.LittleEndian.Uint32(buf[28:32])
	if computed := crc32.Checksum(buf[0:28], castagnoli); computed != stored {
		return Footer{}, fmt.Errorf("footer checksum mismatch: stored %d, computed %d",
			stored, computed)
	}
	return Footer{
		RecordCount: binary.LittleEndian.Uint64(buf[4:12]),
		ExpirationRange: ExpirationRange{
			Since: binary.LittleEndian.Uint64(buf[12:20]),
			Until: binary.LittleEndian.Uint64(buf[20:28]),
		},
	}, nil
}
