package blobsource

import (
	"github.com/cockroachdb/errors"
)

// Sentinel marks for the error taxonomy of the read path. Open/read failures
// are returned as plain wrapped I/O errors and carry neither mark.
var (
	// ErrCorruption marks checksum mismatches, length mismatches, and
	// decompression failures. Corrupt records are never cached.
	ErrCorruption = errors.New("blob corruption")

	// ErrIncomplete marks reads that were denied storage access by the
	// cache-only read tier. Distinct from an I/O error so callers can retry
	// through a tier that permits storage.
	ErrIncomplete = errors.New("blob read incomplete")
)

// IsCorruption reports whether err denotes a corrupt blob record.
func IsCorruption(err error) bool {
	return errors.Is(err, ErrCorruption)
}

// IsIncomplete reports whether err denotes a cache-only miss.
func IsIncomplete(err error) bool {
	return errors.Is(err, ErrIncomplete)
}

func corruptionf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}
