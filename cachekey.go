package blobsource

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// CacheKey identifies one decoded blob value in the value cache. Two keys
// are equal iff they denote the same physical record written by the same
// database session: the session hash disambiguates file numbers reused
// across databases or restarts sharing one cache, and the file size
// disambiguates regenerated files reusing a number within a session.
type CacheKey struct {
	sessionHash uint64
	fileNumber  uint64
	fileSize    uint64
	offset      uint64
}

// sessionHash folds the database and session identities into a single value
// carried in every cache key. Computed once per BlobSource.
func sessionHash(dbID, sessionID string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(dbID)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(sessionID)
	return d.Sum64()
}

func makeCacheKey(session, fileNumber, fileSize, offset uint64) CacheKey {
	return CacheKey{
		sessionHash: session,
		fileNumber:  fileNumber,
		fileSize:    fileSize,
		offset:      offset,
	}
}

// Shard maps the key to a shard index in [0, n).
func (k CacheKey) Shard(n int) int {
	var buf [32]byte
	binary.LittleEndian.PutUint64(buf[0:8], k.sessionHash)
	binary.LittleEndian.PutUint64(buf[8:16], k.fileNumber)
	binary.LittleEndian.PutUint64(buf[16:24], k.fileSize)
	binary.LittleEndian.PutUint64(buf[24:32], k.offset)
	return int(xxhash.Sum64(buf[:]) % uint64(n))
}
