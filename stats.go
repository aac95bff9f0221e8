package blobsource

import "sync/atomic"

// Stats is the telemetry sink for the read path. Cache hit/miss/add events
// count cache outcomes; the storage counters report physical I/O only, so a
// cache hit contributes nothing to them even though the caller is still
// charged the record's logical on-disk size.
type Stats struct {
	CacheHits         atomic.Uint64
	CacheMisses       atomic.Uint64
	CacheAdds         atomic.Uint64
	CacheBytesRead    atomic.Uint64
	CacheBytesWritten atomic.Uint64

	StorageReads     atomic.Uint64
	StorageBytesRead atomic.Uint64

	ChecksumNanos   atomic.Int64
	DecompressNanos atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	CacheHits         uint64
	CacheMisses       uint64
	CacheAdds         uint64
	CacheBytesRead    uint64
	CacheBytesWritten uint64

	StorageReads     uint64
	StorageBytesRead uint64

	ChecksumNanos   int64
	DecompressNanos int64
}

// Snapshot returns a consistent-enough copy for tests and reporting.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		CacheHits:         s.CacheHits.Load(),
		CacheMisses:       s.CacheMisses.Load(),
		CacheAdds:         s.CacheAdds.Load(),
		CacheBytesRead:    s.CacheBytesRead.Load(),
		CacheBytesWritten: s.CacheBytesWritten.Load(),
		StorageReads:      s.StorageReads.Load(),
		StorageBytesRead:  s.StorageBytesRead.Load(),
		ChecksumNanos:     s.ChecksumNanos.Load(),
		DecompressNanos:   s.DecompressNanos.Load(),
	}
}
