// Package blobsource implements the read path for values stored out-of-line
// in append-only blob files. A BlobSource composes a decoded-value cache, a
// cache of open file readers, and the positioned-read decoder so that a
// lookup returns identical results whether it was served from memory or
// storage, while the two tiers are accounted separately.
package blobsource

import (
	"github.com/cockroachdb/errors"

	"github.com/miretskiy/blobsource/bloblog"
	"github.com/miretskiy/blobsource/compression"
)

// BlobSource serves blob lookups given already-resolved coordinates (file
// number, value offset, on-disk size). It is safe for concurrent use.
type BlobSource struct {
	cfg        config
	session    uint64
	values     *ValueCache
	ownsValues bool
	readers    *ReaderCache
	stats      Stats
}

// New creates a BlobSource reading blob files from dir.
func New(dir string, opts ...Option) *BlobSource {
	cfg := defaultConfig(dir)
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	s := &BlobSource{
		cfg:     cfg,
		session: sessionHash(cfg.DBID, cfg.SessionID),
		readers: NewReaderCache(cfg.Dir, cfg.ReaderCacheCapacity, cfg.ReaderCacheShards),
	}
	if cfg.SharedValueCache != nil {
		s.values = cfg.SharedValueCache
	} else {
		s.values = NewValueCache(cfg.ValueCacheBytes, cfg.ValueCacheShards)
		s.ownsValues = true
	}
	return s
}

// Stats returns the source's telemetry counters.
func (s *BlobSource) Stats() *Stats {
	return &s.stats
}

// Close releases all open file readers. A shared value cache is left to its
// owner.
func (s *BlobSource) Close() error {
	return s.readers.Close()
}

// GetBlob returns the decoded value at (fileNumber, offset) and the record's
// logical on-disk size, header and key included. The record size is reported
// identically for cache hits and storage fetches; only actual fetches move
// the storage I/O counters. key is used for checksum verification and
// diagnostics, not for addressing.
//
// The returned bytes may be shared with the cache and must not be modified.
func (s *BlobSource) GetBlob(
	opts ReadOptions,
	key []byte,
	fileNumber, offset, fileSize, valueSize uint64,
	comp compression.Type,
	prefetch *PrefetchBuffer,
) (value []byte, recordBytes uint64, err error) {
	ck := makeCacheKey(s.session, fileNumber, fileSize, offset)
	size := bloblog.RecordSize(uint64(len(key)), valueSize)

	if v, ok := s.values.Get(ck); ok {
		s.stats.CacheHits.Add(1)
		s.stats.CacheBytesRead.Add(uint64(len(v)))
		return v, size, nil
	}
	s.stats.CacheMisses.Add(1)

	if opts.Tier == ReadTierCacheOnly {
		return nil, 0, errors.Mark(
			errors.Newf("blob not cached: file %d offset %d", fileNumber, offset), ErrIncomplete)
	}

	guard, err := s.readers.Acquire(fileNumber)
	if err != nil {
		return nil, 0, err
	}
	defer guard.Release()

	reader := guard.Reader()
	if reader.FileSize() != fileSize {
		return nil, 0, errors.Newf("blob file %d size mismatch: have %d, expected %d",
			fileNumber, reader.FileSize(), fileSize)
	}
	v, err := reader.ReadBlob(key, offset, valueSize, comp, prefetch, opts.VerifyChecksums, &s.stats)
	if err != nil {
		return nil, 0, err
	}
	if opts.FillCache {
		s.fillCache(ck, v)
	}
	return v, size, nil
}

// ReadRequest addresses one record for a batched lookup. All requests in a
// batch target the same file.
type ReadRequest struct {
	Key       []byte
	Offset    uint64
	ValueSize uint64
}

// ReadResult is the per-request outcome of a batched lookup.
type ReadResult struct {
	Value       []byte
	RecordBytes uint64
	Err         error
}

// MultiGetFromFile resolves a batch of requests against a single blob file.
// Cache hits are served directly; the remaining misses share one pinned
// reader, so the file-open and registry-lookup cost is paid once per batch
// rather than once per key. An open failure fails every pending miss in the
// batch; a per-record corruption fails only its own entry. The returned
// total accumulates the record sizes of all successfully resolved entries,
// hits and fetches alike.
func (s *BlobSource) MultiGetFromFile(
	opts ReadOptions, fileNumber, fileSize uint64, reqs []ReadRequest,
) (results []ReadResult, totalBytes uint64) {
	results = make([]ReadResult, len(reqs))
	var misses []int

	for i := range reqs {
		rq := &reqs[i]
		ck := makeCacheKey(s.session, fileNumber, fileSize, rq.Offset)
		if v, ok := s.values.Get(ck); ok {
			s.stats.CacheHits.Add(1)
			s.stats.CacheBytesRead.Add(uint64(len(v)))
			size := bloblog.RecordSize(uint64(len(rq.Key)), rq.ValueSize)
			results[i] = ReadResult{Value: v, RecordBytes: size}
			totalBytes += size
			continue
		}
		s.stats.CacheMisses.Add(1)
		if opts.Tier == ReadTierCacheOnly {
			results[i].Err = errors.Mark(
				errors.Newf("blob not cached: file %d offset %d", fileNumber, rq.Offset), ErrIncomplete)
			continue
		}
		misses = append(misses, i)
	}
	if len(misses) == 0 {
		return results, totalBytes
	}

	guard, err := s.readers.Acquire(fileNumber)
	if err != nil {
		// The whole batch targets one unavailable file.
		for _, i := range misses {
			results[i].Err = err
		}
		return results, totalBytes
	}
	defer guard.Release()

	reader := guard.Reader()
	if reader.FileSize() != fileSize {
		err := errors.Newf("blob file %d size mismatch: have %d, expected %d",
			fileNumber, reader.FileSize(), fileSize)
		for _, i := range misses {
			results[i].Err = err
		}
		return results, totalBytes
	}

	comp := reader.CompressionType()
	for _, i := range misses {
		rq := &reqs[i]
		v, err := reader.ReadBlob(rq.Key, rq.Offset, rq.ValueSize, comp, nil, opts.VerifyChecksums, &s.stats)
		if err != nil {
			results[i].Err = err
			continue
		}
		if opts.FillCache {
			s.fillCache(makeCacheKey(s.session, fileNumber, fileSize, rq.Offset), v)
		}
		size := bloblog.RecordSize(uint64(len(rq.Key)), rq.ValueSize)
		results[i] = ReadResult{Value: v, RecordBytes: size}
		totalBytes += size
	}
	return results, totalBytes
}

// FileBatch groups the requests of a multi-file lookup by their file.
type FileBatch struct {
	FileNumber uint64
	FileSize   uint64
	Reqs       []ReadRequest
}

// MultiGet resolves batches spanning several blob files. Each batch runs the
// single-file path, so a missing file fails only its own batch's misses.
func (s *BlobSource) MultiGet(opts ReadOptions, batches []FileBatch) (results [][]ReadResult, totalBytes uint64) {
	results = make([][]ReadResult, len(batches))
	for i := range batches {
		b := &batches[i]
		r, n := s.MultiGetFromFile(opts, b.FileNumber, b.FileSize, b.Reqs)
		results[i] = r
		totalBytes += n
	}
	return results, totalBytes
}

// ProbeCache reports whether the value at (fileNumber, fileSize, offset) is
// resident in the value cache. The probe is a genuine, counted lookup: it
// promotes recency and moves the hit/miss counters exactly as GetBlob does.
func (s *BlobSource) ProbeCache(fileNumber, fileSize, offset uint64) bool {
	_, ok := s.values.Get(makeCacheKey(s.session, fileNumber, fileSize, offset))
	if ok {
		s.stats.CacheHits.Add(1)
	} else {
		s.stats.CacheMisses.Add(1)
	}
	return ok
}

// AcquireReader exposes the pinned reader for a blob file, primarily so
// callers can inspect its header (compression type, TTL flag, column
// family). The guard must be released.
func (s *BlobSource) AcquireReader(fileNumber uint64) (*ReaderGuard, error) {
	return s.readers.Acquire(fileNumber)
}

func (s *BlobSource) fillCache(ck CacheKey, v []byte) {
	// Capacity rejection is deliberately invisible: the read that produced
	// the value still succeeds.
	if s.values.Add(ck, v) {
		s.stats.CacheAdds.Add(1)
		s.stats.CacheBytesWritten.Add(uint64(len(v)))
	}
}
