package blobsource

import (
	"fmt"
	"time"
)

// ReadTier controls whether a lookup may fall back to storage on a cache
// miss.
type ReadTier uint8

const (
	// ReadTierAll permits storage reads on a cache miss.
	ReadTierAll ReadTier = iota
	// ReadTierCacheOnly serves from cache only; misses return an
	// incomplete status and perform no I/O.
	ReadTierCacheOnly
)

func (t ReadTier) String() string {
	switch t {
	case ReadTierAll:
		return "all"
	case ReadTierCacheOnly:
		return "cache-only"
	default:
		return "unknown"
	}
}

// ReadOptions carry per-request policy. They are never persisted.
type ReadOptions struct {
	Tier            ReadTier
	FillCache       bool
	VerifyChecksums bool
}

// config holds internal configuration
type config struct {
	Dir                 string
	DBID                string
	SessionID           string
	ValueCacheBytes     int64
	ValueCacheShards    int
	ReaderCacheCapacity int
	ReaderCacheShards   int
	SharedValueCache    *ValueCache
}

// Option configures BlobSource
type Option interface {
	apply(*config)
}

// funcOpt wraps a function as an Option
type funcOpt func(*config)

func (f funcOpt) apply(c *config) {
	f(c)
}

// WithValueCacheSize sets the decoded-value cache capacity in bytes.
func WithValueCacheSize(bytes int64) Option {
	return funcOpt(func(c *config) {
		c.ValueCacheBytes = bytes
	})
}

// WithValueCacheShards sets the decoded-value cache shard count.
func WithValueCacheShards(n int) Option {
	return funcOpt(func(c *config) {
		c.ValueCacheShards = n
	})
}

// WithReaderCacheCapacity sets how many open file readers are retained.
func WithReaderCacheCapacity(n int) Option {
	return funcOpt(func(c *config) {
		c.ReaderCacheCapacity = n
	})
}

// WithReaderCacheShards sets the reader cache shard count.
func WithReaderCacheShards(n int) Option {
	return funcOpt(func(c *config) {
		c.ReaderCacheShards = n
	})
}

// WithIdentity sets the database and session identity folded into every
// cache key. Distinct sessions sharing one value cache must use distinct
// identities; the default session identity is unique per BlobSource.
func WithIdentity(dbID, sessionID string) Option {
	return funcOpt(func(c *config) {
		c.DBID = dbID
		c.SessionID = sessionID
	})
}

// WithSharedValueCache makes the source use an externally owned value cache,
// typically shared by several sources in one process. The cache is not
// closed when the source is closed.
func WithSharedValueCache(vc *ValueCache) Option {
	return funcOpt(func(c *config) {
		c.SharedValueCache = vc
	})
}

// defaultConfig returns sensible defaults (dir set by caller)
func defaultConfig(dir string) config {
	return config{
		Dir:                 dir,
		DBID:                dir,
		SessionID:           fmt.Sprintf("%x", time.Now().UnixNano()),
		ValueCacheBytes:     64 << 20,
		ValueCacheShards:    16,
		ReaderCacheCapacity: 64,
		ReaderCacheShards:   8,
	}
}
