package blobsource

import (
	"math"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// valueCacheEntryOverhead approximates the per-entry bookkeeping charged
// against the cache capacity in addition to the value bytes.
const valueCacheEntryOverhead = 64

// ValueCache maps cache keys to decoded blob values. It is sharded so that
// lookups for unrelated keys never contend, and bounded by a byte capacity;
// inserts that cannot fit are rejected rather than failing the read that
// produced them. A ValueCache may be shared by several BlobSource instances.
//
// Cached values are owned by the cache and must not be modified by callers.
type ValueCache struct {
	shards []*valueCacheShard
}

type valueCacheShard struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[CacheKey, []byte]
	capacity int64
	used     int64
}

// NewValueCache creates a cache with the given byte capacity spread over
// numShards shards.
func NewValueCache(capacity int64, numShards int) *ValueCache {
	if numShards <= 0 {
		numShards = 1
	}
	shardCapacity := (capacity + int64(numShards) - 1) / int64(numShards)
	c := &ValueCache{shards: make([]*valueCacheShard, numShards)}
	for i := range c.shards {
		s := &valueCacheShard{capacity: shardCapacity}
		// Byte-based eviction is driven below; the LRU itself only supplies
		// recency ordering, so its entry capacity is effectively unbounded.
		lru, err := simplelru.NewLRU[CacheKey, []byte](math.MaxInt32, func(_ CacheKey, v []byte) {
			s.used -= int64(len(v)) + valueCacheEntryOverhead
		})
		if err != nil {
			panic(err)
		}
		s.lru = lru
		c.shards[i] = s
	}
	return c
}

func (c *ValueCache) shard(key CacheKey) *valueCacheShard {
	return c.shards[key.Shard(len(c.shards))]
}

// Get returns the cached value for key. Every call is a genuine, counted
// lookup: it promotes the entry's recency, and callers record the hit or
// miss against their telemetry. There is no side-effect-free peek.
func (c *ValueCache) Get(key CacheKey) ([]byte, bool) {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Get(key)
}

// Add inserts a value under key, evicting older entries to make room.
// It returns false when the value alone exceeds the shard capacity and was
// not inserted.
func (c *ValueCache) Add(key CacheKey, value []byte) bool {
	charge := int64(len(value)) + valueCacheEntryOverhead
	s := c.shard(key)
	if charge > s.capacity {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.lru.Peek(key); ok {
		s.used -= int64(len(prev)) + valueCacheEntryOverhead
	}
	s.lru.Add(key, value)
	s.used += charge
	for s.used > s.capacity {
		if _, _, ok := s.lru.RemoveOldest(); !ok {
			break
		}
	}
	return true
}

// Remove drops the entry for key if present.
func (c *ValueCache) Remove(key CacheKey) {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Remove(key)
}

// Len returns the number of cached entries.
func (c *ValueCache) Len() int {
	var n int
	for _, s := range c.shards {
		s.mu.Lock()
		n += s.lru.Len()
		s.mu.Unlock()
	}
	return n
}

// Bytes returns the charged size of all cached entries.
func (c *ValueCache) Bytes() int64 {
	var n int64
	for _, s := range c.shards {
		s.mu.Lock()
		n += s.used
		s.mu.Unlock()
	}
	return n
}
