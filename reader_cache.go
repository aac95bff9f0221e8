package blobsource

import (
	"container/list"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// ReaderCache owns a bounded pool of open blob-file readers keyed by file
// number. Acquire returns a pinned guard; pinned readers are never evicted,
// and concurrent acquisitions of the same file number converge on a single
// physical open.
type ReaderCache struct {
	dir    string
	shards []*readerCacheShard
	group  singleflight.Group
	opens  atomic.Uint64
}

type readerCacheShard struct {
	mu       sync.Mutex
	capacity int
	handles  map[uint64]*readerHandle
	lru      *list.List // front is most recently used; values are *readerHandle
}

type readerHandle struct {
	reader     *FileReader
	fileNumber uint64
	pins       int
	elem       *list.Element
}

// ReaderGuard pins one open reader for the duration of a read. Release must
// be called exactly once, success or failure.
type ReaderGuard struct {
	shard  *readerCacheShard
	handle *readerHandle
}

// Reader returns the pinned reader. Valid until Release.
func (g *ReaderGuard) Reader() *FileReader {
	return g.handle.reader
}

// Release unpins the reader, making it eligible for eviction again.
func (g *ReaderGuard) Release() {
	s := g.shard
	s.mu.Lock()
	g.handle.pins--
	s.mu.Unlock()
}

// NewReaderCache creates a reader cache over blob files in dir, retaining at
// most capacity open readers spread across numShards shards.
func NewReaderCache(dir string, capacity, numShards int) *ReaderCache {
	if numShards <= 0 {
		numShards = 1
	}
	if capacity < numShards {
		capacity = numShards
	}
	c := &ReaderCache{dir: dir, shards: make([]*readerCacheShard, numShards)}
	for i := range c.shards {
		c.shards[i] = &readerCacheShard{
			capacity: capacity / numShards,
			handles:  make(map[uint64]*readerHandle),
			lru:      list.New(),
		}
	}
	return c
}

func (c *ReaderCache) shard(fileNumber uint64) *readerCacheShard {
	return c.shards[fileNumber%uint64(len(c.shards))]
}

// Acquire returns a pinned guard for the reader of fileNumber, opening and
// parsing the file on first use. Concurrent callers for the same file number
// share one open; losers wait for the winner's handle instead of opening
// again.
func (c *ReaderCache) Acquire(fileNumber uint64) (*ReaderGuard, error) {
	s := c.shard(fileNumber)
	for {
		if g := s.pin(fileNumber); g != nil {
			return g, nil
		}
		_, err, _ := c.group.Do(strconv.FormatUint(fileNumber, 10), func() (interface{}, error) {
			s.mu.Lock()
			_, ok := s.handles[fileNumber]
			s.mu.Unlock()
			if ok {
				return nil, nil
			}
			r, err := OpenFileReader(c.dir, fileNumber)
			if err != nil {
				return nil, err
			}
			c.opens.Add(1)
			s.insert(r)
			return nil, nil
		})
		if err != nil {
			return nil, err
		}
		// The handle can be evicted between the shared open and our pin when
		// the shard is under heavy pressure; loop and open again.
	}
}

// pin returns a guard if fileNumber is resident, bumping its recency.
func (s *readerCacheShard) pin(fileNumber uint64) *ReaderGuard {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[fileNumber]
	if !ok {
		return nil
	}
	h.pins++
	s.lru.MoveToFront(h.elem)
	return &ReaderGuard{shard: s, handle: h}
}

func (s *readerCacheShard) insert(r *FileReader) {
	var closers []*FileReader
	s.mu.Lock()
	h := &readerHandle{reader: r, fileNumber: r.FileNumber()}
	h.elem = s.lru.PushFront(h)
	s.handles[h.fileNumber] = h

	// Evict unpinned readers beyond capacity, oldest first. The handle just
	// inserted is exempt so that a fully pinned shard cannot evict it before
	// the caller pins it; the shard may exceed capacity while pins persist.
	for e := s.lru.Back(); e != nil && len(s.handles) > s.capacity; {
		prev := e.Prev()
		victim := e.Value.(*readerHandle)
		if victim != h && victim.pins == 0 {
			s.lru.Remove(e)
			delete(s.handles, victim.fileNumber)
			closers = append(closers, victim.reader)
		}
		e = prev
	}
	s.mu.Unlock()

	for _, r := range closers {
		if err := r.Close(); err != nil {
			log.Warn("closing evicted blob file reader", "file", r.FileNumber(), "error", err)
		}
	}
}

// Evict drops the reader for fileNumber if it is resident and unpinned,
// returning whether it was dropped.
func (c *ReaderCache) Evict(fileNumber uint64) bool {
	s := c.shard(fileNumber)
	s.mu.Lock()
	h, ok := s.handles[fileNumber]
	if !ok || h.pins > 0 {
		s.mu.Unlock()
		return false
	}
	s.lru.Remove(h.elem)
	delete(s.handles, fileNumber)
	s.mu.Unlock()
	if err := h.reader.Close(); err != nil {
		log.Warn("closing evicted blob file reader", "file", fileNumber, "error", err)
	}
	return true
}

// Len returns the number of resident readers.
func (c *ReaderCache) Len() int {
	var n int
	for _, s := range c.shards {
		s.mu.Lock()
		n += len(s.handles)
		s.mu.Unlock()
	}
	return n
}

// Close closes every resident reader. Outstanding guards must be released
// first.
func (c *ReaderCache) Close() error {
	var firstErr error
	for _, s := range c.shards {
		s.mu.Lock()
		for _, h := range s.handles {
			if h.pins > 0 {
				log.Warn("closing pinned blob file reader", "file", h.fileNumber, "pins", h.pins)
			}
			if err := h.reader.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		s.handles = make(map[uint64]*readerHandle)
		s.lru.Init()
		s.mu.Unlock()
	}
	return firstErr
}
