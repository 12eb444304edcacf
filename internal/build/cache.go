package build

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/agentic-research/quire/internal/graph"
)

// DefaultCacheSize bounds the memo table. Each entry holds the outputs of
// one rule invocation.
const DefaultCacheSize = 4096

// Result is what one rule invocation produced.
type Result map[graph.Path]graph.Blob

// Cache memoizes rule invocations by Fingerprint. It lives for the process
// only and is safe for concurrent use. A nil *Cache disables memoization.
type Cache struct {
	entries *lru.Cache[Digest, Result]
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

// NewCache creates a memo table holding at most size results.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[Digest, Result](size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

// Get returns the memoized result for d.
func (c *Cache) Get(d Digest) (Result, bool) {
	if c == nil {
		return nil, false
	}
	res, ok := c.entries.Get(d)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return res, ok
}

// Add memoizes res under d.
func (c *Cache) Add(d Digest, res Result) {
	if c == nil {
		return
	}
	c.entries.Add(d, res)
}

// Purge drops every entry and resets the counters.
func (c *Cache) Purge() {
	if c == nil {
		return
	}
	c.entries.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
}

// Stats returns the current counters.
func (c *Cache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.entries.Len(),
	}
}
