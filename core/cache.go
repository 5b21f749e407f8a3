package core

import (
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
)

// TTLCache is a bounded, expiring key/value cache owned by the service that
// creates it. It is best-effort: a Set may be dropped under contention and
// callers must always be able to fall back to the source of truth.
type TTLCache struct {
	cache *ristretto.Cache
	ttl   time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// CacheStats reports hit/miss counters.
type CacheStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// NewTTLCache creates a cache holding at most maxItems entries, each
// expiring ttl after it was written.
func NewTTLCache(maxItems int, ttl time.Duration) (*TTLCache, error) {
	if maxItems <= 0 {
		maxItems = 1000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(maxItems) * 10,
		MaxCost:     int64(maxItems),
		BufferItems: 64,
	})
	if err != nil {
		return nil, NewFrameworkError("core.NewTTLCache", "cache", err)
	}

	return &TTLCache{cache: c, ttl: ttl}, nil
}

// Get returns the cached value for key.
func (c *TTLCache) Get(key string) (interface{}, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.cache.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set stores value with the cache's default TTL and unit cost.
func (c *TTLCache) Set(key string, value interface{}) bool {
	if c == nil {
		return false
	}
	ok := c.cache.SetWithTTL(key, value, 1, c.ttl)
	// Make the write visible to the next Get.
	c.cache.Wait()
	return ok
}

// Delete removes key from the cache.
func (c *TTLCache) Delete(key string) {
	if c == nil {
		return
	}
	c.cache.Del(key)
}

// Clear drops every entry.
func (c *TTLCache) Clear() {
	if c == nil {
		return
	}
	c.cache.Clear()
}

// Stats returns hit/miss counters.
func (c *TTLCache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	hits, misses := c.hits.Load(), c.misses.Load()
	stats := CacheStats{Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	return stats
}

// Close releases the cache's background goroutines.
func (c *TTLCache) Close() {
	if c == nil {
		return
	}
	c.cache.Close()
}
