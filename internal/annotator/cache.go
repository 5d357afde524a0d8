package annotator

import (
	"sync"
	"time"
)

// DefaultCacheTTL is how long a cached annotation result stays valid.
const DefaultCacheTTL = 10 * time.Minute

type cacheEntry struct {
	result   Result
	storedAt time.Time
}

// Cache maps transcript prefixes to annotation results with a TTL. Expired
// entries are swept lazily on every access instead of by a background
// reaper.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

func NewCache(ttl time.Duration) *Cache {
	return NewCacheWithClock(ttl, time.Now)
}

func NewCacheWithClock(ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]cacheEntry),
	}
}

// CacheKey derives the cache key for a transcript: its first 500 runes.
func CacheKey(text string) string {
	runes := []rune(text)
	if len(runes) <= CacheKeyRunes {
		return text
	}
	return string(runes[:CacheKeyRunes])
}

func (c *Cache) Get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep()
	entry, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	return entry.result, true
}

func (c *Cache) Put(key string, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep()
	c.entries[key] = cacheEntry{result: result, storedAt: c.now()}
}

// sweep removes everything older than the TTL. Callers hold c.mu.
func (c *Cache) sweep() {
	cutoff := c.now().Add(-c.ttl)
	for key, entry := range c.entries {
		if entry.storedAt.Before(cutoff) {
			delete(c.entries, key)
		}
	}
}

// Len reports the number of live entries after a sweep.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep()
	return len(c.entries)
}
