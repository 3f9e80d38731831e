package application

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

type cacheEntry struct {
	data     json.RawMessage
	storedAt time.Time
}

// ResponseCache memoizes successful command data by dedup key. Entries are
// evicted lazily on read once they are ttl old, or explicitly by Clear.
type ResponseCache struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]cacheEntry
}

func NewResponseCache(now func() time.Time) *ResponseCache {
	if now == nil {
		now = time.Now
	}
	return &ResponseCache{now: now, entries: make(map[string]cacheEntry)}
}

func (c *ResponseCache) Get(key string, ttl time.Duration) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) >= ttl {
		delete(c.entries, key)
		return nil, false
	}
	return entry.data, true
}

func (c *ResponseCache) Put(key string, data json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{data: data, storedAt: c.now()}
}

// Clear removes entries whose key contains pattern, or every entry when
// pattern is empty, and reports how many were removed.
func (c *ResponseCache) Clear(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pattern == "" {
		n := len(c.entries)
		c.entries = make(map[string]cacheEntry)
		return n
	}

	removed := 0
	for key := range c.entries {
		if strings.Contains(key, pattern) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
