package service

import (
	"strings"
	"sync"
	"time"
)

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// TTLCache is a small in-process TTL cache for ranked feeds and similar-post
// sets. Safe for concurrent use. Expired entries are dropped lazily on read
// and swept on write.
type TTLCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewTTLCache creates an empty cache.
func NewTTLCache() *TTLCache {
	return &TTLCache{entries: make(map[string]cacheEntry), now: time.Now}
}

// Get returns the value for key if present and not expired.
func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set stores value under key for ttl.
func (c *TTLCache) Set(key string, value any, ttl time.Duration) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry{value: value, expiresAt: now.Add(ttl)}
}

// DeletePrefix removes all entries whose key starts with prefix (best-effort
// invalidation on interest updates).
func (c *TTLCache) DeletePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}
