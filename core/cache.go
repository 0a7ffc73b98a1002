package core

import (
	"sync"
	"time"
)

// CacheMetrics 缓存指标
type CacheMetrics struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is an in-memory cache whose entries expire after a fixed TTL.
// When it holds maxEntries, the entry closest to expiry is evicted.
type TTLCache[V any] struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]cacheEntry[V]
	metrics    CacheMetrics
	now        func() time.Time
}

func NewTTLCache[V any](ttl time.Duration, maxEntries int) *TTLCache[V] {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &TTLCache[V]{ttl: ttl, maxEntries: maxEntries, entries: map[string]cacheEntry[V]{}, now: time.Now}
}

// Get returns the cached value for key if present and not expired.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if ok && c.now().Before(e.expiresAt) {
		c.metrics.Hits++
		return e.value, true
	}
	if ok {
		delete(c.entries, key)
		c.metrics.Evictions++
	}
	c.metrics.Misses++
	var zero V
	return zero, false
}

// Set stores value under key. A non-positive TTL disables caching.
func (c *TTLCache[V]) Set(key string, value V) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[key] = cacheEntry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Metrics returns a snapshot of the cache counters.
func (c *TTLCache[V]) Metrics() CacheMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.metrics
	m.Entries = len(c.entries)
	return m
}

func (c *TTLCache[V]) evictOldest() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, e := range c.entries {
		if oldestKey == "" || e.expiresAt.Before(oldest) {
			oldestKey, oldest = k, e.expiresAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.metrics.Evictions++
	}
}
