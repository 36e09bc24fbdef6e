// Package cache provides a bounded in-memory LRU cache with optional TTL,
// used to hold synthesized document types.
package cache

import (
	"sync"
	"time"
)

// entry holds a cached value with its expiration and last use time.
type entry[V any] struct {
	value     V
	expiresAt time.Time
	lastUsed  time.Time
}

// LRU is a thread-safe cache bounded by maxSize. When full, the least
// recently used entry is evicted. A zero ttl disables expiry; otherwise
// expired entries are lazily evicted on Get.
type LRU[K comparable, V any] struct {
	mu      sync.Mutex
	items   map[K]*entry[V]
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// NewLRU creates a cache holding at most maxSize entries (minimum 1).
func NewLRU[K comparable, V any](maxSize int, ttl time.Duration) *LRU[K, V] {
	if maxSize < 1 {
		maxSize = 1
	}
	if ttl < 0 {
		ttl = 0
	}
	return &LRU[K, V]{
		items:   make(map[K]*entry[V], maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the value for key and marks it as recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.items[key]
	if !ok {
		return zero, false
	}
	now := c.now()
	if c.ttl > 0 && now.After(e.expiresAt) {
		delete(c.items, key)
		return zero, false
	}
	e.lastUsed = now
	return e.value, true
}

// Set stores value under key, evicting the least recently used entry when the
// cache is full.
func (c *LRU[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, ok := c.items[key]; !ok && len(c.items) >= c.maxSize {
		c.evictLeastRecent()
	}
	c.items[key] = &entry[V]{
		value:     value,
		expiresAt: now.Add(c.ttl),
		lastUsed:  now,
	}
}

// Invalidate removes key.
func (c *LRU[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// InvalidateAll removes every entry.
func (c *LRU[K, V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*entry[V], c.maxSize)
}

// Size returns the number of entries, including expired ones not yet evicted.
func (c *LRU[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// evictLeastRecent must be called with c.mu held.
func (c *LRU[K, V]) evictLeastRecent() {
	var (
		oldestKey K
		oldest    time.Time
		found     bool
	)
	for k, e := range c.items {
		if !found || e.lastUsed.Before(oldest) {
			oldestKey, oldest, found = k, e.lastUsed, true
		}
	}
	if found {
		delete(c.items, oldestKey)
	}
}
