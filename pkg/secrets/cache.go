package secrets

import (
	"sync"
	"time"
)

type cacheItem[T any] struct {
	value      T
	expiration time.Time // zero means no expiry
}

func (i cacheItem[T]) expired(now time.Time) bool {
	return !i.expiration.IsZero() && now.After(i.expiration)
}

// Cache is a simple thread-safe TTL cache for storing values in-memory.
// It is parameterised on value type so it can hold secret maps, session
// entries, etc.
type Cache[T any] struct {
	mu   sync.RWMutex
	data map[string]cacheItem[T]
	ttl  time.Duration
}

// NewCache creates a new TTL-based in-memory cache. A non-positive
// defaultTTL keeps entries until they are busted.
func NewCache[T any](defaultTTL time.Duration) *Cache[T] {
	return &Cache[T]{
		data: make(map[string]cacheItem[T]),
		ttl:  defaultTTL,
	}
}

// Get returns a cached value if present and not expired.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	item, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		var zero T
		return zero, false
	}
	if item.expired(time.Now()) {
		c.mu.Lock()
		delete(c.data, key)
		c.mu.Unlock()
		var zero T
		return zero, false
	}
	return item.value, true
}

// Put inserts or overwrites a cache entry with the default TTL.
func (c *Cache[T]) Put(key string, value T) {
	c.PutWithTTL(key, value, c.ttl)
}

// PutWithTTL inserts or overwrites a cache entry; ttl <= 0 means no expiry.
func (c *Cache[T]) PutWithTTL(key string, value T, ttl time.Duration) {
	item := cacheItem[T]{value: value}
	if ttl > 0 {
		item.expiration = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.data[key] = item
	c.mu.Unlock()
}

// Bust deletes a single entry from the cache (e.g., on secret rotation).
func (c *Cache[T]) Bust(key string) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// Len returns the number of entries, expired ones included until cleaned.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// StartCleaner periodically removes expired cache entries.
func (c *Cache[T]) StartCleaner(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.cleanupExpired()
		case <-stop:
			return
		}
	}
}

func (c *Cache[T]) cleanupExpired() {
	now := time.Now()
	c.mu.Lock()
	for k, v := range c.data {
		if v.expired(now) {
			delete(c.data, k)
		}
	}
	c.mu.Unlock()
}
