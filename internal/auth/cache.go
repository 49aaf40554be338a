package auth

import (
	"sync"
	"time"
)

// KeyCache remembers verified key digests for a fixed TTL.
// Uses sync.Map for lock-free reads on the hot path.
type KeyCache struct {
	store sync.Map // map[string]time.Time (expiry)
	ttl   time.Duration
	now   func() time.Time
}

// NewKeyCache creates a cache with the given TTL.
func NewKeyCache(ttl time.Duration) *KeyCache {
	return &KeyCache{ttl: ttl, now: time.Now}
}

// Get reports whether digest was verified within the TTL. Expired entries are dropped.
func (c *KeyCache) Get(digest string) bool {
	val, ok := c.store.Load(digest)
	if !ok {
		return false
	}
	if c.now().Before(val.(time.Time)) {
		return true
	}
	c.store.CompareAndDelete(digest, val)
	return false
}

// Set records digest as verified.
func (c *KeyCache) Set(digest string) {
	c.store.Store(digest, c.now().Add(c.ttl))
}

// Delete removes an entry from the cache.
func (c *KeyCache) Delete(digest string) {
	c.store.Delete(digest)
}
