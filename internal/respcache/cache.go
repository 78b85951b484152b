// Package respcache provides time-boxed memoization of idempotent read
// responses, keyed by request identity.
package respcache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultTTL is how long an entry stays visible to readers.
const DefaultTTL = 5 * time.Minute

// DefaultMaxEntries bounds the entry count. The dataset is small and
// session-scoped, the bound is there so it cannot grow without limit.
const DefaultMaxEntries = 256

type entry struct {
	value    []byte
	storedAt time.Time
}

// Cache memoizes responses for up to a TTL. Entries past their TTL are
// treated as absent and evicted lazily when their key is next read. Callers
// must only cache responses to idempotent reads.
type Cache struct {
	mu      sync.Mutex
	entries *lru.Cache[string, entry]
	ttl     time.Duration
	now     func() time.Time
}

// New creates a cache with the given TTL and entry bound. Zero values select
// the defaults.
func New(ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	entries, err := lru.New[string, entry](maxEntries)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	return &Cache{
		entries: entries,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Key builds the canonical cache key for a request: method + URL including
// query string.
func Key(method, url string) string {
	return method + " " + url
}

// Get returns the cached value for key, or nil and false if the key is absent
// or expired.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		c.entries.Remove(key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key, unconditionally overwriting any existing entry.
func (c *Cache) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, entry{value: value, storedAt: c.now()})
}

// Clear evicts every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

// Len reports the number of entries currently stored, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
