package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"
)

// DefaultResponseTTL bounds how long an assembled response is served.
const DefaultResponseTTL = 30 * time.Minute

type responseEntry struct {
	value     any
	expiresAt time.Time
}

// ResponseCache stores fully assembled query responses keyed by the
// (normalized query, role, result limit) triple. Entries expire after the
// configured TTL and are evicted lazily on lookup; corrections evict eagerly
// via InvalidateQuery so a fixed answer is never served stale.
type ResponseCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]responseEntry
}

// NewResponseCache creates a cache with the given TTL.
// A non-positive ttl falls back to DefaultResponseTTL.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultResponseTTL
	}
	return &ResponseCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]responseEntry),
	}
}

// ResponseKey builds the cache key for a normalized query scoped to a role
// and result limit. The query is hashed so keys stay bounded; role and limit
// stay in the clear so InvalidateQuery can match by prefix.
func ResponseKey(normalizedQuery, role string, maxResults int) string {
	return responsePrefix(normalizedQuery, role) + strconv.Itoa(maxResults)
}

func responsePrefix(normalizedQuery, role string) string {
	sum := sha256.Sum256([]byte(normalizedQuery))
	return hex.EncodeToString(sum[:]) + ":" + role + ":"
}

// Get returns the cached response for key, if present and unexpired.
func (c *ResponseCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

// Put stores a response under key with the cache TTL.
func (c *ResponseCache) Put(key string, value any) {
	c.mu.Lock()
	c.entries[key] = responseEntry{value: value, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// InvalidateQuery evicts every cached response for the (normalized query,
// role) pair across all result limits. Returns the number of evicted entries.
func (c *ResponseCache) InvalidateQuery(normalizedQuery, role string) int {
	prefix := responsePrefix(normalizedQuery, role)

	c.mu.Lock()
	defer c.mu.Unlock()

	var evicted int
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of live entries, counting expired ones not yet evicted.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
