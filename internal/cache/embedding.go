// Package cache holds the TTL-bounded stores for embeddings and assembled
// responses. Both are injected service objects shared across query workers;
// all methods are safe for concurrent use.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aneven/knowd/internal/metrics"
)

// DefaultEmbeddingTTL bounds how long a computed vector is served.
const DefaultEmbeddingTTL = time.Hour

// EmbedFunc computes an embedding upstream. It is the expensive call the
// cache exists to coordinate.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

type embeddingEntry struct {
	vec       []float32
	expiresAt time.Time
}

// EmbeddingCache is a content-addressed text→vector cache. Concurrent
// requests for the same uncached key share a single upstream computation via
// singleflight; the winner's result is cached and returned to every waiter.
type EmbeddingCache struct {
	embed   EmbedFunc
	ttl     time.Duration
	metrics *metrics.Collector
	now     func() time.Time

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]embeddingEntry
}

// NewEmbeddingCache creates a cache around the upstream embed function.
// A non-positive ttl falls back to DefaultEmbeddingTTL. The collector may be
// nil when hit/miss accounting is not wanted (tests).
func NewEmbeddingCache(embed EmbedFunc, ttl time.Duration, m *metrics.Collector) *EmbeddingCache {
	if ttl <= 0 {
		ttl = DefaultEmbeddingTTL
	}
	return &EmbeddingCache{
		embed:   embed,
		ttl:     ttl,
		metrics: m,
		now:     time.Now,
		entries: make(map[string]embeddingEntry),
	}
}

// hashKey addresses an entry by the content of its normalized text.
func hashKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached vector for text, if present and unexpired.
// Expired entries are evicted lazily and reported as misses.
func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	key := hashKey(text)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock: a concurrent Put may have refreshed it.
		if cur, ok := c.entries[key]; ok && c.now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.vec, true
}

// Put stores a vector for text. A non-positive ttl uses the cache default.
func (c *EmbeddingCache) Put(text string, vec []float32, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	key := hashKey(text)
	c.mu.Lock()
	c.entries[key] = embeddingEntry{vec: vec, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// GetOrCompute returns the cached vector for text, computing it upstream on a
// miss. At most one upstream call is in flight per key: concurrent callers
// for the same uncached text block on the first computation and share its
// result. Upstream failures are not cached.
func (c *EmbeddingCache) GetOrCompute(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.Get(text); ok {
		if c.metrics != nil {
			c.metrics.CacheHit()
		}
		return vec, nil
	}
	if c.metrics != nil {
		c.metrics.CacheMiss()
	}

	key := hashKey(text)
	v, err, _ := c.group.Do(key, func() (any, error) {
		// A racing caller may have completed the flight between our Get and Do.
		if vec, ok := c.Get(text); ok {
			return vec, nil
		}
		vec, err := c.embed(ctx, text)
		if err != nil {
			return nil, err
		}
		c.Put(text, vec, 0)
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

// Len returns the number of live entries, counting expired ones not yet evicted.
func (c *EmbeddingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
