// Package metrics tracks engine counters exposed on the metrics surface.
package metrics

import (
	"sync/atomic"
	"time"
)

// Collector accumulates counters safe for concurrent use.
type Collector struct {
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
	queries     atomic.Int64
	queryNanos  atomic.Int64
	upstream    atomic.Bool
}

// NewCollector returns a Collector with upstream assumed connected until a
// call fails.
func NewCollector() *Collector {
	c := &Collector{}
	c.upstream.Store(true)
	return c
}

func (c *Collector) CacheHit()  { c.cacheHits.Add(1) }
func (c *Collector) CacheMiss() { c.cacheMisses.Add(1) }

// ObserveQuery records a completed query and its wall time.
func (c *Collector) ObserveQuery(d time.Duration) {
	c.queries.Add(1)
	c.queryNanos.Add(int64(d))
}

// SetUpstreamConnected records the last observed reachability of the
// embedding/generation upstream.
func (c *Collector) SetUpstreamConnected(ok bool) {
	c.upstream.Store(ok)
}

// Snapshot is a point-in-time view of all counters.
type Snapshot struct {
	CacheHits         int64   `json:"cache_hits"`
	CacheMisses       int64   `json:"cache_misses"`
	CacheHitRate      float64 `json:"cache_hit_rate"`
	AvgQueryTimeMs    float64 `json:"avg_query_time_ms"`
	TotalQueries      int64   `json:"total_queries"`
	UpstreamConnected bool    `json:"upstream_connected"`
}

// Snapshot returns the current counter values.
func (c *Collector) Snapshot() Snapshot {
	hits := c.cacheHits.Load()
	misses := c.cacheMisses.Load()
	queries := c.queries.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	var avgMs float64
	if queries > 0 {
		avgMs = float64(c.queryNanos.Load()) / float64(queries) / float64(time.Millisecond)
	}

	return Snapshot{
		CacheHits:         hits,
		CacheMisses:       misses,
		CacheHitRate:      hitRate,
		AvgQueryTimeMs:    avgMs,
		TotalQueries:      queries,
		UpstreamConnected: c.upstream.Load(),
	}
}
