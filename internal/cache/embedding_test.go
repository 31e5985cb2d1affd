package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestEmbeddingCache_GetOrCompute(t *testing.T) {
	var calls atomic.Int64
	c := NewEmbeddingCache(func(ctx context.Context, text string) ([]float32, error) {
		calls.Add(1)
		return []float32{1, 2, 3}, nil
	}, time.Hour, nil)

	vec, err := c.GetOrCompute(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("GetOrCompute failed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("vec length = %d, want 3", len(vec))
	}

	// Second call must be served from cache.
	if _, err := c.GetOrCompute(context.Background(), "hello world"); err != nil {
		t.Fatalf("second GetOrCompute failed: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
}

func TestEmbeddingCache_ConcurrentSingleFlight(t *testing.T) {
	var calls atomic.Int64
	release := make(chan struct{})
	c := NewEmbeddingCache(func(ctx context.Context, text string) ([]float32, error) {
		calls.Add(1)
		<-release
		return []float32{0.5}, nil
	}, time.Hour, nil)

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.GetOrCompute(context.Background(), "same query")
		}()
	}

	// Let all goroutines pile onto the flight, then release it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d failed: %v", i, err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1 for %d concurrent callers", got, n)
	}
}

func TestEmbeddingCache_TTLExpiry(t *testing.T) {
	now := time.Now()
	c := NewEmbeddingCache(nil, time.Hour, nil)
	c.now = func() time.Time { return now }

	c.Put("query", []float32{1}, 0)
	if _, ok := c.Get("query"); !ok {
		t.Fatal("Get right after Put = miss, want hit")
	}

	now = now.Add(time.Hour + time.Second)
	if _, ok := c.Get("query"); ok {
		t.Error("Get after TTL = hit, want miss")
	}
	if c.Len() != 0 {
		t.Errorf("Len after lazy eviction = %d, want 0", c.Len())
	}
}

func TestEmbeddingCache_ErrorNotCached(t *testing.T) {
	var calls atomic.Int64
	c := NewEmbeddingCache(func(ctx context.Context, text string) ([]float32, error) {
		calls.Add(1)
		if calls.Load() == 1 {
			return nil, errors.New("upstream down")
		}
		return []float32{1}, nil
	}, time.Hour, nil)

	if _, err := c.GetOrCompute(context.Background(), "q"); err == nil {
		t.Fatal("GetOrCompute succeeded, want upstream error")
	}
	// Failure must not be cached: the retry reaches upstream again.
	if _, err := c.GetOrCompute(context.Background(), "q"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
}

func TestEmbeddingCache_DistinctKeys(t *testing.T) {
	c := NewEmbeddingCache(nil, time.Hour, nil)
	c.Put("first", []float32{1}, 0)
	c.Put("second", []float32{2}, 0)

	a, _ := c.Get("first")
	b, _ := c.Get("second")
	if a[0] == b[0] {
		t.Error("distinct texts returned the same vector")
	}
}
