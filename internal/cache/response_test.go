package cache

import (
	"testing"
	"time"
)

func TestResponseCache_PutGet(t *testing.T) {
	c := NewResponseCache(time.Minute)
	key := ResponseKey("vacation policy", "hr_staff", 5)

	c.Put(key, "answer")
	v, ok := c.Get(key)
	if !ok {
		t.Fatal("Get = miss, want hit")
	}
	if v.(string) != "answer" {
		t.Errorf("Get = %v, want %q", v, "answer")
	}
}

func TestResponseCache_TTLExpiry(t *testing.T) {
	now := time.Now()
	c := NewResponseCache(30 * time.Minute)
	c.now = func() time.Time { return now }

	key := ResponseKey("q", "admin", 5)
	c.Put(key, "v")

	now = now.Add(29 * time.Minute)
	if _, ok := c.Get(key); !ok {
		t.Error("Get before TTL = miss, want hit")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get(key); ok {
		t.Error("Get after TTL = hit, want miss")
	}
}

func TestResponseCache_KeyScoping(t *testing.T) {
	c := NewResponseCache(time.Minute)
	c.Put(ResponseKey("q", "hr_staff", 5), "hr answer")

	// Same query, different role or limit: separate entries.
	if _, ok := c.Get(ResponseKey("q", "admin", 5)); ok {
		t.Error("different role shared a cache entry")
	}
	if _, ok := c.Get(ResponseKey("q", "hr_staff", 10)); ok {
		t.Error("different max_results shared a cache entry")
	}
}

func TestResponseCache_InvalidateQuery(t *testing.T) {
	c := NewResponseCache(time.Minute)
	c.Put(ResponseKey("expense policy", "finance_user", 5), "v1")
	c.Put(ResponseKey("expense policy", "finance_user", 10), "v2")
	c.Put(ResponseKey("expense policy", "admin", 5), "v3")
	c.Put(ResponseKey("other query", "finance_user", 5), "v4")

	evicted := c.InvalidateQuery("expense policy", "finance_user")
	if evicted != 2 {
		t.Errorf("evicted = %d, want 2", evicted)
	}

	// All limits for the (query, role) pair are gone.
	if _, ok := c.Get(ResponseKey("expense policy", "finance_user", 5)); ok {
		t.Error("invalidated entry still cached")
	}
	if _, ok := c.Get(ResponseKey("expense policy", "finance_user", 10)); ok {
		t.Error("invalidated entry still cached")
	}

	// Other roles and queries are untouched.
	if _, ok := c.Get(ResponseKey("expense policy", "admin", 5)); !ok {
		t.Error("other role's entry was evicted")
	}
	if _, ok := c.Get(ResponseKey("other query", "finance_user", 5)); !ok {
		t.Error("other query's entry was evicted")
	}
}
