package cache

import (
	"testing"
	"time"
)

func TestSetAndGet(t *testing.T) {
	c := NewTTLCache[string, int]()
	c.Set("a", 42, time.Minute)

	got, ok := c.Get("a")
	if !ok || got != 42 {
		t.Fatalf("expected 42, got %d (ok=%v)", got, ok)
	}
}

func TestExpiredEntryIsGone(t *testing.T) {
	c := NewTTLCache[string, int]()
	c.Set("a", 42, -time.Second)

	// Negative TTL means no expiry, so the entry stays.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("non-expiring entry should survive")
	}

	c.Set("b", 7, time.Nanosecond)
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("b"); ok {
		t.Fatal("expired entry should be evicted on read")
	}
}

func TestDelete(t *testing.T) {
	c := NewTTLCache[string, int]()
	c.Set("a", 1, time.Minute)
	c.Delete("a")

	if _, ok := c.Get("a"); ok {
		t.Fatal("deleted entry should be gone")
	}
}

func TestNilCacheIsSafe(t *testing.T) {
	var c *TTLCache[string, int]
	c.Set("a", 1, time.Minute)
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("nil cache should report misses")
	}
}
