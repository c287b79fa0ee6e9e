package cache

import (
	"testing"
	"time"
)

func TestLRUCacheGetSet(t *testing.T) {
	c := NewLRUCache[string](2, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Error("Get() on empty cache should miss")
	}

	c.Set("a", "1")
	c.Set("b", "2")

	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Errorf("Get(a) = %q, %v; want 1, true", v, ok)
	}

	// "a" was just used, so inserting "c" evicts "b".
	c.Set("c", "3")
	if _, ok := c.Get("b"); ok {
		t.Error("least recently used entry should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("recently used entry should survive eviction")
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUCacheOverwrite(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)

	c.Set("a", 1)
	c.Set("a", 2)

	if v, _ := c.Get("a"); v != 2 {
		t.Errorf("Get(a) = %d, want 2", v)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1", c.Size())
	}
}

func TestLRUCacheTTL(t *testing.T) {
	c := NewLRUCache[int](10, 10*time.Millisecond)

	c.Set("a", 1)
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Error("expired entry should miss")
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d after expired Get, want 0", c.Size())
	}
}

func TestLRUCacheCleanExpired(t *testing.T) {
	c := NewLRUCache[int](10, 10*time.Millisecond)

	c.Set("a", 1)
	c.Set("b", 2)
	time.Sleep(20 * time.Millisecond)
	c.Set("c", 3)

	if cleaned := c.CleanExpired(); cleaned != 2 {
		t.Errorf("CleanExpired() = %d, want 2", cleaned)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d after cleanup, want 1", c.Size())
	}
}

func TestLRUCacheDelete(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)

	c.Set("a", 1)
	c.Delete("a")
	c.Delete("never-there")

	if _, ok := c.Get("a"); ok {
		t.Error("deleted entry should miss")
	}
}
