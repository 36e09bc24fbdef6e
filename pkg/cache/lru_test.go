package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock advances only when told to.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newTestLRU(maxSize int, ttl time.Duration) (*LRU[string, int], *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRU[string, int](maxSize, ttl)
	c.now = clock.Now
	return c, clock
}

func TestLRU(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T)
	}{
		{"SetAndGet", testSetAndGet},
		{"GetMiss", testGetMiss},
		{"ZeroTTLNeverExpires", testZeroTTLNeverExpires},
		{"GetExpired", testGetExpired},
		{"EvictsLeastRecentlyUsed", testEvictsLeastRecentlyUsed},
		{"InvalidateRemovesEntry", testInvalidateRemovesEntry},
		{"InvalidateAllClearsCache", testInvalidateAllClearsCache},
		{"SetUpdatesExisting", testSetUpdatesExisting},
		{"ConcurrentAccess", testConcurrentAccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.fn)
	}
}

func testSetAndGet(t *testing.T) {
	c, _ := newTestLRU(10, 0)
	c.Set("purchase_order", 1)

	got, ok := c.Get("purchase_order")
	if !ok {
		t.Fatal("expected cache hit, got miss")
	}
	if got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
}

func testGetMiss(t *testing.T) {
	c, _ := newTestLRU(10, 0)

	got, ok := c.Get("nonexistent")
	if ok {
		t.Fatal("expected cache miss, got hit")
	}
	if got != 0 {
		t.Fatalf("expected zero value on miss, got %d", got)
	}
}

func testZeroTTLNeverExpires(t *testing.T) {
	c, clock := newTestLRU(10, 0)
	c.Set("k", 7)
	clock.Advance(365 * 24 * time.Hour)

	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected entry without ttl to survive")
	}
}

func testGetExpired(t *testing.T) {
	c, clock := newTestLRU(10, time.Minute)
	c.Set("k", 7)

	clock.Advance(30 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected cache hit before expiry")
	}

	clock.Advance(31 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected cache miss after expiry, got hit")
	}
	if c.Size() != 0 {
		t.Fatalf("expected size 0 after expired get, got %d", c.Size())
	}
}

func testEvictsLeastRecentlyUsed(t *testing.T) {
	c, clock := newTestLRU(3, 0)

	c.Set("a", 1)
	clock.Advance(time.Millisecond)
	c.Set("b", 2)
	clock.Advance(time.Millisecond)
	c.Set("c", 3)
	clock.Advance(time.Millisecond)

	// Touch "a" so "b" becomes the least recently used.
	c.Get("a")
	clock.Advance(time.Millisecond)
	c.Set("d", 4)

	if c.Size() != 3 {
		t.Fatalf("expected size 3 after eviction, got %d", c.Size())
	}
	if _, ok := c.Get("b"); ok {
		t.Fatal("expected 'b' to be evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := c.Get(key); !ok {
			t.Fatalf("expected %q to still be in cache", key)
		}
	}
}

func testInvalidateRemovesEntry(t *testing.T) {
	c, _ := newTestLRU(10, 0)
	c.Set("key1", 1)
	c.Set("key2", 2)

	c.Invalidate("key1")

	if _, ok := c.Get("key1"); ok {
		t.Fatal("expected 'key1' to be invalidated")
	}
	if _, ok := c.Get("key2"); !ok {
		t.Fatal("expected 'key2' to still be in cache")
	}
}

func testInvalidateAllClearsCache(t *testing.T) {
	c, _ := newTestLRU(10, 0)
	c.Set("key1", 1)
	c.Set("key2", 2)

	c.InvalidateAll()

	if c.Size() != 0 {
		t.Fatalf("expected size 0 after InvalidateAll, got %d", c.Size())
	}
}

func testSetUpdatesExisting(t *testing.T) {
	c, _ := newTestLRU(1, 0)
	c.Set("key1", 1)
	c.Set("key1", 2)

	got, ok := c.Get("key1")
	if !ok || got != 2 {
		t.Fatalf("expected updated value 2, got %d (hit=%v)", got, ok)
	}
	if c.Size() != 1 {
		t.Fatalf("expected size 1 after update, got %d", c.Size())
	}
}

func testConcurrentAccess(t *testing.T) {
	c := NewLRU[string, string](100, time.Minute)

	var wg sync.WaitGroup
	goroutines := 50
	ops := 100

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < ops; j++ {
				key := fmt.Sprintf("key-%d-%d", id, j)
				c.Set(key, key)
				c.Get(key)
				if j%10 == 0 {
					c.Invalidate(key)
				}
			}
		}(i)
	}

	wg.Wait()

	if c.Size() > 100 {
		t.Fatalf("expected size <= 100, got %d", c.Size())
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("DOCREGISTRY_TYPE_CACHE_MAX_SIZE", "25")
	t.Setenv("DOCREGISTRY_TYPE_CACHE_TTL", "90")

	cfg := ConfigFromEnv()
	if cfg.MaxSize != 25 {
		t.Fatalf("expected max size 25, got %d", cfg.MaxSize)
	}
	if cfg.TTL != 90*time.Second {
		t.Fatalf("expected ttl 90s, got %s", cfg.TTL)
	}

	t.Setenv("DOCREGISTRY_TYPE_CACHE_MAX_SIZE", "zero")
	if got := ConfigFromEnv().MaxSize; got != 1000 {
		t.Fatalf("expected default max size for invalid value, got %d", got)
	}
}
