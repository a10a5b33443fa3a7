package cache

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected a present")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("a missing after eviction: %v %v", v, ok)
	}
	if c.Size() != 2 {
		t.Fatalf("size=%d", c.Size())
	}
}

func TestLRUExpiresByTTL(t *testing.T) {
	clk := &fakeClock{t: time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](10, time.Minute).WithClock(clk.now)
	c.Set("k", "v")
	c.Set("k2", "v2")

	clk.t = clk.t.Add(30 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatalf("entry expired early")
	}

	clk.t = clk.t.Add(time.Minute)
	if n := c.CleanExpired(); n != 2 {
		t.Fatalf("expected 2 cleaned, got %d", n)
	}
	if _, ok := c.Get("k"); ok {
		t.Fatalf("entry should be expired")
	}

	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.Size != 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestLRUDeletePrefixAndPurge(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	c.Set("moods:1", 1)
	c.Set("moods:2", 2)
	c.Set("habits:1", 3)

	if n := c.DeletePrefix("moods:"); n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	if c.Size() != 1 {
		t.Fatalf("size=%d", c.Size())
	}
	c.Purge()
	if c.Size() != 0 {
		t.Fatalf("purge left %d entries", c.Size())
	}
	c.Set("x", 1)
	if v, ok := c.Get("x"); !ok || v != 1 {
		t.Fatalf("cache unusable after purge")
	}
}

func TestManagerCleansRegisteredCaches(t *testing.T) {
	clk := &fakeClock{t: time.Now()}
	c := NewLRUCache[int](10, time.Second).WithClock(clk.now)
	c.Set("a", 1)
	c.Set("b", 2)

	m := NewManager(nil)
	m.Register(c)
	clk.t = clk.t.Add(2 * time.Second)
	if n := m.CleanAll(); n != 2 {
		t.Fatalf("expected 2 cleaned, got %d", n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, time.Millisecond) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}
