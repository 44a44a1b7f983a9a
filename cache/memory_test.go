package cache

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonwraymond/reqflow/clock"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func widgets(query string) Key {
	return Key{Method: "GET", Path: "/widgets", Query: query}
}

func TestMemoryCache_LookupStoreInvalidate(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	if _, ok := c.Lookup(ctx, widgets("")); ok {
		t.Error("Lookup on empty cache returned ok=true")
	}

	payload := []byte(`{"data":[1,2]}`)
	if err := c.Store(ctx, widgets(""), payload, time.Minute); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	e, ok := c.Lookup(ctx, widgets(""))
	if !ok || !bytes.Equal(e.Payload, payload) {
		t.Errorf("Lookup() = %q, %v; want %q, true", e.Payload, ok, payload)
	}

	if err := c.Invalidate(ctx, widgets("")); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, ok := c.Lookup(ctx, widgets("")); ok {
		t.Error("Lookup after Invalidate returned ok=true")
	}
	if err := c.Invalidate(ctx, widgets("")); err != nil {
		t.Errorf("Invalidate on missing key error = %v", err)
	}
}

// TestMemoryCache_TTLExpiry covers the /widgets scenario: a 60s entry is
// served at 30s and gone at 61s.
func TestMemoryCache_TTLExpiry(t *testing.T) {
	clk := clock.NewManual(epoch)
	c := NewMemoryCache(WithClock(clk))
	ctx := context.Background()

	_ = c.Store(ctx, widgets(""), []byte("v1"), 60*time.Second)

	clk.Advance(30 * time.Second)
	if _, ok := c.Lookup(ctx, widgets("")); !ok {
		t.Error("entry missing at 30s")
	}

	clk.Advance(31 * time.Second)
	if _, ok := c.Lookup(ctx, widgets("")); ok {
		t.Error("entry served at 61s")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want expired entry removed", c.Len())
	}
}

func TestMemoryCache_StoreNonPositiveTTL(t *testing.T) {
	c := NewMemoryCache()
	_ = c.Store(context.Background(), widgets(""), []byte("v"), 0)
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestMemoryCache_StoreCopiesPayload(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	buf := []byte("original")
	_ = c.Store(ctx, widgets(""), buf, time.Minute)
	copy(buf, "mutated!")

	e, _ := c.Lookup(ctx, widgets(""))
	if string(e.Payload) != "original" {
		t.Errorf("Payload = %q, want original", e.Payload)
	}
}

func TestMemoryCache_InvalidatePathVariants(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_ = c.Store(ctx, widgets(""), []byte("all"), time.Minute)
	_ = c.Store(ctx, widgets("page=2"), []byte("p2"), time.Minute)
	_ = c.Store(ctx, Key{Method: "GET", Path: "/users"}, []byte("u"), time.Minute)

	_ = c.Invalidate(ctx, Key{Path: "/widgets"})

	if _, ok := c.Lookup(ctx, widgets("page=2")); ok {
		t.Error("query variant survived path invalidation")
	}
	if _, ok := c.Lookup(ctx, Key{Method: "GET", Path: "/users"}); !ok {
		t.Error("unrelated path invalidated")
	}
}

func TestMemoryCache_InvalidateAll(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	_ = c.Store(ctx, widgets(""), []byte("a"), time.Minute)
	_ = c.Store(ctx, Key{Method: "GET", Path: "/users"}, []byte("b"), time.Minute)

	_ = c.InvalidateAll(ctx)
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestMemoryCache_Sweep(t *testing.T) {
	clk := clock.NewManual(epoch)
	c := NewMemoryCache(WithClock(clk), WithSweepInterval(0))
	ctx := context.Background()

	_ = c.Store(ctx, widgets("a=1"), []byte("short"), time.Second)
	_ = c.Store(ctx, widgets("a=2"), []byte("long"), time.Hour)

	clk.Advance(2 * time.Second)
	if n := c.Sweep(ctx); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestMemoryCache_OpportunisticSweep(t *testing.T) {
	clk := clock.NewManual(epoch)
	c := NewMemoryCache(WithClock(clk), WithSweepInterval(time.Minute))
	ctx := context.Background()

	_ = c.Store(ctx, widgets("a=1"), []byte("x"), time.Second)
	_ = c.Store(ctx, widgets("a=2"), []byte("y"), time.Second)

	clk.Advance(2 * time.Minute)
	c.Lookup(ctx, Key{Method: "GET", Path: "/other"})

	if c.Len() != 0 {
		t.Errorf("Len() = %d, want expired entries swept", c.Len())
	}
}

func TestMemoryCache_Stats(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	_ = c.Store(ctx, widgets(""), []byte("a"), time.Minute)

	c.Lookup(ctx, widgets(""))
	c.Lookup(ctx, widgets("missing=1"))

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Entries != 1 {
		t.Errorf("Stats() = %+v, want 1 hit, 1 miss, 1 entry", s)
	}
}

func TestMemoryCache_Concurrent(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k := widgets("i=" + string(rune('a'+i%26)))
			_ = c.Store(ctx, k, []byte("v"), time.Minute)
			c.Lookup(ctx, k)
			if i%10 == 0 {
				_ = c.Invalidate(ctx, Key{Path: "/widgets"})
			}
		}(i)
	}
	wg.Wait()
}
