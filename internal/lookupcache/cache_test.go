package lookupcache

import (
	"fmt"
	"testing"
	"time"

	"github.com/siteray/siteray-agent/models"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func lookupWithScan(id string) models.LookupResponse {
	return models.LookupResponse{Success: true, Scan: &models.ScanSummary{ID: id}}
}

func TestTTLBoundary(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := New(DefaultTTL, DefaultMaxEntries, WithClock(clock.now))
	c.Set("example.com", lookupWithScan("s1"))

	clock.advance(DefaultTTL - time.Millisecond)
	got, ok := c.Get("example.com")
	if !ok || got.Scan.ID != "s1" {
		t.Fatalf("expected cached value just before TTL, got ok=%v", ok)
	}

	clock.advance(2 * time.Millisecond) // TTL + 1ms
	if _, ok := c.Get("example.com"); ok {
		t.Fatalf("expected expiry after TTL")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be removed, len=%d", c.Len())
	}
}

func TestEvictsFirstInsertedAtCapacity(t *testing.T) {
	c := New(time.Hour, 100)
	for i := 0; i < 100; i++ {
		c.Set(fmt.Sprintf("d%d.com", i), lookupWithScan(fmt.Sprint(i)))
	}
	c.Set("d101.com", lookupWithScan("101"))

	if _, ok := c.Get("d0.com"); ok {
		t.Fatalf("expected first-inserted entry to be evicted")
	}
	if _, ok := c.Get("d1.com"); !ok {
		t.Fatalf("second entry should survive")
	}
	if c.Len() != 100 {
		t.Fatalf("expected 100 entries, got %d", c.Len())
	}
}

func TestResetExistingKeepsInsertionOrder(t *testing.T) {
	c := New(time.Hour, 3)
	c.Set("a.com", lookupWithScan("a1"))
	c.Set("b.com", lookupWithScan("b1"))
	c.Set("c.com", lookupWithScan("c1"))

	// Re-set at capacity: no eviction, order unchanged.
	c.Set("a.com", lookupWithScan("a2"))
	if c.Len() != 3 {
		t.Fatalf("re-set must not evict, len=%d", c.Len())
	}
	got, _ := c.Get("a.com")
	if got.Scan.ID != "a2" {
		t.Fatalf("expected refreshed value, got %s", got.Scan.ID)
	}

	// a.com is still the oldest insertion and goes first.
	c.Set("d.com", lookupWithScan("d1"))
	if _, ok := c.Get("a.com"); ok {
		t.Fatalf("a.com should have been evicted as the oldest insertion")
	}
	for _, d := range []string{"b.com", "c.com", "d.com"} {
		if _, ok := c.Get(d); !ok {
			t.Fatalf("%s should be present", d)
		}
	}
}

func TestGetDoesNotPromote(t *testing.T) {
	c := New(time.Hour, 2)
	c.Set("a.com", lookupWithScan("a"))
	c.Set("b.com", lookupWithScan("b"))
	c.Get("a.com")
	c.Set("c.com", lookupWithScan("c"))
	if _, ok := c.Get("a.com"); ok {
		t.Fatalf("reads must not change eviction order")
	}
}

func TestInvalidateAndClear(t *testing.T) {
	c := New(time.Hour, 10)
	c.Set("a.com", lookupWithScan("a"))
	c.Set("b.com", lookupWithScan("b"))

	c.Invalidate("a.com")
	c.Invalidate("missing.com")
	if _, ok := c.Get("a.com"); ok {
		t.Fatalf("a.com should be invalidated")
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}

	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after Clear")
	}
}
