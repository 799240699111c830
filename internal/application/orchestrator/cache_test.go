package orchestrator

import (
	"fmt"
	"testing"
	"time"

	"github.com/buildsite/safesight/internal/domain/analysis"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func entry(id string) *analysis.SafetyAnalysis {
	return &analysis.SafetyAnalysis{ID: analysis.AnalysisID(id)}
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	cache := NewResultCache(time.Minute, 10, clock)

	cache.Put("fp", entry("a"))
	if got := cache.Get("fp"); got == nil || got.ID != "a" {
		t.Fatalf("expected fresh entry, got %v", got)
	}

	clock.advance(time.Minute + time.Second)
	if got := cache.Get("fp"); got != nil {
		t.Fatalf("expected expiry after TTL, got %v", got)
	}
	if cache.Len() != 0 {
		t.Fatalf("expired entry must be pruned on lookup, len=%d", cache.Len())
	}
}

func TestCacheEvictsLeastRecentlyInserted(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	cache := NewResultCache(time.Hour, 3, clock)

	for i := 0; i < 3; i++ {
		cache.Put(fmt.Sprintf("fp%d", i), entry(fmt.Sprintf("a%d", i)))
		clock.advance(time.Second)
	}

	// fp0 is oldest by insertion; reading it must not protect it.
	if cache.Get("fp0") == nil {
		t.Fatal("fp0 should still be present")
	}
	cache.Put("fp3", entry("a3"))

	if cache.Get("fp0") != nil {
		t.Fatal("fp0 should have been evicted as least recently inserted")
	}
	for _, fp := range []string{"fp1", "fp2", "fp3"} {
		if cache.Get(fp) == nil {
			t.Fatalf("%s should have survived eviction", fp)
		}
	}
}

func TestCachePutReinsertsExistingKey(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	cache := NewResultCache(time.Hour, 2, clock)

	cache.Put("fp0", entry("a0"))
	clock.advance(time.Second)
	cache.Put("fp1", entry("a1"))
	clock.advance(time.Second)

	// Overwriting fp0 moves it to the back of the insertion order.
	cache.Put("fp0", entry("a0v2"))
	cache.Put("fp2", entry("a2"))

	if cache.Get("fp1") != nil {
		t.Fatal("fp1 should have been evicted, not the re-inserted fp0")
	}
	if got := cache.Get("fp0"); got == nil || got.ID != "a0v2" {
		t.Fatalf("expected replaced fp0 to survive, got %v", got)
	}
}

func TestCachePurge(t *testing.T) {
	cache := NewResultCache(time.Hour, 10, &fakeClock{now: time.Now()})
	cache.Put("fp0", entry("a0"))
	cache.Put("fp1", entry("a1"))

	cache.Purge()
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache after purge, len=%d", cache.Len())
	}
	if cache.Get("fp0") != nil {
		t.Fatal("purged entry still retrievable")
	}
}
