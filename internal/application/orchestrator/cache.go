package orchestrator

import (
	"sync"
	"time"

	"github.com/buildsite/safesight/internal/application"
	"github.com/buildsite/safesight/internal/domain/analysis"
)

// cacheEntry pairs a cached analysis with its insertion time.
type cacheEntry struct {
	analysis   *analysis.SafetyAnalysis
	insertedAt time.Time
}

// ResultCache maps a fingerprint to a previously computed analysis. Entries
// expire after a TTL and are pruned lazily on lookup; when the cache is full
// the least recently inserted entry is evicted. Safe for concurrent use;
// concurrent Put for the same fingerprint is last-write-wins.
type ResultCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	order      []string // fingerprints in insertion order, oldest first
	ttl        time.Duration
	maxEntries int
	clock      application.Clock
}

func NewResultCache(ttl time.Duration, maxEntries int, clock application.Clock) *ResultCache {
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &ResultCache{
		entries:    make(map[string]*cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		clock:      clock,
	}
}

// Get returns the cached analysis for fingerprint, or nil. An expired entry
// is removed and treated as a miss.
func (c *ResultCache) Get(fingerprint string) *analysis.SafetyAnalysis {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fingerprint]
	if !ok {
		return nil
	}
	if c.clock.Now().Sub(e.insertedAt) > c.ttl {
		delete(c.entries, fingerprint)
		c.removeFromOrder(fingerprint)
		return nil
	}
	return e.analysis
}

// Put inserts or replaces the entry for fingerprint. A replaced entry counts
// as re-inserted for eviction ordering.
func (c *ResultCache) Put(fingerprint string, a *analysis.SafetyAnalysis) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[fingerprint]; ok {
		c.removeFromOrder(fingerprint)
	}
	c.entries[fingerprint] = &cacheEntry{analysis: a, insertedAt: c.clock.Now()}
	c.order = append(c.order, fingerprint)

	for c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// Len reports the number of entries, expired ones included.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge drops every entry. Used on external memory-pressure signals.
func (c *ResultCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.order = nil
}

func (c *ResultCache) removeFromOrder(fingerprint string) {
	for i, fp := range c.order {
		if fp == fingerprint {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
