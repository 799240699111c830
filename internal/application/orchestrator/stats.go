package orchestrator

import (
	"sync"
	"time"

	"github.com/buildsite/safesight/internal/domain/analysis"
)

// StrategyStats is the per-strategy snapshot. Success rate and average
// latency are derived on read, never stored.
type StrategyStats struct {
	Successes    uint64  `json:"successes"`
	Failures     uint64  `json:"failures"`
	TotalMS      int64   `json:"total_ms"`
	SuccessRate  float64 `json:"success_rate"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}

// OrchestratorStats is a read-only snapshot of cascade accounting.
type OrchestratorStats struct {
	PerStrategy map[analysis.AnalysisType]StrategyStats `json:"per_strategy"`
	CacheHits   uint64                                  `json:"cache_hits"`
	CacheMisses uint64                                  `json:"cache_misses"`
	Preferred   analysis.AnalysisType                   `json:"preferred_strategy,omitempty"`
}

type strategyCounters struct {
	successes uint64
	failures  uint64
	totalMS   int64
}

// StatsTracker accumulates per-strategy success/failure/latency counters for
// the life of the coordinator. Cache hits are counted separately so strategy
// rates reflect real attempts only.
type StatsTracker struct {
	mu          sync.Mutex
	counters    map[analysis.AnalysisType]*strategyCounters
	cacheHits   uint64
	cacheMisses uint64
}

func NewStatsTracker() *StatsTracker {
	return &StatsTracker{counters: make(map[analysis.AnalysisType]*strategyCounters)}
}

func (t *StatsTracker) RecordSuccess(typ analysis.AnalysisType, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.counter(typ)
	c.successes++
	c.totalMS += latency.Milliseconds()
}

func (t *StatsTracker) RecordFailure(typ analysis.AnalysisType, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.counter(typ)
	c.failures++
	c.totalMS += latency.Milliseconds()
}

func (t *StatsTracker) RecordCacheHit() {
	t.mu.Lock()
	t.cacheHits++
	t.mu.Unlock()
}

func (t *StatsTracker) RecordCacheMiss() {
	t.mu.Lock()
	t.cacheMisses++
	t.mu.Unlock()
}

// Reset zeroes every counter.
func (t *StatsTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters = make(map[analysis.AnalysisType]*strategyCounters)
	t.cacheHits = 0
	t.cacheMisses = 0
}

// Snapshot derives rates and averages on read and picks the preferred
// strategy: highest success rate, ties broken by lower average latency.
func (t *StatsTracker) Snapshot() OrchestratorStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := OrchestratorStats{
		PerStrategy: make(map[analysis.AnalysisType]StrategyStats, len(t.counters)),
		CacheHits:   t.cacheHits,
		CacheMisses: t.cacheMisses,
	}

	var bestRate, bestLatency float64
	for typ, c := range t.counters {
		attempts := c.successes + c.failures
		s := StrategyStats{
			Successes: c.successes,
			Failures:  c.failures,
			TotalMS:   c.totalMS,
		}
		if attempts > 0 {
			s.SuccessRate = float64(c.successes) / float64(attempts)
			s.AvgLatencyMS = float64(c.totalMS) / float64(attempts)
		}
		out.PerStrategy[typ] = s

		if c.successes == 0 {
			continue
		}
		if out.Preferred == "" || s.SuccessRate > bestRate ||
			(s.SuccessRate == bestRate && s.AvgLatencyMS < bestLatency) {
			out.Preferred = typ
			bestRate = s.SuccessRate
			bestLatency = s.AvgLatencyMS
		}
	}
	return out
}

// SuccessRate reports the rate for one strategy and whether enough attempts
// exist for the number to mean anything.
func (t *StatsTracker) SuccessRate(typ analysis.AnalysisType, minAttempts uint64) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.counters[typ]
	if !ok {
		return 0, false
	}
	attempts := c.successes + c.failures
	if attempts < minAttempts {
		return 0, false
	}
	return float64(c.successes) / float64(attempts), true
}

func (t *StatsTracker) counter(typ analysis.AnalysisType) *strategyCounters {
	c, ok := t.counters[typ]
	if !ok {
		c = &strategyCounters{}
		t.counters[typ] = c
	}
	return c
}
