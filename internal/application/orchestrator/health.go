package orchestrator

import (
	"context"
	"time"
)

// StrategyHealth is the per-strategy view returned by HealthCheck.
type StrategyHealth struct {
	Type         string  `json:"type"`
	Available    bool    `json:"available"`
	ProbeMS      int64   `json:"probe_ms"`
	SuccessRate  float64 `json:"success_rate"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	Degraded     bool    `json:"degraded"`
}

// HealthCheckResult answers "is the system healthy" without performing a
// full analysis. A strategy is flagged degraded when its success rate over a
// minimum sample drops below the configured floor; disabling it stays an
// external feature-flag concern.
type HealthCheckResult struct {
	Strategies map[string]StrategyHealth `json:"strategies"`
	Healthy    bool                      `json:"healthy"`
	Timestamp  time.Time                 `json:"timestamp"`
}

const availabilityProbeTimeout = 2 * time.Second

// HealthCheck probes each strategy's availability and folds in accumulated
// stats. The system is healthy while at least one strategy is available and
// not degraded.
func (c *Coordinator) HealthCheck(ctx context.Context) HealthCheckResult {
	out := HealthCheckResult{
		Strategies: make(map[string]StrategyHealth, len(c.candidates)),
		Timestamp:  c.clock.Now(),
	}
	snapshot := c.stats.Snapshot()

	for _, cand := range c.candidates {
		probeCtx, cancel := context.WithTimeout(ctx, availabilityProbeTimeout)
		start := time.Now()
		available := cand.Strategy.IsAvailable(probeCtx)
		probe := time.Since(start)
		cancel()

		h := StrategyHealth{
			Type:      string(cand.Type),
			Available: available,
			ProbeMS:   probe.Milliseconds(),
		}
		if s, ok := snapshot.PerStrategy[cand.Type]; ok {
			h.SuccessRate = s.SuccessRate
			h.AvgLatencyMS = s.AvgLatencyMS
		}
		if rate, enough := c.stats.SuccessRate(cand.Type, c.cfg.MinSampleForFloor); enough && rate < c.cfg.SuccessRateFloor {
			h.Degraded = true
		}
		out.Strategies[cand.Strategy.Name()] = h

		if available && !h.Degraded {
			out.Healthy = true
		}
	}
	return out
}
