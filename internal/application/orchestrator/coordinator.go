package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/buildsite/safesight/internal/application"
	"github.com/buildsite/safesight/internal/domain/analysis"
	"github.com/buildsite/safesight/internal/domain/device"
)

// Config is the explicitly injected orchestrator configuration. Tests can
// instantiate multiple independently configured coordinators; there is no
// package-level mutable state.
type Config struct {
	CacheTTL        time.Duration
	CacheMaxEntries int
	TargetFPS       float64

	// Per-attempt timeout budgets. Local strategies get a tier-dependent
	// budget; the cloud strategy carries its own network latency budget.
	TimeoutHigh   time.Duration
	TimeoutMedium time.Duration
	TimeoutLow    time.Duration
	TimeoutCloud  time.Duration

	FallbackConfidenceScale float64
	SuccessRateFloor        float64
	MinSampleForFloor       uint64
	MaxImageBytes           int
}

func (c Config) withDefaults() Config {
	if c.CacheTTL <= 0 {
		c.CacheTTL = 2 * time.Minute
	}
	if c.CacheMaxEntries <= 0 {
		c.CacheMaxEntries = 128
	}
	if c.TargetFPS <= 0 {
		c.TargetFPS = 2
	}
	if c.TimeoutHigh <= 0 {
		c.TimeoutHigh = 3 * time.Second
	}
	if c.TimeoutMedium <= 0 {
		c.TimeoutMedium = 5 * time.Second
	}
	if c.TimeoutLow <= 0 {
		c.TimeoutLow = 8 * time.Second
	}
	if c.TimeoutCloud <= 0 {
		c.TimeoutCloud = 15 * time.Second
	}
	if c.FallbackConfidenceScale <= 0 || c.FallbackConfidenceScale > 1 {
		c.FallbackConfidenceScale = 0.7
	}
	if c.SuccessRateFloor <= 0 || c.SuccessRateFloor > 1 {
		c.SuccessRateFloor = 0.9
	}
	if c.MinSampleForFloor == 0 {
		c.MinSampleForFloor = 10
	}
	if c.MaxImageBytes <= 0 {
		c.MaxImageBytes = 10 << 20
	}
	return c
}

// DegradedCaveat is appended to the recommendations of any result produced
// by the degraded fallback, so a weaker analysis is never indistinguishable
// from a full one.
const DegradedCaveat = "Degraded analysis: produced by the local fallback analyzer; re-run when full analysis is available."

// Candidate binds a strategy to its analysis type at startup. Degraded marks
// the local fallback whose results must be visibly weakened.
type Candidate struct {
	Strategy analysis.Strategy
	Type     analysis.AnalysisType
	Degraded bool
}

// Assessor port (memoized device capability)
type Assessor interface {
	Assess(ctx context.Context) device.DeviceCapability
}

// Deps are optional collaborators. Nil fields disable the corresponding
// side effect (persistence, artifact upload, failure logging).
type Deps struct {
	Repo      analysis.Repository
	Failures  analysis.FailureRepository
	Artifacts analysis.ArtifactStore
	Clock     application.Clock
}

// Coordinator walks an ordered list of strategies for each request: cache
// check, rate gate, then per-strategy attempts under tier-dependent
// timeouts, returning the first success or an aggregated failure.
type Coordinator struct {
	cfg        Config
	candidates []Candidate
	assessor   Assessor
	cache      *ResultCache
	gate       *FrameRateGate
	stats      *StatsTracker
	clock      application.Clock
	deps       Deps
	flight     singleflight.Group
}

func NewCoordinator(cfg Config, assessor Assessor, candidates []Candidate, deps Deps) *Coordinator {
	cfg = cfg.withDefaults()
	clock := deps.Clock
	if clock == nil {
		clock = application.SystemClock{}
	}
	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Strategy.Priority() > ordered[j].Strategy.Priority()
	})
	return &Coordinator{
		cfg:        cfg,
		candidates: ordered,
		assessor:   assessor,
		cache:      NewResultCache(cfg.CacheTTL, cfg.CacheMaxEntries, clock),
		gate:       NewFrameRateGate(cfg.TargetFPS),
		stats:      NewStatsTracker(),
		clock:      clock,
		deps:       deps,
	}
}

// Analyze runs the cascade for one request. Validation failures reject
// immediately; a cache hit short-circuits everything else; otherwise the
// request waits for a rate slot and walks the strategy list in priority
// order. Only an *analysis.ExhaustedError ever surfaces for cascade
// failures.
func (c *Coordinator) Analyze(ctx context.Context, site string, image []byte, wt analysis.WorkType) (*analysis.SafetyAnalysis, error) {
	if wt == "" {
		wt = analysis.WorkTypeGeneral
	}
	if err := c.validate(image, wt); err != nil {
		return nil, err
	}

	fp := analysis.Fingerprint(image, wt)
	if cached := c.cache.Get(fp); cached != nil {
		c.stats.RecordCacheHit()
		return cached, nil
	}

	// Concurrent requests for the same fingerprint join one cascade and
	// share its result and rate slot.
	v, err, _ := c.flight.Do(fp, func() (any, error) {
		return c.runCascade(ctx, site, fp, image, wt)
	})
	if err != nil {
		return nil, err
	}
	return v.(*analysis.SafetyAnalysis), nil
}

func (c *Coordinator) runCascade(ctx context.Context, site, fp string, image []byte, wt analysis.WorkType) (*analysis.SafetyAnalysis, error) {
	c.stats.RecordCacheMiss()

	if err := c.gate.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate gate: %w", err)
	}

	capability := c.assessor.Assess(ctx)
	requestID := uuid.New().String()

	var skipped, attempted, attemptMsgs []string
	var lastErr error

	for _, cand := range c.candidates {
		name := cand.Strategy.Name()

		// Availability is checked before the timeout clock starts;
		// an unavailable strategy is skipped, not attempted.
		if !cand.Strategy.IsAvailable(ctx) {
			skipped = append(skipped, name)
			continue
		}

		budget := c.timeoutFor(cand, capability.Tier)
		if tr, ok := cand.Strategy.(analysis.ThrottleReporter); ok && tr.Throttled() {
			budget /= 2
		}

		start := c.clock.Now()
		result, err := c.attempt(ctx, cand, budget, image, wt)
		elapsed := c.clock.Now().Sub(start)

		if err != nil {
			c.stats.RecordFailure(cand.Type, elapsed)
			attempted = append(attempted, name)
			attemptMsgs = append(attemptMsgs, err.Error())
			lastErr = fmt.Errorf("%s: %w", name, err)
			log.Printf("strategy=%s site=%s attempt failed after %s: %v", name, site, elapsed, err)
			if ctx.Err() != nil {
				// Caller abort propagates; stop the cascade.
				break
			}
			continue
		}

		final := c.finalize(result, cand, wt, elapsed)
		c.cache.Put(fp, final)
		c.stats.RecordSuccess(cand.Type, elapsed)
		go c.persistResult(site, image, final)
		return final, nil
	}

	exhausted := &analysis.ExhaustedError{Skipped: skipped, Attempted: attempted, LastErr: lastErr}
	go c.persistFailures(site, requestID, skipped, attempted, attemptMsgs)
	return nil, exhausted
}

// attempt runs one strategy under its budget. Expiry cancels the underlying
// call through the context so abandoned backend work is released.
func (c *Coordinator) attempt(ctx context.Context, cand Candidate, budget time.Duration, image []byte, wt analysis.WorkType) (*analysis.SafetyAnalysis, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type outcome struct {
		res *analysis.SafetyAnalysis
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := cand.Strategy.Analyze(attemptCtx, image, wt)
		ch <- outcome{res, err}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			return nil, o.err
		}
		if o.res == nil {
			return nil, analysis.ErrInference
		}
		return o.res, nil
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, analysis.ErrTimeout
	}
}

// finalize stamps provenance and timing on a fresh value, and weakens
// fallback results so downstream consumers can tell them apart.
func (c *Coordinator) finalize(res *analysis.SafetyAnalysis, cand Candidate, wt analysis.WorkType, elapsed time.Duration) *analysis.SafetyAnalysis {
	out := *res
	out.Source = cand.Type
	out.WorkType = wt
	out.ProcessingMS = elapsed.Milliseconds()
	if out.ID == "" {
		out.ID = analysis.AnalysisID(uuid.New().String())
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = c.clock.Now()
	}
	out.Recommendations = append([]string(nil), res.Recommendations...)
	out.Hazards = append([]analysis.Hazard(nil), res.Hazards...)
	if cand.Degraded {
		out.Confidence = res.Confidence * c.cfg.FallbackConfidenceScale
		out.Recommendations = append(out.Recommendations, DegradedCaveat)
	}
	return &out
}

func (c *Coordinator) timeoutFor(cand Candidate, tier device.Tier) time.Duration {
	if cand.Type == analysis.TypeCloud {
		return c.cfg.TimeoutCloud
	}
	switch tier {
	case device.TierHigh:
		return c.cfg.TimeoutHigh
	case device.TierMedium:
		return c.cfg.TimeoutMedium
	default:
		return c.cfg.TimeoutLow
	}
}

func (c *Coordinator) validate(image []byte, wt analysis.WorkType) error {
	if len(image) == 0 {
		return &analysis.ValidationError{Field: "image", Message: "empty image"}
	}
	if len(image) > c.cfg.MaxImageBytes {
		return &analysis.ValidationError{
			Field:   "image",
			Message: fmt.Sprintf("image exceeds %d bytes", c.cfg.MaxImageBytes),
		}
	}
	for _, known := range analysis.KnownWorkTypes {
		if wt == known {
			return nil
		}
	}
	return &analysis.ValidationError{Field: "work_type", Message: fmt.Sprintf("unknown work type %q", wt)}
}

// DeviceCapability exposes the memoized hardware classification.
func (c *Coordinator) DeviceCapability() device.DeviceCapability {
	return c.assessor.Assess(context.Background())
}

// Stats returns a derived snapshot of cascade accounting.
func (c *Coordinator) Stats() OrchestratorStats {
	return c.stats.Snapshot()
}

// ResetStats zeroes all counters.
func (c *Coordinator) ResetStats() {
	c.stats.Reset()
}

// PurgeCache drops all cached results. Hooked to memory-pressure signals.
func (c *Coordinator) PurgeCache() {
	c.cache.Purge()
}

// TimeUntilNextSlot reports the current rate-gate wait.
func (c *Coordinator) TimeUntilNextSlot() time.Duration {
	return c.gate.TimeUntilNextSlot()
}

// UpdateDetectionParameters validates thresholds and pushes them to every
// tunable strategy. Out-of-range values are rejected before any strategy is
// touched.
func (c *Coordinator) UpdateDetectionParameters(confidence, iou float64) error {
	if confidence <= 0 || confidence > 1 {
		return &analysis.ValidationError{Field: "confidence_threshold", Message: "must be in (0, 1]"}
	}
	if iou < 0 || iou > 1 {
		return &analysis.ValidationError{Field: "iou_threshold", Message: "must be in [0, 1]"}
	}
	p := analysis.DetectionParams{ConfidenceThreshold: confidence, IoUThreshold: iou}
	for _, cand := range c.candidates {
		if tunable, ok := cand.Strategy.(analysis.Tunable); ok {
			if err := tunable.SetDetectionParams(p); err != nil {
				return fmt.Errorf("%s: %w", cand.Strategy.Name(), err)
			}
		}
	}
	return nil
}

// persistResult uploads artifacts and saves the history row in the
// background. Failures here are logged, never surfaced to the analysis
// caller.
func (c *Coordinator) persistResult(site string, image []byte, res *analysis.SafetyAnalysis) {
	if c.deps.Repo == nil && c.deps.Artifacts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resultJSON, err := json.Marshal(res)
	if err != nil {
		log.Printf("persist: marshal analysis %s: %v", res.ID, err)
		return
	}

	var imageURL, reportURL string
	if c.deps.Artifacts != nil {
		key := fmt.Sprintf("%s/%s/%s", site, res.WorkType, res.ID)
		imageURL, err = c.deps.Artifacts.UploadBytes(ctx, key+".jpg", image, "image/jpeg")
		if err != nil {
			log.Printf("persist: upload image for %s: %v", res.ID, err)
		}
		reportURL, err = c.deps.Artifacts.UploadBytes(ctx, key+".json", resultJSON, "application/json")
		if err != nil {
			log.Printf("persist: upload report for %s: %v", res.ID, err)
		}
	}

	if c.deps.Repo == nil {
		return
	}
	rec := &analysis.AnalysisRecord{
		ID:         res.ID,
		SiteID:     site,
		WorkType:   res.WorkType,
		ResultJSON: string(resultJSON),
		ImageURL:   imageURL,
		ReportURL:  reportURL,
		Source:     res.Source,
		Counts:     res.Counts(),
		DurationMS: res.ProcessingMS,
		CreatedAt:  res.CreatedAt,
	}
	if err := c.deps.Repo.Save(ctx, rec); err != nil {
		log.Printf("persist: save analysis %s: %v", res.ID, err)
	}
}

func (c *Coordinator) persistFailures(site, requestID string, skipped, attempted, attemptMsgs []string) {
	if c.deps.Failures == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := c.clock.Now()
	for _, name := range skipped {
		f := &analysis.AttemptFailure{
			SiteID: site, RequestID: requestID, Strategy: name,
			Phase: "skipped", Message: analysis.ErrUnavailable.Error(), CreatedAt: now,
		}
		if err := c.deps.Failures.Save(ctx, f); err != nil {
			log.Printf("persist: save failure for %s: %v", name, err)
		}
	}
	for i, name := range attempted {
		msg := ""
		if i < len(attemptMsgs) {
			msg = attemptMsgs[i]
		}
		f := &analysis.AttemptFailure{
			SiteID: site, RequestID: requestID, Strategy: name,
			Phase: "attempted", Message: msg, CreatedAt: now,
		}
		if err := c.deps.Failures.Save(ctx, f); err != nil {
			log.Printf("persist: save failure for %s: %v", name, err)
		}
	}
}
