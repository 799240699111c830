package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/buildsite/safesight/internal/domain/analysis"
	domain "github.com/buildsite/safesight/internal/domain/device"
)

// Strategy exposes the on-device engine as one AnalyzerStrategy. It owns
// backend selection and initialization; the runtime owns the model itself.
type Strategy struct {
	runtime  Runtime
	probe    domain.Probe
	assessor interface {
		Assess(ctx context.Context) domain.DeviceCapability
	}
	priority int

	mu        sync.Mutex
	backend   Backend          // initialized backend, "" until first use
	oomed     map[Backend]bool // backends that ran out of memory, never re-selected
	permanent error            // set after the OOM retry is spent
	throttled bool
	params    analysis.DetectionParams
}

func NewStrategy(runtime Runtime, probe domain.Probe, assessor interface {
	Assess(ctx context.Context) domain.DeviceCapability
}, priority int) *Strategy {
	return &Strategy{
		runtime:  runtime,
		probe:    probe,
		assessor: assessor,
		priority: priority,
		oomed:    make(map[Backend]bool),
	}
}

func (s *Strategy) Name() string  { return "on-device-engine" }
func (s *Strategy) Priority() int { return s.priority }

func (s *Strategy) Capabilities() []analysis.Capability {
	return []analysis.Capability{
		analysis.CapabilityHazardDetection,
		analysis.CapabilityPPECompliance,
		analysis.CapabilityBoundingBoxes,
		analysis.CapabilityOffline,
	}
}

// IsAvailable probes the runtime without starting an inference. A strategy
// whose initialization failed permanently reports unavailable.
func (s *Strategy) IsAvailable(ctx context.Context) bool {
	s.mu.Lock()
	dead := s.permanent != nil
	s.mu.Unlock()
	if dead {
		return false
	}
	return s.runtime.Ping(ctx) == nil
}

// Configure accepts an optional credential. The local engine needs none.
func (s *Strategy) Configure(credential string) error { return nil }

func (s *Strategy) SetDetectionParams(p analysis.DetectionParams) error {
	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
	return nil
}

// Throttled reports whether the last backend selection was forced to CPU by
// thermal state.
func (s *Strategy) Throttled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.throttled
}

func (s *Strategy) Analyze(ctx context.Context, image []byte, wt analysis.WorkType) (*analysis.SafetyAnalysis, error) {
	if err := s.ensureBackend(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	params := s.params
	s.mu.Unlock()
	return s.runtime.Infer(ctx, image, wt, params)
}

// ensureBackend selects and initializes the execution backend. On
// out-of-memory during setup it retries exactly once with the next
// lower-preference backend, then fails permanently for this instance.
// A backend that ran out of memory stays excluded from selection for the
// life of the instance; later calls only re-initialize on genuine selection
// changes such as thermal recovery.
func (s *Strategy) ensureBackend(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.permanent != nil {
		return fmt.Errorf("%w: %v", analysis.ErrConfiguration, s.permanent)
	}

	cap := s.assessor.Assess(ctx)
	thermal := domain.ThermalNone
	availableMB := cap.MemoryMB
	if snap, err := s.probe.Snapshot(ctx); err == nil {
		thermal = snap.Thermal
		availableMB = snap.AvailableMemoryMB
	}

	sel := SelectBackend(cap, thermal, availableMB)
	s.throttled = sel.Throttled

	target := sel.Backend
	for s.oomed[target] && target != BackendCPU {
		target = s.downgrade(target, cap)
	}

	if s.backend == target {
		return nil
	}

	if err := s.runtime.Init(ctx, target); err != nil {
		if !errors.Is(err, analysis.ErrOutOfMemory) {
			return err
		}
		s.oomed[target] = true
		retry := s.downgrade(target, cap)
		if err := s.runtime.Init(ctx, retry); err != nil {
			if errors.Is(err, analysis.ErrOutOfMemory) {
				s.oomed[retry] = true
				s.permanent = fmt.Errorf("backend init out of memory on %s and %s", target, retry)
				return fmt.Errorf("%w: %v", analysis.ErrConfiguration, s.permanent)
			}
			return err
		}
		s.backend = retry
		return nil
	}

	s.backend = target
	return nil
}

func (s *Strategy) downgrade(b Backend, cap domain.DeviceCapability) Backend {
	next := nextLower(b)
	if next == BackendNPU && !cap.HasNPU {
		next = BackendCPU
	}
	return next
}
