package device

import (
	"context"
	"log"
	"sync"

	domain "github.com/buildsite/safesight/internal/domain/device"
)

// Assessor computes the DeviceCapability classification once and memoizes it
// for the process lifetime. Any probe failure degrades to the conservative
// default; callers never see an assessment error.
type Assessor struct {
	probe  domain.Probe
	once   sync.Once
	cached domain.DeviceCapability
}

func NewAssessor(probe domain.Probe) *Assessor {
	return &Assessor{probe: probe}
}

// Assess is idempotent; subsequent calls return the cached value without
// re-probing hardware.
func (a *Assessor) Assess(ctx context.Context) domain.DeviceCapability {
	a.once.Do(func() {
		a.cached = a.assess(ctx)
	})
	return a.cached
}

func (a *Assessor) assess(ctx context.Context) domain.DeviceCapability {
	snap, err := a.probe.Snapshot(ctx)
	if err != nil {
		log.Printf("capability probe failed, using conservative default: %v", err)
		return domain.ConservativeDefault()
	}

	score := domain.Score(snap.AvailableMemoryMB, snap.CPUCores, snap.HasGPU, snap.PlatformTier)
	return domain.DeviceCapability{
		Class:        domain.Classify(snap.SmallestScreenDP, snap.Product),
		MemoryMB:     snap.AvailableMemoryMB,
		CPUCores:     snap.CPUCores,
		HasGPU:       snap.HasGPU,
		HasNPU:       snap.HasNPU,
		Score:        score,
		Tier:         domain.TierFromScore(score),
		PlatformTier: snap.PlatformTier,
	}
}
