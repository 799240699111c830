package orchestrator

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// FrameRateGate enforces a maximum analysis invocation rate, independent of
// which strategy eventually runs. The minimum inter-admission interval is
// 1000/targetFPS milliseconds measured from the last accepted invocation.
// Process-wide shared state; it does not distinguish request origin.
type FrameRateGate struct {
	limiter *rate.Limiter
}

func NewFrameRateGate(targetFPS float64) *FrameRateGate {
	if targetFPS <= 0 {
		targetFPS = 2
	}
	interval := time.Duration(float64(time.Second) / targetFPS)
	return &FrameRateGate{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until a slot is admitted or ctx is done. Dropping frames
// silently would lose safety-relevant images, so callers wait.
func (g *FrameRateGate) Wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}

// ShouldProcessNow consumes a slot if one is immediately available.
func (g *FrameRateGate) ShouldProcessNow() bool {
	return g.limiter.Allow()
}

// TimeUntilNextSlot reports the remaining wait without consuming a slot.
func (g *FrameRateGate) TimeUntilNextSlot() time.Duration {
	r := g.limiter.Reserve()
	d := r.Delay()
	r.Cancel()
	return d
}
