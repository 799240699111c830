package device

import (
	"context"
	"errors"
	"sync"
	"testing"

	domain "github.com/buildsite/safesight/internal/domain/device"
)

type countingProbe struct {
	mu    sync.Mutex
	calls int
	snap  domain.Snapshot
	err   error
}

func (p *countingProbe) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.snap, p.err
}

func TestAssessMemoizes(t *testing.T) {
	probe := &countingProbe{snap: domain.Snapshot{
		AvailableMemoryMB: 8192, CPUCores: 8, HasGPU: true, PlatformTier: domain.PlatformNewest,
	}}
	a := NewAssessor(probe)

	first := a.Assess(context.Background())
	second := a.Assess(context.Background())

	if probe.calls != 1 {
		t.Fatalf("probe should run once, ran %d times", probe.calls)
	}
	if first != second {
		t.Fatalf("memoized assessments differ: %+v vs %+v", first, second)
	}
	if first.Tier != domain.TierHigh || first.Score != 10 {
		t.Fatalf("strong hardware should score 10/HIGH, got %+v", first)
	}
}

func TestAssessConcurrentCallersShareOneProbe(t *testing.T) {
	probe := &countingProbe{snap: domain.Snapshot{AvailableMemoryMB: 4096, CPUCores: 4}}
	a := NewAssessor(probe)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Assess(context.Background())
		}()
	}
	wg.Wait()

	if probe.calls != 1 {
		t.Fatalf("concurrent assessments must share one probe call, got %d", probe.calls)
	}
}

func TestAssessDegradesToConservativeDefault(t *testing.T) {
	probe := &countingProbe{err: errors.New("sysfs unreadable")}
	a := NewAssessor(probe)

	got := a.Assess(context.Background())
	want := domain.ConservativeDefault()
	if got != want {
		t.Fatalf("probe failure must yield the conservative default, got %+v", got)
	}
}
