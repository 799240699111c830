package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/buildsite/safesight/internal/domain/analysis"
	domain "github.com/buildsite/safesight/internal/domain/device"
)

type fakeRuntime struct {
	mu        sync.Mutex
	initCalls []Backend
	initErrs  map[Backend]error
	pingErr   error
	inferred  int
}

func (r *fakeRuntime) Init(ctx context.Context, backend Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initCalls = append(r.initCalls, backend)
	return r.initErrs[backend]
}

func (r *fakeRuntime) Infer(ctx context.Context, image []byte, wt analysis.WorkType, params analysis.DetectionParams) (*analysis.SafetyAnalysis, error) {
	r.mu.Lock()
	r.inferred++
	r.mu.Unlock()
	return &analysis.SafetyAnalysis{Confidence: 0.9}, nil
}

func (r *fakeRuntime) Ping(ctx context.Context) error { return r.pingErr }
func (r *fakeRuntime) Close() error                   { return nil }

type fakeProbe struct {
	snap domain.Snapshot
	err  error
}

func (p *fakeProbe) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	return p.snap, p.err
}

type capAssessor struct {
	cap domain.DeviceCapability
}

func (a capAssessor) Assess(ctx context.Context) domain.DeviceCapability { return a.cap }

func gpuDevice() (capAssessor, *fakeProbe) {
	return capAssessor{cap: domain.DeviceCapability{HasGPU: true, MemoryMB: 8192}},
		&fakeProbe{snap: domain.Snapshot{AvailableMemoryMB: 8192, Thermal: domain.ThermalNone}}
}

func TestAnalyzeInitializesBackendOnce(t *testing.T) {
	rt := &fakeRuntime{initErrs: map[Backend]error{}}
	assessor, probe := gpuDevice()
	s := NewStrategy(rt, probe, assessor, 100)

	for i := 0; i < 3; i++ {
		if _, err := s.Analyze(context.Background(), []byte("img"), analysis.WorkTypeGeneral); err != nil {
			t.Fatalf("analyze %d: %v", i, err)
		}
	}
	if len(rt.initCalls) != 1 || rt.initCalls[0] != BackendGPU {
		t.Fatalf("expected one GPU init, got %v", rt.initCalls)
	}
	if rt.inferred != 3 {
		t.Fatalf("expected 3 inferences, got %d", rt.inferred)
	}
}

func TestOOMRetriesOnceWithLowerBackend(t *testing.T) {
	rt := &fakeRuntime{initErrs: map[Backend]error{BackendGPU: analysis.ErrOutOfMemory}}
	assessor, probe := gpuDevice()
	s := NewStrategy(rt, probe, assessor, 100)

	if _, err := s.Analyze(context.Background(), []byte("img"), analysis.WorkTypeGeneral); err != nil {
		t.Fatalf("analyze should survive one OOM via downgrade: %v", err)
	}
	// GPU fails, device has no NPU, so the retry lands on CPU.
	if len(rt.initCalls) != 2 || rt.initCalls[0] != BackendGPU || rt.initCalls[1] != BackendCPU {
		t.Fatalf("expected [GPU CPU] init sequence, got %v", rt.initCalls)
	}
}

func TestOOMBackendStaysExcludedAcrossCalls(t *testing.T) {
	rt := &fakeRuntime{initErrs: map[Backend]error{BackendGPU: analysis.ErrOutOfMemory}}
	assessor, probe := gpuDevice()
	s := NewStrategy(rt, probe, assessor, 100)

	for i := 0; i < 3; i++ {
		if _, err := s.Analyze(context.Background(), []byte("img"), analysis.WorkTypeGeneral); err != nil {
			t.Fatalf("analyze %d: %v", i, err)
		}
	}
	// One OOM on GPU, one successful CPU init; later calls must settle on
	// the downgraded backend instead of re-initializing the failed one.
	if len(rt.initCalls) != 2 || rt.initCalls[0] != BackendGPU || rt.initCalls[1] != BackendCPU {
		t.Fatalf("expected exactly [GPU CPU] across all calls, got %v", rt.initCalls)
	}
}

func TestThermalRecoveryDoesNotRevisitOOMBackend(t *testing.T) {
	rt := &fakeRuntime{initErrs: map[Backend]error{BackendGPU: analysis.ErrOutOfMemory}}
	assessor := capAssessor{cap: domain.DeviceCapability{HasGPU: true, MemoryMB: 8192}}
	probe := &fakeProbe{snap: domain.Snapshot{AvailableMemoryMB: 8192, Thermal: domain.ThermalSevere}}
	s := NewStrategy(rt, probe, assessor, 100)

	// Severe thermal starts on CPU without touching the GPU.
	if _, err := s.Analyze(context.Background(), []byte("img"), analysis.WorkTypeGeneral); err != nil {
		t.Fatalf("hot analyze: %v", err)
	}

	// Cooling re-selects GPU, which OOMs once and downgrades back to CPU;
	// the next call must stay put.
	probe.snap.Thermal = domain.ThermalNone
	for i := 0; i < 2; i++ {
		if _, err := s.Analyze(context.Background(), []byte("img"), analysis.WorkTypeGeneral); err != nil {
			t.Fatalf("cool analyze %d: %v", i, err)
		}
	}
	want := []Backend{BackendCPU, BackendGPU, BackendCPU}
	if len(rt.initCalls) != len(want) {
		t.Fatalf("expected init sequence %v, got %v", want, rt.initCalls)
	}
	for i, b := range want {
		if rt.initCalls[i] != b {
			t.Fatalf("expected init sequence %v, got %v", want, rt.initCalls)
		}
	}
}

func TestOOMRetryUsesNPUWhenPresent(t *testing.T) {
	rt := &fakeRuntime{initErrs: map[Backend]error{BackendGPU: analysis.ErrOutOfMemory}}
	assessor := capAssessor{cap: domain.DeviceCapability{HasGPU: true, HasNPU: true, MemoryMB: 8192}}
	probe := &fakeProbe{snap: domain.Snapshot{AvailableMemoryMB: 8192}}
	s := NewStrategy(rt, probe, assessor, 100)

	if _, err := s.Analyze(context.Background(), []byte("img"), analysis.WorkTypeGeneral); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(rt.initCalls) != 2 || rt.initCalls[1] != BackendNPU {
		t.Fatalf("expected NPU retry, got %v", rt.initCalls)
	}
}

func TestSecondOOMFailsPermanently(t *testing.T) {
	rt := &fakeRuntime{initErrs: map[Backend]error{
		BackendGPU: analysis.ErrOutOfMemory,
		BackendCPU: analysis.ErrOutOfMemory,
	}}
	assessor, probe := gpuDevice()
	s := NewStrategy(rt, probe, assessor, 100)

	_, err := s.Analyze(context.Background(), []byte("img"), analysis.WorkTypeGeneral)
	if !errors.Is(err, analysis.ErrConfiguration) {
		t.Fatalf("expected permanent configuration error, got %v", err)
	}

	// No further init attempts after the retry is spent.
	calls := len(rt.initCalls)
	if _, err := s.Analyze(context.Background(), []byte("img"), analysis.WorkTypeGeneral); !errors.Is(err, analysis.ErrConfiguration) {
		t.Fatalf("expected sticky failure, got %v", err)
	}
	if len(rt.initCalls) != calls {
		t.Fatalf("permanently failed strategy must not retry init, got %v", rt.initCalls)
	}
	if s.IsAvailable(context.Background()) {
		t.Fatal("permanently failed strategy must report unavailable")
	}
}

func TestSevereThermalSelectsCPUAndReportsThrottled(t *testing.T) {
	rt := &fakeRuntime{initErrs: map[Backend]error{}}
	assessor := capAssessor{cap: domain.DeviceCapability{HasGPU: true, MemoryMB: 8192}}
	probe := &fakeProbe{snap: domain.Snapshot{AvailableMemoryMB: 8192, Thermal: domain.ThermalSevere}}
	s := NewStrategy(rt, probe, assessor, 100)

	if _, err := s.Analyze(context.Background(), []byte("img"), analysis.WorkTypeGeneral); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if rt.initCalls[0] != BackendCPU {
		t.Fatalf("severe thermal must init CPU, got %v", rt.initCalls)
	}
	if !s.Throttled() {
		t.Fatal("strategy must report throttled under severe thermal state")
	}
}

func TestThermalRecoverySwitchesBackToGPU(t *testing.T) {
	rt := &fakeRuntime{initErrs: map[Backend]error{}}
	assessor := capAssessor{cap: domain.DeviceCapability{HasGPU: true, MemoryMB: 8192}}
	probe := &fakeProbe{snap: domain.Snapshot{AvailableMemoryMB: 8192, Thermal: domain.ThermalSevere}}
	s := NewStrategy(rt, probe, assessor, 100)

	if _, err := s.Analyze(context.Background(), []byte("img"), analysis.WorkTypeGeneral); err != nil {
		t.Fatalf("hot analyze: %v", err)
	}

	probe.snap.Thermal = domain.ThermalNone
	if _, err := s.Analyze(context.Background(), []byte("img"), analysis.WorkTypeGeneral); err != nil {
		t.Fatalf("cool analyze: %v", err)
	}
	if len(rt.initCalls) != 2 || rt.initCalls[1] != BackendGPU {
		t.Fatalf("expected re-init on GPU after cooling, got %v", rt.initCalls)
	}
	if s.Throttled() {
		t.Fatal("throttled flag must clear once thermal state recovers")
	}
}

func TestIsAvailableTracksRuntimePing(t *testing.T) {
	rt := &fakeRuntime{initErrs: map[Backend]error{}, pingErr: analysis.ErrUnavailable}
	assessor, probe := gpuDevice()
	s := NewStrategy(rt, probe, assessor, 100)

	if s.IsAvailable(context.Background()) {
		t.Fatal("failing ping must report unavailable")
	}
	rt.pingErr = nil
	if !s.IsAvailable(context.Background()) {
		t.Fatal("healthy ping must report available")
	}
}
