package engine

import (
	"testing"

	domain "github.com/buildsite/safesight/internal/domain/device"
)

func TestSelectBackendPrefersGPU(t *testing.T) {
	cap := domain.DeviceCapability{HasGPU: true, HasNPU: true}
	sel := SelectBackend(cap, domain.ThermalNone, 4096)
	if sel.Backend != BackendGPU || sel.Throttled {
		t.Fatalf("expected unthrottled GPU, got %+v", sel)
	}
}

func TestSelectBackendGPUNeedsMemoryHeadroom(t *testing.T) {
	cap := domain.DeviceCapability{HasGPU: true, HasNPU: true}
	sel := SelectBackend(cap, domain.ThermalNone, 1024)
	if sel.Backend != BackendNPU {
		t.Fatalf("low memory should fall through to NPU, got %+v", sel)
	}

	cap.HasNPU = false
	sel = SelectBackend(cap, domain.ThermalNone, 1024)
	if sel.Backend != BackendCPU {
		t.Fatalf("low memory without NPU should land on CPU, got %+v", sel)
	}
}

func TestSelectBackendSevereThermalForcesCPU(t *testing.T) {
	cap := domain.DeviceCapability{HasGPU: true, HasNPU: true}
	for _, state := range []domain.ThermalState{domain.ThermalSevere, domain.ThermalCritical} {
		sel := SelectBackend(cap, state, 8192)
		if sel.Backend != BackendCPU {
			t.Fatalf("thermal %s must force CPU, got %+v", state, sel)
		}
		if !sel.Throttled {
			t.Fatalf("thermal %s must raise the throttled flag", state)
		}
	}
}

func TestSelectBackendModerateThermalDoesNotThrottle(t *testing.T) {
	cap := domain.DeviceCapability{HasGPU: true}
	sel := SelectBackend(cap, domain.ThermalModerate, 8192)
	if sel.Backend != BackendGPU || sel.Throttled {
		t.Fatalf("moderate thermal should not downgrade, got %+v", sel)
	}
}

func TestNextLower(t *testing.T) {
	if nextLower(BackendGPU) != BackendNPU {
		t.Fatal("GPU should downgrade to NPU")
	}
	if nextLower(BackendNPU) != BackendCPU {
		t.Fatal("NPU should downgrade to CPU")
	}
	if nextLower(BackendCPU) != BackendCPU {
		t.Fatal("CPU has nothing lower")
	}
}
