package engine

import (
	domain "github.com/buildsite/safesight/internal/domain/device"
)

// Backend is the execution unit used by the on-device engine.
type Backend string

const (
	BackendCPU  Backend = "CPU"
	BackendGPU  Backend = "GPU"
	BackendNPU  Backend = "NPU"
	BackendAuto Backend = "AUTO"
)

// gpuMinAvailableMB is the extra working memory the accelerated execution
// paths reserve.
const gpuMinAvailableMB = 2048

// Selection is the selector's verdict. Throttled is raised when thermal
// state forced CPU, so the coordinator can penalize the strategy's timeout
// budget.
type Selection struct {
	Backend   Backend
	Throttled bool
}

// SelectBackend picks an execution backend from the capability snapshot and
// current thermal/memory conditions. Preference is GPU, then NPU, then CPU;
// GPU and NPU need their platform capability flags, GPU also needs headroom;
// severe thermal state forces CPU regardless of preference.
func SelectBackend(cap domain.DeviceCapability, thermal domain.ThermalState, availableMemMB int) Selection {
	if thermal >= domain.ThermalSevere {
		return Selection{Backend: BackendCPU, Throttled: true}
	}
	if cap.HasGPU && availableMemMB >= gpuMinAvailableMB {
		return Selection{Backend: BackendGPU}
	}
	if cap.HasNPU {
		return Selection{Backend: BackendNPU}
	}
	return Selection{Backend: BackendCPU}
}

// nextLower returns the next-lower-preference backend used for the single
// out-of-memory retry during initialization.
func nextLower(b Backend) Backend {
	switch b {
	case BackendGPU:
		return BackendNPU
	case BackendNPU:
		return BackendCPU
	default:
		return BackendCPU
	}
}
