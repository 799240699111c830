package device

import "context"

// ThermalState as reported by the platform layer. Ordering matters: the
// backend selector compares against ThermalSevere.
type ThermalState int

const (
	ThermalNone ThermalState = iota
	ThermalLight
	ThermalModerate
	ThermalSevere
	ThermalCritical
)

func (t ThermalState) String() string {
	switch t {
	case ThermalNone:
		return "none"
	case ThermalLight:
		return "light"
	case ThermalModerate:
		return "moderate"
	case ThermalSevere:
		return "severe"
	case ThermalCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Snapshot is one hardware readout from the platform layer.
type Snapshot struct {
	TotalMemoryMB     int
	AvailableMemoryMB int
	CPUCores          int
	CPUFreqMHz        float64
	HasGPU            bool
	HasNPU            bool
	PlatformTier      int
	Product           string
	SmallestScreenDP  int
	Thermal           ThermalState
}

// Probe port (interface to the platform hardware layer)
type Probe interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}
