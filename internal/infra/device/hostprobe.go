package device

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	domain "github.com/buildsite/safesight/internal/domain/device"
)

// ProbeConfig carries the platform-reported facts a host probe cannot
// discover on its own: accelerator capability flags, form-factor hints, and
// where the platform version tiers are drawn.
type ProbeConfig struct {
	HasGPU           bool
	HasNPU           bool
	Product          string
	SmallestScreenDP int
	NewestMajor      int
	RecentMajor      int
	ThermalZonePath  string
}

// HostProbe reads hardware signals from the running host via gopsutil plus
// the sysfs thermal zone. Individual read failures zero the affected field;
// only a total memory failure is treated as a probe error.
type HostProbe struct {
	cfg ProbeConfig
}

func NewHostProbe(cfg ProbeConfig) *HostProbe {
	if cfg.ThermalZonePath == "" {
		cfg.ThermalZonePath = "/sys/class/thermal/thermal_zone0/temp"
	}
	return &HostProbe{cfg: cfg}
}

func (p *HostProbe) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}

	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil || cores <= 0 {
		cores = 1
	}

	var freqMHz float64
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		freqMHz = infos[0].Mhz
	}

	tier := domain.PlatformOlder
	product := p.cfg.Product
	if info, err := host.InfoWithContext(ctx); err == nil {
		tier = p.platformTier(info.PlatformVersion)
		if product == "" {
			product = info.Platform
		}
	}

	return domain.Snapshot{
		TotalMemoryMB:     int(vm.Total / (1 << 20)),
		AvailableMemoryMB: int(vm.Available / (1 << 20)),
		CPUCores:          cores,
		CPUFreqMHz:        freqMHz,
		HasGPU:            p.cfg.HasGPU,
		HasNPU:            p.cfg.HasNPU,
		PlatformTier:      tier,
		Product:           product,
		SmallestScreenDP:  p.cfg.SmallestScreenDP,
		Thermal:           p.thermal(),
	}, nil
}

func (p *HostProbe) platformTier(version string) int {
	major := 0
	if i := strings.IndexByte(version, '.'); i > 0 {
		major, _ = strconv.Atoi(version[:i])
	} else {
		major, _ = strconv.Atoi(version)
	}
	switch {
	case p.cfg.NewestMajor > 0 && major >= p.cfg.NewestMajor:
		return domain.PlatformNewest
	case p.cfg.RecentMajor > 0 && major >= p.cfg.RecentMajor:
		return domain.PlatformRecent
	default:
		return domain.PlatformOlder
	}
}

// thermal maps the zone temperature (millidegrees C) onto the platform
// thermal states. Read failures report ThermalNone so a missing sensor
// never blocks the accelerated path.
func (p *HostProbe) thermal() domain.ThermalState {
	raw, err := os.ReadFile(p.cfg.ThermalZonePath)
	if err != nil {
		return domain.ThermalNone
	}
	milli, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return domain.ThermalNone
	}
	celsius := milli / 1000
	switch {
	case celsius >= 95:
		return domain.ThermalCritical
	case celsius >= 85:
		return domain.ThermalSevere
	case celsius >= 75:
		return domain.ThermalModerate
	case celsius >= 65:
		return domain.ThermalLight
	default:
		return domain.ThermalNone
	}
}
