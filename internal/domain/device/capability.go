package device

import "strings"

// Tier is the coarse performance classification driving timeouts and
// backend eligibility.
type Tier string

const (
	TierLow    Tier = "LOW"
	TierMedium Tier = "MEDIUM"
	TierHigh   Tier = "HIGH"
)

// Class enum
type Class string

const (
	ClassPhone  Class = "phone"
	ClassTablet Class = "tablet"
	ClassOther  Class = "other"
)

// DeviceCapability is the memoized hardware classification. Computed once,
// invalidated only by process restart.
type DeviceCapability struct {
	Class        Class `json:"class"`
	MemoryMB     int   `json:"memory_mb"`
	CPUCores     int   `json:"cpu_cores"`
	HasGPU       bool  `json:"has_gpu"`
	HasNPU       bool  `json:"has_npu"`
	Score        int   `json:"score"`
	Tier         Tier  `json:"tier"`
	PlatformTier int   `json:"platform_tier"`
}

// PlatformTier buckets: 2 newest, 1 recent, 0 older.
const (
	PlatformNewest = 2
	PlatformRecent = 1
	PlatformOlder  = 0
)

// tabletMinSmallestDP is the smallest-screen-dimension threshold (in
// density-independent units) above which a device counts as a tablet.
const tabletMinSmallestDP = 600

// Score computes the deterministic 0-10 capability score.
func Score(memoryMB, cpuCores int, hasGPU bool, platformTier int) int {
	score := 0
	switch {
	case memoryMB >= 6144:
		score += 3
	case memoryMB >= 4096:
		score += 2
	case memoryMB >= 3072:
		score += 1
	}
	switch {
	case cpuCores >= 8:
		score += 3
	case cpuCores >= 6:
		score += 2
	case cpuCores >= 4:
		score += 1
	}
	if hasGPU {
		score += 2
	}
	switch platformTier {
	case PlatformNewest:
		score += 2
	case PlatformRecent:
		score += 1
	}
	return score
}

// TierFromScore maps a capability score to a tier.
func TierFromScore(score int) Tier {
	switch {
	case score >= 8:
		return TierHigh
	case score >= 5:
		return TierMedium
	default:
		return TierLow
	}
}

// Classify uses the smallest screen dimension, falling back to a product
// name substring match for TV-class devices.
func Classify(smallestScreenDP int, product string) Class {
	if smallestScreenDP >= tabletMinSmallestDP {
		return ClassTablet
	}
	p := strings.ToLower(product)
	if strings.Contains(p, "tv") || strings.Contains(p, "box") {
		return ClassOther
	}
	return ClassPhone
}

// ConservativeDefault is what every probe failure degrades to. Callers must
// never see an assessment error.
func ConservativeDefault() DeviceCapability {
	return DeviceCapability{
		Class:        ClassPhone,
		MemoryMB:     1024,
		CPUCores:     4,
		HasGPU:       false,
		Score:        Score(1024, 4, false, PlatformOlder),
		Tier:         TierLow,
		PlatformTier: PlatformOlder,
	}
}
