package device

import "testing"

func TestScoreBounds(t *testing.T) {
	if got := Score(8192, 8, true, PlatformNewest); got != 10 {
		t.Fatalf("max hardware should score 10, got %d", got)
	}
	if got := Score(512, 2, false, PlatformOlder); got != 0 {
		t.Fatalf("min hardware should score 0, got %d", got)
	}
}

func TestScoreComponents(t *testing.T) {
	tests := []struct {
		name         string
		memoryMB     int
		cpuCores     int
		hasGPU       bool
		platformTier int
		want         int
	}{
		{"memory 3GB boundary", 3072, 2, false, PlatformOlder, 1},
		{"memory 4GB boundary", 4096, 2, false, PlatformOlder, 2},
		{"memory 6GB boundary", 6144, 2, false, PlatformOlder, 3},
		{"just under 3GB", 3071, 2, false, PlatformOlder, 0},
		{"cores 4 boundary", 1024, 4, false, PlatformOlder, 1},
		{"cores 6 boundary", 1024, 6, false, PlatformOlder, 2},
		{"cores 8 boundary", 1024, 8, false, PlatformOlder, 3},
		{"gpu only", 1024, 2, true, PlatformOlder, 2},
		{"recent platform", 1024, 2, false, PlatformRecent, 1},
		{"newest platform", 1024, 2, false, PlatformNewest, 2},
	}
	for _, tt := range tests {
		if got := Score(tt.memoryMB, tt.cpuCores, tt.hasGPU, tt.platformTier); got != tt.want {
			t.Errorf("%s: Score=%d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestTierFromScore(t *testing.T) {
	tests := []struct {
		score int
		want  Tier
	}{
		{10, TierHigh},
		{8, TierHigh},
		{7, TierMedium},
		{5, TierMedium},
		{4, TierLow},
		{0, TierLow},
	}
	for _, tt := range tests {
		if got := TierFromScore(tt.score); got != tt.want {
			t.Errorf("TierFromScore(%d)=%s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	if got := Classify(600, "pixel-tablet"); got != ClassTablet {
		t.Fatalf("600dp should classify as tablet, got %s", got)
	}
	if got := Classify(411, "pixel-8"); got != ClassPhone {
		t.Fatalf("small screen should classify as phone, got %s", got)
	}
	if got := Classify(0, "bravia-tv"); got != ClassOther {
		t.Fatalf("tv product should classify as other, got %s", got)
	}
	if got := Classify(0, "streaming-box-4k"); got != ClassOther {
		t.Fatalf("box product should classify as other, got %s", got)
	}
}

func TestConservativeDefault(t *testing.T) {
	d := ConservativeDefault()
	if d.Tier != TierLow {
		t.Fatalf("default must be LOW tier, got %s", d.Tier)
	}
	if d.CPUCores != 4 || d.MemoryMB != 1024 || d.HasGPU {
		t.Fatalf("unexpected conservative hardware: %+v", d)
	}
	if d.Score != Score(d.MemoryMB, d.CPUCores, d.HasGPU, d.PlatformTier) {
		t.Fatalf("default score inconsistent with its own inputs: %+v", d)
	}
}
