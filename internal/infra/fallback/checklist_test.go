package fallback

import (
	"context"
	"testing"

	"github.com/buildsite/safesight/internal/domain/analysis"
)

func TestAnalyzeAlwaysAvailable(t *testing.T) {
	s := NewStrategy(10)
	if !s.IsAvailable(context.Background()) {
		t.Fatal("the checklist fallback must always be available")
	}
}

func TestAnalyzeReturnsChecklistForWorkType(t *testing.T) {
	s := NewStrategy(10)

	res, err := s.Analyze(context.Background(), []byte("ignored"), analysis.WorkTypeExcavation)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	var foundTrench bool
	for _, h := range res.Hazards {
		if h.Type == "trench_collapse" {
			foundTrench = true
		}
	}
	if !foundTrench {
		t.Fatalf("excavation checklist missing trench_collapse: %+v", res.Hazards)
	}
	// The general baseline entries apply to every work type.
	var foundPPE bool
	for _, h := range res.Hazards {
		if h.Type == "ppe_unverified" {
			foundPPE = true
		}
	}
	if !foundPPE {
		t.Fatal("general baseline entries must always be included")
	}
	if len(res.Recommendations) != len(res.Hazards) {
		t.Fatalf("each hazard carries one recommendation: %d vs %d", len(res.Recommendations), len(res.Hazards))
	}
}

func TestAnalyzeRiskDerivedFromSeverities(t *testing.T) {
	s := NewStrategy(10)

	res, err := s.Analyze(context.Background(), nil, analysis.WorkTypeRoofing)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if res.RiskLevel != analysis.RiskCritical {
		t.Fatalf("roofing includes a critical hazard, expected critical risk, got %s", res.RiskLevel)
	}

	res, err = s.Analyze(context.Background(), nil, analysis.WorkTypeGeneral)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if res.RiskLevel != analysis.RiskModerate {
		t.Fatalf("general checklist tops out at medium severity, expected moderate risk, got %s", res.RiskLevel)
	}
}

func TestAnalyzeHonorsConfidenceThreshold(t *testing.T) {
	s := NewStrategy(10)
	if err := s.SetDetectionParams(analysis.DetectionParams{ConfidenceThreshold: 0.55}); err != nil {
		t.Fatalf("set params: %v", err)
	}

	res, err := s.Analyze(context.Background(), nil, analysis.WorkTypeExcavation)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	for _, h := range res.Hazards {
		if h.Confidence < 0.55 {
			t.Fatalf("hazard %s below threshold leaked through: %.2f", h.Type, h.Confidence)
		}
	}
}

func TestAnalyzeRespectsContextCancellation(t *testing.T) {
	s := NewStrategy(10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Analyze(ctx, nil, analysis.WorkTypeGeneral); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
