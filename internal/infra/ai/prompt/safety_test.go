package prompt

import (
	"errors"
	"strings"
	"testing"

	"github.com/buildsite/safesight/internal/domain/analysis"
)

const sampleJSON = `{
  "hazards": [
    {"type": "missing_hard_hat", "severity": "high", "confidence": 0.92,
     "box": {"x": 0.1, "y": 0.2, "w": 0.3, "h": 0.4}, "osha_code": "1926.100"}
  ],
  "ppe": {"compliant": false, "missing_items": ["hard_hat"], "score": 0.4},
  "risk_level": "high",
  "confidence": 0.88,
  "recommendations": ["Issue hard hats to all workers in the frame."]
}`

func TestParseAnalysisPlainJSON(t *testing.T) {
	res, err := ParseAnalysis(sampleJSON)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(res.Hazards) != 1 || res.Hazards[0].Type != "missing_hard_hat" {
		t.Fatalf("unexpected hazards: %+v", res.Hazards)
	}
	if res.Hazards[0].Box == nil || res.Hazards[0].Box.W != 0.3 {
		t.Fatalf("bounding box lost: %+v", res.Hazards[0].Box)
	}
	if res.RiskLevel != analysis.RiskHigh || res.Confidence != 0.88 {
		t.Fatalf("unexpected summary fields: %+v", res)
	}
	if res.PPE.Compliant || len(res.PPE.MissingItems) != 1 {
		t.Fatalf("unexpected ppe: %+v", res.PPE)
	}
}

func TestParseAnalysisStripsCodeFences(t *testing.T) {
	fenced := "```json\n" + sampleJSON + "\n```"
	res, err := ParseAnalysis(fenced)
	if err != nil {
		t.Fatalf("parse fenced: %v", err)
	}
	if len(res.Hazards) != 1 {
		t.Fatalf("unexpected hazards: %+v", res.Hazards)
	}
}

func TestParseAnalysisTolerateSurroundingProse(t *testing.T) {
	wrapped := "Here is the analysis you requested:\n" + sampleJSON + "\nLet me know if you need more."
	res, err := ParseAnalysis(wrapped)
	if err != nil {
		t.Fatalf("parse wrapped: %v", err)
	}
	if res.RiskLevel != analysis.RiskHigh {
		t.Fatalf("unexpected risk: %s", res.RiskLevel)
	}
}

func TestParseAnalysisDefaultsRiskLevel(t *testing.T) {
	res, err := ParseAnalysis(`{"hazards": [], "confidence": 0.9}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.RiskLevel != analysis.RiskLow {
		t.Fatalf("missing risk_level must default to low, got %s", res.RiskLevel)
	}
}

func TestParseAnalysisRejectsGarbage(t *testing.T) {
	_, err := ParseAnalysis("the model refused to answer")
	if !errors.Is(err, analysis.ErrInference) {
		t.Fatalf("expected inference error, got %v", err)
	}
}

func TestUserPromptNamesWorkType(t *testing.T) {
	p := GetUserPrompt(analysis.WorkTypeScaffolding)
	if !strings.Contains(p, "scaffolding") {
		t.Fatalf("prompt must name the work activity: %q", p)
	}
}
