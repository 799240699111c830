package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/buildsite/safesight/internal/domain/analysis"
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a certified construction site safety inspector. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- Use lowercase severity values: critical, high, medium, low.
- Use lowercase risk_level values: critical, high, moderate, low.
- Bounding boxes are normalized to [0,1]: {"x","y","w","h"}.
- Cite OSHA 29 CFR 1926 subpart codes where applicable.

Schema:
{
  "hazards": [
    {"type": "...", "severity": "...", "confidence": 0.0,
     "box": {"x":0,"y":0,"w":0,"h":0}, "osha_code": "...", "description": "..."}
  ],
  "ppe": {"compliant": true, "missing_items": ["..."], "score": 0.0},
  "risk_level": "...",
  "confidence": 0.0,
  "recommendations": ["..."]
}`
}

// GetUserPrompt frames the photograph for the given work activity.
func GetUserPrompt(wt analysis.WorkType) string {
	return fmt.Sprintf(
		"Analyze this construction site photograph for safety hazards and PPE compliance. The crew is performing %s work. Report every visible hazard with severity, confidence, and a bounding box where possible.",
		wt,
	)
}

// ParseAnalysis decodes the model's JSON into a SafetyAnalysis. Code fences
// and surrounding prose are tolerated; anything without a parsable object is
// an inference error.
func ParseAnalysis(raw string) (*analysis.SafetyAnalysis, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	if start := strings.IndexByte(cleaned, '{'); start > 0 {
		cleaned = cleaned[start:]
	}
	if end := strings.LastIndexByte(cleaned, '}'); end >= 0 {
		cleaned = cleaned[:end+1]
	}

	var out struct {
		Hazards         []analysis.Hazard      `json:"hazards"`
		PPE             analysis.PPECompliance `json:"ppe"`
		RiskLevel       analysis.RiskLevel     `json:"risk_level"`
		Confidence      float64                `json:"confidence"`
		Recommendations []string               `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, fmt.Errorf("%w: parse model output: %v", analysis.ErrInference, err)
	}
	if out.RiskLevel == "" {
		out.RiskLevel = analysis.RiskLow
	}
	return &analysis.SafetyAnalysis{
		Hazards:         out.Hazards,
		PPE:             out.PPE,
		RiskLevel:       out.RiskLevel,
		Confidence:      out.Confidence,
		Recommendations: out.Recommendations,
	}, nil
}
