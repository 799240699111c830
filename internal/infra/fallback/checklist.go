package fallback

import (
	"context"
	"sync"

	"github.com/buildsite/safesight/internal/domain/analysis"
)

// Strategy is the degraded local fallback: a rule-based checklist analyzer
// that needs no model, no network, and no accelerator. It reports the known
// baseline hazards for the declared work activity so a caller is never left
// with nothing when the real analyzers are down. The coordinator weakens its
// confidence and appends a caveat before returning it.
type Strategy struct {
	priority int

	mu     sync.Mutex
	params analysis.DetectionParams
}

func NewStrategy(priority int) *Strategy {
	return &Strategy{priority: priority}
}

func (s *Strategy) Name() string  { return "checklist-fallback" }
func (s *Strategy) Priority() int { return s.priority }

func (s *Strategy) Capabilities() []analysis.Capability {
	return []analysis.Capability{
		analysis.CapabilityHazardDetection,
		analysis.CapabilityOffline,
	}
}

// IsAvailable is always true; the checklist is the floor the cascade stands on.
func (s *Strategy) IsAvailable(ctx context.Context) bool { return true }

func (s *Strategy) Configure(credential string) error { return nil }

func (s *Strategy) SetDetectionParams(p analysis.DetectionParams) error {
	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
	return nil
}

// checklistEntry is one baseline hazard for a work activity.
type checklistEntry struct {
	hazard         analysis.Hazard
	recommendation string
}

var checklists = map[analysis.WorkType][]checklistEntry{
	analysis.WorkTypeElectrical: {
		{
			hazard: analysis.Hazard{
				Type: "electrical_contact", Severity: analysis.SeverityCritical, Confidence: 0.6,
				OSHACode: "1926.416", Description: "Energized circuits likely present in the work area.",
			},
			recommendation: "Verify lockout/tagout before any contact with circuits.",
		},
		{
			hazard: analysis.Hazard{
				Type: "missing_insulated_gloves", Severity: analysis.SeverityHigh, Confidence: 0.5,
				OSHACode: "1926.97", Description: "Insulated gloves cannot be confirmed.",
			},
			recommendation: "Confirm rated insulated gloves for all electrical tasks.",
		},
	},
	analysis.WorkTypeRoofing: {
		{
			hazard: analysis.Hazard{
				Type: "fall_from_height", Severity: analysis.SeverityCritical, Confidence: 0.65,
				OSHACode: "1926.501", Description: "Roof work implies unprotected edges until proven otherwise.",
			},
			recommendation: "Verify guardrails or personal fall arrest before continuing roof work.",
		},
	},
	analysis.WorkTypeExcavation: {
		{
			hazard: analysis.Hazard{
				Type: "trench_collapse", Severity: analysis.SeverityCritical, Confidence: 0.6,
				OSHACode: "1926.652", Description: "Excavations over 5 feet require protective systems.",
			},
			recommendation: "Confirm shoring, shielding, or sloping for any trench over 5 feet.",
		},
		{
			hazard: analysis.Hazard{
				Type: "spoil_pile_proximity", Severity: analysis.SeverityMedium, Confidence: 0.5,
				OSHACode: "1926.651", Description: "Spoil piles within 2 feet of the edge load the trench wall.",
			},
			recommendation: "Keep spoil piles at least 2 feet from the excavation edge.",
		},
	},
	analysis.WorkTypeScaffolding: {
		{
			hazard: analysis.Hazard{
				Type: "scaffold_integrity", Severity: analysis.SeverityHigh, Confidence: 0.55,
				OSHACode: "1926.451", Description: "Scaffold planking and guardrails cannot be verified.",
			},
			recommendation: "Have a competent person inspect the scaffold before each shift.",
		},
	},
	analysis.WorkTypeWelding: {
		{
			hazard: analysis.Hazard{
				Type: "hot_work_fire", Severity: analysis.SeverityHigh, Confidence: 0.55,
				OSHACode: "1926.352", Description: "Hot work near combustibles without a confirmed fire watch.",
			},
			recommendation: "Post a fire watch and clear combustibles within 35 feet.",
		},
	},
	analysis.WorkTypeDemolition: {
		{
			hazard: analysis.Hazard{
				Type: "structural_collapse", Severity: analysis.SeverityCritical, Confidence: 0.6,
				OSHACode: "1926.850", Description: "Demolition requires an engineering survey before work starts.",
			},
			recommendation: "Confirm the pre-demolition engineering survey is current.",
		},
	},
}

// generalChecklist applies to every work type.
var generalChecklist = []checklistEntry{
	{
		hazard: analysis.Hazard{
			Type: "ppe_unverified", Severity: analysis.SeverityMedium, Confidence: 0.5,
			OSHACode: "1926.95", Description: "Hard hats, eye protection, and high-visibility vests cannot be confirmed without visual analysis.",
		},
		recommendation: "Visually confirm hard hats, eye protection, and high-visibility vests on all workers.",
	},
	{
		hazard: analysis.Hazard{
			Type: "housekeeping", Severity: analysis.SeverityLow, Confidence: 0.45,
			OSHACode: "1926.25", Description: "Debris and materials in walkways are the most common unreported hazard.",
		},
		recommendation: "Clear walkways and stack materials away from work areas.",
	},
}

// Analyze returns the deterministic checklist for the work type. The image
// bytes are not inspected; this strategy exists for when nothing that can
// inspect them is reachable.
func (s *Strategy) Analyze(ctx context.Context, image []byte, wt analysis.WorkType) (*analysis.SafetyAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	minConfidence := s.params.ConfidenceThreshold
	s.mu.Unlock()

	entries := append(append([]checklistEntry(nil), checklists[wt]...), generalChecklist...)

	var hazards []analysis.Hazard
	var recommendations []string
	for _, e := range entries {
		if minConfidence > 0 && e.hazard.Confidence < minConfidence {
			continue
		}
		hazards = append(hazards, e.hazard)
		recommendations = append(recommendations, e.recommendation)
	}

	result := &analysis.SafetyAnalysis{
		WorkType:        wt,
		Hazards:         hazards,
		Recommendations: recommendations,
		Confidence:      0.5,
		PPE: analysis.PPECompliance{
			Compliant:    false,
			MissingItems: []string{"unverified"},
			Score:        0,
		},
	}
	result.RiskLevel = riskFromCounts(result.Counts())
	return result, nil
}

func riskFromCounts(c analysis.HazardCounts) analysis.RiskLevel {
	switch {
	case c.Critical > 0:
		return analysis.RiskCritical
	case c.High > 0:
		return analysis.RiskHigh
	case c.Medium > 0:
		return analysis.RiskModerate
	default:
		return analysis.RiskLow
	}
}
