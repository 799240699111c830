package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ID type for a stored analysis
type AnalysisID string

// WorkType enum (kind of construction activity, supplied by the caller)
type WorkType string

const (
	WorkTypeGeneral     WorkType = "general"
	WorkTypeElectrical  WorkType = "electrical"
	WorkTypeRoofing     WorkType = "roofing"
	WorkTypeExcavation  WorkType = "excavation"
	WorkTypeScaffolding WorkType = "scaffolding"
	WorkTypeWelding     WorkType = "welding"
	WorkTypeDemolition  WorkType = "demolition"
)

// KnownWorkTypes lists the accepted work type tags.
var KnownWorkTypes = []WorkType{
	WorkTypeGeneral, WorkTypeElectrical, WorkTypeRoofing,
	WorkTypeExcavation, WorkTypeScaffolding, WorkTypeWelding,
	WorkTypeDemolition,
}

// AnalysisType identifies which strategy produced a result
type AnalysisType string

const (
	TypeOnDevice AnalysisType = "on_device"
	TypeCloud    AnalysisType = "cloud"
	TypeFallback AnalysisType = "local_fallback"
)

// Severity enum
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// RiskLevel enum
type RiskLevel string

const (
	RiskCritical RiskLevel = "critical"
	RiskHigh     RiskLevel = "high"
	RiskModerate RiskLevel = "moderate"
	RiskLow      RiskLevel = "low"
)

// BoundingBox is normalized to [0,1] relative to image dimensions.
type BoundingBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Hazard is a single detected hazard.
type Hazard struct {
	Type        string       `json:"type"`
	Severity    Severity     `json:"severity"`
	Confidence  float64      `json:"confidence"`
	Box         *BoundingBox `json:"box,omitempty"`
	OSHACode    string       `json:"osha_code,omitempty"`
	Description string       `json:"description,omitempty"`
}

// PPECompliance summarizes protective-equipment findings.
type PPECompliance struct {
	Compliant    bool     `json:"compliant"`
	MissingItems []string `json:"missing_items,omitempty"`
	Score        float64  `json:"score"`
}

// HazardCounts value object
type HazardCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// SafetyAnalysis is the analysis result. Immutable once returned; the
// coordinator builds a new value when it needs to adjust one.
type SafetyAnalysis struct {
	ID              AnalysisID    `json:"id"`
	WorkType        WorkType      `json:"work_type"`
	Hazards         []Hazard      `json:"hazards"`
	PPE             PPECompliance `json:"ppe"`
	RiskLevel       RiskLevel     `json:"risk_level"`
	Confidence      float64       `json:"confidence"`
	Recommendations []string      `json:"recommendations,omitempty"`
	Source          AnalysisType  `json:"source"`
	ProcessingMS    int64         `json:"processing_ms"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Counts tallies hazards by severity.
func (a *SafetyAnalysis) Counts() HazardCounts {
	var c HazardCounts
	for _, h := range a.Hazards {
		switch h.Severity {
		case SeverityCritical:
			c.Critical++
		case SeverityHigh:
			c.High++
		case SeverityMedium:
			c.Medium++
		case SeverityLow:
			c.Low++
		}
		c.Total++
	}
	return c
}

// Request is an immutable analysis request.
type Request struct {
	Image     []byte
	WorkType  WorkType
	CreatedAt time.Time
}

// Fingerprint derives the cache key from image content and work type.
// Identical images under the same work type always collide; different
// work types never do.
func Fingerprint(image []byte, wt WorkType) string {
	h := sha256.New()
	h.Write(image)
	h.Write([]byte{0})
	h.Write([]byte(wt))
	return hex.EncodeToString(h.Sum(nil))
}

// DetectionParams are tunables pushed down to detector strategies.
type DetectionParams struct {
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	IoUThreshold        float64 `json:"iou_threshold"`
}

// AnalysisRecord is a persisted analysis row for auditing and retrieval.
type AnalysisRecord struct {
	ID         AnalysisID   `json:"id"`
	SiteID     string       `json:"site_id"`
	WorkType   WorkType     `json:"work_type"`
	ResultJSON string       `json:"result"`
	ImageURL   string       `json:"image_url,omitempty"`
	ReportURL  string       `json:"report_url,omitempty"`
	Source     AnalysisType `json:"source"`
	Counts     HazardCounts `json:"counts"`
	DurationMS int64        `json:"duration_ms"`
	CreatedAt  time.Time    `json:"created_at"`
}

// AttemptFailure is a persisted record of one failed or skipped cascade
// attempt, kept for diagnostics.
type AttemptFailure struct {
	ID        int64     `json:"id"`
	SiteID    string    `json:"site_id"`
	RequestID string    `json:"request_id"`
	Strategy  string    `json:"strategy"`
	Phase     string    `json:"phase"` // skipped | attempted
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
