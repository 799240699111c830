package analysis

import "context"

// Capability tags what a strategy can do.
type Capability string

const (
	CapabilityHazardDetection Capability = "hazard_detection"
	CapabilityPPECompliance   Capability = "ppe_compliance"
	CapabilityBoundingBoxes   Capability = "bounding_boxes"
	CapabilityOffline         Capability = "offline"
)

// Strategy port (interface for one concrete analysis backend).
// Strategies are stateless from the coordinator's perspective; each
// instance owns its own backend resources.
type Strategy interface {
	Name() string
	Priority() int
	Capabilities() []Capability
	IsAvailable(ctx context.Context) bool
	Analyze(ctx context.Context, image []byte, wt WorkType) (*SafetyAnalysis, error)
	Configure(credential string) error
}

// Tunable is implemented by strategies that accept detection parameter
// updates at runtime.
type Tunable interface {
	SetDetectionParams(p DetectionParams) error
}

// ThrottleReporter is implemented by strategies that can report a thermal
// downgrade, so the coordinator can shrink their timeout budget.
type ThrottleReporter interface {
	Throttled() bool
}

// Repository port (persistence for completed analyses)
type Repository interface {
	Save(ctx context.Context, rec *AnalysisRecord) error
	Get(ctx context.Context, site string, id AnalysisID) (*AnalysisRecord, error)
	Latest(ctx context.Context, site string, limit int) ([]*AnalysisRecord, error)
	Summary(ctx context.Context, site string, sinceDays int) (total, critical, high, medium int, err error)
}

// FailureRepository port (persistence for cascade attempt failures)
type FailureRepository interface {
	Save(ctx context.Context, f *AttemptFailure) error
	ListByRequest(ctx context.Context, site string, requestID string, limit int) ([]*AttemptFailure, error)
}

// ArtifactStore port (object storage for images and report JSON)
type ArtifactStore interface {
	UploadBytes(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
