package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/buildsite/safesight/internal/domain/analysis"
)

// Runtime port (interface to the opaque on-device inference engine)
type Runtime interface {
	Init(ctx context.Context, backend Backend) error
	Infer(ctx context.Context, image []byte, wt analysis.WorkType, p analysis.DetectionParams) (*analysis.SafetyAnalysis, error)
	Ping(ctx context.Context) error
	Close() error
}

// HTTPRuntime talks to the local inference sidecar over loopback HTTP. The
// sidecar owns the model weights and the CPU/GPU/NPU execution paths; this
// client only carries requests and maps its status codes onto the engine
// error taxonomy.
type HTTPRuntime struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRuntime(baseURL string) *HTTPRuntime {
	return &HTTPRuntime{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type initRequest struct {
	Backend string `json:"backend"`
}

type inferRequest struct {
	ImageB64            string  `json:"image_b64"`
	WorkType            string  `json:"work_type"`
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`
	IoUThreshold        float64 `json:"iou_threshold,omitempty"`
}

type inferResponse struct {
	Hazards         []analysis.Hazard      `json:"hazards"`
	PPE             analysis.PPECompliance `json:"ppe"`
	RiskLevel       analysis.RiskLevel     `json:"risk_level"`
	Confidence      float64                `json:"confidence"`
	Recommendations []string               `json:"recommendations"`
}

func (r *HTTPRuntime) Init(ctx context.Context, backend Backend) error {
	body, _ := json.Marshal(initRequest{Backend: string(backend)})
	resp, err := r.post(ctx, "/v1/init", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return r.statusError(resp)
}

func (r *HTTPRuntime) Infer(ctx context.Context, image []byte, wt analysis.WorkType, p analysis.DetectionParams) (*analysis.SafetyAnalysis, error) {
	body, err := json.Marshal(inferRequest{
		ImageB64:            base64.StdEncoding.EncodeToString(image),
		WorkType:            string(wt),
		ConfidenceThreshold: p.ConfidenceThreshold,
		IoUThreshold:        p.IoUThreshold,
	})
	if err != nil {
		return nil, err
	}
	resp, err := r.post(ctx, "/v1/infer", body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", analysis.ErrInference, err)
	}
	defer resp.Body.Close()
	if err := r.statusError(resp); err != nil {
		return nil, err
	}

	var out inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", analysis.ErrInference, err)
	}
	return &analysis.SafetyAnalysis{
		Hazards:         out.Hazards,
		PPE:             out.PPE,
		RiskLevel:       out.RiskLevel,
		Confidence:      out.Confidence,
		Recommendations: out.Recommendations,
	}, nil
}

func (r *HTTPRuntime) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/v1/health", nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine health: status %d", resp.StatusCode)
	}
	return nil
}

func (r *HTTPRuntime) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

func (r *HTTPRuntime) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return r.client.Do(req)
}

func (r *HTTPRuntime) statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusInsufficientStorage:
		return analysis.ErrOutOfMemory
	case resp.StatusCode == http.StatusServiceUnavailable:
		return analysis.ErrUnavailable
	default:
		return fmt.Errorf("%w: engine status %d", analysis.ErrInference, resp.StatusCode)
	}
}
