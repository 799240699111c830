package httpserver

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/buildsite/safesight/internal/application/orchestrator"
	"github.com/buildsite/safesight/internal/domain/analysis"
	"github.com/buildsite/safesight/internal/domain/device"
	"github.com/buildsite/safesight/internal/infra/fallback"
)

type fixedAssessor struct{}

func (fixedAssessor) Assess(ctx context.Context) device.DeviceCapability {
	return device.DeviceCapability{Tier: device.TierHigh}
}

type memRepo struct {
	records map[analysis.AnalysisID]*analysis.AnalysisRecord
}

func (r *memRepo) Save(ctx context.Context, rec *analysis.AnalysisRecord) error {
	r.records[rec.ID] = rec
	return nil
}

func (r *memRepo) Get(ctx context.Context, site string, id analysis.AnalysisID) (*analysis.AnalysisRecord, error) {
	rec, ok := r.records[id]
	if !ok || rec.SiteID != site {
		return nil, sql.ErrNoRows
	}
	return rec, nil
}

func (r *memRepo) Latest(ctx context.Context, site string, limit int) ([]*analysis.AnalysisRecord, error) {
	var out []*analysis.AnalysisRecord
	for _, rec := range r.records {
		if rec.SiteID == site {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memRepo) Summary(ctx context.Context, site string, sinceDays int) (total, critical, high, medium int, err error) {
	return len(r.records), 0, 0, 0, nil
}

func newTestServer(t *testing.T) (http.Handler, *memRepo) {
	t.Helper()
	coord := orchestrator.NewCoordinator(
		orchestrator.Config{TargetFPS: 10000},
		fixedAssessor{},
		[]orchestrator.Candidate{
			{Strategy: fallback.NewStrategy(10), Type: analysis.TypeFallback, Degraded: true},
		},
		orchestrator.Deps{},
	)
	repo := &memRepo{records: make(map[analysis.AnalysisID]*analysis.AnalysisRecord)}
	return NewRouter(coord, repo, Options{}), repo
}

// newMultipart writes a form with one file part and extra fields, returning
// the content type to set on the request.
func newMultipart(t *testing.T, buf *bytes.Buffer, fileField string, file []byte, fields map[string]string) string {
	t.Helper()
	w := multipart.NewWriter(buf)
	fw, err := w.CreateFormFile(fileField, "frame.jpg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(file); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return w.FormDataContentType()
}

func TestAnalyzeJSONRoundTrip(t *testing.T) {
	h, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]string{
		"image_b64": base64.StdEncoding.EncodeToString([]byte("jpeg-bytes")),
		"work_type": "roofing",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/site-a/analyze", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	var res analysis.SafetyAnalysis
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Source != analysis.TypeFallback {
		t.Fatalf("expected fallback source, got %s", res.Source)
	}
	if res.WorkType != analysis.WorkTypeRoofing {
		t.Fatalf("expected roofing, got %s", res.WorkType)
	}
}

func TestAnalyzeRejectsBadInput(t *testing.T) {
	h, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty image", `{"image_b64": "", "work_type": "general"}`},
		{"bad base64", `{"image_b64": "!!!not-base64!!!", "work_type": "general"}`},
		{"unknown work type", `{"image_b64": "aW1n", "work_type": "plumbing"}`},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/v1/site-a/analyze", bytes.NewReader([]byte(tt.body)))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d (%s)", tt.name, rr.Code, rr.Body.String())
		}
	}
}

func TestAnalyzeMultipart(t *testing.T) {
	h, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := newMultipart(t, &buf, "image", []byte("jpeg-bytes"), map[string]string{"work_type": "welding"})

	req := httptest.NewRequest(http.MethodPost, "/v1/site-a/analyze", &buf)
	req.Header.Set("Content-Type", mw)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
}

func TestGetUnknownAnalysisReturns404(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/site-a/analyses/6ba7b810-9dad-11d1-80b4-00c04fd430c8", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestGetMalformedAnalysisIDReturns400(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/site-a/analyses/not-a-uuid", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCapabilityAndStatsEndpoints(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/site-a/capability", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("capability: status %d", rr.Code)
	}
	var cap device.DeviceCapability
	if err := json.Unmarshal(rr.Body.Bytes(), &cap); err != nil {
		t.Fatalf("capability decode: %v", err)
	}
	if cap.Tier != device.TierHigh {
		t.Fatalf("unexpected tier: %s", cap.Tier)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/site-a/stats", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("stats: status %d", rr.Code)
	}
}

func TestDetectionParamsValidation(t *testing.T) {
	h, _ := newTestServer(t)

	bad := `{"confidence_threshold": 1.5, "iou_threshold": 0.5}`
	req := httptest.NewRequest(http.MethodPost, "/v1/site-a/detection-params", bytes.NewReader([]byte(bad)))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range threshold, got %d", rr.Code)
	}

	good := `{"confidence_threshold": 0.6, "iou_threshold": 0.4}`
	req = httptest.NewRequest(http.MethodPost, "/v1/site-a/detection-params", bytes.NewReader([]byte(good)))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rr.Code, rr.Body.String())
	}
}

func TestLivenessEndpoint(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
