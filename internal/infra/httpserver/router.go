package httpserver

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/buildsite/safesight/internal/application/orchestrator"
	"github.com/buildsite/safesight/internal/domain/analysis"
	"github.com/buildsite/safesight/internal/middleware"
)

const maxMultipartMemory = 10 << 20

// Router exposes the analysis coordinator and the history repository over
// HTTP. All /v1 routes run behind the middleware chain installed by the
// caller; health and metrics are left open.
type Router struct {
	coord *orchestrator.Coordinator
	repo  analysis.Repository
}

type Options struct {
	// HealthCheckers feed the deep /healthz endpoint (database, object
	// storage, engine sidecar).
	HealthCheckers map[string]middleware.HealthChecker
}

func NewRouter(coord *orchestrator.Coordinator, repo analysis.Repository, opts Options) http.Handler {
	r := &Router{coord: coord, repo: repo}
	mux := chi.NewRouter()

	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	mux.Get("/health", middleware.LivenessHandler)
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/healthz", r.handleDeepHealth(opts.HealthCheckers))
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1/{site}", func(rt chi.Router) {
		rt.Post("/analyze", r.wrap(r.handleAnalyze))
		rt.Get("/analyses/latest", r.wrap(r.handleLatest))
		rt.Get("/analyses/{id}", r.wrap(r.handleGet))
		rt.Get("/summary", r.wrap(r.handleSummary))
		rt.Get("/capability", r.wrap(r.handleCapability))
		rt.Get("/stats", r.wrap(r.handleStats))
		rt.Delete("/stats", r.wrap(r.handleResetStats))
		rt.Post("/detection-params", r.wrap(r.handleDetectionParams))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			var vErr *analysis.ValidationError
			if errors.As(err, &vErr) {
				http.Error(w, vErr.Error(), http.StatusBadRequest)
				return
			}
			var exErr *analysis.ExhaustedError
			if errors.As(err, &exErr) {
				http.Error(w, exErr.Error(), http.StatusBadGateway)
				return
			}
			if errors.Is(err, analysis.ErrQuotaExceeded) {
				http.Error(w, "analysis quota exceeded", http.StatusTooManyRequests)
				return
			}
			if errors.Is(err, sql.ErrNoRows) {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

// POST /v1/{site}/analyze
// Accepts multipart form (image file + work_type field) or a JSON body
// with a base64 image.
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	site := chi.URLParam(req, "site")

	image, workType, err := readAnalyzeRequest(req)
	if err != nil {
		return err
	}

	middleware.IncrementAnalyses()
	middleware.IncrementAnalysesRunning()
	defer middleware.DecrementAnalysesRunning()

	result, err := r.coord.Analyze(req.Context(), site, image, analysis.WorkType(workType))
	if err != nil {
		middleware.IncrementAnalysesFailed()
		return err
	}
	return writeJSON(w, result)
}

func readAnalyzeRequest(req *http.Request) (image []byte, workType string, err error) {
	ct := req.Header.Get("Content-Type")
	if err := middleware.ValidateImageContentType(ct); err != nil {
		return nil, "", &analysis.ValidationError{Field: "content_type", Message: err.Error()}
	}

	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := req.ParseMultipartForm(maxMultipartMemory); err != nil {
			return nil, "", &analysis.ValidationError{Field: "body", Message: err.Error()}
		}
		file, _, err := req.FormFile("image")
		if err != nil {
			return nil, "", &analysis.ValidationError{Field: "image", Message: "missing image file"}
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", err
		}
		return data, req.FormValue("work_type"), nil
	}

	var body struct {
		ImageB64 string `json:"image_b64"`
		WorkType string `json:"work_type"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return nil, "", &analysis.ValidationError{Field: "body", Message: err.Error()}
	}
	data, err := base64.StdEncoding.DecodeString(body.ImageB64)
	if err != nil {
		return nil, "", &analysis.ValidationError{Field: "image_b64", Message: "invalid base64"}
	}
	return data, body.WorkType, nil
}

// GET /v1/{site}/analyses/latest?limit=20
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	site := chi.URLParam(req, "site")
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	limit = middleware.ValidateLimit(limit)

	list, err := r.repo.Latest(req.Context(), site, limit)
	if err != nil {
		return err
	}
	return writeJSON(w, list)
}

// GET /v1/{site}/analyses/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	site := chi.URLParam(req, "site")
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateAnalysisID(id); err != nil {
		return &analysis.ValidationError{Field: "id", Message: err.Error()}
	}

	rec, err := r.repo.Get(req.Context(), site, analysis.AnalysisID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, rec)
}

// GET /v1/{site}/summary?days=7
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	site := chi.URLParam(req, "site")
	days, _ := strconv.Atoi(req.URL.Query().Get("days"))
	days = middleware.ValidateDays(days)

	total, critical, high, medium, err := r.repo.Summary(req.Context(), site, days)
	if err != nil {
		return err
	}
	return writeJSON(w, map[string]any{
		"site":     site,
		"days":     days,
		"total":    total,
		"critical": critical,
		"high":     high,
		"medium":   medium,
	})
}

// GET /v1/{site}/capability
func (r *Router) handleCapability(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, r.coord.DeviceCapability())
}

// GET /v1/{site}/stats
func (r *Router) handleStats(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, r.coord.Stats())
}

// DELETE /v1/{site}/stats
func (r *Router) handleResetStats(w http.ResponseWriter, req *http.Request) error {
	r.coord.ResetStats()
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// POST /v1/{site}/detection-params
func (r *Router) handleDetectionParams(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		ConfidenceThreshold float64 `json:"confidence_threshold"`
		IoUThreshold        float64 `json:"iou_threshold"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return &analysis.ValidationError{Field: "body", Message: err.Error()}
	}
	if err := r.coord.UpdateDetectionParameters(body.ConfidenceThreshold, body.IoUThreshold); err != nil {
		return err
	}
	return writeJSON(w, map[string]any{
		"status":               "updated",
		"confidence_threshold": body.ConfidenceThreshold,
		"iou_threshold":        body.IoUThreshold,
	})
}

// GET /healthz — deep health: strategy availability plus infrastructure
// checkers (database, object storage, engine sidecar).
func (r *Router) handleDeepHealth(checkers map[string]middleware.HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()

		strategies := r.coord.HealthCheck(ctx)

		checks := make(map[string]middleware.CheckStatus, len(checkers))
		healthy := strategies.Healthy
		for name, checker := range checkers {
			if err := checker.Check(ctx); err != nil {
				healthy = false
				checks[name] = middleware.CheckStatus{Status: "unhealthy", Message: err.Error()}
			} else {
				checks[name] = middleware.CheckStatus{Status: "healthy"}
			}
		}

		status := "healthy"
		code := http.StatusOK
		if !healthy {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]any{
			"status":     status,
			"timestamp":  strategies.Timestamp,
			"checks":     checks,
			"strategies": strategies.Strategies,
		})
	}
}
