package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/headers"
	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/jobs"
	"github.com/andycungkrinx91/Nginx-AI-Security-Suite/internal/metrics"
)

const maxUploadBytes = 32 << 20

// API handles HTTP requests for the analysis service
type API struct {
	orchestrator  *jobs.Orchestrator
	store         jobs.Store
	headerScanner *headers.Scanner
	metrics       *metrics.Metrics
	logger        *slog.Logger
	startupErr    string
}

// NewAPI creates a new HTTP API handler. startupErr marks degraded mode:
// when non-empty, analysis endpoints report it instead of crashing the
// process at boot.
func NewAPI(orchestrator *jobs.Orchestrator, store jobs.Store, headerScanner *headers.Scanner, m *metrics.Metrics, startupErr string, logger *slog.Logger) *API {
	return &API{
		orchestrator:  orchestrator,
		store:         store,
		headerScanner: headerScanner,
		metrics:       m,
		logger:        logger,
		startupErr:    startupErr,
	}
}

// Router builds the route table
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/analyze", a.handleAnalyze)
	r.Get("/jobs/{id}", a.handleGetJob)
	r.Delete("/jobs/{id}", a.handleCancelJob)
	r.Post("/scan-headers", a.handleScanHeaders)

	r.Get("/healthz", a.handleHealth)
	r.Get("/readyz", a.handleReady)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())

	return r
}

// handleAnalyze accepts a log upload and starts an asynchronous analysis
// job, returning its ID immediately
func (a *API) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if a.startupErr != "" {
		writeError(w, http.StatusServiceUnavailable, "Analysis service is not available due to startup error: "+a.startupErr)
		return
	}

	content, logType, err := readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if logType == "" {
		writeError(w, http.StatusBadRequest, "log_type is required")
		return
	}
	if len(content) == 0 {
		writeError(w, http.StatusBadRequest, "empty log upload")
		return
	}

	jobID, err := a.orchestrator.Submit(r.Context(), content, logType)
	if err != nil {
		a.logger.Error("Failed to submit analysis job", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to submit analysis job")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "Analysis request received.",
		"job_id":  jobID,
	})
}

// handleGetJob reports the status, progress note, and (when finished) the
// result of a job
func (a *API) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	job, err := a.store.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		a.logger.Error("Failed to load job", "job_id", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// handleCancelJob requests best-effort cancellation. Canceling an unknown
// job is a 404, never a destructive failure; a job past the point of
// interruption reports canceled=false.
func (a *API) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	canceled, err := a.orchestrator.Cancel(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		a.logger.Error("Failed to cancel job", "job_id", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to cancel job")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":   jobID,
		"canceled": canceled,
	})
}

// scanRequest is the request body for POST /scan-headers
type scanRequest struct {
	URL string `json:"url"`
}

// handleScanHeaders runs the synchronous website header scan plus LLM
// remediation analysis
func (a *API) handleScanHeaders(w http.ResponseWriter, r *http.Request) {
	if a.startupErr != "" {
		writeError(w, http.StatusServiceUnavailable, "AI service is not available due to startup error: "+a.startupErr)
		return
	}

	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	findings, err := a.headerScanner.Scan(r.Context(), req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to scan the specified URL: "+err.Error())
		return
	}

	report := a.headerScanner.Analyze(r.Context(), findings, req.URL)
	writeJSON(w, http.StatusOK, map[string]any{
		"target_url":     req.URL,
		"scan_findings":  findings,
		"ai_explanation": report,
	})
}

// handleHealth reports process liveness
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports pipeline readiness; degraded mode surfaces the
// startup error to every poller instead of crashing the process
func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.startupErr != "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "error",
			"message": a.startupErr,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "AI services are running correctly.",
	})
}

// readUpload extracts the log content and format tag from either a
// multipart form (fields "file" and "log_type") or a raw body with a
// log_type query parameter
func readUpload(r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes)

	contentType := r.Header.Get("Content-Type")
	if len(contentType) >= 19 && contentType[:19] == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, "", errors.New("failed to parse multipart form")
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, "", errors.New("missing file field")
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			return nil, "", errors.New("failed to read uploaded file")
		}
		return content, r.FormValue("log_type"), nil
	}

	content, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", errors.New("failed to read request body")
	}
	return content, r.URL.Query().Get("log_type"), nil
}

// writeJSON writes a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
