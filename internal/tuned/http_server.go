package tuned

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/evaluate"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/improvement"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/report"
	"github.com/GoSim-25-26J-441/profile-autotune/pkg/config"
	"github.com/GoSim-25-26J-441/profile-autotune/pkg/logger"
)

const maxRequestBody = 1 << 20

type HTTPServer struct {
	mux      *http.ServeMux
	store    *RunStore
	Executor *RunExecutor
}

func NewHTTPServer(store *RunStore, executor *RunExecutor) *HTTPServer {
	s := &HTTPServer{
		mux:      http.NewServeMux(),
		store:    store,
		Executor: executor,
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/v1/tunings", s.handleTunings)
	s.mux.HandleFunc("/v1/tunings/", s.handleTuningByID)

	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleTunings handles /v1/tunings
func (s *HTTPServer) handleTunings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateTuning(w, r)
	case http.MethodGet:
		s.handleListTunings(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleTuningByID handles /v1/tunings/{id} and related endpoints
func (s *HTTPServer) handleTuningByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/tunings/")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "run ID is required")
		return
	}

	type route struct {
		suffix  string
		method  string
		handler func(http.ResponseWriter, *http.Request, string)
	}
	routes := []route{
		{":stop", http.MethodPost, s.handleStopTuning},
		{":apply", http.MethodPost, s.handleApplyTuning},
		{"/export", http.MethodGet, s.handleExportTuning},
		{"/steps/stream", http.MethodGet, s.handleStepStream},
		{"/steps", http.MethodGet, s.handleListSteps},
	}
	for _, rt := range routes {
		if !strings.HasSuffix(path, rt.suffix) {
			continue
		}
		if r.Method != rt.method {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		rt.handler(w, r, strings.TrimSuffix(path, rt.suffix))
		return
	}

	if strings.Contains(path, "/") {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method == http.MethodGet {
		s.handleGetTuning(w, r, path)
	} else {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleCreateTuning handles POST /v1/tunings. The run starts immediately
// or waits for the run ahead of it.
func (s *HTTPServer) handleCreateTuning(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RunID string    `json:"run_id,omitempty"`
		Input *RunInput `json:"input"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Input == nil {
		s.writeError(w, http.StatusBadRequest, "input is required")
		return
	}

	input := *req.Input
	switch input.Mode {
	case "", ModeAuto, ModeGrid:
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid mode: %s (must be auto or grid)", input.Mode))
		return
	}
	if input.CallbackURL != "" {
		if err := validateCallbackURL(strings.ReplaceAll(input.CallbackURL, "{run_id}", "run")); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	tuning, err := config.ParseTuningYAML([]byte(input.TuningYAML))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if tuning.PlanFile != "" {
		s.writeError(w, http.StatusBadRequest, "plan_file is not accepted over HTTP; use variations")
		return
	}
	plan, err := tuning.Plan()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(plan.Prompts()) == 0 {
		s.writeError(w, http.StatusBadRequest, "tuning.prompt is required")
		return
	}

	rec, err := s.store.Create(req.RunID, input, tuning)
	if err != nil {
		switch {
		case strings.Contains(err.Error(), "already exists"):
			s.writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, errInvalidRunID):
			s.writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	if _, err := s.Executor.Start(rec.Run.ID); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("tuning created (HTTP)", "run_id", rec.Run.ID, "mode", rec.Run.Mode)
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"run": rec.Run,
	})
}

// handleListTunings handles GET /v1/tunings with pagination and filtering
func (s *HTTPServer) handleListTunings(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
			if limit > 1000 {
				limit = 1000
			}
		}
	}

	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	status := RunStatus(strings.ToLower(r.URL.Query().Get("status")))
	runs := s.store.ListFiltered(limit, offset, status)

	out := make([]Run, 0, len(runs))
	for _, rec := range runs {
		out = append(out, rec.Run)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"runs": out,
		"pagination": map[string]any{
			"limit":  limit,
			"offset": offset,
			"count":  len(out),
		},
	})
}

// handleGetTuning handles GET /v1/tunings/{id}
func (s *HTTPServer) handleGetTuning(w http.ResponseWriter, _ *http.Request, runID string) {
	rec, ok := s.store.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}

	resp := map[string]any{
		"run":   rec.Run,
		"steps": len(rec.Steps),
	}
	if rec.Collector != nil {
		resp["metrics"] = rec.Collector.GetSummary()
	}
	if rec.Report != nil {
		resp["found"] = rec.Report.Found
		resp["recommended"] = rec.Report.Snapshot
	}
	if rec.Grid != nil {
		if best, ok := rec.Grid.Best(); ok {
			resp["found"] = true
			resp["best_combination"] = best.Combination
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleStopTuning handles POST /v1/tunings/{id}:stop
func (s *HTTPServer) handleStopTuning(w http.ResponseWriter, _ *http.Request, runID string) {
	updated, err := s.Executor.Stop(runID)
	if err != nil {
		s.writeRunError(w, err)
		return
	}

	logger.Info("tuning cancelled (HTTP)", "run_id", runID)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run": updated.Run,
	})
}

// handleApplyTuning handles POST /v1/tunings/{id}:apply with {"rank": n}
func (s *HTTPServer) handleApplyTuning(w http.ResponseWriter, r *http.Request, runID string) {
	var req struct {
		Rank int `json:"rank"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	form, result, err := s.Executor.Apply(r.Context(), runID, req.Rank)
	if err != nil {
		var rankErr *report.RankError
		if errors.As(err, &rankErr) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeRunError(w, err)
		return
	}

	resp := map[string]any{
		"run_id":  runID,
		"rank":    req.Rank,
		"profile": form.Name,
		"patch":   result.Patch,
	}
	if !result.OK() {
		resp["error"] = result.Err.Error()
		s.writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleExportTuning handles GET /v1/tunings/{id}/export?format=json|csv
func (s *HTTPServer) handleExportTuning(w http.ResponseWriter, r *http.Request, runID string) {
	rec, ok := s.store.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}

	format := strings.ToLower(r.URL.Query().Get("format"))
	switch format {
	case "", "json":
		export := map[string]any{
			"run": rec.Run,
			"input": map[string]any{
				"mode":        rec.Input.Mode,
				"tuning_yaml": rec.Input.TuningYAML,
			},
			"steps": rec.Steps,
		}
		if rec.Report != nil {
			export["report"] = rec.Report
		}
		if rec.Grid != nil {
			export["grid"] = rec.Grid
		}
		if rec.Collector != nil {
			export["metrics"] = rec.Collector.GetSummary()
		}
		s.writeJSON(w, http.StatusOK, export)
	case "csv":
		var evals []evaluate.Evaluation
		switch {
		case rec.Report != nil:
			evals = rec.Report.Evaluations()
		case rec.Grid != nil:
			evals = rec.Grid.Evaluations()
		default:
			s.writeError(w, http.StatusPreconditionFailed, "results not available")
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", runID+".csv"))
		w.WriteHeader(http.StatusOK)
		if err := report.WriteCSV(w, report.Rows(evals)); err != nil {
			logger.Error("failed to write CSV export", "run_id", runID, "error", err)
		}
	default:
		s.writeError(w, http.StatusBadRequest, "format must be json or csv")
	}
}

// handleListSteps handles GET /v1/tunings/{id}/steps?from=n
func (s *HTTPServer) handleListSteps(w http.ResponseWriter, r *http.Request, runID string) {
	from, _ := strconv.Atoi(r.URL.Query().Get("from"))
	steps, run, ok := s.store.StepsSince(runID, from)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if steps == nil {
		steps = []improvement.Step{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run_id": runID,
		"status": run.Status,
		"steps":  steps,
	})
}

// handleStepStream handles GET /v1/tunings/{id}/steps/stream (SSE)
func (s *HTTPServer) handleStepStream(w http.ResponseWriter, r *http.Request, runID string) {
	_, run, ok := s.store.StepsSince(runID, 0)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	interval := 500 * time.Millisecond
	if intervalStr := r.URL.Query().Get("interval_ms"); intervalStr != "" {
		if intervalMs, err := strconv.ParseInt(intervalStr, 10, 64); err == nil && intervalMs > 0 {
			interval = time.Duration(intervalMs) * time.Millisecond
		}
	}

	previousStatus := run.Status
	s.sendSSEEvent(w, "status_change", map[string]any{"status": previousStatus})
	flush(w)

	cursor := 0
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := r.Context()

	for {
		steps, run, ok := s.store.StepsSince(runID, cursor)
		if !ok {
			s.sendSSEEvent(w, "error", map[string]any{"error": "run not found"})
			return
		}
		for _, step := range steps {
			s.sendSSEEvent(w, "step", map[string]any{
				"index": cursor,
				"step":  step,
			})
			cursor++
		}
		if run.Status != previousStatus {
			s.sendSSEEvent(w, "status_change", map[string]any{"status": run.Status})
			previousStatus = run.Status
		}
		if run.Status.Terminal() {
			s.sendSSEEvent(w, "complete", map[string]any{
				"status": run.Status,
				"steps":  cursor,
				"error":  run.Error,
			})
			flush(w)
			return
		}
		flush(w)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sendSSEEvent sends a Server-Sent Event
func (s *HTTPServer) sendSSEEvent(w http.ResponseWriter, eventType string, data map[string]any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		logger.Error("failed to marshal SSE event data", "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		logger.Error("failed to write SSE event", "error", err)
	}
}

func flush(w http.ResponseWriter) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (s *HTTPServer) writeRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRunNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrRunIDMissing):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrRunTerminal), errors.Is(err, ErrBackendBusy):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrResultsNotAvailable):
		s.writeError(w, http.StatusPreconditionFailed, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": message,
	})
}
