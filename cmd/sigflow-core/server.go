package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sigflowai/sigflow-oss/pkg/config"
	"github.com/sigflowai/sigflow-oss/pkg/domain"
	"github.com/sigflowai/sigflow-oss/pkg/engine"
	"github.com/sigflowai/sigflow-oss/pkg/graph"
	"github.com/sigflowai/sigflow-oss/pkg/registry"
	"github.com/sigflowai/sigflow-oss/pkg/storage"
	"github.com/sigflowai/sigflow-oss/pkg/telemetry"
)

type serverConfig struct {
	provider *config.FileConfigProvider
	registry *registry.Registry
	executor *engine.Executor
	store    storage.RunStore
	metrics  *telemetry.ServerMetrics
	logger   *slog.Logger
}

type server struct {
	serverConfig
	builder *graph.Builder
}

func newServer(cfg serverConfig) *server {
	return &server{
		serverConfig: cfg,
		builder:      graph.NewBuilder(cfg.registry, cfg.logger),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/runs", s.instrument("/v1/runs", s.handleStartRun))
	mux.HandleFunc("GET /v1/runs", s.instrument("/v1/runs", s.handleListRuns))
	mux.HandleFunc("GET /v1/runs/active", s.instrument("/v1/runs/active", s.handleActiveRuns))
	mux.HandleFunc("GET /v1/runs/{id}", s.instrument("/v1/runs/{id}", s.handleGetRun))
	mux.HandleFunc("GET /v1/runs/{id}/metrics", s.instrument("/v1/runs/{id}/metrics", s.handleRunMetrics))
	mux.HandleFunc("POST /v1/runs/{id}/cancel", s.instrument("/v1/runs/{id}/cancel", s.handleCancelRun))
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *server) start(addr string) *http.Server {
	httpServer := &http.Server{
		Handler:      otelhttp.NewHandler(s.routes(), "sigflow.core"),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.logger.Error("Failed to bind listener", "addr", addr, "error", err)
		os.Exit(1)
	}

	s.logger.Info("Server listening", "addr", listener.Addr().String())

	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	return httpServer
}

// instrument records request latency and status per route pattern.
func (s *server) instrument(pattern string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		s.metrics.HTTPRequest(pattern, strconv.Itoa(recorder.status), time.Since(started))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type startRunRequest struct {
	PipelineID string         `json:"pipeline_id"`
	SignalID   string         `json:"signal_id"`
	Raw        map[string]any `json:"raw"`
}

type startRunResponse struct {
	Run      storage.RunRecord `json:"run"`
	Warnings []string          `json:"warnings,omitempty"`
}

func (s *server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.PipelineID == "" {
		writeError(w, http.StatusBadRequest, "pipeline_id is required")
		return
	}
	if req.SignalID == "" {
		req.SignalID = uuid.NewString()
	}

	snapshot := s.provider.CurrentSnapshot()
	pipeline, ok := snapshot.Config.Pipeline(req.PipelineID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown pipeline %q", req.PipelineID))
		return
	}

	g, report, err := s.builder.Build(pipeline)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	state := domain.NewPipelineState(req.SignalID, req.Raw)
	opts := snapshot.Config.ExecutionOptions()

	s.metrics.RunStarted()
	result, err := s.executor.Run(r.Context(), g, state, opts)
	if err != nil {
		s.metrics.RunFinished(pipeline.ID, domain.RunFailed, 0, nil)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	record := recordFromResult(pipeline.ID, req.SignalID, result)
	s.metrics.RunFinished(pipeline.ID, result.Status, record.Duration, nodeStatusCounts(result))

	if err := s.store.SaveRun(r.Context(), record); err != nil {
		s.logger.Error("Failed to persist run", "execution_id", record.ExecutionID, "error", err)
	}

	writeJSON(w, http.StatusOK, startRunResponse{Run: record, Warnings: report.Warnings})
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	record, err := s.store.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	records, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": records})
}

// handleActiveRuns lists runs that have not yet reached a terminal status.
// Run ids only become queryable through the store after the run finishes, so
// this is the handle callers use to cancel an in-flight run.
func (s *server) handleActiveRuns(w http.ResponseWriter, _ *http.Request) {
	ids := s.executor.ActiveRuns()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": ids})
}

func (s *server) handleRunMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.executor.Metrics(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

type cancelRunRequest struct {
	Reason string `json:"reason"`
}

func (s *server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	var req cancelRunRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = "cancelled via API"
	}

	err := s.executor.Cancel(r.PathValue("id"), req.Reason)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
	case errors.Is(err, domain.ErrRunNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusConflict, err.Error())
	}
}

func recordFromResult(pipelineID, signalID string, result *engine.Result) storage.RunRecord {
	record := storage.RunRecord{
		ExecutionID: result.ExecutionID,
		PipelineID:  pipelineID,
		SignalID:    signalID,
		Status:      result.Status,
		Duration:    result.Metrics.WallClock,
		Executed:    result.Metrics.NodesExecuted,
		Failed:      result.Metrics.NodesFailed,
		Skipped:     result.Metrics.NodesSkipped,
		Errors:      result.Errors,
		Warnings:    result.Warnings,
	}
	if result.State != nil {
		record.StartedAt = result.State.Meta.StartedAt
		record.EndedAt = record.StartedAt.Add(result.Metrics.WallClock)
		record.Outputs = result.State.Outputs
		record.Trace = result.State.Meta.Trace
	}
	return record
}

func nodeStatusCounts(result *engine.Result) map[domain.NodeStatus]int {
	counts := make(map[domain.NodeStatus]int)
	for _, nodeResult := range result.Metrics.NodeResults {
		counts[nodeResult.Status]++
	}
	return counts
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
