// Package httpapi exposes the advisory pipeline over HTTP: one advise
// endpoint that runs a workflow to completion, plus health and readiness
// probes.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/vantage-fi/advisor/internal/audit"
	"github.com/vantage-fi/advisor/internal/auth"
	"github.com/vantage-fi/advisor/internal/config"
	"github.com/vantage-fi/advisor/internal/metrics"
	"github.com/vantage-fi/advisor/internal/session"
	"github.com/vantage-fi/advisor/internal/workflows"
)

// workflowStarter is the slice of the Temporal client the server needs;
// narrowed for tests.
type workflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// Server handles the public advisory API.
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	temporal workflowStarter
	sessions *session.Manager
	auditor  *audit.Writer
	auth     *auth.Manager

	requestTimeout time.Duration
}

// NewServer wires the API against its dependencies. auditor may be nil when
// audit is disabled; readiness then skips the database probe.
func NewServer(cfg *config.Config, tc workflowStarter, sessions *session.Manager, auditor *audit.Writer, authMgr *auth.Manager, logger *zap.Logger) *Server {
	return &Server{
		cfg:            cfg,
		logger:         logger,
		temporal:       tc,
		sessions:       sessions,
		auditor:        auditor,
		auth:           authMgr,
		requestTimeout: 2 * time.Minute,
	}
}

// Handler builds the route tree. The advise endpoint sits behind JWT auth;
// probes do not.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/advise", s.auth.Middleware(http.HandlerFunc(s.handleAdvise)))
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	return mux
}

// adviseRequest is one user turn.
type adviseRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleAdvise(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	identity, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req adviseRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Prompt == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	// Resolve the session up front so a foreign or stale session ID becomes
	// a fresh conversation instead of leaking someone else's state.
	sess, err := s.sessions.GetOrCreate(ctx, req.SessionID, identity.UserID)
	if err != nil {
		s.logger.Error("session resolution failed", zap.Error(err))
		http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
		return
	}

	traceID := uuid.New().String()
	metrics.RequestsStarted.WithLabelValues("advise").Inc()

	run, err := s.temporal.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "advisory-" + traceID,
		TaskQueue: workflows.TaskQueue,
	}, "AdvisoryWorkflow", workflows.AdvisoryInput{
		Prompt:    req.Prompt,
		UserID:    identity.UserID,
		SessionID: sess.ID,
		TraceID:   traceID,
	})
	if err != nil {
		s.logger.Error("workflow start failed", zap.Error(err), zap.String("trace_id", traceID))
		metrics.RecordRequestMetrics("advise", "start_failed", time.Since(start).Seconds())
		http.Error(w, "advisory pipeline unavailable", http.StatusServiceUnavailable)
		return
	}

	var res workflows.AdvisoryResult
	if err := run.Get(ctx, &res); err != nil {
		s.logger.Error("workflow failed", zap.Error(err), zap.String("trace_id", traceID))
		metrics.RecordRequestMetrics("advise", "error", time.Since(start).Seconds())
		http.Error(w, "advisory pipeline failed", http.StatusInternalServerError)
		return
	}

	metrics.RecordRequestMetrics(res.Mode, "ok", time.Since(start).Seconds())
	s.logger.Info("advisory turn completed",
		zap.String("trace_id", traceID),
		zap.String("session_id", sess.ID),
		zap.String("mode", res.Mode),
		zap.String("intent", res.Intent),
		zap.Duration("duration", time.Since(start)))

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz checks every hard dependency the next request would need.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	ready := true

	if err := s.sessions.Ping(ctx); err != nil {
		checks["redis"] = err.Error()
		ready = false
	} else {
		checks["redis"] = "ok"
	}

	if s.auditor != nil {
		if err := s.auditor.Ping(ctx); err != nil {
			checks["postgres"] = err.Error()
			ready = false
		} else {
			checks["postgres"] = "ok"
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, checks)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
