package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	RequestsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_requests_started_total",
			Help: "Total number of advisory requests started",
		},
		[]string{"mode"},
	)

	RequestsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_requests_completed_total",
			Help: "Total number of advisory requests completed",
		},
		[]string{"mode", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "advisor_request_duration_seconds",
			Help:    "Advisory request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	// Admission gate metrics
	AdmissionDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_admission_decisions_total",
			Help: "Total admission gate decisions by outcome",
		},
		[]string{"decision"},
	)

	AdmissionRepairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_admission_repairs_total",
			Help: "Total admission repairs by strategy",
		},
		[]string{"strategy"},
	)

	// Intent extraction metrics
	ExtractionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "advisor_intent_extraction_latency_seconds",
			Help:    "Intent extraction latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ExtractionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "advisor_intent_extraction_errors_total",
			Help: "Total number of intent extraction failures",
		},
	)

	IntentOverrides = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_intent_overrides_total",
			Help: "Total heuristic intent overrides by reason code",
		},
		[]string{"reason"},
	)

	// Routing metrics
	RouteDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_route_decisions_total",
			Help: "Total route decisions by final intent and mode",
		},
		[]string{"intent", "mode"},
	)

	ClarificationsAsked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_clarifications_asked_total",
			Help: "Total clarifying questions asked by reason code",
		},
		[]string{"reason"},
	)

	ClarificationsExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "advisor_clarifications_exhausted_total",
			Help: "Total times the clarification budget forced a terminal decision",
		},
	)

	// Tool fan-out metrics
	ToolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_tool_invocations_total",
			Help: "Total analytics tool invocations",
		},
		[]string{"tool", "status"},
	)

	ToolLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "advisor_tool_latency_seconds",
			Help:    "Analytics tool invocation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	FanoutPartialFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "advisor_fanout_partial_failures_total",
			Help: "Total fan-outs that completed with at least one tool error",
		},
	)

	// Guard metrics
	GuardDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_guard_denials_total",
			Help: "Total suitability guard denials by reason",
		},
		[]string{"reason"},
	)

	// Synthesis metrics
	SynthesisAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_synthesis_attempts_total",
			Help: "Total answer synthesis attempts by outcome",
		},
		[]string{"outcome"},
	)

	GroundingViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_grounding_violations_total",
			Help: "Total grounding validation violations by rule",
		},
		[]string{"rule"},
	)

	FallbackRenders = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "advisor_fallback_renders_total",
			Help: "Total responses rendered by the deterministic fallback renderer",
		},
	)

	// Session metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "advisor_sessions_created_total",
			Help: "Total number of sessions created",
		},
	)

	SessionCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "advisor_session_cache_hits_total",
			Help: "Total number of session cache hits",
		},
	)

	SessionCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "advisor_session_cache_misses_total",
			Help: "Total number of session cache misses",
		},
	)

	// Audit metrics
	AuditWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_audit_writes_total",
			Help: "Total audit trail writes by status",
		},
		[]string{"status"},
	)

	AuditQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "advisor_audit_queue_depth",
			Help: "Current depth of the async audit write queue",
		},
	)
)

// RecordRequestMetrics records metrics for a completed advisory request.
func RecordRequestMetrics(mode, status string, durationSeconds float64) {
	RequestsCompleted.WithLabelValues(mode, status).Inc()
	RequestDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// RecordToolMetrics records metrics for a single tool invocation.
func RecordToolMetrics(tool, status string, durationSeconds float64) {
	ToolInvocations.WithLabelValues(tool, status).Inc()
	if durationSeconds > 0 {
		ToolLatency.WithLabelValues(tool).Observe(durationSeconds)
	}
}
