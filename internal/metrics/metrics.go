package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Turn metrics
	TurnsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "comprec_turns_started_total",
			Help: "Total number of conversation turns started",
		},
	)

	TurnsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comprec_turns_completed_total",
			Help: "Total number of conversation turns completed",
		},
		[]string{"route", "status"},
	)

	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "comprec_turn_duration_seconds",
			Help:    "End-to-end turn duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comprec_step_duration_seconds",
			Help:    "Per-step duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"step"},
	)

	// LLM metrics
	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comprec_llm_calls_total",
			Help: "Total number of LLM completions requested",
		},
		[]string{"role", "status"},
	)

	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comprec_llm_call_duration_seconds",
			Help:    "LLM completion latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 60},
		},
		[]string{"role"},
	)

	// Data lookup metrics
	DataLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comprec_data_lookups_total",
			Help: "Market and parity table lookups",
		},
		[]string{"table", "result"},
	)

	DataReloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "comprec_data_reloads_total",
			Help: "CSV table hot reloads",
		},
	)

	// Recommendation metrics
	RecommendationsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comprec_recommendations_total",
			Help: "Recommendations produced, by status",
		},
		[]string{"status"},
	)

	JudgeVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comprec_judge_verdicts_total",
			Help: "Judge outcomes, including fail-open approvals",
		},
		[]string{"outcome"},
	)

	// Store metrics
	ContextSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comprec_context_saves_total",
			Help: "Candidate context persistence operations",
		},
		[]string{"mode", "status"},
	)

	AuditEntriesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "comprec_audit_entries_total",
			Help: "Audit rows written for context field changes",
		},
	)

	SessionUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comprec_session_updates_total",
			Help: "Session pointer reads and writes",
		},
		[]string{"op", "status"},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comprec_http_requests_total",
			Help: "HTTP requests by path and status",
		},
		[]string{"path", "status"},
	)

	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "comprec_active_streams",
			Help: "Currently open SSE and websocket chat streams",
		},
	)

	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "comprec_rate_limit_rejections_total",
			Help: "Chat requests rejected by the per-user rate limiter",
		},
	)
)
