package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects pipeline metrics.
//
// Tracked areas:
//   - tool execution outcomes and latencies
//   - tool cache and coalescing effectiveness
//   - planner calls and fallbacks
//   - event publish/consume volumes
//   - UI patch broadcasts
type Metrics struct {
	// ToolExecutions counts tool invocations.
	// Labels: tool, status (success|error|cached)
	ToolExecutions *prometheus.CounterVec

	// ToolDuration measures tool execution time in seconds.
	// Labels: tool
	ToolDuration *prometheus.HistogramVec

	// CacheEvents counts tool-cache lookups.
	// Labels: result (hit|miss)
	CacheEvents *prometheus.CounterVec

	// CoalescedCalls counts callers that shared an in-flight execution.
	CoalescedCalls prometheus.Counter

	// PlannerRequests counts planner calls.
	// Labels: status (success|error|fallback)
	PlannerRequests *prometheus.CounterVec

	// PlannerDuration measures planner call latency in seconds.
	PlannerDuration prometheus.Histogram

	// EventsPublished counts domain events published to the stream.
	// Labels: subject
	EventsPublished *prometheus.CounterVec

	// EventsConsumed counts stream deliveries by handling outcome.
	// Labels: status (handled|dropped|failed)
	EventsConsumed *prometheus.CounterVec

	// PatchBroadcasts counts ui.patch.v1 messages pushed to conversations.
	PatchBroadcasts prometheus.Counter

	// AnswerRequests counts LLM answer-service calls.
	// Labels: status (success|error)
	AnswerRequests *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registerer.
// Passing nil registers with the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ToolExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_tool_executions_total",
			Help: "Tool invocations by tool and status.",
		}, []string{"tool", "status"}),

		ToolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loom_tool_duration_seconds",
			Help:    "Tool execution latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"tool"}),

		CacheEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_tool_cache_events_total",
			Help: "Tool cache lookups by result.",
		}, []string{"result"}),

		CoalescedCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "loom_tool_coalesced_calls_total",
			Help: "Callers that shared an in-flight tool execution.",
		}),

		PlannerRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_planner_requests_total",
			Help: "Planner calls by status.",
		}, []string{"status"}),

		PlannerDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "loom_planner_duration_seconds",
			Help:    "Planner call latency.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_events_published_total",
			Help: "Domain events published by subject.",
		}, []string{"subject"}),

		EventsConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_events_consumed_total",
			Help: "Stream deliveries by handling outcome.",
		}, []string{"status"}),

		PatchBroadcasts: factory.NewCounter(prometheus.CounterOpts{
			Name: "loom_patch_broadcasts_total",
			Help: "UI patch messages broadcast to conversations.",
		}),

		AnswerRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_answer_requests_total",
			Help: "LLM answer-service calls by status.",
		}, []string{"status"}),
	}
}
