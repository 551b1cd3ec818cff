// Package metrics holds the Prometheus collectors for pipeline runs.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	agentRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idpforge_agent_runs_total",
		Help: "Total number of agent stage executions by agent and status",
	}, []string{"agent", "status"})

	agentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "idpforge_agent_duration_seconds",
		Help:    "Wall time of one agent stage",
		Buckets: prometheus.DefBuckets,
	}, []string{"agent"})

	toolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idpforge_tool_calls_total",
		Help: "Total number of tool invocations by agent, tool, and status",
	}, []string{"agent", "tool", "status"})

	llmRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idpforge_llm_requests_total",
		Help: "Total number of model completions by provider and status",
	}, []string{"provider", "status"})

	llmRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "idpforge_llm_request_duration_seconds",
		Help:    "Duration of model completions in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	artifactsWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idpforge_artifacts_written_total",
		Help: "Total number of files written to the output directory by kind",
	}, []string{"kind"})

	serviceUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "idpforge_portal_service_up",
		Help: "Last health probe result per platform service (1 healthy, 0 down)",
	}, []string{"service"})
)

// RecordAgentRun records the outcome and duration of an agent stage.
func RecordAgentRun(agent string, ok bool, d time.Duration) {
	agentRunsTotal.WithLabelValues(agent, statusLabel(ok)).Inc()
	agentDuration.WithLabelValues(agent).Observe(d.Seconds())
}

// RecordToolCall records one tool invocation.
func RecordToolCall(agent, tool string, ok bool) {
	toolCallsTotal.WithLabelValues(agent, tool, statusLabel(ok)).Inc()
}

// RecordLLMRequest records one model completion.
func RecordLLMRequest(provider string, ok bool, d time.Duration) {
	llmRequestsTotal.WithLabelValues(normalizeProviderLabel(provider), statusLabel(ok)).Inc()
	llmRequestDuration.WithLabelValues(normalizeProviderLabel(provider)).Observe(d.Seconds())
}

// RecordArtifact records a file written to the output directory.
func RecordArtifact(kind string) {
	if kind == "" {
		kind = "other"
	}
	artifactsWrittenTotal.WithLabelValues(kind).Inc()
}

// SetServiceUp records the last health probe for a platform service.
func SetServiceUp(service string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	serviceUp.WithLabelValues(service).Set(v)
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

func normalizeProviderLabel(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "gemini", "anthropic", "openai", "ollama", "autopilot", "mock":
		return strings.ToLower(strings.TrimSpace(p))
	default:
		return "unknown"
	}
}
