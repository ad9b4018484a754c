package observability

import (
	"time"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration  *prometheus.HistogramVec
	externalErrors   *prometheus.CounterVec
	tokensUsed       *prometheus.CounterVec
	llmRequests      *prometheus.CounterVec
	toolCalls        *prometheus.CounterVec
	webhookAttempts  *prometheus.CounterVec
	leadsCreated     *prometheus.CounterVec
	leadsConverted   prometheus.Counter
	upstreamRateHits *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "charter_request_duration_seconds",
				Help:    "Duration of operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "charter_external_errors_total",
				Help: "Total errors from upstream services.",
			},
			[]string{"service"},
		),
		tokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "charter_llm_tokens_total",
				Help: "Total LLM tokens consumed.",
			},
			[]string{"type"},
		),
		llmRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "charter_llm_requests_total",
				Help: "Total LLM requests by outcome.",
			},
			[]string{"status"},
		),
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "charter_chat_tool_calls_total",
				Help: "Chat tool executions by tool and outcome.",
			},
			[]string{"tool", "status"},
		),
		webhookAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "charter_webhook_attempts_total",
				Help: "Outbound webhook attempts by target and outcome.",
			},
			[]string{"target", "status"},
		),
		leadsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "charter_leads_created_total",
				Help: "Leads created by source.",
			},
			[]string{"source"},
		),
		leadsConverted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "charter_leads_converted_total",
				Help: "Leads converted into account + opportunity.",
			},
		),
		upstreamRateHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "charter_upstream_rate_limited_total",
				Help: "HTTP 429 answers received from upstream APIs.",
			},
			[]string{"service"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrRateLimited counts an upstream 429.
func (m *Metrics) IncrRateLimited(service string) {
	m.upstreamRateHits.WithLabelValues(service).Inc()
}

// RecordTokens records prompt and completion token usage.
func (m *Metrics) RecordTokens(prompt, completion int) {
	m.tokensUsed.WithLabelValues("prompt").Add(float64(prompt))
	m.tokensUsed.WithLabelValues("completion").Add(float64(completion))
}

// IncrLLMRequest counts an LLM call with a status label (success|error).
func (m *Metrics) IncrLLMRequest(status string) {
	m.llmRequests.WithLabelValues(status).Inc()
}

// IncrToolCall counts a chat tool execution.
func (m *Metrics) IncrToolCall(tool, status string) {
	m.toolCalls.WithLabelValues(tool, status).Inc()
}

// IncrWebhook counts an outbound webhook attempt.
func (m *Metrics) IncrWebhook(target, status string) {
	m.webhookAttempts.WithLabelValues(target, status).Inc()
}

// IncrLeadCreated counts a created lead by source.
func (m *Metrics) IncrLeadCreated(source string) {
	m.leadsCreated.WithLabelValues(source).Inc()
}

// IncrLeadConverted counts a lead conversion.
func (m *Metrics) IncrLeadConverted() {
	m.leadsConverted.Inc()
}

// GetLLMSnapshot returns a snapshot of LLM-related metrics for GET /v1/metrics/llm.
func (m *Metrics) GetLLMSnapshot() *domain.LLMMetrics {
	promptTokens := getCounterValue(m.tokensUsed.WithLabelValues("prompt"))
	completionTokens := getCounterValue(m.tokensUsed.WithLabelValues("completion"))
	success := getCounterValue(m.llmRequests.WithLabelValues("success"))
	errorCount := getCounterValue(m.llmRequests.WithLabelValues("error"))
	totalRequests := success + errorCount

	var toolCalls, toolErrors float64
	for _, tool := range []string{"create_lead", "update_lead_status", "add_lead_note", "list_recent_leads"} {
		ok := getCounterValue(m.toolCalls.WithLabelValues(tool, "success"))
		failed := getCounterValue(m.toolCalls.WithLabelValues(tool, "error"))
		toolCalls += ok + failed
		toolErrors += failed
	}

	avgTokens := float64(0)
	errorRate := float64(0)
	if totalRequests > 0 {
		avgTokens = (promptTokens + completionTokens) / totalRequests
		errorRate = errorCount / totalRequests
	}

	// Rough gateway pricing: $0.15/1M prompt, $0.60/1M completion.
	estimatedCost := promptTokens/1e6*0.15 + completionTokens/1e6*0.60

	return &domain.LLMMetrics{
		TotalRequests:       int64(totalRequests),
		ErrorRate:           errorRate,
		PromptTokens:        int64(promptTokens),
		CompletionTokens:    int64(completionTokens),
		AvgTokensPerRequest: avgTokens,
		ToolCalls:           int64(toolCalls),
		ToolErrors:          int64(toolErrors),
		EstimatedCostUsd:    estimatedCost,
		Period:              "all_time",
	}
}

// getCounterValue extracts the current value of a counter.
func getCounterValue(counter prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
