// Package observability wires the engine's provider calls, tool executions,
// and circuit-breaker transitions into Prometheus metrics and OpenTelemetry
// spans.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the runtime's provider, tool, and breaker counters.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.RecordProviderCall("anthropic", "claude-3-opus", "success", elapsed.Seconds())
type Metrics struct {
	// ProviderCallCounter counts provider chat calls.
	// Labels: provider, model, status (success|error)
	ProviderCallCounter *prometheus.CounterVec

	// ProviderCallDuration measures provider chat call latency in seconds.
	// Labels: provider, model
	ProviderCallDuration *prometheus.HistogramVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// CostSavingsUSD tracks the engine's free-tier cost-savings heuristic.
	// Labels: provider
	CostSavingsUSD *prometheus.CounterVec

	// BreakerStateTransitions counts circuit-breaker state changes.
	// Labels: provider, state (closed|open|half_open)
	BreakerStateTransitions *prometheus.CounterVec

	// StepDuration measures one Loop.Run step's wall time in seconds.
	// Labels: step_type (chat|tool_execution|planning|reflection|completion)
	StepDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the runtime's Prometheus collectors with
// the default registry. Call once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		ProviderCallCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrt_provider_calls_total",
				Help: "Total number of provider chat calls by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		ProviderCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentrt_provider_call_duration_seconds",
				Help:    "Duration of provider chat calls in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrt_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentrt_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),
		CostSavingsUSD: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrt_cost_savings_usd_total",
				Help: "Estimated USD saved by preferring free-tier providers",
			},
			[]string{"provider"},
		),
		BreakerStateTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrt_breaker_transitions_total",
				Help: "Circuit breaker state transitions by provider and resulting state",
			},
			[]string{"provider", "state"},
		),
		StepDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentrt_step_duration_seconds",
				Help:    "Duration of one loop step in seconds, by step type",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"step_type"},
		),
	}
}

// RecordProviderCall records one provider chat call's outcome and latency.
func (m *Metrics) RecordProviderCall(provider, model, status string, durationSeconds float64) {
	m.ProviderCallCounter.WithLabelValues(provider, model, status).Inc()
	m.ProviderCallDuration.WithLabelValues(provider, model).Observe(durationSeconds)
}

// RecordToolExecution records one tool execution's outcome and latency.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordCostSavings adds to the estimated savings attributed to provider.
func (m *Metrics) RecordCostSavings(provider string, usd float64) {
	if usd <= 0 {
		return
	}
	m.CostSavingsUSD.WithLabelValues(provider).Add(usd)
}

// RecordBreakerTransition records a circuit breaker moving into state for provider.
func (m *Metrics) RecordBreakerTransition(provider, state string) {
	m.BreakerStateTransitions.WithLabelValues(provider, state).Inc()
}

// RecordStepDuration records one loop step's wall time.
func (m *Metrics) RecordStepDuration(stepType string, durationSeconds float64) {
	m.StepDuration.WithLabelValues(stepType).Observe(durationSeconds)
}
