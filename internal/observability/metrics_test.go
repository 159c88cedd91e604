package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newIsolatedMetrics builds a Metrics whose vectors are registered against a
// private registry, so tests never collide with NewMetrics's default-registry
// registration.
func newIsolatedMetrics(t *testing.T) *Metrics {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := &Metrics{
		ProviderCallCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "test_provider_calls_total"}, []string{"provider", "model", "status"}),
		ProviderCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "test_provider_call_duration_seconds"}, []string{"provider", "model"}),
		ToolExecutionCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "test_tool_executions_total"}, []string{"tool_name", "status"}),
		ToolExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "test_tool_execution_duration_seconds"}, []string{"tool_name"}),
		CostSavingsUSD: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "test_cost_savings_usd_total"}, []string{"provider"}),
		BreakerStateTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "test_breaker_transitions_total"}, []string{"provider", "state"}),
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "test_step_duration_seconds"}, []string{"step_type"}),
	}
	reg.MustRegister(m.ProviderCallCounter, m.ProviderCallDuration, m.ToolExecutionCounter,
		m.ToolExecutionDuration, m.CostSavingsUSD, m.BreakerStateTransitions, m.StepDuration)
	return m
}

func TestRecordProviderCall(t *testing.T) {
	m := newIsolatedMetrics(t)
	m.RecordProviderCall("anthropic", "claude-3-opus", "success", 1.5)
	m.RecordProviderCall("anthropic", "claude-3-opus", "success", 2.0)
	m.RecordProviderCall("openai", "gpt-4", "error", 0.5)

	expected := `
		# HELP test_provider_calls_total
		# TYPE test_provider_calls_total counter
		test_provider_calls_total{model="claude-3-opus",provider="anthropic",status="success"} 2
		test_provider_calls_total{model="gpt-4",provider="openai",status="error"} 1
	`
	if err := testutil.CollectAndCompare(m.ProviderCallCounter, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
}

func TestRecordToolExecution(t *testing.T) {
	m := newIsolatedMetrics(t)
	m.RecordToolExecution("add", "success", 0.01)
	m.RecordToolExecution("add", "error", 0.02)

	if count := testutil.CollectAndCount(m.ToolExecutionCounter); count != 2 {
		t.Errorf("expected 2 label combinations, got %d", count)
	}
}

func TestRecordCostSavings_IgnoresNonPositive(t *testing.T) {
	m := newIsolatedMetrics(t)
	m.RecordCostSavings("google", 0)
	m.RecordCostSavings("google", -1)
	if count := testutil.CollectAndCount(m.CostSavingsUSD); count != 0 {
		t.Errorf("expected no-op for non-positive savings, got %d series", count)
	}

	m.RecordCostSavings("google", 0.002)
	if count := testutil.CollectAndCount(m.CostSavingsUSD); count != 1 {
		t.Errorf("expected one series after a positive record, got %d", count)
	}
}

func TestRecordBreakerTransition(t *testing.T) {
	m := newIsolatedMetrics(t)
	m.RecordBreakerTransition("openai", "open")
	m.RecordBreakerTransition("openai", "half_open")
	m.RecordBreakerTransition("openai", "closed")

	if count := testutil.CollectAndCount(m.BreakerStateTransitions); count != 3 {
		t.Errorf("expected 3 distinct states recorded, got %d", count)
	}
}
