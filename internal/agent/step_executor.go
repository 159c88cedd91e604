package agent

import (
	"context"
	"log/slog"

	"github.com/kestrelai/agentrt/internal/observability"
	"github.com/kestrelai/agentrt/pkg/models"
)

// StepExecutor implements the §4.4 execute(step, ctx) → StepResult contract.
// It never panics or returns a Go error for recoverable failures; those are
// packaged into StepResult.Error with an empty delta.
type StepExecutor struct {
	dispatch *chatDispatcher

	obsMetrics *observability.Metrics
	obsTracer  *observability.Tracer
}

// NewStepExecutor constructs a StepExecutor with a fresh circuit breaker.
func NewStepExecutor() *StepExecutor {
	return &StepExecutor{dispatch: newChatDispatcher()}
}

// SetObservability attaches Prometheus metrics and an otel tracer, forwarding
// them to the chat dispatcher and to each tool Executor it builds.
func (e *StepExecutor) SetObservability(metrics *observability.Metrics, tracer *observability.Tracer) {
	e.obsMetrics = metrics
	e.obsTracer = tracer
	e.dispatch.SetObservability(metrics, tracer)
}

// SetLogger forwards the run's structured logger to the chat dispatcher, so
// circuit-breaker transitions land in the same log stream as the rest of
// the run.
func (e *StepExecutor) SetLogger(logger *slog.Logger) {
	e.dispatch.SetLogger(logger)
}

// Execute runs one plan step against ctx.
func (e *StepExecutor) Execute(ctx context.Context, step PlanStep, state *AgentContext) StepResult {
	switch step.Type {
	case StepCompletion:
		return StepResult{IsComplete: true}
	case StepToolExecution:
		return e.executeTools(ctx, state)
	case StepPlanning, StepReflection:
		return e.executeChat(ctx, step, state)
	default:
		return e.executeChat(ctx, step, state)
	}
}

// executeChat dispatches a chat call across the provider pool. Planning and
// reflection steps inject a synthetic user turn from step.SeedMessage first
// (§4.4's "specializations of chat").
func (e *StepExecutor) executeChat(ctx context.Context, step PlanStep, state *AgentContext) StepResult {
	messages := state.Messages
	if step.SeedMessage != nil {
		messages = append(append([]models.Message(nil), messages...), *step.SeedMessage)
	}

	req := &ChatRequest{Messages: messages, TimeoutMs: state.Options.TimeoutMs}
	if tools := state.Registry.AsTools(); len(tools) > 0 {
		req.Tools = tools
	}

	result, provider, attempts, err := e.dispatch.dispatch(ctx, req, state.Providers, state.Options, state.ProviderModels)
	metrics := RunMetrics{ProviderCalls: 1}

	if err != nil {
		return StepResult{Error: err, Metrics: metrics, Attempts: attempts}
	}

	var delta []models.Message
	if step.SeedMessage != nil {
		delta = append(delta, *step.SeedMessage)
	}
	delta = append(delta, result.Messages...)

	metrics.CostSavings = costSavings(provider.ID(), result.Usage)
	if e.obsMetrics != nil {
		e.obsMetrics.RecordCostSavings(provider.ID(), metrics.CostSavings)
	}

	isComplete := result.FinishReason == FinishStop && result.ToolCall == nil
	var used *ProviderUsed
	if provider != nil {
		used = &ProviderUsed{ID: provider.ID()}
	}

	return StepResult{
		Delta:        delta,
		IsComplete:   isComplete,
		Metrics:      metrics,
		ProviderUsed: used,
		Attempts:     attempts,
	}
}

// executeTools dispatches every tool call on the last assistant message
// concurrently, preserving call order in the appended tool responses
// regardless of completion order (§4.4, §5).
func (e *StepExecutor) executeTools(ctx context.Context, state *AgentContext) StepResult {
	if len(state.Messages) == 0 {
		return StepResult{Metrics: RunMetrics{}}
	}
	last := state.Messages[len(state.Messages)-1]
	if len(last.ToolCalls) == 0 {
		return StepResult{Metrics: RunMetrics{}}
	}

	executor := NewExecutor(state.Registry, DefaultExecutorConfig())
	executor.SetObservability(e.obsMetrics, e.obsTracer)
	results := executor.ExecuteAll(ctx, last.ToolCalls)
	toolResults := ResultsToMessages(results)

	delta := make([]models.Message, 0, len(toolResults))
	for _, tr := range toolResults {
		delta = append(delta, models.Message{Role: models.RoleTool, Content: tr.Content, ToolResults: []models.ToolResult{tr}})
	}

	return StepResult{
		Delta:   delta,
		Metrics: RunMetrics{ToolExecutions: len(toolResults)},
	}
}
