package agent

import (
	"context"
	"time"

	"github.com/kestrelai/agentrt/internal/observability"
	"github.com/kestrelai/agentrt/pkg/models"
)

// RunResult is what Run returns to the caller (§6.3).
type RunResult struct {
	Messages []models.Message
	Metrics  RunMetrics
	Debug    *DebugInfo

	// Error is non-nil when Run stopped short of completion: either
	// ErrBudgetExhausted (MaxSteps reached) or ErrRepeatedFailure (the §4.7
	// safety valve tripped). The run still returns whatever messages were
	// produced; this only names why it stopped.
	Error error
}

// PlanAdapter is the contract shared by the heuristic and quantum planners,
// letting Loop drive either one identically.
type PlanAdapter interface {
	Plan(ctx *AgentContext) *Plan
	AdaptPlan(plan *Plan, result StepResult, ctx *AgentContext) *Plan
}

// Loop drives plan → execute → reflect → adapt until completion, the step
// budget, or the repeated-failure safety valve (§4.7).
type Loop struct {
	planner   PlanAdapter
	reflector *Reflector
	executor  *StepExecutor

	obsMetrics *observability.Metrics
}

// NewLoop constructs a Loop with the default heuristic planner and reflector.
func NewLoop() *Loop {
	return &Loop{
		planner:   NewPlanner(),
		reflector: NewReflector(),
		executor:  NewStepExecutor(),
	}
}

// WithPlanner overrides the planner, e.g. to install the quantum planner.
func (l *Loop) WithPlanner(p PlanAdapter) *Loop {
	l.planner = p
	return l
}

// SetObservability attaches Prometheus metrics and an otel tracer, forwarding
// them down to the step executor (and, through it, the chat dispatcher and
// tool executor). Either argument may be nil.
func (l *Loop) SetObservability(metrics *observability.Metrics, tracer *observability.Tracer) {
	l.obsMetrics = metrics
	l.executor.SetObservability(metrics, tracer)
}

// Run executes the agentic loop to completion against the given initial
// context, implementing the §4.7 pseudocode contract exactly.
func (l *Loop) Run(ctx context.Context, initial *AgentContext) *RunResult {
	start := time.Now()
	state := initial
	l.executor.SetLogger(state.Options.Logger)
	plan := l.planner.Plan(state)
	stepCount := 0
	consecutiveErrors := 0
	var runErr error

	debug := DebugInfo{Plan: plan}

	for stepCount < state.Options.MaxSteps && !state.IsComplete && len(plan.Steps) > 0 {
		step := plan.Steps[0]

		stepStart := time.Now()
		sr := l.executor.Execute(ctx, step, state)
		if l.obsMetrics != nil {
			l.obsMetrics.RecordStepDuration(string(step.Type), time.Since(stepStart).Seconds())
		}

		state = state.AppendMessages(sr.Delta...)
		state = state.UpdateMetrics(sr.Metrics)
		state = state.UpdateState(sr.IsComplete, sr.Error)
		stepCount++

		debug.Steps = append(debug.Steps, sr)

		if sr.Error == nil && !sr.IsComplete {
			if reflection := l.reflector.Review(sr, state); reflection != nil {
				debug.Reflections = append(debug.Reflections, *reflection)
				if reflection.ShouldRetry && reflection.CorrectedMessage != nil && len(state.Messages) > 0 {
					if state.Options.Logger != nil {
						state.Options.Logger.Info("reflector correcting last message", "run_id", state.RunID, "step", stepCount, "feedback", reflection.Feedback)
					}
					state = replaceLastMessage(state, *reflection.CorrectedMessage)
				}
			}
		}

		if sr.Error != nil {
			consecutiveErrors++
		} else {
			consecutiveErrors = 0
		}

		plan = l.planner.AdaptPlan(plan, sr, state)

		if sr.Error != nil && consecutiveErrors > 2 {
			runErr = ErrRepeatedFailure
			break
		}
	}

	if runErr == nil && !state.IsComplete && stepCount >= state.Options.MaxSteps {
		runErr = ErrBudgetExhausted
	}

	state.Metrics.Duration = time.Since(start)
	state.Metrics.Efficiency = efficiency(stepCount, state.Metrics)
	debug.ProviderHistory = collectProviderHistory(debug.Steps)

	return &RunResult{
		Messages: state.Messages,
		Metrics:  state.Metrics,
		Debug:    &debug,
		Error:    runErr,
	}
}

// replaceLastMessage returns a new snapshot with its final message swapped
// for corrected, per the reflector's correction contract (§4.5).
func replaceLastMessage(ctx *AgentContext, corrected models.Message) *AgentContext {
	next := ctx.clone()
	next.Messages[len(next.Messages)-1] = corrected
	return next
}

// efficiency is a simple steps-to-completion ratio: fewer steps for more
// work done scores higher. Placeholder until the engine tracks a richer
// cost model.
func efficiency(stepCount int, metrics RunMetrics) float64 {
	if stepCount == 0 {
		return 0
	}
	work := metrics.ToolExecutions + metrics.ProviderCalls
	if work == 0 {
		return 0
	}
	return float64(work) / float64(stepCount)
}

func collectProviderHistory(steps []StepResult) []ProviderAttempt {
	var history []ProviderAttempt
	for _, s := range steps {
		history = append(history, s.Attempts...)
	}
	return history
}
