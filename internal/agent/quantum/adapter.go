package quantum

import (
	"context"
	"sync"

	"github.com/kestrelai/agentrt/internal/agent"
	"github.com/kestrelai/agentrt/pkg/models"
)

// Adapter satisfies agent.PlanAdapter, letting a Loop drive the quantum
// planner exactly like the heuristic one via Loop.WithPlanner. It keeps the
// last quantum Plan (intent, alternatives, confidence) alongside the
// agent.Plan the Loop sees, since agent.Plan only carries what the executor
// needs. One Adapter is meant to back a single run; construct a fresh one
// per Loop.Run call if runs might overlap.
type Adapter struct {
	planner  *Planner
	provider agent.Provider

	mu                  sync.Mutex
	last                *Plan
	consecutiveErrors   int
	switchedAlternative bool
}

// NewAdapter constructs an Adapter. provider, when non-nil, is prompted for
// Phase A intent recognition; a nil provider always uses the keyword
// fallback.
func NewAdapter(registry *agent.ToolRegistry, provider agent.Provider) *Adapter {
	return &Adapter{planner: NewPlanner(registry), provider: provider}
}

// Plan implements agent.PlanAdapter.
func (a *Adapter) Plan(ctx *agent.AgentContext) *agent.Plan {
	userText := lastUserContent(ctx.Messages)
	qp := a.planner.Plan(context.Background(), a.provider, userText)

	a.mu.Lock()
	a.last = qp
	a.mu.Unlock()

	return toAgentPlan(qp)
}

// AdaptPlan implements agent.PlanAdapter. Normal step-to-step progression
// mirrors the heuristic planner's rules exactly, since both planners drive
// the same executor contract; the quantum self-healing pass (§4.3's
// adaptQuantumPlan) only kicks in on error, where it revises the
// intent/strategy/alternatives rather than just retrying the same step.
func (a *Adapter) AdaptPlan(plan *agent.Plan, result agent.StepResult, ctx *agent.AgentContext) *agent.Plan {
	if result.IsComplete {
		a.clearLast()
		return &agent.Plan{Steps: []agent.PlanStep{{Type: agent.StepCompletion}}, Strategy: plan.Strategy}
	}

	if result.Error != nil {
		current := a.currentOrSeed(plan)
		a.mu.Lock()
		a.consecutiveErrors++
		repeated := a.consecutiveErrors >= 2 && !a.switchedAlternative
		a.mu.Unlock()

		if repeated {
			if best, ok := BestAlternative(current.Alternatives); ok {
				revised := a.planner.SwitchToAlternative(current, best)
				a.mu.Lock()
				a.switchedAlternative = true
				a.mu.Unlock()
				a.setLast(revised)
				return toAgentPlan(revised)
			}
		}

		adapted := a.planner.Adapt(current, result.Error, false)
		a.setLast(adapted)
		return toAgentPlan(adapted)
	}
	a.mu.Lock()
	a.consecutiveErrors = 0
	a.mu.Unlock()

	if len(ctx.Messages) > 0 {
		last := ctx.Messages[len(ctx.Messages)-1]
		if last.Role == models.RoleAssistant && len(last.ToolCalls) > 0 {
			return &agent.Plan{
				Steps:    []agent.PlanStep{{Type: agent.StepToolExecution, Priority: agent.PriorityCritical}, {Type: agent.StepChat, Priority: agent.PriorityNormal}},
				Strategy: plan.Strategy,
			}
		}
		if last.Role == models.RoleTool {
			return &agent.Plan{Steps: []agent.PlanStep{{Type: agent.StepChat, Priority: agent.PriorityNormal}}, Strategy: plan.Strategy}
		}
	}

	if len(plan.Steps) <= 1 {
		return &agent.Plan{Steps: []agent.PlanStep{{Type: agent.StepCompletion}}, Strategy: plan.Strategy}
	}
	return &agent.Plan{Steps: plan.Steps[1:], Strategy: plan.Strategy, EstimatedCost: plan.EstimatedCost}
}

func (a *Adapter) currentOrSeed(plan *agent.Plan) *Plan {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last != nil {
		return a.last
	}
	return &Plan{Strategy: Strategy(plan.Strategy), Confidence: PlanConfidenceBaseline}
}

func (a *Adapter) setLast(p *Plan) {
	a.mu.Lock()
	a.last = p
	a.mu.Unlock()
}

func (a *Adapter) clearLast() {
	a.mu.Lock()
	a.last = nil
	a.consecutiveErrors = 0
	a.switchedAlternative = false
	a.mu.Unlock()
}

func lastUserContent(messages []models.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// toAgentPlan lowers a quantum Plan into the flat PlanStep queue the
// executor understands. Parallel strategy steps collapse into a single
// chat+tool_execution pair, since one chat call already lets the model
// request every tool at once and executeTools already runs them
// concurrently; every other strategy gets one chat+tool_execution pair per
// decomposed step that names tools (tool-less steps add nothing),
// preserving the declared ordering. A final chat step is always appended.
func toAgentPlan(qp *Plan) *agent.Plan {
	if len(qp.Steps) == 0 {
		return &agent.Plan{Steps: []agent.PlanStep{{Type: agent.StepChat, Priority: agent.PriorityNormal}}, Strategy: string(qp.Strategy)}
	}

	var steps []agent.PlanStep
	if qp.Strategy == StrategyParallel {
		var allTools []string
		for _, s := range qp.Steps {
			allTools = append(allTools, s.Tools...)
		}
		steps = append(steps,
			agent.PlanStep{Type: agent.StepChat, ExpectedTools: allTools, Priority: agent.PriorityCritical},
			agent.PlanStep{Type: agent.StepToolExecution, ExpectedTools: allTools, Priority: agent.PriorityCritical},
		)
	} else {
		for _, s := range qp.Steps {
			if len(s.Tools) == 0 {
				continue
			}
			steps = append(steps,
				agent.PlanStep{Type: agent.StepChat, ExpectedTools: s.Tools, Priority: agent.PriorityCritical},
				agent.PlanStep{Type: agent.StepToolExecution, ExpectedTools: s.Tools, Priority: agent.PriorityCritical},
			)
		}
	}

	steps = append(steps, agent.PlanStep{Type: agent.StepChat, Priority: agent.PriorityNormal})

	return &agent.Plan{
		Steps:         steps,
		Strategy:      string(qp.Strategy),
		EstimatedCost: len(steps),
	}
}
