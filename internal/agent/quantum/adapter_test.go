package quantum

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/kestrelai/agentrt/internal/agent"
	"github.com/kestrelai/agentrt/pkg/models"
)

func newAdapterTestContext(t *testing.T, userText string) *agent.AgentContext {
	t.Helper()
	reg := agent.NewToolRegistry()
	reg.Register(stubCalcTool{name: "add"})
	return agent.NewAgentContext(
		[]models.Message{{Role: models.RoleUser, Content: userText}},
		reg,
		agent.ProviderPool{},
		agent.Options{},
		nil,
	)
}

func TestAdapter_Plan_ProducesChatFirstStep(t *testing.T) {
	reg := agent.NewToolRegistry()
	reg.Register(stubCalcTool{name: "add"})
	a := NewAdapter(reg, nil)

	plan := a.Plan(newAdapterTestContext(t, "add 2 and 3"))
	if len(plan.Steps) == 0 {
		t.Fatalf("expected at least one step")
	}
	if plan.Steps[0].Type != agent.StepChat {
		t.Fatalf("expected first step to be chat, got %s", plan.Steps[0].Type)
	}
}

func TestAdapter_AdaptPlan_AdvancesQueueOnSuccess(t *testing.T) {
	reg := agent.NewToolRegistry()
	reg.Register(stubCalcTool{name: "add"})
	a := NewAdapter(reg, nil)

	ctx := newAdapterTestContext(t, "add 2 and 3")
	plan := a.Plan(ctx)
	firstLen := len(plan.Steps)

	next := a.AdaptPlan(plan, agent.StepResult{}, ctx)
	if len(next.Steps) >= firstLen {
		t.Fatalf("expected the plan queue to shrink on successful progression, had %d now has %d", firstLen, len(next.Steps))
	}
}

func TestAdapter_AdaptPlan_CompleteCollapsesToCompletion(t *testing.T) {
	reg := agent.NewToolRegistry()
	a := NewAdapter(reg, nil)
	ctx := newAdapterTestContext(t, "hello")
	plan := a.Plan(ctx)

	next := a.AdaptPlan(plan, agent.StepResult{IsComplete: true}, ctx)
	if len(next.Steps) != 1 || next.Steps[0].Type != agent.StepCompletion {
		t.Fatalf("expected a single completion step, got %+v", next.Steps)
	}
}

func TestAdapter_AdaptPlan_ErrorTriggersRecovery(t *testing.T) {
	reg := agent.NewToolRegistry()
	reg.Register(stubCalcTool{name: "add"})
	a := NewAdapter(reg, nil)
	ctx := newAdapterTestContext(t, "add 2 and 3")
	plan := a.Plan(ctx)

	next := a.AdaptPlan(plan, agent.StepResult{Error: errors.New("boom")}, ctx)
	if next.Strategy != string(StrategyAdaptive) {
		t.Fatalf("expected adaptive recovery strategy, got %s", next.Strategy)
	}
	if len(next.Steps) == 0 {
		t.Fatalf("expected a non-empty recovery plan")
	}
}

func TestAdapter_AdaptPlan_RepeatedErrorSwitchesToAlternative(t *testing.T) {
	reg := agent.NewToolRegistry()
	reg.Register(stubCalcTool{name: "add"})
	a := NewAdapter(reg, nil)
	ctx := newAdapterTestContext(t, "add 2 and 3")
	plan := a.Plan(ctx)

	first := a.AdaptPlan(plan, agent.StepResult{Error: errors.New("boom")}, ctx)
	baseConfidence := a.last.Confidence

	second := a.AdaptPlan(first, agent.StepResult{Error: errors.New("boom again")}, ctx)
	if second.Strategy != string(StrategyAdaptive) {
		t.Fatalf("expected adaptive strategy after alternative switch, got %s", second.Strategy)
	}
	if a.last.Confidence != baseConfidence*0.8 {
		t.Fatalf("expected a 20%% confidence penalty, base=%v got=%v", baseConfidence, a.last.Confidence)
	}
	if !a.switchedAlternative {
		t.Fatalf("expected switchedAlternative to be recorded")
	}

	third := a.AdaptPlan(second, agent.StepResult{Error: errors.New("boom a third time")}, ctx)
	if third == nil || len(third.Steps) == 0 {
		t.Fatalf("expected a third recovery attempt to fall back to ordinary error_recovery, got %+v", third)
	}
}

func TestAdapter_AdaptPlan_ToolCallsRunNext(t *testing.T) {
	reg := agent.NewToolRegistry()
	a := NewAdapter(reg, nil)
	ctx := newAdapterTestContext(t, "add 2 and 3")
	plan := a.Plan(ctx)

	toolCtx := ctx.AppendMessages(models.Message{
		Role:      models.RoleAssistant,
		ToolCalls: []models.ToolCall{{ID: "call_add_1", Name: "add", Input: json.RawMessage(`{}`)}},
	})

	next := a.AdaptPlan(plan, agent.StepResult{}, toolCtx)
	if next.Steps[0].Type != agent.StepToolExecution {
		t.Fatalf("expected tool_execution to run next, got %s", next.Steps[0].Type)
	}
}
