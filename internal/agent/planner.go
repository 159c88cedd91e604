package agent

import (
	"regexp"
	"strings"

	"github.com/kestrelai/agentrt/pkg/models"
)

// actionWords and mathActionWords are kept as data, not code (§9 design
// note), matching the regex-table style used by the rest of this package's
// heuristic classifiers.
var actionWords = []string{"calculate", "compute", "add", "get", "fetch", "find", "search", "convert", "format"}

var mathActionWords = []string{"add", "sum", "plus", "calculate", "compute", "multiply", "divide", "subtract"}

var mathToolNamePattern = regexp.MustCompile(`(?i)^(add|subtract|multiply|divide|calculate|math)`)

// numericExpressionPattern matches an inline arithmetic expression like
// "12 + 4" or "3*7", the other trigger §4.2 rule (iii) accepts alongside a
// math action word.
var numericExpressionPattern = regexp.MustCompile(`\d+\s*[-+*/]\s*\d+`)

var multiStepMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bthen\b`),
	regexp.MustCompile(`(?i)\bafter\b`),
	regexp.MustCompile(`(?i)\bnext\b`),
	regexp.MustCompile(`(?i)\band then\b`),
	regexp.MustCompile(`(?i)area.*(divide|multiply)`),
	regexp.MustCompile(`(?i)calculate.*then`),
}

// Planner implements the heuristic plan/adapt contract of §4.2.
type Planner struct{}

// NewPlanner constructs a heuristic Planner.
func NewPlanner() *Planner { return &Planner{} }

// Plan examines the last message in ctx and produces the initial Plan.
func (p *Planner) Plan(ctx *AgentContext) *Plan {
	if len(ctx.Messages) == 0 {
		return &Plan{Steps: []PlanStep{{Type: StepCompletion}}, Strategy: "completion"}
	}

	last := ctx.Messages[len(ctx.Messages)-1]
	if last.Role != models.RoleUser {
		return &Plan{Steps: []PlanStep{{Type: StepCompletion}}, Strategy: "completion"}
	}

	needed := p.potentialTools(last.Content, ctx.Registry)
	if len(needed) == 0 {
		return &Plan{
			Steps:    []PlanStep{{Type: StepChat, Priority: PriorityNormal}},
			Strategy: "direct",
		}
	}

	steps := make([]PlanStep, 0, len(needed)+2)
	steps = append(steps, PlanStep{Type: StepChat, ExpectedTools: needed, Priority: PriorityCritical})
	for _, name := range needed {
		steps = append(steps, PlanStep{Type: StepToolExecution, ExpectedTools: []string{name}, Priority: PriorityCritical})
	}
	steps = append(steps, PlanStep{Type: StepChat, Priority: PriorityNormal})

	return &Plan{Steps: steps, Strategy: "iterative", EstimatedCost: len(steps)}
}

// potentialTools applies the four §4.2 rules, returning tool names in
// registry iteration order deduplicated by name.
func (p *Planner) potentialTools(text string, registry *ToolRegistry) []string {
	if registry == nil {
		return nil
	}
	lower := strings.ToLower(text)
	hasMathWord := containsAny(lower, mathActionWords) || numericExpressionPattern.MatchString(text)
	hasMultiStep := matchesAnyRegex(text, multiStepMarkers)

	seen := make(map[string]bool)
	var needed []string
	for _, tool := range registry.AsTools() {
		name := tool.Name()
		if seen[name] {
			continue
		}
		nameLower := strings.ToLower(name)

		potential := false
		if strings.Contains(lower, nameLower) {
			potential = true
		}
		if !potential && containsAny(lower, actionWords) {
			potential = true
		}
		if !potential && hasMathWord && mathToolNamePattern.MatchString(name) {
			potential = true
		}
		if !potential && hasMultiStep && mathToolNamePattern.MatchString(name) {
			potential = true
		}

		if potential {
			seen[name] = true
			needed = append(needed, name)
		}
	}
	return needed
}

// AdaptPlan applies the §4.2 adaptation rules after one step.
func (p *Planner) AdaptPlan(plan *Plan, result StepResult, ctx *AgentContext) *Plan {
	if result.IsComplete {
		return &Plan{Steps: []PlanStep{{Type: StepCompletion}}, Strategy: plan.Strategy}
	}
	if result.Error != nil {
		return &Plan{Steps: []PlanStep{{Type: StepChat, Priority: PriorityCritical}}, Strategy: plan.Strategy}
	}

	if len(ctx.Messages) > 0 {
		last := ctx.Messages[len(ctx.Messages)-1]
		if last.Role == models.RoleAssistant && len(last.ToolCalls) > 0 {
			return &Plan{
				Steps:    []PlanStep{{Type: StepToolExecution, Priority: PriorityCritical}, {Type: StepChat, Priority: PriorityNormal}},
				Strategy: plan.Strategy,
			}
		}
		if last.Role == models.RoleTool {
			return &Plan{Steps: []PlanStep{{Type: StepChat, Priority: PriorityNormal}}, Strategy: plan.Strategy}
		}
	}

	if len(plan.Steps) <= 1 {
		return &Plan{Steps: []PlanStep{{Type: StepCompletion}}, Strategy: plan.Strategy}
	}
	return &Plan{Steps: plan.Steps[1:], Strategy: plan.Strategy, EstimatedCost: plan.EstimatedCost}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func matchesAnyRegex(s string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
