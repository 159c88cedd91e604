// Package quantum implements the Quantum Planner (§4.3): intent recognition,
// HTN-inspired strategy decomposition, tree-of-thoughts alternatives, and
// self-healing adaptation.
package quantum

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/kestrelai/agentrt/internal/agent"
	"github.com/kestrelai/agentrt/pkg/models"
)

// Complexity classifies how involved a request is.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityExpert   Complexity = "expert"
)

// TaskType classifies the kind of work a request requires.
type TaskType string

const (
	TaskCalculation   TaskType = "calculation"
	TaskSearch        TaskType = "search"
	TaskCreation      TaskType = "creation"
	TaskAnalysis      TaskType = "analysis"
	TaskPlanning      TaskType = "planning"
	TaskCommunication TaskType = "communication"
	TaskMultiStep     TaskType = "multi_step"
	TaskUnknown       TaskType = "unknown"
)

// Intent is Phase A's output.
type Intent struct {
	PrimaryIntent    string
	SecondaryIntents []string
	Context          string
	Complexity       Complexity
	TaskType         TaskType
	Constraints      []string
	Degraded         bool // true when the fallback keyword classifier was used
}

// Strategy names one of Phase B's five decomposition strategies.
type Strategy string

const (
	StrategyAdaptive     Strategy = "adaptive"
	StrategyParallel     Strategy = "parallel"
	StrategyDirect       Strategy = "direct"
	StrategySequential   Strategy = "sequential"
	StrategyHierarchical Strategy = "hierarchical"
)

// DecomposedStep is one HTN step with explicit predecessor dependencies.
type DecomposedStep struct {
	ID           string
	Tools        []string
	Dependencies []string
}

// Hypothesis is one Phase C alternative.
type Hypothesis struct {
	Label       string
	Steps       []DecomposedStep
	Reliability float64
	Cost        int
}

// Plan is the quantum planner's richer plan shape, carrying HTN steps and
// tree-of-thoughts alternatives alongside the engine-facing agent.Plan.
type Plan struct {
	// ID identifies one Plan/Adapt cycle's output, for log/span correlation;
	// step ids within Steps stay sequential (step_N) since their ordering,
	// not uniqueness across runs, is what the HTN dependency chain needs.
	ID           string
	Intent       Intent
	Strategy     Strategy
	Steps        []DecomposedStep
	Alternatives []Hypothesis
	Confidence   float64
}

var (
	sequenceMarker   = regexp.MustCompile(`(?i)\b(then|after|next)\b`)
	uncertaintyWords = []string{"maybe", "not sure", "unclear", "uncertain", "might"}

	calculationRe = regexp.MustCompile(`(?i)\b(add|subtract|multiply|divide|calculate|compute|sum)\b`)
	searchRe      = regexp.MustCompile(`(?i)\b(search|find|get|fetch|query)\b`)
	analysisRe    = regexp.MustCompile(`(?i)\b(analyze|examine|review|process)\b`)
	creationRe    = regexp.MustCompile(`(?i)\b(create|generate|make|build)\b`)

	searchAndAnalyze = regexp.MustCompile(`(?i)search.*and.*analyze`)

	multiplyWords = []string{"multiply", "area", "×", "*"}
	divideWords   = []string{"divide", "÷", "/"}
	addWords      = []string{"add", "+", "plus"}
	subtractWords = []string{"subtract", "-", "minus"}
)

// Planner drives the three phases of §4.3.
type Planner struct {
	registry *agent.ToolRegistry
}

// NewPlanner constructs a quantum Planner over the engine's tool registry.
func NewPlanner(registry *agent.ToolRegistry) *Planner {
	return &Planner{registry: registry}
}

// RecognizeIntent is Phase A. primary is the capable provider to prompt; on
// any error, or when the response can't be parsed, it falls back to a
// deterministic keyword classifier and marks the intent degraded.
func (p *Planner) RecognizeIntent(ctx context.Context, primary agent.Provider, userText string) Intent {
	if primary != nil {
		if intent, ok := p.recognizeViaProvider(ctx, primary, userText); ok {
			return intent
		}
	}
	return p.keywordIntent(userText)
}

func (p *Planner) recognizeViaProvider(ctx context.Context, primary agent.Provider, userText string) (Intent, bool) {
	prompt := intentPromptTemplate(userText)
	req := &agent.ChatRequest{
		Model:    "auto",
		Messages: []models.Message{{Role: models.RoleUser, Content: prompt}},
	}
	ch, err := primary.Chat(ctx, req)
	if err != nil {
		return Intent{}, false
	}
	var text strings.Builder
	for chunk := range ch {
		if chunk.Err != nil {
			return Intent{}, false
		}
		text.WriteString(chunk.Text)
	}
	intent, ok := parseIntentResponse(text.String())
	return intent, ok
}

func intentPromptTemplate(userText string) string {
	return "Classify the following request.\n" +
		"Request: " + userText + "\n\n" +
		"Respond with exactly these lines:\n" +
		"PRIMARY_INTENT: <short phrase>\n" +
		"SECONDARY_INTENTS: <comma-separated, or none>\n" +
		"CONTEXT: <short phrase>\n" +
		"COMPLEXITY: simple|moderate|complex|expert\n" +
		"TASK_TYPE: calculation|search|creation|analysis|planning|communication|multi_step|unknown\n" +
		"CONSTRAINTS: <comma-separated, or none>"
}

// parseIntentResponse parses the fixed line-oriented template from
// intentPromptTemplate.
func parseIntentResponse(text string) (Intent, bool) {
	fields := map[string]string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(line[:idx]))
		val := strings.TrimSpace(line[idx+1:])
		fields[key] = val
	}

	primary, ok := fields["PRIMARY_INTENT"]
	if !ok || primary == "" {
		return Intent{}, false
	}

	intent := Intent{
		PrimaryIntent: primary,
		Context:       fields["CONTEXT"],
		Complexity:    parseComplexity(fields["COMPLEXITY"]),
		TaskType:      parseTaskType(fields["TASK_TYPE"]),
	}
	if sec := fields["SECONDARY_INTENTS"]; sec != "" && !strings.EqualFold(sec, "none") {
		intent.SecondaryIntents = splitCSV(sec)
	}
	if c := fields["CONSTRAINTS"]; c != "" && !strings.EqualFold(c, "none") {
		intent.Constraints = splitCSV(c)
	}
	return intent, true
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func parseComplexity(s string) Complexity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simple":
		return ComplexitySimple
	case "moderate":
		return ComplexityModerate
	case "complex":
		return ComplexityComplex
	case "expert":
		return ComplexityExpert
	default:
		return ComplexityModerate
	}
}

func parseTaskType(s string) TaskType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "calculation":
		return TaskCalculation
	case "search":
		return TaskSearch
	case "creation":
		return TaskCreation
	case "analysis":
		return TaskAnalysis
	case "planning":
		return TaskPlanning
	case "communication":
		return TaskCommunication
	case "multi_step":
		return TaskMultiStep
	default:
		return TaskUnknown
	}
}

// keywordIntent is the deterministic fallback classifier.
func (p *Planner) keywordIntent(userText string) Intent {
	lower := strings.ToLower(userText)
	taskType := TaskUnknown
	switch {
	case calculationRe.MatchString(lower):
		taskType = TaskCalculation
	case searchRe.MatchString(lower):
		taskType = TaskSearch
	case analysisRe.MatchString(lower):
		taskType = TaskAnalysis
	case creationRe.MatchString(lower):
		taskType = TaskCreation
	}

	complexity := ComplexitySimple
	if len(userText) > 200 || sequenceMarker.MatchString(userText) {
		complexity = ComplexityModerate
	}
	if len(userText) > 500 {
		complexity = ComplexityComplex
	}

	return Intent{
		PrimaryIntent: firstClause(userText),
		Complexity:    complexity,
		TaskType:      taskType,
		Degraded:      true,
	}
}

func firstClause(text string) string {
	if idx := strings.IndexAny(text, ".!?"); idx > 0 {
		return strings.TrimSpace(text[:idx])
	}
	if len(text) > 80 {
		return strings.TrimSpace(text[:80])
	}
	return strings.TrimSpace(text)
}

// DecomposeStrategy is Phase B: selects a strategy and decomposes it into
// steps using the fixed priority ordering from §4.3.
func (p *Planner) DecomposeStrategy(intent Intent, userText string) (Strategy, []DecomposedStep) {
	strategy := p.selectStrategy(intent, userText)
	steps := p.decompose(strategy, intent, userText)
	return strategy, steps
}

func (p *Planner) selectStrategy(intent Intent, userText string) Strategy {
	lower := strings.ToLower(userText)

	if intent.TaskType == TaskUnknown || containsAny(lower, uncertaintyWords) || mentionsUncertainty(intent.Constraints) {
		return StrategyAdaptive
	}

	toolCount := len(p.requiredTools(intent, userText))
	if len(intent.SecondaryIntents) > 1 && searchAndAnalyze.MatchString(lower) && toolCount > 2 {
		return StrategyParallel
	}

	hasSequenceMarker := sequenceMarker.MatchString(userText)

	if intent.Complexity == ComplexitySimple && len(intent.SecondaryIntents) == 0 &&
		intent.TaskType != TaskMultiStep && !hasSequenceMarker {
		return StrategyDirect
	}

	if hasSequenceMarker && intent.Complexity != ComplexityComplex && len(intent.SecondaryIntents) <= 2 {
		return StrategySequential
	}

	if intent.Complexity == ComplexityComplex || intent.Complexity == ComplexityExpert ||
		(len(intent.SecondaryIntents) > 2 && !hasSequenceMarker) {
		return StrategyHierarchical
	}

	if intent.Complexity == ComplexityModerate && len(intent.SecondaryIntents) > 0 {
		return StrategySequential
	}
	return StrategyDirect
}

func mentionsUncertainty(constraints []string) bool {
	for _, c := range constraints {
		if containsAny(strings.ToLower(c), uncertaintyWords) {
			return true
		}
	}
	return false
}

// requiredTools predicts needed tools by task-type regex family plus
// name-substring matches against the registry.
func (p *Planner) requiredTools(intent Intent, userText string) []string {
	lower := strings.ToLower(userText)
	var family *regexp.Regexp
	switch intent.TaskType {
	case TaskCalculation:
		family = calculationRe
	case TaskSearch:
		family = searchRe
	case TaskAnalysis:
		family = analysisRe
	case TaskCreation:
		family = creationRe
	}

	seen := make(map[string]bool)
	var tools []string
	if p.registry == nil {
		return tools
	}
	for _, tool := range p.registry.AsTools() {
		name := tool.Name()
		if seen[name] {
			continue
		}
		match := strings.Contains(lower, strings.ToLower(name))
		if !match && family != nil && family.MatchString(lower) {
			match = true
		}
		if match {
			seen[name] = true
			tools = append(tools, name)
		}
	}
	return tools
}

func (p *Planner) decompose(strategy Strategy, intent Intent, userText string) []DecomposedStep {
	if strategy == StrategySequential && sequenceMarker.MatchString(userText) {
		return decomposeBySequence(userText)
	}

	tools := p.requiredTools(intent, userText)
	if len(tools) == 0 {
		return []DecomposedStep{{ID: "step_1"}}
	}
	steps := make([]DecomposedStep, 0, len(tools))
	var prevID string
	for i, t := range tools {
		id := stepID(i)
		var deps []string
		if strategy != StrategyParallel && prevID != "" {
			deps = []string{prevID}
		}
		steps = append(steps, DecomposedStep{ID: id, Tools: []string{t}, Dependencies: deps})
		prevID = id
	}
	return steps
}

// decomposeBySequence splits on the sequence separator and infers each
// clause's operation from per-clause keywords (§4.3).
func decomposeBySequence(userText string) []DecomposedStep {
	clauses := splitOnSequenceMarker(userText)
	steps := make([]DecomposedStep, 0, len(clauses))
	var prevID string
	for i, clause := range clauses {
		lower := strings.ToLower(clause)
		var tool string
		switch {
		case containsAny(lower, multiplyWords):
			tool = "multiply"
		case containsAny(lower, divideWords):
			tool = "divide"
		case containsAny(lower, addWords):
			tool = "add"
		case containsAny(lower, subtractWords):
			tool = "subtract"
		}
		id := stepID(i)
		var deps []string
		if prevID != "" {
			deps = []string{prevID}
		}
		step := DecomposedStep{ID: id, Dependencies: deps}
		if tool != "" {
			step.Tools = []string{tool}
		}
		steps = append(steps, step)
		prevID = id
	}
	return steps
}

func splitOnSequenceMarker(text string) []string {
	parts := sequenceMarker.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(strings.Trim(p, ",.")); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func stepID(i int) string {
	return "step_" + strconv.Itoa(i+1)
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// GenerateAlternatives is Phase C: builds 2-4 hypotheses plus an always-
// present fallback. It returns only the hypotheses; Plan sets the overall
// plan confidence to the fixed PlanConfidenceBaseline.
func (p *Planner) GenerateAlternatives(intent Intent, strategy Strategy, steps []DecomposedStep, userText string) []Hypothesis {
	var alts []Hypothesis

	alts = append(alts, Hypothesis{Label: "tool_focused", Steps: steps, Reliability: 0.8, Cost: len(steps)})
	alts = append(alts, Hypothesis{
		Label:       "chat_guided",
		Steps:       []DecomposedStep{{ID: "step_1"}},
		Reliability: 0.6,
		Cost:        1,
	})

	if intent.Complexity == ComplexityComplex || intent.Complexity == ComplexityExpert {
		alts = append(alts, Hypothesis{Label: "hybrid", Steps: hybridSteps(steps), Reliability: 0.7, Cost: len(steps) + 1})
	}

	if containsAny(strings.ToLower(userText), uncertaintyWords) {
		alts = append(alts, Hypothesis{Label: "adaptive_exploration", Steps: steps, Reliability: 0.5, Cost: len(steps) + 2})
	}

	alts = append(alts, Hypothesis{
		Label:       "fallback",
		Steps:       []DecomposedStep{{ID: "step_1"}},
		Reliability: 0.9,
		Cost:        1,
	})

	return alts
}

func hybridSteps(steps []DecomposedStep) []DecomposedStep {
	hybrid := append([]DecomposedStep(nil), steps...)
	hybrid = append(hybrid, DecomposedStep{ID: stepID(len(steps)), Dependencies: lastID(steps)})
	return hybrid
}

func lastID(steps []DecomposedStep) []string {
	if len(steps) == 0 {
		return nil
	}
	return []string{steps[len(steps)-1].ID}
}

// PlanConfidenceBaseline is the fixed overall-confidence score used until
// the engine learns from outcomes (§4.3).
const PlanConfidenceBaseline = 85

// Plan runs all three phases and returns the complete quantum Plan.
func (p *Planner) Plan(ctx context.Context, primary agent.Provider, userText string) *Plan {
	intent := p.RecognizeIntent(ctx, primary, userText)
	strategy, steps := p.DecomposeStrategy(intent, userText)
	alternatives := p.GenerateAlternatives(intent, strategy, steps, userText)
	return &Plan{
		ID:           uuid.NewString(),
		Intent:       intent,
		Strategy:     strategy,
		Steps:        steps,
		Alternatives: alternatives,
		Confidence:   PlanConfidenceBaseline,
	}
}

// BestAlternative returns the highest-reliability hypothesis in alts, or
// false if alts is empty.
func BestAlternative(alts []Hypothesis) (Hypothesis, bool) {
	if len(alts) == 0 {
		return Hypothesis{}, false
	}
	best := alts[0]
	for _, h := range alts[1:] {
		if h.Reliability > best.Reliability {
			best = h
		}
	}
	return best, true
}

// SwitchToAlternative is the loop-variant of self-healing: instead of
// synthesizing another error_recovery hypothesis, it promotes an
// already-generated Phase C alternative to the active plan, at a 20%
// confidence penalty. The promoted alternative is dropped from the
// remaining alternatives list so a later retry can't pick it again.
func (p *Planner) SwitchToAlternative(plan *Plan, alt Hypothesis) *Plan {
	remaining := make([]Hypothesis, 0, len(plan.Alternatives))
	for _, h := range plan.Alternatives {
		if h.Label != alt.Label {
			remaining = append(remaining, h)
		}
	}
	return &Plan{
		ID:           uuid.NewString(),
		Intent:       plan.Intent,
		Strategy:     StrategyAdaptive,
		Steps:        alt.Steps,
		Alternatives: remaining,
		Confidence:   plan.Confidence * 0.8,
	}
}

// Adapt implements adaptQuantumPlan's self-healing contract.
func (p *Planner) Adapt(plan *Plan, stepErr error, isComplete bool) *Plan {
	if isComplete {
		return &Plan{ID: uuid.NewString(), Intent: plan.Intent, Strategy: StrategyDirect, Steps: nil, Confidence: plan.Confidence}
	}
	if stepErr == nil {
		return plan
	}

	recovery := Hypothesis{
		Label:       "error_recovery",
		Steps:       []DecomposedStep{{ID: "step_1"}},
		Reliability: 0.4,
		Cost:        1,
	}
	revised := &Plan{
		ID:           uuid.NewString(),
		Intent:       plan.Intent,
		Strategy:     StrategyAdaptive,
		Steps:        recovery.Steps,
		Alternatives: append([]Hypothesis{recovery}, plan.Alternatives...),
		Confidence:   plan.Confidence * 0.9,
	}
	if len(revised.Steps) == 0 {
		return &Plan{ID: revised.ID, Intent: plan.Intent, Strategy: StrategyDirect, Steps: []DecomposedStep{{ID: "step_1"}}, Confidence: 60}
	}
	return revised
}
