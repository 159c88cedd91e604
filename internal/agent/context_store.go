package agent

import (
	"time"

	"github.com/google/uuid"
	memctx "github.com/kestrelai/agentrt/internal/agent/context"
	"github.com/kestrelai/agentrt/pkg/models"
)

// ProviderPool separates free-tier/sequential-preferred primaries from paid
// fallbacks (§2, §4.4).
type ProviderPool struct {
	Primary  []Provider
	Fallback []Provider
}

// RunMetrics accumulates the counters the engine reports back (§6.3).
type RunMetrics struct {
	Duration       time.Duration
	ProviderCalls  int
	ToolExecutions int
	CostSavings    float64
	Efficiency     float64

	// TranscriptRepairs counts tool results repairTranscript had to drop
	// because pruning separated them from their matching tool call.
	TranscriptRepairs int
}

// ProviderAttempt records one provider's outcome during a chat step, for
// debug.providerHistory.
type ProviderAttempt struct {
	ProviderID string
	Success    bool
}

// DebugInfo carries optional run introspection (§6.3 debug field).
type DebugInfo struct {
	Plan            *Plan
	Steps           []StepResult
	Reflections     []ReflectionResult
	ProviderHistory []ProviderAttempt
}

// AgentContext is the engine's immutable conversation snapshot (§3, §4.1).
// Every mutating operation returns a new AgentContext; the receiver is left
// untouched and remains usable by its other holders.
type AgentContext struct {
	// RunID identifies one Loop.Run invocation, for log/span correlation.
	RunID string

	Messages  []models.Message
	Registry  *ToolRegistry
	Providers ProviderPool
	Options   Options

	// ProviderModels maps a provider id to the model string the engine
	// should request from it.
	ProviderModels map[string]string

	// IsComplete marks a context whose run has reached a terminal state;
	// per §8's idempotence law, run(ctx_completed) = ctx_completed.
	IsComplete bool

	// ConsecutiveErrors counts consecutive step failures, the input to the
	// RepeatedFailure safety valve (§7).
	ConsecutiveErrors int
	LastError         error

	Metrics RunMetrics
	Debug   DebugInfo
}

// NewAgentContext creates the initial snapshot for a run.
func NewAgentContext(messages []models.Message, registry *ToolRegistry, providers ProviderPool, opts Options, providerModels map[string]string) *AgentContext {
	opts = sanitizeOptions(opts)
	msgs := make([]models.Message, len(messages))
	copy(msgs, messages)
	return &AgentContext{
		RunID:          uuid.NewString(),
		Messages:       msgs,
		Registry:       registry,
		Providers:      providers,
		Options:        opts,
		ProviderModels: providerModels,
	}
}

// clone produces a shallow copy of ctx with its own Messages backing array,
// so appends on the copy never alias the original's slice.
func (c *AgentContext) clone() *AgentContext {
	cp := *c
	cp.Messages = append([]models.Message(nil), c.Messages...)
	cp.Debug.Steps = append([]StepResult(nil), c.Debug.Steps...)
	cp.Debug.Reflections = append([]ReflectionResult(nil), c.Debug.Reflections...)
	cp.Debug.ProviderHistory = append([]ProviderAttempt(nil), c.Debug.ProviderHistory...)
	return &cp
}

// AppendMessages returns a new context with delta appended and pruning
// applied per §4.1's policy. Pruning can cut a tool-call's request away from
// its result (or vice versa); repairTranscript drops the orphaned half so a
// provider never sees a dangling tool reference.
func (c *AgentContext) AppendMessages(delta ...models.Message) *AgentContext {
	next := c.clone()
	next.Messages = append(next.Messages, delta...)
	next.Messages = pruneByCount(next.Messages, next.Options.MaxHistoryLength, next.Options.PreserveSystemMessages)
	next.Messages = softPrune(next.Messages, next.Options)
	var repairs int
	next.Messages, repairs = repairMessageTranscript(next.Messages)
	next.Metrics.TranscriptRepairs += repairs
	return next
}

// repairMessageTranscript adapts repairTranscript's pointer-slice invariant
// check to AgentContext's value-slice storage.
func repairMessageTranscript(messages []models.Message) ([]models.Message, int) {
	ptrs := make([]*models.Message, len(messages))
	for i := range messages {
		ptrs[i] = &messages[i]
	}
	repaired, dropped := repairTranscript(ptrs)
	result := make([]models.Message, len(repaired))
	for i, m := range repaired {
		result[i] = *m
	}
	return result, dropped
}

// pruneByCount implements §4.1's message-count pruning policy exactly.
func pruneByCount(messages []models.Message, maxHistoryLength int, preserveSystem bool) []models.Message {
	if maxHistoryLength <= 0 || len(messages) <= maxHistoryLength {
		return messages
	}

	if !preserveSystem {
		return append([]models.Message(nil), messages[len(messages)-maxHistoryLength:]...)
	}

	var system, rest []models.Message
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}

	if len(system) >= maxHistoryLength {
		return append([]models.Message(nil), system[len(system)-maxHistoryLength:]...)
	}

	keepRest := maxHistoryLength - len(system)
	if keepRest > len(rest) {
		keepRest = len(rest)
	}
	result := make([]models.Message, 0, len(system)+keepRest)
	result = append(result, system...)
	result = append(result, rest[len(rest)-keepRest:]...)
	return result
}

// softPrune applies the soft-trim/hard-clear supplement (§12.6) on top of
// the §4.1 count-based prune, tuning the default settings from the run's
// own Options rather than hardcoding them.
func softPrune(messages []models.Message, opts Options) []models.Message {
	settings := memctx.DefaultContextPruningSettings()
	if opts.PreserveLastAssistants > 0 {
		settings.KeepLastAssistants = opts.PreserveLastAssistants
	}
	if len(opts.PrunableTools.Allow) > 0 || len(opts.PrunableTools.Deny) > 0 {
		settings.Tools = memctx.ContextPruningToolMatch{Allow: opts.PrunableTools.Allow, Deny: opts.PrunableTools.Deny}
	}

	ptrs := make([]*models.Message, len(messages))
	for i := range messages {
		ptrs[i] = &messages[i]
	}
	pruned := memctx.PruneContextMessages(ptrs, settings, estimateCharBudget(opts))
	result := make([]models.Message, len(pruned))
	for i, p := range pruned {
		result[i] = *p
	}
	return result
}

// defaultCharBudget is the proxy budget used when Options doesn't set one,
// independent of MaxHistoryLength so the soft-trim/hard-clear pass only
// engages on genuinely oversized tool-result content, not small
// conversations with a low message cap.
const defaultCharBudget = 30000

func estimateCharBudget(opts Options) int {
	if opts.ContextCharBudget > 0 {
		return opts.ContextCharBudget
	}
	return defaultCharBudget
}

// UpdateState mutates completion/error bookkeeping, returning a new
// snapshot.
func (c *AgentContext) UpdateState(isComplete bool, stepErr error) *AgentContext {
	next := c.clone()
	next.IsComplete = isComplete
	if stepErr != nil {
		next.ConsecutiveErrors++
		next.LastError = stepErr
	} else {
		next.ConsecutiveErrors = 0
	}
	return next
}

// UpdateMetrics folds a metrics delta into a new snapshot.
func (c *AgentContext) UpdateMetrics(delta RunMetrics) *AgentContext {
	next := c.clone()
	next.Metrics.ProviderCalls += delta.ProviderCalls
	next.Metrics.ToolExecutions += delta.ToolExecutions
	next.Metrics.CostSavings += delta.CostSavings
	if delta.Efficiency != 0 {
		next.Metrics.Efficiency = delta.Efficiency
	}
	return next
}

// RecordProviderAttempt appends one attempt to the debug provider history.
func (c *AgentContext) RecordProviderAttempt(providerID string, success bool) *AgentContext {
	next := c.clone()
	next.Debug.ProviderHistory = append(next.Debug.ProviderHistory, ProviderAttempt{ProviderID: providerID, Success: success})
	return next
}
