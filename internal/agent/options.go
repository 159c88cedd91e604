package agent

import "log/slog"

// ProviderStrategy selects how the executor iterates over the provider pool
// for a chat step.
type ProviderStrategy string

const (
	// StrategySmart tries primary (free-tier) providers in order, then
	// fallback (paid) providers in order. The default.
	StrategySmart ProviderStrategy = "smart"

	// StrategyRacing launches all primary providers concurrently and keeps
	// the first success, cancelling the rest.
	StrategyRacing ProviderStrategy = "racing"

	// StrategySequential flattens primaries and fallbacks into one ordered
	// list and tries them one at a time.
	StrategySequential ProviderStrategy = "sequential"
)

// ToolNameMatch is an allow/deny pair of glob patterns (e.g. "fetch_*")
// matched against a tool name.
type ToolNameMatch struct {
	Allow []string
	Deny  []string
}

// RetryPolicy configures the backoff applied between provider attempts.
type RetryPolicy struct {
	MaxRetries   int
	BaseDelayMs  int
	MaxDelayMs   int
	Jitter       bool
}

// Options is the frozen run-time policy for one engine invocation.
type Options struct {
	// MaxSteps bounds plan/execute/reflect iterations.
	MaxSteps int

	// TimeoutMs is passed to each provider call as its per-call timeout; it
	// does not bound the run as a whole.
	TimeoutMs int

	// MaxHistoryLength is the message-count pruning threshold (0 disables).
	MaxHistoryLength int

	// ContextCharBudget is the soft-trim/hard-clear char window (§12.6).
	// 0 falls back to a generous built-in default.
	ContextCharBudget int

	// PreserveLastAssistants overrides how many trailing assistant turns the
	// soft-trim/hard-clear pass leaves untouched. 0 falls back to the
	// pruning package's own default (3).
	PreserveLastAssistants int

	// PrunableTools restricts which tool results the soft-trim/hard-clear
	// pass may touch by name, e.g. to exempt a tool whose output must
	// survive verbatim (a signed receipt, a generated id). Empty allows
	// every tool result to be pruned.
	PrunableTools ToolNameMatch

	// PreserveSystemMessages keeps every system message through pruning.
	PreserveSystemMessages bool

	// EnableRacing is carried from the run profile but not read by the
	// dispatcher: only ProviderStrategy == StrategyRacing races primaries,
	// and the smart strategy always tries them sequentially.
	EnableRacing bool

	// ProviderStrategy selects dispatch behavior. Defaults to StrategySmart.
	ProviderStrategy ProviderStrategy

	Retry RetryPolicy

	// Logger receives structured diagnostics for retries, circuit
	// transitions, and reflector corrections. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the baseline run options.
func DefaultOptions() Options {
	return Options{
		MaxSteps:               8,
		TimeoutMs:              30000,
		MaxHistoryLength:       50,
		PreserveSystemMessages: true,
		ProviderStrategy:       StrategySmart,
		Retry: RetryPolicy{
			MaxRetries:  2,
			BaseDelayMs: 100,
			MaxDelayMs:  5000,
			Jitter:      true,
		},
		Logger: slog.Default(),
	}
}

// sanitizeOptions fills in zero-valued fields with defaults, mirroring the
// teacher's sanitizeLoopConfig normalizer.
func sanitizeOptions(o Options) Options {
	d := DefaultOptions()
	if o.MaxSteps <= 0 {
		o.MaxSteps = d.MaxSteps
	}
	if o.TimeoutMs <= 0 {
		o.TimeoutMs = d.TimeoutMs
	}
	if o.MaxHistoryLength < 0 {
		o.MaxHistoryLength = d.MaxHistoryLength
	}
	if o.ProviderStrategy == "" {
		o.ProviderStrategy = d.ProviderStrategy
	}
	if o.Retry.MaxRetries <= 0 {
		o.Retry.MaxRetries = d.Retry.MaxRetries
	}
	if o.Retry.BaseDelayMs <= 0 {
		o.Retry.BaseDelayMs = d.Retry.BaseDelayMs
	}
	if o.Retry.MaxDelayMs <= 0 {
		o.Retry.MaxDelayMs = d.Retry.MaxDelayMs
	}
	if o.Logger == nil {
		o.Logger = d.Logger
	}
	return o
}
