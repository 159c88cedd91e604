// Package providers holds the Provider interface's concrete test/demo
// implementations: a deterministic scripted mock, built either with
// structured tool-call support or for the text-embedded ("vanilla") format.
// Concrete wire clients for real backends are out of scope; toolconv
// supplies shape-only conversion for callers that do wire one up.
package providers

import (
	"context"

	"github.com/kestrelai/agentrt/internal/backoff"
)

// BaseProvider holds shared retry configuration for Provider implementations.
type BaseProvider struct {
	id     string
	policy backoff.BackoffPolicy
	max    int
}

// NewBaseProvider creates a base provider with sane defaults.
func NewBaseProvider(id string, maxRetries int) BaseProvider {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return BaseProvider{id: id, policy: backoff.DefaultPolicy(), max: maxRetries}
}

// ID returns the provider's stable identifier.
func (b *BaseProvider) ID() string { return b.id }

// Retry executes op, retrying with exponential backoff while isRetryable
// returns true for the most recent error.
func (b *BaseProvider) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	if op == nil {
		return nil
	}
	var lastErr error
	for attempt := 1; attempt <= b.max; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if isRetryable != nil && !isRetryable(err) {
			return err
		}
		if attempt >= b.max {
			break
		}
		if err := backoff.SleepWithBackoff(ctx, b.policy, attempt); err != nil {
			return err
		}
	}
	return lastErr
}
