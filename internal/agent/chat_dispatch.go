package agent

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/kestrelai/agentrt/internal/agent/breaker"
	"github.com/kestrelai/agentrt/internal/agent/toolparse"
	"github.com/kestrelai/agentrt/internal/observability"
	"github.com/kestrelai/agentrt/pkg/models"
	"go.opentelemetry.io/otel/trace"
)

// chatDispatcher runs one chat step's provider iteration per the
// smart/racing/sequential strategies (§4.4), tracking circuit-breaker state
// across the whole run.
type chatDispatcher struct {
	breaker *breaker.Breaker

	// obsMetrics/obsTracer are optional, set via SetObservability; nil
	// leaves the dispatcher's behavior exactly as before.
	obsMetrics *observability.Metrics
	obsTracer  *observability.Tracer

	// logger receives breaker transitions; set via SetLogger. Defaults to
	// discarding (nil means no log line, checked at the call site) since
	// the dispatcher is built once per StepExecutor, before any Options is
	// available to seed it with.
	logger *slog.Logger
}

func newChatDispatcher() *chatDispatcher {
	d := &chatDispatcher{breaker: breaker.New(breaker.DefaultConfig())}
	d.breaker.OnTransition = func(id string, state breaker.State) {
		if d.obsMetrics != nil {
			d.obsMetrics.RecordBreakerTransition(id, string(state))
		}
		if d.logger != nil {
			d.logger.Info("circuit breaker transition", "provider", id, "state", string(state))
		}
	}
	return d
}

// SetObservability attaches Prometheus metrics and an otel tracer to the
// dispatcher. Either argument may be nil to leave that instrumentation off.
func (d *chatDispatcher) SetObservability(metrics *observability.Metrics, tracer *observability.Tracer) {
	d.obsMetrics = metrics
	d.obsTracer = tracer
}

// SetLogger attaches the structured logger breaker transitions are reported
// through. Called once per run from Loop.Run, which is the first point
// Options.Logger is available to the dispatcher.
func (d *chatDispatcher) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

// dispatch tries providers according to opts.ProviderStrategy and returns the
// winning ChatResult, the provider that produced it, and the attempt history
// for debug.providerHistory. providerModels maps a provider id to the model
// string to request from it; a missing entry resolves to "auto" (§4.4).
func (d *chatDispatcher) dispatch(ctx context.Context, req *ChatRequest, pool ProviderPool, opts Options, providerModels map[string]string) (*ChatResult, Provider, []ProviderAttempt, error) {
	switch opts.ProviderStrategy {
	case StrategyRacing:
		return d.race(ctx, req, pool, opts, providerModels)
	case StrategySequential:
		all := append(append([]Provider{}, pool.Primary...), pool.Fallback...)
		return d.sequential(ctx, req, all, opts, providerModels)
	default:
		return d.smart(ctx, req, pool, opts, providerModels)
	}
}

func (d *chatDispatcher) smart(ctx context.Context, req *ChatRequest, pool ProviderPool, opts Options, providerModels map[string]string) (*ChatResult, Provider, []ProviderAttempt, error) {
	if res, p, attempts, err := d.sequential(ctx, req, pool.Primary, opts, providerModels); err == nil {
		return res, p, attempts, nil
	} else if len(pool.Fallback) == 0 {
		return nil, nil, attempts, err
	} else {
		fallbackRes, fallbackP, fallbackAttempts, fallbackErr := d.sequential(ctx, req, pool.Fallback, opts, providerModels)
		return fallbackRes, fallbackP, append(attempts, fallbackAttempts...), fallbackErr
	}
}

// modelFor resolves the model string to request from provider id per the
// §4.4/§6.3 "auto" sentinel rule.
func modelFor(id string, providerModels map[string]string) string {
	if m, ok := providerModels[id]; ok && m != "" {
		return m
	}
	return "auto"
}

// sequential tries each provider in order, honoring the circuit breaker and
// the jittered backoff between attempts (§4.4).
func (d *chatDispatcher) sequential(ctx context.Context, req *ChatRequest, providers []Provider, opts Options, providerModels map[string]string) (*ChatResult, Provider, []ProviderAttempt, error) {
	var attempts []ProviderAttempt
	var lastErr error

	for i := range providers {
		p := providers[i]
		if !d.breaker.Allow(p.ID()) {
			attempts = append(attempts, ProviderAttempt{ProviderID: p.ID(), Success: false})
			lastErr = fmt.Errorf("circuit open for provider %s", p.ID())
			continue
		}

		callReq := &ChatRequest{Model: modelFor(p.ID(), providerModels), Messages: req.Messages, Tools: req.Tools, TimeoutMs: req.TimeoutMs}
		res, err := d.callProviderTraced(ctx, p, callReq, i)
		if err == nil {
			d.breaker.RecordSuccess(p.ID())
			attempts = append(attempts, ProviderAttempt{ProviderID: p.ID(), Success: true})
			return res, p, attempts, nil
		}

		d.breaker.RecordFailure(p.ID())
		attempts = append(attempts, ProviderAttempt{ProviderID: p.ID(), Success: false})
		lastErr = NewProviderError(p.ID(), callReq.Model, err)

		providerErr, _ := GetProviderError(lastErr)
		if !providerErr.Kind.IsRetryable() {
			return nil, nil, attempts, lastErr
		}

		if i < len(providers)-1 {
			if opts.Logger != nil {
				opts.Logger.Debug("backing off before next provider attempt", "failed_provider", p.ID(), "base_delay_ms", opts.Retry.BaseDelayMs)
			}
			if err := sleepBackoff(ctx, opts.Retry); err != nil {
				return nil, nil, attempts, err
			}
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no providers configured")
	}
	return nil, nil, attempts, lastErr
}

// race launches every primary concurrently; the first success wins and the
// rest are cancelled. On total failure it falls back to sequential over
// fallback providers.
func (d *chatDispatcher) race(ctx context.Context, req *ChatRequest, pool ProviderPool, opts Options, providerModels map[string]string) (*ChatResult, Provider, []ProviderAttempt, error) {
	if len(pool.Primary) == 0 {
		return d.sequential(ctx, req, pool.Fallback, opts, providerModels)
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		res *ChatResult
		p   Provider
		err error
		idx int
	}
	results := make(chan outcome, len(pool.Primary))

	for i := range pool.Primary {
		p := pool.Primary[i]
		if !d.breaker.Allow(p.ID()) {
			results <- outcome{err: fmt.Errorf("circuit open for provider %s", p.ID()), idx: i}
			continue
		}
		go func(idx int, prov Provider) {
			callReq := &ChatRequest{Model: modelFor(prov.ID(), providerModels), Messages: req.Messages, Tools: req.Tools, TimeoutMs: req.TimeoutMs}
			res, err := d.callProviderTraced(raceCtx, prov, callReq, 0)
			results <- outcome{res: res, p: prov, err: err, idx: idx}
		}(i, p)
	}

	var attempts []ProviderAttempt
	var winner *outcome

	for range pool.Primary {
		o := <-results
		id := pool.Primary[o.idx].ID()
		if o.err == nil && winner == nil {
			d.breaker.RecordSuccess(id)
			attempts = append(attempts, ProviderAttempt{ProviderID: id, Success: true})
			w := o
			winner = &w
			cancel()
			continue
		}
		if o.err != nil {
			d.breaker.RecordFailure(id)
			attempts = append(attempts, ProviderAttempt{ProviderID: id, Success: false})
		}
	}

	if winner != nil {
		return winner.res, winner.p, attempts, nil
	}

	fallbackRes, fallbackP, fallbackAttempts, fallbackErr := d.sequential(ctx, req, pool.Fallback, opts, providerModels)
	attempts = append(attempts, fallbackAttempts...)
	if fallbackErr != nil {
		return nil, nil, attempts, fallbackErr
	}
	return fallbackRes, fallbackP, attempts, nil
}

// sleepBackoff waits baseDelayMs plus, if jitter is on, a uniform random
// component, capped by maxDelayMs (§4.4).
func sleepBackoff(ctx context.Context, retry RetryPolicy) error {
	delay := time.Duration(retry.BaseDelayMs) * time.Millisecond
	if retry.Jitter {
		delay += time.Duration(rand.Intn(1000)) * time.Millisecond
	}
	max := time.Duration(retry.MaxDelayMs) * time.Millisecond
	if max > 0 && delay > max {
		delay = max
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// callProviderTraced wraps callProvider with the dispatcher's optional span
// and duration/outcome metrics, attempt being the 0-based retry count for
// span attribution.
func (d *chatDispatcher) callProviderTraced(ctx context.Context, p Provider, req *ChatRequest, attempt int) (*ChatResult, error) {
	start := time.Now()

	spanCtx := ctx
	var span trace.Span
	if d.obsTracer != nil {
		spanCtx, span = d.obsTracer.TraceProviderCall(ctx, p.ID(), req.Model, attempt)
	}

	res, err := callProvider(spanCtx, p, req)

	if span != nil {
		observability.End(span, err)
	}
	if d.obsMetrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		d.obsMetrics.RecordProviderCall(p.ID(), req.Model, status, time.Since(start).Seconds())
	}
	return res, err
}

// callProvider drains a provider's chunk stream into one ChatResult. It
// synthesizes a tool-call from vanilla TOOL_CALL: text when the provider
// doesn't support structured tool-calls and no structured call arrived.
func callProvider(ctx context.Context, p Provider, req *ChatRequest) (*ChatResult, error) {
	if !p.SupportsTools() {
		req = &ChatRequest{Model: req.Model, Messages: req.Messages, TimeoutMs: req.TimeoutMs}
	}

	ch, err := p.Chat(ctx, req)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	var toolCall *models.ToolCall
	var finish FinishReason = FinishStop
	var usage *Usage

	for chunk := range ch {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		text.WriteString(chunk.Text)
		if chunk.ToolCall != nil {
			toolCall = chunk.ToolCall
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if chunk.Done {
			finish = chunk.FinishReason
		}
	}

	content := text.String()
	if toolCall == nil && !p.SupportsTools() {
		if call := parseVanillaToolCall(content); call != nil {
			toolCall = call
			finish = FinishToolCall
		}
	}

	msg := models.Message{Role: models.RoleAssistant, Content: content}
	if toolCall != nil {
		msg.ToolCalls = []models.ToolCall{*toolCall}
	}

	return &ChatResult{
		Messages:     []models.Message{msg},
		FinishReason: finish,
		ToolCall:     toolCall,
		Usage:        usage,
	}, nil
}

// costSavings implements §4.4's flat zero-marginal-cost heuristic: providers
// whose id contains "free" or equals "google" are treated as free tiers.
func costSavings(providerID string, usage *Usage) float64 {
	if usage == nil {
		return 0
	}
	if !strings.Contains(providerID, "free") && providerID != "google" {
		return 0
	}
	total := usage.InputTokens + usage.OutputTokens
	return 0.01 * (float64(total) / 1000)
}

// parseVanillaToolCall extracts a TOOL_CALL: {...} invocation from assistant
// text and synthesizes a call id, for providers lacking structured tool-call
// support (§4.6, §6.4).
func parseVanillaToolCall(content string) *models.ToolCall {
	call := toolparse.Parse(content)
	if call == nil {
		return nil
	}
	return &models.ToolCall{
		ID:    toolparse.NextCallID(call.Name),
		Name:  call.Name,
		Input: call.Arguments,
	}
}
