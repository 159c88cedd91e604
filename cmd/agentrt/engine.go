package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kestrelai/agentrt/internal/agent"
	"github.com/kestrelai/agentrt/internal/agent/providers"
	"github.com/kestrelai/agentrt/internal/agent/quantum"
	"github.com/kestrelai/agentrt/internal/agent/routing"
	"github.com/kestrelai/agentrt/internal/observability"
	"github.com/kestrelai/agentrt/pkg/models"
)

// buildPool constructs a mock-backed ProviderPool from a run profile's
// declared providers, splitting primary/fallback at PrimaryCount and
// returning the per-provider model map executeChat's dispatcher consults.
func buildPool(p *RunProfile) (agent.ProviderPool, map[string]string, error) {
	var pool agent.ProviderPool
	providerModels := make(map[string]string, len(p.Providers))
	byID := make(map[string]agent.Provider, len(p.Providers))

	for i, pp := range p.Providers {
		script, err := buildScript(pp.Script)
		if err != nil {
			return pool, nil, fmt.Errorf("provider %s: %w", pp.ID, err)
		}

		var prov *providers.MockProvider
		if pp.SupportsTools {
			prov = providers.NewMockProvider(pp.ID, script...)
		} else {
			prov = providers.NewTextProvider(pp.ID, script...)
		}

		if pp.Model != "" {
			providerModels[pp.ID] = pp.Model
		}
		byID[pp.ID] = prov

		if i < p.PrimaryCount {
			pool.Primary = append(pool.Primary, prov)
		} else {
			pool.Fallback = append(pool.Fallback, prov)
		}
	}

	if p.Routing != nil && p.Routing.Enabled {
		pool.Primary = []agent.Provider{buildRouter(p.Routing, byID)}
		pool.Fallback = nil
	}

	return pool, providerModels, nil
}

// buildRouter adapts a profile's routing config into a routing.Router that
// satisfies agent.Provider itself, so it can stand in as the pool's sole
// primary entry and let chatDispatcher drive rule-based selection the same
// way it drives any other provider.
func buildRouter(cfg *ProfileRouting, byID map[string]agent.Provider) *routing.Router {
	rules := make([]routing.Rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		rules = append(rules, routing.Rule{
			Name:   r.Name,
			Match:  routing.Match{Patterns: r.Patterns, Tags: r.Tags},
			Target: routing.Target{Provider: r.Provider},
		})
	}

	return routing.NewRouter(routing.Config{
		ID:              "router",
		DefaultProvider: cfg.DefaultProvider,
		PreferLocal:     cfg.PreferLocal,
		LocalProviders:  cfg.LocalProviders,
		Rules:           rules,
		Fallback:        routing.Target{Provider: cfg.FallbackProvider},
		FailureCooldown: time.Duration(cfg.FailureCooldownMs) * time.Millisecond,
	}, byID)
}

func buildScript(turns []ProfileTurn) ([]providers.MockResponse, error) {
	script := make([]providers.MockResponse, 0, len(turns))
	for i, turn := range turns {
		if turn.Error != "" {
			script = append(script, providers.MockResponse{Err: fmt.Errorf("%s", turn.Error)})
			continue
		}

		resp := providers.MockResponse{Text: turn.Text}
		if turn.ToolCall != nil {
			var args json.RawMessage
			if turn.ToolCall.Args != "" {
				args = json.RawMessage(turn.ToolCall.Args)
			} else {
				args = json.RawMessage("{}")
			}
			resp.ToolCall = &models.ToolCall{
				ID:    agent.NewToolCallID(),
				Name:  turn.ToolCall.Name,
				Input: args,
			}
		}
		if resp.Text == "" && resp.ToolCall == nil && resp.Err == nil {
			return nil, fmt.Errorf("script[%d]: turn has neither text, tool_call, nor error", i)
		}
		script = append(script, resp)
	}
	return script, nil
}

func toStrategy(s string) agent.ProviderStrategy {
	switch s {
	case "racing":
		return agent.StrategyRacing
	case "sequential":
		return agent.StrategySequential
	default:
		return agent.StrategySmart
	}
}

// buildLoop assembles a Loop per the run profile: provider pool, tool
// registry, planner (heuristic or quantum), and optional Prometheus/otel
// instrumentation.
func buildLoop(p *RunProfile, registry *agent.ToolRegistry, pool agent.ProviderPool) *agent.Loop {
	loop := agent.NewLoop()

	if p.Planner == "quantum" {
		var seedProvider agent.Provider
		if len(pool.Primary) > 0 {
			seedProvider = pool.Primary[0]
		}
		loop = loop.WithPlanner(quantum.NewAdapter(registry, seedProvider))
	}

	if boolOr(p.Metrics, true) || boolOr(p.Tracing, true) {
		var metrics *observability.Metrics
		var tracer *observability.Tracer
		if boolOr(p.Metrics, true) {
			metrics = observability.NewMetrics()
		}
		if boolOr(p.Tracing, true) {
			tracer = observability.NewTracer(p.Service)
		}
		loop.SetObservability(metrics, tracer)
	}

	return loop
}

// buildOptions translates a run profile's policy fields into agent.Options.
func buildOptions(p *RunProfile, logger *slog.Logger) agent.Options {
	opts := agent.DefaultOptions()
	opts.MaxSteps = p.MaxSteps
	opts.TimeoutMs = p.TimeoutMs
	opts.MaxHistoryLength = p.MaxHistoryLength
	opts.EnableRacing = p.EnableRacing
	opts.ProviderStrategy = toStrategy(p.Strategy)
	opts.Logger = logger
	return opts
}
