package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RunProfile is the on-disk shape of a run's provider/tool/policy
// configuration: strict field matching, a single-document check, and $ENV
// expansion before parsing.
type RunProfile struct {
	// Providers lists the scripted mock providers to seed the pool with, in
	// declaration order. The first entries become ProviderPool.Primary, the
	// rest ProviderPool.Fallback, split at PrimaryCount.
	Providers []ProfileProvider `yaml:"providers"`

	// PrimaryCount is how many leading Providers entries are primary
	// (free-tier / preferred); the remainder are fallback. Defaults to all
	// providers being primary.
	PrimaryCount int `yaml:"primary_count"`

	// Strategy selects agent.Options.ProviderStrategy ("smart", "racing",
	// "sequential"). Defaults to "smart".
	Strategy string `yaml:"strategy"`

	// Planner selects "heuristic" (default) or "quantum".
	Planner string `yaml:"planner"`

	MaxSteps         int  `yaml:"max_steps"`
	TimeoutMs        int  `yaml:"timeout_ms"`
	MaxHistoryLength int  `yaml:"max_history_length"`
	EnableRacing     bool `yaml:"enable_racing"`

	// Metrics/Tracing toggle the observability wiring; both default to on.
	Metrics *bool  `yaml:"metrics"`
	Tracing *bool  `yaml:"tracing"`
	Service string `yaml:"service"`

	// Message is the initial user turn to seed the conversation with.
	Message string `yaml:"message"`

	// Routing, when set, replaces the plain primary/fallback pool with a
	// single rule-based routing.Router wrapping every declared provider.
	Routing *ProfileRouting `yaml:"routing"`
}

// ProfileRouting configures the optional routing.Router supplement (rule-
// based provider selection by content tag, explicit pattern, local-provider
// preference, and a per-provider failure cooldown).
type ProfileRouting struct {
	Enabled           bool                 `yaml:"enabled"`
	DefaultProvider   string               `yaml:"default_provider"`
	FallbackProvider  string               `yaml:"fallback_provider"`
	PreferLocal       bool                 `yaml:"prefer_local"`
	LocalProviders    []string             `yaml:"local_providers"`
	FailureCooldownMs int                  `yaml:"failure_cooldown_ms"`
	Rules             []ProfileRoutingRule `yaml:"rules"`
}

// ProfileRoutingRule describes one routing.Rule: requests matching Patterns
// (substring, case-insensitive) and/or Tags (from the heuristic classifier)
// route to Provider. A rule that sets both requires both to match.
type ProfileRoutingRule struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
	Tags     []string `yaml:"tags"`
	Provider string   `yaml:"provider"`
}

// ProfileProvider describes one scripted mock provider and its canned
// response script.
type ProfileProvider struct {
	ID            string        `yaml:"id"`
	Model         string        `yaml:"model"`
	SupportsTools bool          `yaml:"supports_tools"`
	Script        []ProfileTurn `yaml:"script"`
}

// ProfileTurn is one scripted response a provider plays back in order.
type ProfileTurn struct {
	Text     string           `yaml:"text"`
	ToolCall *ProfileToolCall `yaml:"tool_call"`
	Error    string           `yaml:"error"`
}

// ProfileToolCall is a scripted structured tool-call request.
type ProfileToolCall struct {
	Name string `yaml:"name"`
	Args string `yaml:"args"` // raw JSON, e.g. {"a":1,"b":2}
}

// LoadRunProfile reads and parses a run profile from path, expanding $ENV
// references and rejecting unknown fields or multi-document files.
func LoadRunProfile(path string) (*RunProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run profile: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var profile RunProfile
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&profile); err != nil {
		return nil, fmt.Errorf("parse run profile: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("parse run profile: expected single document")
	}

	applyProfileDefaults(&profile)
	if err := validateProfile(&profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func applyProfileDefaults(p *RunProfile) {
	if strings.TrimSpace(p.Strategy) == "" {
		p.Strategy = "smart"
	}
	if strings.TrimSpace(p.Planner) == "" {
		p.Planner = "heuristic"
	}
	if p.MaxSteps <= 0 {
		p.MaxSteps = 8
	}
	if p.TimeoutMs <= 0 {
		p.TimeoutMs = 30000
	}
	if p.MaxHistoryLength <= 0 {
		p.MaxHistoryLength = 50
	}
	if p.PrimaryCount <= 0 || p.PrimaryCount > len(p.Providers) {
		p.PrimaryCount = len(p.Providers)
	}
	if strings.TrimSpace(p.Service) == "" {
		p.Service = "agentrt"
	}
}

// ProfileValidationError aggregates every validation failure found in one
// profile so a user sees every problem at once instead of one-at-a-time.
type ProfileValidationError struct {
	Issues []string
}

func (e *ProfileValidationError) Error() string {
	return "run profile validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateProfile(p *RunProfile) error {
	var issues []string

	if len(p.Providers) == 0 {
		issues = append(issues, "providers: at least one provider is required")
	}
	seen := map[string]bool{}
	for i, prov := range p.Providers {
		if strings.TrimSpace(prov.ID) == "" {
			issues = append(issues, fmt.Sprintf("providers[%d].id is required", i))
			continue
		}
		if seen[prov.ID] {
			issues = append(issues, fmt.Sprintf("providers[%d].id %q is a duplicate", i, prov.ID))
		}
		seen[prov.ID] = true
		if len(prov.Script) == 0 {
			issues = append(issues, fmt.Sprintf("providers[%d] (%s): script must have at least one turn", i, prov.ID))
		}
	}

	switch p.Strategy {
	case "smart", "racing", "sequential":
	default:
		issues = append(issues, fmt.Sprintf("strategy %q must be one of smart, racing, sequential", p.Strategy))
	}

	switch p.Planner {
	case "heuristic", "quantum":
	default:
		issues = append(issues, fmt.Sprintf("planner %q must be one of heuristic, quantum", p.Planner))
	}

	if strings.TrimSpace(p.Message) == "" {
		issues = append(issues, "message is required")
	}

	if p.Routing != nil && p.Routing.Enabled {
		if strings.TrimSpace(p.Routing.DefaultProvider) == "" {
			issues = append(issues, "routing.default_provider is required when routing.enabled is true")
		} else if !seen[p.Routing.DefaultProvider] {
			issues = append(issues, fmt.Sprintf("routing.default_provider %q is not a declared provider", p.Routing.DefaultProvider))
		}
		for i, rule := range p.Routing.Rules {
			if strings.TrimSpace(rule.Provider) == "" {
				issues = append(issues, fmt.Sprintf("routing.rules[%d].provider is required", i))
				continue
			}
			if !seen[rule.Provider] {
				issues = append(issues, fmt.Sprintf("routing.rules[%d].provider %q is not a declared provider", i, rule.Provider))
			}
		}
	}

	if len(issues) > 0 {
		return &ProfileValidationError{Issues: issues}
	}
	return nil
}

// boolOr returns *p if non-nil, else def.
func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
