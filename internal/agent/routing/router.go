// Package routing implements the rule-based provider routing supplement: a
// Router picks among a set of Providers by content tags, explicit rules, a
// local-provider preference, and a per-provider failure cooldown, then
// satisfies the agent.Provider interface itself so it can sit directly in a
// ProviderPool.
package routing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kestrelai/agentrt/internal/agent"
	"github.com/kestrelai/agentrt/pkg/models"
)

// Router selects a provider for each chat call based on rules and heuristics.
type Router struct {
	id              string
	defaultProvider string
	providers       map[string]agent.Provider
	rules           []Rule
	preferLocal     bool
	localProviders  map[string]struct{}
	classifier      Classifier
	fallback        Target
	failureCooldown time.Duration
	healthMu        sync.Mutex
	unhealthy       map[string]time.Time
}

// Rule defines a routing rule.
type Rule struct {
	Name   string
	Match  Match
	Target Target
}

// Match defines rule matching conditions.
type Match struct {
	Patterns []string
	Tags     []string
}

// Target names the destination provider.
type Target struct {
	Provider string
}

// Classifier assigns tags to a request.
type Classifier interface {
	Classify(req *agent.ChatRequest) []string
}

// Config configures a Router.
type Config struct {
	ID              string
	DefaultProvider string
	PreferLocal     bool
	LocalProviders  []string
	Rules           []Rule
	Classifier      Classifier
	Fallback        Target
	FailureCooldown time.Duration
}

// NewRouter creates a new Router over the given id-to-provider map.
func NewRouter(cfg Config, providers map[string]agent.Provider) *Router {
	lp := make(map[string]struct{})
	for _, name := range cfg.LocalProviders {
		if n := normalizeID(name); n != "" {
			lp[n] = struct{}{}
		}
	}

	classifier := cfg.Classifier
	if classifier == nil {
		classifier = &HeuristicClassifier{}
	}

	id := cfg.ID
	if id == "" {
		id = "router"
	}

	return &Router{
		id:              id,
		defaultProvider: normalizeID(cfg.DefaultProvider),
		providers:       providers,
		rules:           cfg.Rules,
		preferLocal:     cfg.PreferLocal,
		localProviders:  lp,
		classifier:      classifier,
		fallback:        cfg.Fallback,
		failureCooldown: cfg.FailureCooldown,
		unhealthy:       make(map[string]time.Time),
	}
}

// ID implements agent.Provider.
func (r *Router) ID() string { return r.id }

// SupportsTools reports true if any routed provider supports tools.
func (r *Router) SupportsTools() bool {
	for _, provider := range r.providers {
		if provider.SupportsTools() {
			return true
		}
	}
	return false
}

// Chat routes req to the selected candidate provider, trying each candidate
// in order and marking failures unhealthy for failureCooldown.
func (r *Router) Chat(ctx context.Context, req *agent.ChatRequest) (<-chan *agent.ChatChunk, error) {
	if req == nil {
		return nil, errInvalidRequest("request is nil")
	}
	candidates, err := r.candidates(req)
	if err != nil {
		return nil, err
	}
	var lastErr error
	for _, c := range candidates {
		stream, err := c.provider.Chat(ctx, req)
		if err == nil {
			return stream, nil
		}
		r.markUnhealthy(c.name)
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errInvalidRequest("no providers configured")
}

type candidate struct {
	provider agent.Provider
	name     string
}

func (r *Router) candidates(req *agent.ChatRequest) ([]candidate, error) {
	providerName := r.selectProvider(req)
	seen := make(map[string]struct{})
	var candidates []candidate
	r.appendCandidate(&candidates, seen, providerName)
	r.appendCandidate(&candidates, seen, r.fallback.Provider)
	r.appendCandidate(&candidates, seen, r.defaultProvider)

	if len(req.Tools) > 0 {
		filtered := make([]candidate, 0, len(candidates))
		for _, c := range candidates {
			if c.provider != nil && c.provider.SupportsTools() {
				filtered = append(filtered, c)
			}
		}
		if len(filtered) == 0 {
			if toolProvider, name := r.findToolProvider(); toolProvider != nil {
				filtered = append(filtered, candidate{provider: toolProvider, name: name})
			}
		}
		candidates = filtered
	}

	if len(candidates) == 0 {
		if len(req.Tools) > 0 {
			return nil, errInvalidRequest("no tool-capable providers available")
		}
		return nil, errInvalidRequest("no providers configured")
	}
	return candidates, nil
}

func (r *Router) appendCandidate(list *[]candidate, seen map[string]struct{}, name string) {
	normalized := normalizeID(name)
	if normalized == "" {
		return
	}
	if _, ok := seen[normalized]; ok {
		return
	}
	if !r.isHealthy(normalized) {
		return
	}
	provider := r.lookupProvider(normalized)
	if provider == nil {
		return
	}
	seen[normalized] = struct{}{}
	*list = append(*list, candidate{provider: provider, name: normalized})
}

func (r *Router) isHealthy(name string) bool {
	if r.failureCooldown <= 0 {
		return true
	}
	name = normalizeID(name)
	if name == "" {
		return true
	}
	cutoff := time.Now()
	r.healthMu.Lock()
	defer r.healthMu.Unlock()
	until, ok := r.unhealthy[name]
	if !ok {
		return true
	}
	if cutoff.After(until) {
		delete(r.unhealthy, name)
		return true
	}
	return false
}

func (r *Router) markUnhealthy(name string) {
	if r.failureCooldown <= 0 {
		return
	}
	name = normalizeID(name)
	if name == "" {
		return
	}
	r.healthMu.Lock()
	r.unhealthy[name] = time.Now().Add(r.failureCooldown)
	r.healthMu.Unlock()
}

func (r *Router) selectProvider(req *agent.ChatRequest) string {
	tags := r.classifier.Classify(req)

	for _, rule := range r.rules {
		if ruleMatches(rule.Match, tags, req) {
			return normalizeID(rule.Target.Provider)
		}
	}

	if r.preferLocal && len(r.localProviders) > 0 && len(req.Tools) == 0 {
		for name := range r.localProviders {
			if r.lookupProvider(name) != nil {
				return name
			}
		}
	}

	return r.defaultProvider
}

func (r *Router) lookupProvider(name string) agent.Provider {
	if name == "" {
		return nil
	}
	if provider, ok := r.providers[normalizeID(name)]; ok {
		return provider
	}
	return nil
}

func (r *Router) findToolProvider() (agent.Provider, string) {
	if p := r.lookupProvider(r.defaultProvider); p != nil && p.SupportsTools() {
		return p, r.defaultProvider
	}
	for name, provider := range r.providers {
		if provider.SupportsTools() {
			return provider, name
		}
	}
	return nil, ""
}

func ruleMatches(match Match, tags []string, req *agent.ChatRequest) bool {
	if len(match.Patterns) == 0 && len(match.Tags) == 0 {
		return false
	}
	content := lastUserContent(req)
	contentLower := strings.ToLower(content)

	if len(match.Patterns) > 0 {
		patternMatch := false
		for _, pattern := range match.Patterns {
			p := strings.ToLower(strings.TrimSpace(pattern))
			if p == "" {
				continue
			}
			if strings.Contains(contentLower, p) {
				patternMatch = true
				break
			}
		}
		if !patternMatch {
			return false
		}
	}

	if len(match.Tags) > 0 {
		for _, tag := range match.Tags {
			if containsTag(tags, tag) {
				return true
			}
		}
		return false
	}

	return true
}

func containsTag(tags []string, tag string) bool {
	needle := strings.ToLower(strings.TrimSpace(tag))
	if needle == "" {
		return false
	}
	for _, t := range tags {
		if strings.EqualFold(t, needle) {
			return true
		}
	}
	return false
}

func lastUserContent(req *agent.ChatRequest) string {
	if req == nil {
		return ""
	}
	for i := len(req.Messages) - 1; i >= 0; i-- {
		msg := req.Messages[i]
		if msg.Role == models.RoleUser {
			return msg.Content
		}
	}
	if len(req.Messages) == 0 {
		return ""
	}
	return req.Messages[len(req.Messages)-1].Content
}

func normalizeID(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func errInvalidRequest(msg string) error {
	return fmt.Errorf("routing: %s", msg)
}
