package routing

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/kestrelai/agentrt/internal/agent"
	"github.com/kestrelai/agentrt/pkg/models"
)

type stubProvider struct {
	id            string
	supportsTools bool
	calls         int
	lastModel     string
}

type dummyTool struct{}

func (dummyTool) Name() string            { return "dummy" }
func (dummyTool) Description() string     { return "dummy tool" }
func (dummyTool) Schema() json.RawMessage { return nil }
func (dummyTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	return &agent.ToolResult{}, nil
}

func (p *stubProvider) Chat(ctx context.Context, req *agent.ChatRequest) (<-chan *agent.ChatChunk, error) {
	p.calls++
	p.lastModel = req.Model
	ch := make(chan *agent.ChatChunk, 1)
	ch <- &agent.ChatChunk{Done: true, FinishReason: agent.FinishStop}
	close(ch)
	return ch, nil
}

func (p *stubProvider) ID() string { return p.id }

func (p *stubProvider) SupportsTools() bool { return p.supportsTools }

func TestRouterRuleMatch(t *testing.T) {
	fast := &stubProvider{id: "fast"}
	code := &stubProvider{id: "code"}
	providers := map[string]agent.Provider{
		"fast": fast,
		"code": code,
	}

	router := NewRouter(Config{
		DefaultProvider: "fast",
		Rules: []Rule{{
			Name:   "code",
			Match:  Match{Tags: []string{"code"}},
			Target: Target{Provider: "code"},
		}},
		Classifier: &HeuristicClassifier{},
	}, providers)

	req := &agent.ChatRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: "Write a Go function: func main() {}"}},
	}
	if _, err := router.Chat(context.Background(), req); err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if code.calls != 1 {
		t.Fatalf("expected code provider to be called")
	}
}

func TestRouterPreferLocal(t *testing.T) {
	local := &stubProvider{id: "ollama"}
	defaultP := &stubProvider{id: "anthropic"}
	providers := map[string]agent.Provider{
		"ollama":    local,
		"anthropic": defaultP,
	}

	router := NewRouter(Config{
		DefaultProvider: "anthropic",
		PreferLocal:     true,
		LocalProviders:  []string{"ollama"},
	}, providers)

	req := &agent.ChatRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: "hello"}},
	}
	if _, err := router.Chat(context.Background(), req); err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if local.calls != 1 {
		t.Fatalf("expected local provider to be called")
	}
}

func TestRouterToolFallback(t *testing.T) {
	noTools := &stubProvider{id: "ollama", supportsTools: false}
	withTools := &stubProvider{id: "openai", supportsTools: true}
	providers := map[string]agent.Provider{
		"ollama": noTools,
		"openai": withTools,
	}

	router := NewRouter(Config{
		DefaultProvider: "ollama",
	}, providers)

	req := &agent.ChatRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: "use tool"}},
		Tools:    []agent.Tool{dummyTool{}},
	}
	if _, err := router.Chat(context.Background(), req); err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if withTools.calls != 1 {
		t.Fatalf("expected tool-capable provider to be called")
	}
}

func TestRouterZeroFailureCooldownStaysHealthy(t *testing.T) {
	providers := map[string]agent.Provider{
		"only": &stubProvider{id: "only"},
	}
	router := NewRouter(Config{DefaultProvider: "only", FailureCooldown: 0}, providers)
	if !router.isHealthy("only") {
		t.Fatalf("expected healthy with zero cooldown")
	}
}
