package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kestrelai/agentrt/pkg/models"
)

// scriptedProvider is a local, self-contained Provider test double (mirrors
// providers.MockProvider's behavior without importing that package, which
// would create an import cycle from this internal test file).
type scriptedProvider struct {
	id            string
	supportsTools bool
	script        []scriptedResponse
	calls         int
}

type scriptedResponse struct {
	Text     string
	ToolCall *models.ToolCall
	Err      error
}

func newScriptedProvider(id string, supportsTools bool, script ...scriptedResponse) *scriptedProvider {
	return &scriptedProvider{id: id, supportsTools: supportsTools, script: script}
}

func (p *scriptedProvider) ID() string          { return p.id }
func (p *scriptedProvider) SupportsTools() bool { return p.supportsTools }

func (p *scriptedProvider) Chat(ctx context.Context, req *ChatRequest) (<-chan *ChatChunk, error) {
	idx := p.calls
	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}
	p.calls++

	resp := p.script[idx]
	ch := make(chan *ChatChunk, 2)
	go func() {
		defer close(ch)
		if resp.Err != nil {
			ch <- &ChatChunk{Err: resp.Err, Done: true}
			return
		}
		if resp.Text != "" {
			ch <- &ChatChunk{Text: resp.Text}
		}
		chunk := &ChatChunk{Done: true, FinishReason: FinishStop}
		if resp.ToolCall != nil {
			chunk.ToolCall = resp.ToolCall
			chunk.FinishReason = FinishToolCall
		}
		ch <- chunk
	}()
	return ch, nil
}

// arithTool evaluates add/multiply over {"a":_,"b":_}.
type arithTool struct {
	name string
	fn   func(a, b float64) float64
}

func (t arithTool) Name() string        { return t.name }
func (t arithTool) Description() string { return "performs " + t.name }
func (t arithTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"a":{"type":"number"},"b":{"type":"number"}},"required":["a","b"]}`)
}
func (t arithTool) Execute(ctx context.Context, args json.RawMessage) (*ToolResult, error) {
	var in struct{ A, B float64 }
	if err := json.Unmarshal(args, &in); err != nil {
		return &ToolResult{Content: "Error: " + err.Error(), IsError: true}, nil
	}
	return &ToolResult{Content: formatFloat(t.fn(in.A, in.B))}, nil
}

func formatFloat(f float64) string {
	i := int64(f)
	if float64(i) == f {
		return itoa64(i)
	}
	b, _ := json.Marshal(f)
	return string(b)
}

func itoa64(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [24]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

func newArithRegistry() *ToolRegistry {
	reg := NewToolRegistry()
	reg.Register(arithTool{name: "add", fn: func(a, b float64) float64 { return a + b }})
	reg.Register(arithTool{name: "multiply", fn: func(a, b float64) float64 { return a * b }})
	return reg
}

func TestLoop_SequentialMathCorrectness(t *testing.T) {
	registry := newArithRegistry()
	provider := newScriptedProvider("primary", true,
		scriptedResponse{ToolCall: &models.ToolCall{ID: "call_add_1", Name: "add", Input: json.RawMessage(`{"a":100,"b":20}`)}},
		scriptedResponse{Text: "120"},
	)

	pool := ProviderPool{Primary: []Provider{provider}}
	initial := NewAgentContext(
		[]models.Message{{Role: models.RoleUser, Content: "add 100 and 20"}},
		registry, pool, DefaultOptions(), nil,
	)

	loop := NewLoop()
	result := loop.Run(context.Background(), initial)

	var sawToolResult bool
	for _, m := range result.Messages {
		if m.Role == models.RoleTool {
			for _, tr := range m.ToolResults {
				if tr.Content == "120" {
					sawToolResult = true
				}
			}
		}
	}
	if !sawToolResult {
		t.Fatalf("expected a tool result message containing \"120\", got %+v", result.Messages)
	}
	if result.Metrics.ToolExecutions == 0 {
		t.Fatalf("expected at least one tool execution recorded")
	}
}

func TestLoop_FallbackOnPrimaryFailure(t *testing.T) {
	registry := NewToolRegistry()
	failing := newScriptedProvider("primary-failing", true, scriptedResponse{Err: errors.New("connection refused")})
	healthy := newScriptedProvider("fallback-healthy", true, scriptedResponse{Text: "hello from fallback"})

	pool := ProviderPool{Primary: []Provider{failing}, Fallback: []Provider{healthy}}
	initial := NewAgentContext(
		[]models.Message{{Role: models.RoleUser, Content: "say hi"}},
		registry, pool, DefaultOptions(), nil,
	)

	loop := NewLoop()
	result := loop.Run(context.Background(), initial)

	var sawFallbackText bool
	for _, m := range result.Messages {
		if m.Role == models.RoleAssistant && m.Content == "hello from fallback" {
			sawFallbackText = true
		}
	}
	if !sawFallbackText {
		t.Fatalf("expected the fallback provider's text in the transcript, got %+v", result.Messages)
	}
}

func TestLoop_RacingStrategyReturnsAWinner(t *testing.T) {
	registry := NewToolRegistry()
	slow := newScriptedProvider("free-slow", true, scriptedResponse{Text: "slow answer"})
	fast := newScriptedProvider("free-fast", true, scriptedResponse{Text: "fast answer"})

	opts := DefaultOptions()
	opts.ProviderStrategy = StrategyRacing

	pool := ProviderPool{Primary: []Provider{slow, fast}}
	initial := NewAgentContext(
		[]models.Message{{Role: models.RoleUser, Content: "race me"}},
		registry, pool, opts, nil,
	)

	loop := NewLoop()
	result := loop.Run(context.Background(), initial)

	if len(result.Messages) == 0 {
		t.Fatalf("expected at least one message from the race")
	}
	last := result.Messages[len(result.Messages)-1]
	if last.Content != "slow answer" && last.Content != "fast answer" {
		t.Fatalf("expected a winning answer from one racer, got %q", last.Content)
	}
}

func TestLoop_MemoryPruningPreservesSystemMessage(t *testing.T) {
	registry := NewToolRegistry()
	provider := newScriptedProvider("p1", true, scriptedResponse{Text: "done"})

	opts := DefaultOptions()
	opts.MaxHistoryLength = 3
	opts.PreserveSystemMessages = true

	messages := []models.Message{
		{Role: models.RoleSystem, Content: "system rules"},
		{Role: models.RoleUser, Content: "turn 1"},
		{Role: models.RoleAssistant, Content: "turn 1 reply"},
		{Role: models.RoleUser, Content: "turn 2"},
		{Role: models.RoleAssistant, Content: "turn 2 reply"},
	}

	pool := ProviderPool{Primary: []Provider{provider}}
	initial := NewAgentContext(messages, registry, pool, opts, nil)
	pruned := initial.AppendMessages(models.Message{Role: models.RoleUser, Content: "turn 3"})

	var sawSystem bool
	for _, m := range pruned.Messages {
		if m.Role == models.RoleSystem && m.Content == "system rules" {
			sawSystem = true
		}
	}
	if !sawSystem {
		t.Fatalf("expected system message to survive pruning, got %+v", pruned.Messages)
	}
}

func TestLoop_MalformedToolArgumentDoesNotPanic(t *testing.T) {
	registry := newArithRegistry()
	provider := newScriptedProvider("text-only", false,
		scriptedResponse{Text: `TOOL_CALL: {"name": "add", "arguments": {"a": 1`}, // malformed, missing closing
		scriptedResponse{Text: "could not parse, trying again"},
	)

	pool := ProviderPool{Primary: []Provider{provider}}
	initial := NewAgentContext(
		[]models.Message{{Role: models.RoleUser, Content: "add 1 and 2"}},
		registry, pool, DefaultOptions(), nil,
	)

	loop := NewLoop()
	result := loop.Run(context.Background(), initial)

	if len(result.Messages) == 0 {
		t.Fatalf("expected the loop to produce a transcript even with a malformed tool call")
	}
}

func TestLoop_BudgetExhaustionStopsAtMaxSteps(t *testing.T) {
	registry := newArithRegistry()
	provider := newScriptedProvider("looping", true,
		scriptedResponse{ToolCall: &models.ToolCall{ID: "call_add_1", Name: "add", Input: json.RawMessage(`{"a":1,"b":1}`)}},
	)

	opts := DefaultOptions()
	opts.MaxSteps = 3

	pool := ProviderPool{Primary: []Provider{provider}}
	initial := NewAgentContext(
		[]models.Message{{Role: models.RoleUser, Content: "add forever"}},
		registry, pool, opts, nil,
	)

	loop := NewLoop()
	result := loop.Run(context.Background(), initial)

	if len(result.Debug.Steps) > opts.MaxSteps {
		t.Fatalf("expected no more than %d steps, got %d", opts.MaxSteps, len(result.Debug.Steps))
	}
}
