package providers

import (
	"context"
	"fmt"

	"github.com/kestrelai/agentrt/internal/agent"
	"github.com/kestrelai/agentrt/pkg/models"
)

// MockResponse is one scripted response a MockProvider returns in order.
type MockResponse struct {
	Text     string
	ToolCall *models.ToolCall
	Err      error
	DelayMs  int
}

// MockProvider replays a scripted sequence of responses, one per call to
// Chat, looping back to the last response once the script is exhausted.
// It backs the scripted providers of the cmd/agentrt demo.
type MockProvider struct {
	BaseProvider
	supportsTools bool
	script        []MockResponse
	calls         int
}

// NewMockProvider builds a MockProvider that advertises structured tool-call
// support and replays script in order.
func NewMockProvider(id string, script ...MockResponse) *MockProvider {
	return &MockProvider{
		BaseProvider:  NewBaseProvider(id, 1),
		supportsTools: true,
		script:        script,
	}
}

// NewTextProvider builds a MockProvider that does not advertise structured
// tool-call support; its scripted Text must embed TOOL_CALL: markers for the
// engine's vanilla text parser to extract.
func NewTextProvider(id string, script ...MockResponse) *MockProvider {
	return &MockProvider{
		BaseProvider:  NewBaseProvider(id, 1),
		supportsTools: false,
		script:        script,
	}
}

func (p *MockProvider) ID() string { return p.BaseProvider.ID() }

func (p *MockProvider) SupportsTools() bool { return p.supportsTools }

// Calls returns how many times Chat has been invoked, for test assertions.
func (p *MockProvider) Calls() int { return p.calls }

func (p *MockProvider) Chat(ctx context.Context, req *agent.ChatRequest) (<-chan *agent.ChatChunk, error) {
	idx := p.calls
	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}
	p.calls++
	if idx < 0 {
		return nil, fmt.Errorf("mock provider %s: empty script", p.ID())
	}
	resp := p.script[idx]

	ch := make(chan *agent.ChatChunk, 2)
	go func() {
		defer close(ch)
		if resp.Err != nil {
			select {
			case ch <- &agent.ChatChunk{Err: resp.Err, Done: true}:
			case <-ctx.Done():
			}
			return
		}
		if resp.Text != "" {
			select {
			case ch <- &agent.ChatChunk{Text: resp.Text}:
			case <-ctx.Done():
				return
			}
		}
		chunk := &agent.ChatChunk{Done: true, FinishReason: agent.FinishStop}
		if resp.ToolCall != nil {
			chunk.ToolCall = resp.ToolCall
			chunk.FinishReason = agent.FinishToolCall
		}
		select {
		case ch <- chunk:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}
