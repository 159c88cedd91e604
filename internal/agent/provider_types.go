package agent

import (
	"context"
	"encoding/json"

	"github.com/kestrelai/agentrt/pkg/models"
)

// FinishReason describes why a provider stopped generating.
type FinishReason string

const (
	FinishStop     FinishReason = "stop"
	FinishToolCall FinishReason = "tool_call"
	FinishLength   FinishReason = "length"
	FinishError    FinishReason = "error"
)

// Usage reports token accounting for a single chat call, when the provider
// exposes it.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ChatResult is the folded outcome of one chat call: callProvider drains the
// provider's chunk stream, concatenating chunk text and keeping the last
// tool call, usage and finish reason it sees.
type ChatResult struct {
	Messages     []models.Message
	FinishReason FinishReason
	ToolCall     *models.ToolCall
	Usage        *Usage
}

// ChatRequest carries everything a Provider needs for one chat call.
type ChatRequest struct {
	Model     string
	Messages  []models.Message
	Tools     []Tool // only populated when the provider advertises SupportsTools
	TimeoutMs int
}

// Provider is the engine's view of an LLM backend (§6.1). Chat always
// returns a channel of chunks, which the caller drains and folds into one
// ChatResult; a single terminal result is a one-chunk stream.
type Provider interface {
	// Chat sends messages and tool specs and streams the response as a
	// finite, non-restartable sequence of chunks terminated by a chunk with
	// Done=true (or a non-nil Err).
	Chat(ctx context.Context, req *ChatRequest) (<-chan *ChatChunk, error)

	// ID is the provider's stable identifier, used for circuit-breaker state
	// and cost-savings accounting ("free" substring or "google" ⇒ free tier).
	ID() string

	SupportsTools() bool
}

// ChatChunk is one element of a Provider's streamed response.
type ChatChunk struct {
	Text     string
	ToolCall *models.ToolCall
	Done     bool
	Err      error

	FinishReason FinishReason
	Usage        *Usage
}

// Tool is the engine's view of an executable capability (§6.2).
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage) (*ToolResult, error)
}

// ToolResult is what a Tool.Execute returns before it is normalized into a
// models.ToolResult message.
type ToolResult struct {
	Content string
	IsError bool
}
