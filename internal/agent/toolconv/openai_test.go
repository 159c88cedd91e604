package toolconv

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/kestrelai/agentrt/internal/agent"
)

type fakeTool struct {
	name   string
	desc   string
	schema json.RawMessage
}

func (t fakeTool) Name() string            { return t.name }
func (t fakeTool) Description() string     { return t.desc }
func (t fakeTool) Schema() json.RawMessage { return t.schema }
func (t fakeTool) Execute(ctx context.Context, args json.RawMessage) (*agent.ToolResult, error) {
	return &agent.ToolResult{}, nil
}

func TestToOpenAITools(t *testing.T) {
	tools := []agent.Tool{
		fakeTool{name: "add", desc: "adds two numbers", schema: json.RawMessage(`{"type":"object","properties":{"a":{"type":"number"}}}`)},
	}
	out := ToOpenAITools(tools)
	if len(out) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(out))
	}
	if out[0].Function.Name != "add" {
		t.Fatalf("expected name 'add', got %q", out[0].Function.Name)
	}
}

func TestToOpenAITools_MalformedSchemaFallsBack(t *testing.T) {
	tools := []agent.Tool{
		fakeTool{name: "bad", desc: "bad schema", schema: json.RawMessage(`not json`)},
	}
	out := ToOpenAITools(tools)
	if len(out) != 1 || out[0].Function.Parameters == nil {
		t.Fatalf("expected fallback empty-object schema, got %+v", out)
	}
}
