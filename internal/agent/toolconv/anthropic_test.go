package toolconv

import (
	"encoding/json"
	"testing"
)

func TestToAnthropicTool(t *testing.T) {
	tool := fakeTool{name: "search", desc: "searches the web", schema: json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}},"required":["q"]}`)}
	param, err := ToAnthropicTool(tool)
	if err != nil {
		t.Fatalf("ToAnthropicTool() error: %v", err)
	}
	if param.OfTool == nil || param.OfTool.Name != "search" {
		t.Fatalf("expected tool named 'search', got %+v", param)
	}
}

func TestToAnthropicTools_Empty(t *testing.T) {
	out, err := ToAnthropicTools(nil)
	if err != nil || out != nil {
		t.Fatalf("expected nil, nil for empty input, got %+v, %v", out, err)
	}
}

func TestToAnthropicTool_InvalidSchema(t *testing.T) {
	tool := fakeTool{name: "bad", desc: "bad", schema: json.RawMessage(`not json`)}
	if _, err := ToAnthropicTool(tool); err == nil {
		t.Fatalf("expected error for invalid schema")
	}
}
