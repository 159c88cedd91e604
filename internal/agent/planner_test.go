package agent

import (
	"context"
	"encoding/json"
	"testing"
)

type stubMathTool struct{ name string }

func (s stubMathTool) Name() string            { return s.name }
func (s stubMathTool) Description() string     { return "performs " + s.name }
func (s stubMathTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (s stubMathTool) Execute(ctx context.Context, args json.RawMessage) (*ToolResult, error) {
	return &ToolResult{Content: "0"}, nil
}

func TestPlanner_PotentialTools_NumericExpressionTriggersMathTool(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(stubMathTool{name: "calculate"})
	p := NewPlanner()

	// "12 + 4" contains no math action word, but should still be recognized
	// as rule (iii)'s numeric-expression pattern.
	needed := p.potentialTools("what is 12 + 4", reg)
	if len(needed) != 1 || needed[0] != "calculate" {
		t.Fatalf("expected the numeric expression to trigger the math tool, got %v", needed)
	}
}

func TestPlanner_PotentialTools_PlainProseDoesNotTriggerMathTool(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(stubMathTool{name: "calculate"})
	p := NewPlanner()

	needed := p.potentialTools("tell me a story about a dragon", reg)
	if len(needed) != 0 {
		t.Fatalf("expected no tools to be triggered, got %v", needed)
	}
}
