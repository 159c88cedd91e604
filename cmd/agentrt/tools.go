package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kestrelai/agentrt/internal/agent"
)

// calculatorTool is the demo's one built-in tool: it evaluates a single
// binary arithmetic operation. It exists to give the demo provider scripts
// something real to call through StepExecutor.executeTools.
type calculatorTool struct{}

func (calculatorTool) Name() string { return "calculator" }

func (calculatorTool) Description() string {
	return "Evaluates a single binary arithmetic operation: add, subtract, multiply, or divide."
}

func (calculatorTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"required": ["op", "a", "b"],
		"properties": {
			"op": {"type": "string", "enum": ["add", "subtract", "multiply", "divide"]},
			"a": {"type": "number"},
			"b": {"type": "number"}
		}
	}`)
}

func (calculatorTool) Execute(ctx context.Context, args json.RawMessage) (*agent.ToolResult, error) {
	var in struct {
		Op string  `json:"op"`
		A  float64 `json:"a"`
		B  float64 `json:"b"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}

	var result float64
	switch in.Op {
	case "add":
		result = in.A + in.B
	case "subtract":
		result = in.A - in.B
	case "multiply":
		result = in.A * in.B
	case "divide":
		if in.B == 0 {
			return &agent.ToolResult{Content: "division by zero", IsError: true}, nil
		}
		result = in.A / in.B
	default:
		return &agent.ToolResult{Content: fmt.Sprintf("unknown op %q", in.Op), IsError: true}, nil
	}

	return &agent.ToolResult{Content: fmt.Sprintf("%g", result)}, nil
}

// buildToolRegistry registers the demo's built-in tools.
func buildToolRegistry() *agent.ToolRegistry {
	registry := agent.NewToolRegistry()
	registry.Register(calculatorTool{})
	return registry
}
