package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool parameter limits to prevent resource exhaustion.
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 256

	// MaxToolParamsSize is the maximum size of tool parameters JSON (10MB).
	MaxToolParamsSize = 10 << 20
)

// ToolRegistry manages available tools with thread-safe registration and
// lookup. Tools are registered by name and retrieved for dispatch during a
// run.
type ToolRegistry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	compiled map[string]*jsonschema.Schema
}

// NewToolRegistry creates a new empty tool registry ready for registration.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:    make(map[string]Tool),
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool to the registry, compiling its declared JSON schema
// if possible. A tool whose schema fails to compile is still registered;
// dispatch simply skips argument validation for it.
func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
	delete(r.compiled, tool.Name())

	schema := tool.Schema()
	if len(schema) == 0 {
		return
	}
	compiler := jsonschema.NewCompiler()
	url := "inline:///" + tool.Name()
	if err := compiler.AddResource(url, bytes.NewReader(schema)); err != nil {
		return
	}
	if compiled, err := compiler.Compile(url); err == nil {
		r.compiled[tool.Name()] = compiled
	}
}

// Unregister removes a tool from the registry by name.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.compiled, name)
}

// Get returns a tool by name and a boolean indicating if it was found.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Validate checks args against the tool's compiled JSON schema, if one
// compiled successfully. A tool with no schema, or one that failed to
// compile, is not validated here.
func (r *ToolRegistry) Validate(name string, args json.RawMessage) error {
	r.mu.RLock()
	schema, ok := r.compiled[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return fmt.Errorf("tool %s: arguments are not valid JSON: %w", name, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("tool %s: %w", name, err)
	}
	return nil
}

// Execute runs a tool by name with the given JSON parameters, validating
// against its schema first when one compiled. Per §6.5, a missing tool or a
// malformed-argument error is surfaced as an error-role ToolResult rather
// than a Go error, so the engine can append it to the conversation and let
// the model self-correct.
func (r *ToolRegistry) Execute(ctx context.Context, name string, params json.RawMessage) (*ToolResult, error) {
	if len(name) > MaxToolNameLength {
		return &ToolResult{
			Content: fmt.Sprintf("Error: tool name exceeds maximum length of %d characters", MaxToolNameLength),
			IsError: true,
		}, nil
	}
	if len(params) > MaxToolParamsSize {
		return &ToolResult{
			Content: fmt.Sprintf("Error: tool parameters exceed maximum size of %d bytes", MaxToolParamsSize),
			IsError: true,
		}, nil
	}

	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return &ToolResult{
			Content: fmt.Sprintf("Error: Tool '%s' not found", name),
			IsError: true,
		}, nil
	}

	if err := r.Validate(name, params); err != nil {
		return &ToolResult{
			Content: "Error: " + err.Error(),
			IsError: true,
		}, nil
	}

	return tool.Execute(ctx, params)
}

// AsTools returns all registered tools, e.g. for shape conversion into a
// provider's wire format.
func (r *ToolRegistry) AsTools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	return tools
}
