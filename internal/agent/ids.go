package agent

import "github.com/google/uuid"

// NewToolCallID synthesizes a call id for tool calls that reach the executor
// without one (a provider or parser that fails to stamp call.ID), and for the
// CLI's scripted tool calls. Vanilla (text-embedded) tool calls get their ids
// from toolparse.NextCallID instead.
func NewToolCallID() string {
	return "call_" + uuid.NewString()
}
