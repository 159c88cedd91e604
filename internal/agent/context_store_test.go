package agent

import (
	"strings"
	"testing"

	"github.com/kestrelai/agentrt/pkg/models"
)

func TestAppendMessages_RecordsTranscriptRepairs(t *testing.T) {
	ctx := NewAgentContext(nil, NewToolRegistry(), ProviderPool{}, Options{}, nil)

	next := ctx.AppendMessages(models.Message{
		Role:        models.RoleTool,
		ToolResults: []models.ToolResult{{ToolCallID: "orphan", Content: "40"}},
	})

	if next.Metrics.TranscriptRepairs != 1 {
		t.Fatalf("expected 1 recorded transcript repair, got %d", next.Metrics.TranscriptRepairs)
	}
	if len(next.Messages) != 0 {
		t.Fatalf("expected the orphaned tool result to be dropped, got %d messages", len(next.Messages))
	}
}

func TestSoftPrune_HonorsPreserveLastAssistantsOverride(t *testing.T) {
	// The default KeepLastAssistants is 3; with only 2 assistant turns in
	// this history, the default settings would never find a cutoff and
	// pruning would be a no-op. PreserveLastAssistants: 1 puts the cutoff
	// at the final "done" turn so the tool result before it is eligible
	// for soft-trimming.
	opts := Options{ContextCharBudget: 10, PreserveLastAssistants: 1}
	big := strings.Repeat("x", 6000)
	messages := []models.Message{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "tc-1", Name: "fetch"}}},
		{Role: models.RoleTool, ToolResults: []models.ToolResult{{ToolCallID: "tc-1", Content: big}}},
		{Role: models.RoleAssistant, Content: "done"},
	}

	out := softPrune(messages, opts)
	got := out[2].ToolResults[0].Content
	if got == big {
		t.Fatalf("expected the oversized tool result to be soft-trimmed")
	}
	if !strings.Contains(got, "Tool result trimmed") {
		t.Fatalf("expected a trim note, got %q", got)
	}
}

func TestSoftPrune_HonorsPrunableToolsDenyOverride(t *testing.T) {
	opts := Options{
		ContextCharBudget:      10,
		PreserveLastAssistants: 1,
		PrunableTools:          ToolNameMatch{Deny: []string{"fetch_secret"}},
	}
	big := strings.Repeat("s", 6000)
	messages := []models.Message{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "tc-1", Name: "fetch_secret"}}},
		{Role: models.RoleTool, ToolResults: []models.ToolResult{{ToolCallID: "tc-1", Content: big}}},
		{Role: models.RoleAssistant, Content: "done"},
	}

	out := softPrune(messages, opts)
	got := out[2].ToolResults[0].Content
	if got != big {
		t.Fatalf("expected denied tool's result to survive untouched, got %q", got)
	}
}

func TestEstimateCharBudget_UsesOptionsOverride(t *testing.T) {
	if got := estimateCharBudget(Options{}); got != defaultCharBudget {
		t.Fatalf("expected default budget %d, got %d", defaultCharBudget, got)
	}
	if got := estimateCharBudget(Options{ContextCharBudget: 12345}); got != 12345 {
		t.Fatalf("expected override budget 12345, got %d", got)
	}
}
