package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kestrelai/agentrt/pkg/models"
)

var complexMarkers = []string{"code", "function", "algorithm", "implementation", "example"}

// Reflector implements the §4.5 review/correction contract.
type Reflector struct{}

// NewReflector constructs a Reflector.
func NewReflector() *Reflector { return &Reflector{} }

// Review inspects the last assistant message produced by a step and flags
// heuristic defects. It returns nil for tool/empty/errored deltas.
func (r *Reflector) Review(result StepResult, ctx *AgentContext) *ReflectionResult {
	if result.Error != nil || len(result.Delta) == 0 {
		return nil
	}

	var assistant *models.Message
	for i := range result.Delta {
		if result.Delta[i].Role == models.RoleAssistant {
			assistant = &result.Delta[i]
		}
	}
	if assistant == nil {
		return nil
	}

	if feedback, ok := malformedToolCall(assistant); ok {
		return &ReflectionResult{ShouldRetry: false, Feedback: feedback, Confidence: 0.5}
	}

	if shouldUseTools(lastUserText(ctx), ctx.Registry) && len(assistant.ToolCalls) == 0 {
		corrected := *assistant
		hint := toolHint(ctx.Registry)
		if hint != "" {
			corrected.Content = strings.TrimRight(assistant.Content, "\n") + "\n\n" + hint
		}
		return &ReflectionResult{
			ShouldRetry:      true,
			CorrectedMessage: &corrected,
			Feedback:         "should use tools but none called",
			Confidence:       0.6,
		}
	}

	if len(assistant.Content) > 2000 && !isComplexQuery(lastUserText(ctx)) {
		corrected := *assistant
		corrected.Content = firstThreeSentences(assistant.Content)
		if corrected.Content == assistant.Content {
			return &ReflectionResult{ShouldRetry: false, Feedback: "too verbose", Confidence: 0.4}
		}
		return &ReflectionResult{
			ShouldRetry:      true,
			CorrectedMessage: &corrected,
			Feedback:         "too verbose",
			Confidence:       0.7,
		}
	}

	if len(assistant.Content) < 10 && len(assistant.ToolCalls) == 0 {
		return &ReflectionResult{ShouldRetry: false, Feedback: "too brief", Confidence: 0.3}
	}

	return nil
}

func malformedToolCall(msg *models.Message) (string, bool) {
	for _, tc := range msg.ToolCalls {
		var v any
		if err := json.Unmarshal(tc.Input, &v); err != nil {
			return fmt.Sprintf("malformed JSON in %s", tc.Name), true
		}
	}
	return "", false
}

func shouldUseTools(userText string, registry *ToolRegistry) bool {
	if registry == nil || userText == "" {
		return false
	}
	lower := strings.ToLower(userText)
	if containsAny(lower, mathActionWords) {
		for _, tool := range registry.AsTools() {
			if mathToolNamePattern.MatchString(tool.Name()) {
				return true
			}
		}
	}
	for _, tool := range registry.AsTools() {
		if strings.Contains(lower, strings.ToLower(tool.Name())) {
			return true
		}
	}
	return false
}

func toolHint(registry *ToolRegistry) string {
	if registry == nil {
		return ""
	}
	tools := registry.AsTools()
	if len(tools) == 0 {
		return ""
	}
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name()
	}
	return "Available tools: " + strings.Join(names, ", ")
}

func isComplexQuery(text string) bool {
	if len(text) > 500 {
		return true
	}
	if strings.Count(text, "?")+strings.Count(text, "!") >= 2 {
		return true
	}
	return containsAny(strings.ToLower(text), complexMarkers)
}

func firstThreeSentences(text string) string {
	var sentences []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			sentences = append(sentences, text[start:i+1])
			start = i + 1
			if len(sentences) == 3 {
				break
			}
		}
	}
	if len(sentences) == 0 {
		return text
	}
	return strings.TrimSpace(strings.Join(sentences, ""))
}

func lastUserText(ctx *AgentContext) string {
	for i := len(ctx.Messages) - 1; i >= 0; i-- {
		if ctx.Messages[i].Role == models.RoleUser {
			return ctx.Messages[i].Content
		}
	}
	return ""
}
