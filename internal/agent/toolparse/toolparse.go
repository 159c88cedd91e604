// Package toolparse extracts a vanilla (text-embedded) tool-call from an
// assistant message's content for providers that cannot emit structured
// tool-calls.
package toolparse

import (
	"encoding/json"
	"regexp"
	"strings"
	"sync/atomic"
)

// Call is a parsed vanilla tool-call: the decoded name/arguments pair found
// in an assistant message's text.
type Call struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

var markerPattern = regexp.MustCompile(`TOOL_CALL\s*:{1,2}`)

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")

var seq uint64

// NextCallID synthesizes a call id of the form call_<name>_<monotonic>, per
// §6.4.
func NextCallID(name string) string {
	n := atomic.AddUint64(&seq, 1)
	return "call_" + name + "_" + itoa(n)
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// Parse attempts, in order, the four strategies in §4.6 and returns the
// first one that yields a well-formed {name, arguments} object. It returns
// nil if none succeed.
func Parse(content string) *Call {
	if call := tryWholeContent(content); call != nil {
		return call
	}
	if call := tryMarker(content); call != nil {
		return call
	}
	if call := tryFencedBlock(content); call != nil {
		return call
	}
	if call := tryAnyBalancedObject(content); call != nil {
		return call
	}
	return nil
}

func tryWholeContent(content string) *Call {
	return decodeCall(strings.TrimSpace(content))
}

func tryMarker(content string) *Call {
	loc := markerPattern.FindStringIndex(content)
	if loc == nil {
		return nil
	}
	rest := content[loc[1]:]
	start := strings.IndexByte(rest, '{')
	if start < 0 {
		return nil
	}
	obj := extractBalanced(rest[start:], '{', '}')
	if obj == "" {
		return nil
	}
	return decodeCall(obj)
}

func tryFencedBlock(content string) *Call {
	for _, m := range fencePattern.FindAllStringSubmatchIndex(content, -1) {
		// An escaped fence opener (preceded by a backslash) is ignored.
		start := m[0]
		if start > 0 && content[start-1] == '\\' {
			continue
		}
		inner := content[m[2]:m[3]]
		trimmed := trimToJSONBounds(inner)
		if trimmed == "" {
			continue
		}
		if call := decodeCall(trimmed); call != nil {
			return call
		}
	}
	return nil
}

func trimToJSONBounds(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	end := strings.LastIndexAny(s, "}]")
	if end < 0 || end < start {
		return ""
	}
	return strings.TrimSpace(s[start : end+1])
}

func tryAnyBalancedObject(content string) *Call {
	for i, r := range content {
		if r != '{' {
			continue
		}
		obj := extractBalanced(content[i:], '{', '}')
		if obj == "" {
			continue
		}
		if call := decodeCall(obj); call != nil {
			return call
		}
	}
	return nil
}

// extractBalanced returns the substring of s starting at index 0 (which must
// hold open) through its matching close, counting nested occurrences and
// ignoring braces inside JSON string literals.
func extractBalanced(s string, open, close byte) string {
	if len(s) == 0 || s[0] != open {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}

func decodeCall(s string) *Call {
	if s == "" {
		return nil
	}
	var raw struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil
	}
	if raw.Name == "" {
		return nil
	}
	if len(raw.Arguments) == 0 {
		raw.Arguments = json.RawMessage("{}")
	}
	return &Call{Name: raw.Name, Arguments: raw.Arguments}
}
