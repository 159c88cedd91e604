package toolparse

import "testing"

func TestParse_WholeContentJSON(t *testing.T) {
	call := Parse(`{"name": "add", "arguments": {"a": 1, "b": 2}}`)
	if call == nil || call.Name != "add" {
		t.Fatalf("expected add call, got %+v", call)
	}
}

func TestParse_Marker(t *testing.T) {
	content := `Let me compute that.

TOOL_CALL: {"name": "multiply", "arguments": {"a": 15, "b": 8}}`
	call := Parse(content)
	if call == nil || call.Name != "multiply" {
		t.Fatalf("expected multiply call, got %+v", call)
	}
}

func TestParse_MarkerDoubleColon(t *testing.T) {
	call := Parse(`TOOL_CALL:: {"name": "divide", "arguments": {"a": 120, "b": 3}}`)
	if call == nil || call.Name != "divide" {
		t.Fatalf("expected divide call, got %+v", call)
	}
}

func TestParse_FencedJSONBlock(t *testing.T) {
	content := "Here you go:\n```json\n{\"name\": \"search\", \"arguments\": {\"q\": \"go\"}}\n```"
	call := Parse(content)
	if call == nil || call.Name != "search" {
		t.Fatalf("expected search call, got %+v", call)
	}
}

func TestParse_EscapedFenceIgnored(t *testing.T) {
	content := "\\```json\n{\"name\": \"decoy\"}\n```\nTOOL_CALL: {\"name\": \"real\", \"arguments\": {}}"
	call := Parse(content)
	if call == nil || call.Name != "real" {
		t.Fatalf("expected escaped fence to be skipped, got %+v", call)
	}
}

func TestParse_AnyBalancedObject(t *testing.T) {
	content := `some preamble {"name": "fetch", "arguments": {"url": "x"}} trailing text`
	call := Parse(content)
	if call == nil || call.Name != "fetch" {
		t.Fatalf("expected fetch call, got %+v", call)
	}
}

func TestParse_NoCall(t *testing.T) {
	if call := Parse("just plain text, nothing to see here"); call != nil {
		t.Fatalf("expected nil, got %+v", call)
	}
}

func TestParse_FirstCallOnlyInMarker(t *testing.T) {
	content := `TOOL_CALL: {"name": "first", "arguments": {}} and then TOOL_CALL: {"name": "second", "arguments": {}}`
	call := Parse(content)
	if call == nil || call.Name != "first" {
		t.Fatalf("expected first call only, got %+v", call)
	}
}

func TestNextCallID_Monotonic(t *testing.T) {
	a := NextCallID("add")
	b := NextCallID("add")
	if a == b {
		t.Fatalf("expected distinct ids, got %q twice", a)
	}
}
