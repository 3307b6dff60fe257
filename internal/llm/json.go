package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeJSON unmarshals the first JSON value in a model reply into v.
// Models rarely return bare JSON even when asked: local models emit
// <think> reasoning blocks before the payload, and most wrap it in a
// markdown fence or surround it with prose. All of that is stripped
// before decoding, and trailing text after the value is ignored.
func DecodeJSON(content string, v any) error {
	content = stripThink(content)
	content = stripFence(content)

	start := strings.IndexAny(content, "{[")
	if start == -1 {
		return fmt.Errorf("no JSON value in model output")
	}

	dec := json.NewDecoder(strings.NewReader(content[start:]))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	return nil
}

// CleanText strips <think> reasoning blocks and surrounding whitespace
// from a model reply, for callers that want prose rather than JSON.
func CleanText(content string) string {
	return strings.TrimSpace(stripThink(content))
}

// stripThink removes <think>...</think> reasoning blocks that models
// like qwen3 emit before their answer.
func stripThink(s string) string {
	for {
		start := strings.Index(s, "<think>")
		if start == -1 {
			return s
		}
		end := strings.Index(s[start:], "</think>")
		if end == -1 {
			// Unclosed block: drop the tag, keep the rest.
			return s[:start] + s[start+len("<think>"):]
		}
		s = s[:start] + s[start+end+len("</think>"):]
	}
}

// stripFence unwraps the first markdown code fence, if any.
func stripFence(s string) string {
	start := strings.Index(s, "```")
	if start == -1 {
		return s
	}
	rest := s[start+3:]
	// Drop the language tag on the opening fence line.
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		rest = rest[nl+1:]
	}
	if end := strings.Index(rest, "```"); end != -1 {
		rest = rest[:end]
	}
	return rest
}
