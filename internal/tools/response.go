package tools

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Response is the uniform envelope agent operations return. Format
// renders it into the text block a tool call reports upstream.
type Response struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	Errors  []string       `json:"errors,omitempty"`
}

// Format renders the response for an MCP text content block: a ✅ line
// with the data payload on success, a ❌ line with the error list on
// failure.
func (r *Response) Format() string {
	if r.Success {
		out := "✅ " + r.Message
		if len(r.Data) > 0 {
			out += "\n\nData: " + JSONBlock(r.Data)
		}
		return out
	}
	out := "❌ " + r.Message
	if len(r.Errors) > 0 {
		out += "\n\nErrors: " + JSONBlock(r.Errors)
	}
	return out
}

// FormatFound renders a list result: a count line followed by the
// pre-rendered item blocks.
func FormatFound(items []string) string {
	if len(items) == 0 {
		return "No items found."
	}
	return fmt.Sprintf("Found %d items:\n\n%s", len(items), strings.Join(items, "\n\n"))
}

// JSONBlock renders a value as indented JSON for inclusion in a text
// response. Marshal failures render as an error string rather than
// failing the tool call.
func JSONBlock(v any) string {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("(unrenderable: %v)", err)
	}
	return string(out)
}
