package schema

import (
	"encoding/json"
	"strings"
)

// ParseResponse decodes an LLM response into generic JSON. Responses wrapped
// in markdown code fences (with or without commentary around them) are
// unwrapped by taking everything from the first line containing '{' through
// the last line containing '}'. A decode failure returns (nil, false):
// malformed LLM output is an expected, recoverable condition, and the caller
// degrades to the empty sentinel schema.
func ParseResponse(raw string) (map[string]any, bool) {
	text := strings.TrimSpace(raw)

	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		start, end := -1, -1
		for i, line := range lines {
			if start == -1 && strings.Contains(line, "{") {
				start = i
			}
			if strings.Contains(line, "}") {
				end = i
			}
		}
		if start != -1 && end != -1 && start <= end {
			text = strings.Join(lines[start:end+1], "\n")
		}
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, false
	}
	return out, true
}
