package runner

import (
	"encoding/json"
	"strings"
)

const degradedSummaryLimit = 200

// ParseOutput decodes a model answer into the shared payload shape. Models
// occasionally wrap the JSON in prose or code fences, so the first '{' to
// the last '}' is tried first. When nothing decodes, the raw text is
// preserved as a degraded payload rather than discarded; raw must be
// non-empty.
func ParseOutput(raw string) (*Payload, bool) {
	if candidate, ok := extractObject(raw); ok {
		var payload Payload
		if err := json.Unmarshal([]byte(candidate), &payload); err == nil {
			if payload.Title != "" || payload.Summary != "" || payload.Content != "" || len(payload.Bullets) > 0 {
				return &payload, false
			}
		}
	}

	trimmed := strings.TrimSpace(raw)
	return &Payload{
		Content: trimmed,
		Summary: truncate(trimmed, degradedSummaryLimit),
	}, true
}

func extractObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
