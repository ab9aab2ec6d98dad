package ai

import (
	"encoding/json"
	"strings"
)

const (
	// FallbackTitle stands in when a model reply is not valid JSON.
	FallbackTitle = "Voice note"

	// maxFallbackSummary bounds the raw reply kept as a summary when
	// parsing fails.
	maxFallbackSummary = 200
)

// ParseAnalysis extracts the {title, summary} object from a model reply.
// Models wrap JSON in code fences despite instructions, so fences are
// stripped before parsing. A reply that still fails to parse degrades to a
// fallback title plus the truncated raw text; this never returns an error.
func ParseAnalysis(reply string) (title, summary string) {
	clean := strings.ReplaceAll(reply, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")
	clean = strings.TrimSpace(clean)

	var parsed struct {
		Title   string `json:"title"`
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return FallbackTitle, truncate(reply, maxFallbackSummary)
	}

	if parsed.Title == "" {
		parsed.Title = FallbackTitle
	}
	if parsed.Summary == "" {
		parsed.Summary = clean
	}
	return parsed.Title, parsed.Summary
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
