package prompt

import (
	"fmt"
	"strings"

	"github.com/bryanwahyu/civic-triage/internal/domain/analysis"
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	cats := make([]string, 0, 8)
	for _, c := range analysis.Categories() {
		cats = append(cats, string(c))
	}
	return `You are a municipal field inspector triaging photos of civic issues reported by residents. You must produce one valid JSON object only (no markdown, no commentary). Do not include code fences.

Requirements:
- "label" is a short lowercase description of the main issue visible, using words from this list when one applies: ` + strings.ToLower(strings.Join(cats, ", ")) + `.
- "severity" is a number from 0 to 1: 0 harmless, 0.5 needs attention this month, 1 immediate hazard to people or vehicles.
- "confidence" is a number from 0 to 1 saying how sure you are about the label.
- If the photo shows no civic issue or cannot be read, answer {"label":"unknown","severity":0.5,"confidence":0.5}.

Schema:
{"label": "<string>", "severity": <number>, "confidence": <number>}`
}

// GetUserPrompt builds the text part sent next to the image.
func GetUserPrompt(mime string, size int) string {
	return fmt.Sprintf("Classify the attached report photo (%s, %d bytes) and respond with the JSON per schema.", mime, size)
}
