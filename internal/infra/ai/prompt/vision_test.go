package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystemPromptListsCategories(t *testing.T) {
	p := GetSystemPrompt()
	for _, want := range []string{"pothole", "streetlight out", "park maintenance", `"label"`, `"severity"`} {
		assert.Contains(t, p, want)
	}
}

func TestUserPrompt(t *testing.T) {
	assert.Equal(t,
		"Classify the attached report photo (image/png, 42 bytes) and respond with the JSON per schema.",
		GetUserPrompt("image/png", 42))
}
