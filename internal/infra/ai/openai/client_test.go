package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/civic-triage/internal/domain/analysis"
)

func chatServer(t *testing.T, status int, body string, inspect func(map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if inspect != nil {
			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			inspect(req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(b)
}

func TestPredictSendsImageAsDataURI(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nrest")
	srv := chatServer(t, http.StatusOK, completion(`{"label":"pothole","severity":"0.8","confidence":0.7}`), func(req map[string]any) {
		assert.Equal(t, "gpt-4o-mini", req["model"])
		msgs := req["messages"].([]any)
		require.Len(t, msgs, 2)
		parts := msgs[1].(map[string]any)["content"].([]any)
		img := parts[1].(map[string]any)["image_url"].(map[string]any)
		assert.True(t, strings.HasPrefix(img["url"].(string), "data:image/png;base64,"))
	})
	defer srv.Close()

	c := NewClient("sk-test", "", srv.URL+"/v1", 0)
	out, err := c.Predict(context.Background(), png)
	require.NoError(t, err)
	assert.Equal(t, domain.Canonical{Label: "pothole", Severity: 0.8, Confidence: 0.7}, out)
}

func TestPredictFencedJSON(t *testing.T) {
	srv := chatServer(t, http.StatusOK, completion("```json\n{\"label\":\"graffiti\",\"severity\":0.3,\"confidence\":0.9}\n```"), nil)
	defer srv.Close()

	out, err := NewClient("sk-test", "gpt-4o", srv.URL+"/v1", 0).Predict(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, domain.Canonical{Label: "graffiti", Severity: 0.3, Confidence: 0.9}, out)
}

func TestPredictRateLimited(t *testing.T) {
	srv := chatServer(t, http.StatusTooManyRequests,
		`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`, nil)
	defer srv.Close()

	c := NewClient("sk-test", "", srv.URL+"/v1", 0)
	// the SDK does not retry by default
	_, err := c.Predict(context.Background(), []byte("img"))
	var ie *domain.InferenceError
	require.ErrorAs(t, err, &ie)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestPredictWithoutKeyIsUnavailable(t *testing.T) {
	_, err := NewClient("", "", "", 0).Predict(context.Background(), []byte("img"))
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(`  {"a":1} `))
}
