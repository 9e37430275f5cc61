// Package openai is the vision-chat provider of the external inference backend.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	domain "github.com/bryanwahyu/civic-triage/internal/domain/analysis"
	"github.com/bryanwahyu/civic-triage/internal/infra/ai/prompt"
)

const (
	maxTokens    = 300
	defaultModel = "gpt-4o-mini"
)

type Client struct {
	*openai.Client
	Model   string
	Timeout time.Duration
	limiter *rate.Limiter
	enabled bool
}

// NewClient returns the backend. An empty apiKey leaves it unavailable.
// baseURL may point at any OpenAI-compatible endpoint; empty keeps the default.
func NewClient(apiKey, model, baseURL string, rps float64) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	c := &Client{Client: openai.NewClientWithConfig(cfg), Model: model, Timeout: 60 * time.Second, enabled: apiKey != ""}
	if rps > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return c
}

func (c *Client) Source() domain.Source { return domain.SourceExternalAPI }

func (c *Client) Predict(ctx context.Context, img []byte) (domain.RawOutput, error) {
	if !c.enabled {
		return nil, domain.ErrBackendUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.fail(err)
		}
	}

	model := c.Model
	if model == "" {
		model = defaultModel
	}
	mime := http.DetectContentType(img)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}
	dataURI := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img)

	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt.GetUserPrompt(mime, len(img))},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURI,
					Detail: openai.ImageURLDetailLow,
				}},
			}},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, c.fail(err)
	}
	if len(resp.Choices) == 0 {
		return nil, c.fail(errors.New("empty choices"))
	}
	return domain.DecodeRaw([]byte(stripFences(resp.Choices[0].Message.Content))), nil
}

// fail maps provider errors; 429 and quota errors become ErrRateLimited.
func (c *Client) fail(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && (apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.Type == "insufficient_quota") {
		err = fmt.Errorf("%w: %s", domain.ErrRateLimited, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		err = fmt.Errorf("%w: %v", domain.ErrRateLimited, reqErr.Err)
	}
	return &domain.InferenceError{Backend: domain.SourceExternalAPI, Cause: err}
}

// stripFences removes a ```json wrapper some models add despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

var _ domain.Backend = (*Client)(nil)
