// Package hosted calls an external hosted inference API (Hugging Face style):
// raw image bytes in, JSON predictions out.
package hosted

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	domain "github.com/bryanwahyu/civic-triage/internal/domain/analysis"
	"github.com/bryanwahyu/civic-triage/internal/infra/inference"
)

const (
	DefaultBaseURL = "https://api-inference.huggingface.co/models"
	DefaultTimeout = 60 * time.Second
)

type Config struct {
	BaseURL string
	Model   string // appended to BaseURL; empty means BaseURL is the full endpoint
	Token   string
	Timeout time.Duration
	// RPS and Burst throttle calls client-side. Zero RPS means unlimited.
	RPS   float64
	Burst int
}

type Client struct {
	endpoint string
	token    string
	timeout  time.Duration
	http     *http.Client
	limiter  *rate.Limiter
}

func New(cfg Config, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	endpoint := strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model != "" {
		endpoint += "/" + strings.Trim(cfg.Model, "/")
	}
	c := &Client{endpoint: endpoint, token: cfg.Token, timeout: cfg.Timeout, http: hc}
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return c
}

func (c *Client) Source() domain.Source { return domain.SourceExternalAPI }

func (c *Client) Predict(ctx context.Context, img []byte) (domain.RawOutput, error) {
	if c.token == "" {
		return nil, domain.ErrBackendUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// waiting counts against the timeout; a saturated limiter falls through
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, inference.Failed(c.Source(), err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(img))
	if err != nil {
		return nil, inference.Failed(c.Source(), err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", http.DetectContentType(img))
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, inference.Failed(c.Source(), err)
	}
	defer resp.Body.Close()
	return inference.ReadResponse(c.Source(), resp)
}

var _ domain.Backend = (*Client)(nil)
