// Package inference holds the HTTP plumbing shared by the remote backends.
package inference

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	domain "github.com/bryanwahyu/civic-triage/internal/domain/analysis"
)

// MaxResponseBytes bounds what a backend may answer.
const MaxResponseBytes = 1 << 20

// ReadResponse turns an HTTP answer into raw output or an *InferenceError.
// 429 wraps ErrRateLimited.
func ReadResponse(src domain.Source, resp *http.Response) (domain.RawOutput, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	if err != nil {
		return nil, &domain.InferenceError{Backend: src, Cause: fmt.Errorf("read body: %w", err)}
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &domain.InferenceError{Backend: src, Cause: domain.ErrRateLimited}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &domain.InferenceError{
			Backend: src,
			Cause:   fmt.Errorf("status %d: %s", resp.StatusCode, snippet(body)),
		}
	}
	return domain.DecodeRaw(body), nil
}

// Failed wraps a transport error.
func Failed(src domain.Source, err error) error {
	return &domain.InferenceError{Backend: src, Cause: err}
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
