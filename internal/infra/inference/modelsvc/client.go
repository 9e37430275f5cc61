// Package modelsvc calls the internal model microservice.
package modelsvc

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	domain "github.com/bryanwahyu/civic-triage/internal/domain/analysis"
	"github.com/bryanwahyu/civic-triage/internal/infra/inference"
)

const DefaultTimeout = 30 * time.Second

// Client posts the image as multipart field "file" to <base>/analyze.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// New returns the backend. An empty baseURL leaves it unavailable.
func New(baseURL string, hc *http.Client, timeout time.Duration) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc, timeout: timeout}
}

func (c *Client) Source() domain.Source { return domain.SourceInternalService }

func (c *Client) Predict(ctx context.Context, img []byte) (domain.RawOutput, error) {
	if c.baseURL == "" {
		return nil, domain.ErrBackendUnavailable
	}
	body, contentType, err := multipartImage(img)
	if err != nil {
		return nil, inference.Failed(c.Source(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", body)
	if err != nil {
		return nil, inference.Failed(c.Source(), err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, inference.Failed(c.Source(), err)
	}
	defer resp.Body.Close()
	return inference.ReadResponse(c.Source(), resp)
}

// Health calls <base>/health.
func (c *Client) Health(ctx context.Context) error {
	if c.baseURL == "" {
		return domain.ErrBackendUnavailable
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = inference.ReadResponse(c.Source(), resp)
	return err
}

// multipartImage builds the form with the part's content type sniffed from
// the bytes; the service rejects parts that are not image/*.
func multipartImage(img []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	ct := http.DetectContentType(img)
	if !strings.HasPrefix(ct, "image/") {
		ct = "image/jpeg"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename(ct)+`"`)
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(img); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func filename(ct string) string {
	switch ct {
	case "image/png":
		return "image.png"
	case "image/webp":
		return "image.webp"
	case "image/gif":
		return "image.gif"
	}
	return "image.jpg"
}

var _ domain.Backend = (*Client)(nil)
