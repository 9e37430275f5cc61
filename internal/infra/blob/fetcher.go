// Package blob resolves storage references to image bytes.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domain "github.com/bryanwahyu/civic-triage/internal/domain/analysis"
)

const (
	DefaultTimeout  = 20 * time.Second
	DefaultMaxBytes = 15 << 20
	cloudinaryBase  = "https://res.cloudinary.com/%s/image/upload"
)

var errTooLarge = errors.New("image exceeds size limit")

// ObjectOpener is the object-store side of the fetcher (storage.Store).
type ObjectOpener interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error)
}

// Fetcher implements analysis.BlobFetcher for all three reference kinds.
type Fetcher struct {
	Objects ObjectOpener // nil disables object-store references
	Client  *http.Client
	// CDNBaseURL is the delivery prefix for cdn-id references, for example
	// https://res.cloudinary.com/<cloud>/image/upload.
	CDNBaseURL    string
	DefaultBucket string
	Timeout       time.Duration // default 20s, applies to URL fetches
	MaxBytes      int64         // default 15 MiB
}

// CloudinaryBase builds the delivery prefix for a cloud name.
func CloudinaryBase(cloud string) string {
	if cloud == "" {
		return ""
	}
	return fmt.Sprintf(cloudinaryBase, cloud)
}

func (f *Fetcher) Fetch(ctx context.Context, ref domain.StorageReference) ([]byte, error) {
	b, err := f.fetch(ctx, ref)
	if err != nil {
		return nil, &domain.BlobFetchError{Reference: ref, Cause: err}
	}
	return b, nil
}

func (f *Fetcher) fetch(ctx context.Context, ref domain.StorageReference) ([]byte, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	switch ref.Kind {
	case domain.KindObjectStore:
		return f.fetchObject(ctx, ref)
	case domain.KindPublicURL:
		return f.fetchURL(ctx, ref.URL)
	case domain.KindCDNID:
		u, err := f.cdnURL(ref.PublicID)
		if err != nil {
			return nil, err
		}
		return f.fetchURL(ctx, u)
	}
	return nil, fmt.Errorf("unsupported reference kind %q", ref.Kind)
}

func (f *Fetcher) fetchObject(ctx context.Context, ref domain.StorageReference) ([]byte, error) {
	if f.Objects == nil {
		return nil, errors.New("object store not configured")
	}
	bucket := ref.Bucket
	if bucket == "" {
		bucket = f.DefaultBucket
	}
	rc, size, err := f.Objects.Open(ctx, bucket, ref.Key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	if size > f.maxBytes() {
		return nil, fmt.Errorf("%w: %d bytes", errTooLarge, size)
	}
	return f.readAll(rc)
}

func (f *Fetcher) fetchURL(ctx context.Context, u string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/*")
	resp, err := f.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("GET %s: status %d", redact(u), resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes() {
		return nil, fmt.Errorf("%w: %d bytes", errTooLarge, resp.ContentLength)
	}
	return f.readAll(resp.Body)
}

func (f *Fetcher) readAll(r io.Reader) ([]byte, error) {
	limit := f.maxBytes()
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", errTooLarge, limit)
	}
	if len(b) == 0 {
		return nil, errors.New("empty image body")
	}
	return b, nil
}

func (f *Fetcher) cdnURL(publicID string) (string, error) {
	if f.CDNBaseURL == "" {
		return "", errors.New("cdn base url not configured")
	}
	parts := strings.Split(strings.TrimLeft(publicID, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.TrimRight(f.CDNBaseURL, "/") + "/" + strings.Join(parts, "/"), nil
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

func (f *Fetcher) timeout() time.Duration {
	if f.Timeout > 0 {
		return f.Timeout
	}
	return DefaultTimeout
}

func (f *Fetcher) maxBytes() int64 {
	if f.MaxBytes > 0 {
		return f.MaxBytes
	}
	return DefaultMaxBytes
}

// redact drops the query string, which may carry signed-URL credentials.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

var _ domain.BlobFetcher = (*Fetcher)(nil)
