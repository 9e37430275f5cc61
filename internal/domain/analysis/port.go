package analysis

import (
	"context"
	"time"
)

// Backend is one inference strategy. Predict returns ErrBackendUnavailable
// when the backend is not configured and an *InferenceError when it is
// configured but failed.
type Backend interface {
	Source() Source
	Predict(ctx context.Context, img []byte) (RawOutput, error)
}

// Cache stores results keyed by HashBytes of the image. A miss is (nil, nil).
type Cache interface {
	Get(ctx context.Context, key string) (*Result, error)
	Set(ctx context.Context, key string, r Result, ttl time.Duration) error
}

// BlobFetcher resolves a storage reference to the image bytes. Failures are
// reported as *BlobFetchError.
type BlobFetcher interface {
	Fetch(ctx context.Context, ref StorageReference) ([]byte, error)
}
