package local

import (
	"context"
	"sync"

	domain "github.com/bryanwahyu/civic-triage/internal/domain/analysis"
)

// Backend classifies images in-process. The model artifact is loaded on first
// use and shared read-only afterwards; a failed load is retried on the next call.
type Backend struct {
	path string

	mu    sync.Mutex
	model *Model
}

// New returns the local backend. An empty path leaves it unavailable.
func New(path string) *Backend {
	return &Backend{path: path}
}

// NewWithModel wraps an already loaded model.
func NewWithModel(m *Model) *Backend {
	return &Backend{path: "<memory>", model: m}
}

func (b *Backend) Source() domain.Source { return domain.SourceLocal }

func (b *Backend) Predict(ctx context.Context, img []byte) (domain.RawOutput, error) {
	if b.path == "" {
		return nil, domain.ErrBackendUnavailable
	}
	m, err := b.load()
	if err != nil {
		return nil, &domain.InferenceError{Backend: domain.SourceLocal, Cause: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &domain.InferenceError{Backend: domain.SourceLocal, Cause: err}
	}
	feats, err := Features(img)
	if err != nil {
		return nil, &domain.InferenceError{Backend: domain.SourceLocal, Cause: err}
	}
	return m.Classify(feats), nil
}

func (b *Backend) load() (*Model, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.model != nil {
		return b.model, nil
	}
	m, err := LoadModel(b.path)
	if err != nil {
		return nil, err
	}
	b.model = m
	return m, nil
}

var _ domain.Backend = (*Backend)(nil)
