package hosted

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/civic-triage/internal/domain/analysis"
)

func TestPredictSendsBearerAndRawBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/google/vit-base", r.URL.Path)
		assert.Equal(t, "Bearer hf_secret", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, "raw-image", string(b))
		w.Write([]byte(`[{"label":"severe pothole","score":0.95},{"label":"road","score":0.03}]`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/models/", Model: "google/vit-base", Token: "hf_secret"}, srv.Client())
	assert.Equal(t, domain.SourceExternalAPI, c.Source())

	out, err := c.Predict(context.Background(), []byte("raw-image"))
	require.NoError(t, err)
	assert.Equal(t, domain.ClassificationList{
		{Label: "severe pothole", Score: 0.95},
		{Label: "road", Score: 0.03},
	}, out)

	res := domain.Normalize(out)
	assert.Equal(t, "severe pothole", res.Label)
	assert.InDelta(t, 0.95, res.Confidence, 1e-9)
	assert.InDelta(t, 0.95, res.Severity, 1e-9)
}

func TestPredictWithoutTokenIsUnavailable(t *testing.T) {
	_, err := New(Config{}, nil).Predict(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestPredictRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL, Token: "t"}, srv.Client()).Predict(context.Background(), []byte("x"))
	var ie *domain.InferenceError
	require.ErrorAs(t, err, &ie)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestPredictModelLoading(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"Model is currently loading","estimated_time":20}`))
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL, Token: "t"}, srv.Client()).Predict(context.Background(), []byte("x"))
	var ie *domain.InferenceError
	require.ErrorAs(t, err, &ie)
	assert.Contains(t, err.Error(), "currently loading")
}

func TestClientSideLimiter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`[{"label":"graffiti","score":0.9}]`))
	}))
	defer srv.Close()

	// one token, refilled far slower than the timeout
	c := New(Config{BaseURL: srv.URL, Token: "t", RPS: 0.01, Burst: 1, Timeout: 50 * time.Millisecond}, srv.Client())
	_, err := c.Predict(context.Background(), []byte("x"))
	require.NoError(t, err)

	_, err = c.Predict(context.Background(), []byte("x"))
	var ie *domain.InferenceError
	assert.ErrorAs(t, err, &ie)
	assert.Equal(t, int32(1), calls.Load())
}
