package cmd

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/civic-triage/internal/domain/jobs"
)

// run executes the root command against srv and returns stdout.
func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	if srv != nil {
		args = append([]string{"--api", srv.URL, "--api-key", "k1"}, args...)
	}
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	t.Cleanup(func() { outputFormat = "table" })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/jobs/stats", r.URL.Path)
		assert.Equal(t, "Bearer k1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(jobs.Stats{Queued: 4, Delayed: 1, Active: 2, Dead: 0})
	}))
	defer srv.Close()

	out, err := run(t, srv, "stats")
	require.NoError(t, err)
	assert.Contains(t, strings.ToUpper(out), "QUEUED")
	assert.Contains(t, out, "4")
}

func TestRetryAndErrors(t *testing.T) {
	var hits []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, r.Method+" "+r.URL.Path)
		if r.URL.Path == "/v1/jobs/missing/retry" {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	out, err := run(t, srv, "retry", "6f1a3c2e-4b5d-4e6f-8a9b-0c1d2e3f4a5b")
	require.NoError(t, err)
	assert.Contains(t, out, "requeued")

	_, err = run(t, srv, "retry", "missing")
	var ae *apiError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusNotFound, ae.Status)
	assert.Equal(t, []string{
		"POST /v1/jobs/6f1a3c2e-4b5d-4e6f-8a9b-0c1d2e3f4a5b/retry",
		"POST /v1/jobs/missing/retry",
	}, hits)
}

func TestEnqueueURL(t *testing.T) {
	var got jobs.Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(jobs.Job{ID: "j1", Payload: got, State: jobs.StateQueued, MaxAttempts: 3})
	}))
	defer srv.Close()

	out, err := run(t, srv, "enqueue", "--report", "r9", "--url", "https://cdn.example.org/p.jpg", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, jobs.Payload{ReportID: "r9", Storage: jobs.StoragePublic, URL: "https://cdn.example.org/p.jpg"}, got)

	var j jobs.Job
	require.NoError(t, json.Unmarshal([]byte(out), &j))
	assert.Equal(t, jobs.ID("j1"), j.ID)
}

func TestClassify(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 140, B: 50, A: 255})
		}
	}
	file := filepath.Join(t.TempDir(), "park.png")
	f, err := os.Create(file)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	model := filepath.Join("..", "..", "..", "models", "civic-centroids.yaml")
	out, err := run(t, nil, "classify", file, "--model", model, "-o", "json")
	require.NoError(t, err)

	var res struct {
		Features    map[string]float64 `json:"features"`
		Predictions []struct {
			Label string  `json:"label"`
			Score float64 `json:"score"`
		} `json:"predictions"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Len(t, res.Features, 7)
	require.NotEmpty(t, res.Predictions)
	var sum float64
	for _, p := range res.Predictions {
		sum += p.Score
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}
