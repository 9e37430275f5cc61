package local

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/civic-triage/internal/domain/analysis"
)

const testModel = `
name: test-centroids
temperature: 0.05
classes:
  - label: severe pothole
    centroid: [0.16, 0.16, 0.16, 0.16, 0.0, 0.0, 1.0]
  - label: graffiti on wall
    centroid: [0.94, 0.86, 0.16, 0.85, 0.83, 0.0, 0.0]
  - label: park maintenance
    centroid: [0.2, 0.6, 0.2, 0.48, 0.67, 0.0, 0.0]
`

func writeModel(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func solidPNG(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 120, 90))
	for y := 0; y < 90; y++ {
		for x := 0; x < 120; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPredictNearestCentroid(t *testing.T) {
	b := New(writeModel(t, testModel))
	assert.Equal(t, domain.SourceLocal, b.Source())

	out, err := b.Predict(context.Background(), solidPNG(t, color.RGBA{40, 40, 40, 255}))
	require.NoError(t, err)
	list, ok := out.(domain.ClassificationList)
	require.True(t, ok)
	require.Len(t, list, 3)
	assert.Equal(t, "severe pothole", list[0].Label)
	assert.Greater(t, list[0].Score, 0.9)

	var sum float64
	for i, p := range list {
		sum += p.Score
		if i > 0 {
			assert.LessOrEqual(t, p.Score, list[i-1].Score)
		}
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	out, err = b.Predict(context.Background(), solidPNG(t, color.RGBA{240, 220, 40, 255}))
	require.NoError(t, err)
	assert.Equal(t, "graffiti on wall", out.(domain.ClassificationList)[0].Label)
}

func TestPredictJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetRGBA(x, y, color.RGBA{50, 150, 50, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))

	b := New(writeModel(t, testModel))
	out, err := b.Predict(context.Background(), buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "park maintenance", out.(domain.ClassificationList)[0].Label)
}

func TestPredictUnavailableWithoutPath(t *testing.T) {
	_, err := New("").Predict(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestPredictBadImage(t *testing.T) {
	b := New(writeModel(t, testModel))
	_, err := b.Predict(context.Background(), []byte("not an image"))
	var ie *domain.InferenceError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, domain.SourceLocal, ie.Backend)
}

func TestPredictMissingModelRetriesLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "model.yaml")
	b := New(p)
	img := solidPNG(t, color.RGBA{40, 40, 40, 255})

	_, err := b.Predict(context.Background(), img)
	var ie *domain.InferenceError
	require.ErrorAs(t, err, &ie)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	require.NoError(t, os.WriteFile(p, []byte(testModel), 0o600))
	_, err = b.Predict(context.Background(), img)
	assert.NoError(t, err)
}

func TestPredictConcurrentLoad(t *testing.T) {
	b := New(writeModel(t, testModel))
	img := solidPNG(t, color.RGBA{40, 40, 40, 255})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Predict(context.Background(), img)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestLoadModelValidation(t *testing.T) {
	cases := map[string]string{
		"no classes":      "name: x\nclasses: []\n",
		"short centroid":  "classes:\n  - label: a\n    centroid: [1, 2]\n",
		"empty label":     "classes:\n  - label: \"\"\n    centroid: [0,0,0,0,0,0,0]\n",
		"bad weights":     "weights: [1]\nclasses:\n  - label: a\n    centroid: [0,0,0,0,0,0,0]\n",
		"negative temp":   "temperature: -1\nclasses:\n  - label: a\n    centroid: [0,0,0,0,0,0,0]\n",
		"not yaml at all": "classes: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadModel(writeModel(t, body))
			assert.Error(t, err)
		})
	}
}

func TestFeaturesSolidColour(t *testing.T) {
	f, err := Features(solidPNG(t, color.RGBA{255, 0, 0, 255}))
	require.NoError(t, err)
	require.Len(t, f, len(FeatureNames))
	assert.InDelta(t, 1.0, f[0], 0.01)
	assert.InDelta(t, 0.0, f[1], 0.01)
	assert.InDelta(t, 0.299, f[3], 0.01)
	assert.InDelta(t, 1.0, f[4], 0.01)
	assert.InDelta(t, 0.0, f[5], 0.01)
}

func TestFeaturesEdges(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			v := uint8(0)
			if (x/2+y/2)%2 == 0 {
				v = 255
			}
			img.SetRGBA(x, y, color.RGBA{v, v, v, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	f, err := Features(buf.Bytes())
	require.NoError(t, err)
	assert.Greater(t, f[5], 0.3, "checkerboard is mostly edges")
	assert.InDelta(t, 0.5, f[6], 0.1)
}
