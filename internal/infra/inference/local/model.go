// Package local runs the in-process nearest-centroid image classifier.
package local

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	domain "github.com/bryanwahyu/civic-triage/internal/domain/analysis"
)

// FeatureNames is the order of the feature vector every centroid must follow.
var FeatureNames = []string{
	"mean_r", "mean_g", "mean_b", "brightness", "saturation", "edge_density", "dark_ratio",
}

// Model is the artifact format: one centroid per class over FeatureNames.
type Model struct {
	Name        string    `yaml:"name"`
	Temperature float64   `yaml:"temperature"` // softmax temperature, default 0.1
	Weights     []float64 `yaml:"weights"`     // optional per-feature weights
	Classes     []Class   `yaml:"classes"`
}

type Class struct {
	Label    string    `yaml:"label"`
	Centroid []float64 `yaml:"centroid"`
}

// LoadModel reads and validates a YAML model artifact.
func LoadModel(path string) (*Model, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Model
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return &m, nil
}

func (m *Model) Validate() error {
	if len(m.Classes) == 0 {
		return errors.New("no classes")
	}
	n := len(FeatureNames)
	if m.Weights != nil && len(m.Weights) != n {
		return fmt.Errorf("weights: want %d values, got %d", n, len(m.Weights))
	}
	for i, c := range m.Classes {
		if c.Label == "" {
			return fmt.Errorf("class %d: empty label", i)
		}
		if len(c.Centroid) != n {
			return fmt.Errorf("class %q: want %d centroid values, got %d", c.Label, n, len(c.Centroid))
		}
	}
	if m.Temperature < 0 {
		return errors.New("temperature must not be negative")
	}
	return nil
}

// Classify scores every class against the feature vector: softmax over
// negative weighted distances, best first.
func (m *Model) Classify(features []float64) domain.ClassificationList {
	temp := m.Temperature
	if temp == 0 {
		temp = 0.1
	}
	logits := make([]float64, len(m.Classes))
	maxLogit := math.Inf(-1)
	for i, c := range m.Classes {
		logits[i] = -m.distance(features, c.Centroid) / temp
		if logits[i] > maxLogit {
			maxLogit = logits[i]
		}
	}
	var sum float64
	for i := range logits {
		logits[i] = math.Exp(logits[i] - maxLogit)
		sum += logits[i]
	}
	out := make(domain.ClassificationList, len(m.Classes))
	for i, c := range m.Classes {
		out[i] = domain.Prediction{Label: c.Label, Score: logits[i] / sum}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	return out
}

func (m *Model) distance(a, b []float64) float64 {
	var d float64
	for i := range a {
		w := 1.0
		if m.Weights != nil {
			w = m.Weights[i]
		}
		diff := a[i] - b[i]
		d += w * diff * diff
	}
	return math.Sqrt(d)
}
