package analysis

import (
	"encoding/json"
	"strconv"
	"strings"
)

// RawOutput is whatever a backend answered, sorted into one of the shapes the
// normalizer knows. The set of variants is closed.
type RawOutput interface {
	rawOutput()
}

// Prediction is one {label, score} classification entry.
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// ClassificationList is an ordered list of predictions, best first (not enforced).
type ClassificationList []Prediction

// Canonical is an object already shaped like a Result.
type Canonical struct {
	Label      string
	Severity   float64
	Confidence float64
}

// NestedPredictions is a multi-head answer: every key holds its own prediction list.
type NestedPredictions map[string][]Prediction

// Unrecognized wraps anything else, kept for logging.
type Unrecognized struct {
	Value any
}

func (ClassificationList) rawOutput() {}
func (Canonical) rawOutput()          {}
func (NestedPredictions) rawOutput()  {}
func (Unrecognized) rawOutput()       {}

// DecodeRaw parses a JSON body and classifies its shape. It never fails: bodies
// that are not JSON come back as Unrecognized.
func DecodeRaw(body []byte) RawOutput {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return Unrecognized{Value: string(body)}
	}
	return ClassifyRaw(v)
}

// ClassifyRaw sniffs a decoded JSON value (map[string]any / []any / scalars).
func ClassifyRaw(v any) RawOutput {
	switch t := v.(type) {
	case []any:
		if preds, ok := predictionList(t); ok {
			return ClassificationList(preds)
		}
	case map[string]any:
		if c, ok := canonical(t); ok {
			return c
		}
		// {"predictions":[...]} style wrappers carry a single list.
		for _, key := range []string{"predictions", "labels", "results"} {
			if arr, ok := t[key].([]any); ok {
				if preds, ok := predictionList(arr); ok {
					return ClassificationList(preds)
				}
			}
		}
		if nested, ok := nestedPredictions(t); ok {
			return nested
		}
	}
	return Unrecognized{Value: v}
}

func predictionList(arr []any) ([]Prediction, bool) {
	if len(arr) == 0 {
		return nil, false
	}
	out := make([]Prediction, 0, len(arr))
	for _, it := range arr {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, false
		}
		label, ok := m["label"].(string)
		if !ok {
			return nil, false
		}
		score, ok := toFloat(m["score"])
		if !ok {
			return nil, false
		}
		out = append(out, Prediction{Label: label, Score: score})
	}
	return out, true
}

func canonical(m map[string]any) (Canonical, bool) {
	label, ok := m["label"].(string)
	if !ok {
		return Canonical{}, false
	}
	sev, ok := toFloat(m["severity"])
	if !ok {
		return Canonical{}, false
	}
	conf, ok := toFloat(m["confidence"])
	if !ok {
		return Canonical{}, false
	}
	return Canonical{Label: label, Severity: sev, Confidence: conf}, true
}

func nestedPredictions(m map[string]any) (NestedPredictions, bool) {
	out := NestedPredictions{}
	for k, v := range m {
		arr, ok := v.([]any)
		if !ok {
			continue
		}
		if preds, ok := predictionList(arr); ok {
			out[k] = preds
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// toFloat coerces JSON numbers and numeric strings.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
