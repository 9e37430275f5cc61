package analysis

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// maxTags bounds how many raw labels end up in a report's aiTags.
const maxTags = 5

var (
	highSeverityWords = map[string]bool{
		"severe": true, "critical": true, "high": true, "major": true,
		"dangerous": true, "hazard": true, "hazardous": true, "emergency": true,
		"extensive": true, "deep": true, "large": true, "collapsed": true,
	}
	lowSeverityWords = map[string]bool{
		"minor": true, "low": true, "small": true, "slight": true,
		"light": true, "cosmetic": true, "superficial": true,
	}
)

// Normalize maps any raw backend output onto the canonical Result. It is a
// pure function and never fails: unknown shapes degrade to Neutral. The
// returned Result has no Source.
func Normalize(raw RawOutput) Result {
	switch r := raw.(type) {
	case ClassificationList:
		return fromPredictions(r)
	case Canonical:
		label := cleanLabel(r.Label)
		return Result{
			Label:      label,
			Severity:   unit(r.Severity),
			Confidence: unit(r.Confidence),
			Tags:       []string{label},
		}
	case NestedPredictions:
		return fromPredictions(flatten(r))
	default:
		return Neutral()
	}
}

func fromPredictions(preds []Prediction) Result {
	if len(preds) == 0 {
		return Neutral()
	}
	ranked := make([]Prediction, len(preds))
	copy(ranked, preds)
	// stable: equal scores keep the backend's order
	sort.SliceStable(ranked, func(i, j int) bool {
		return score(ranked[i].Score) > score(ranked[j].Score)
	})

	top := ranked[0]
	label := cleanLabel(top.Label)
	conf := unit(top.Score)

	tags := make([]string, 0, maxTags)
	seen := map[string]bool{}
	for _, p := range ranked {
		l := cleanLabel(p.Label)
		if seen[l] {
			continue
		}
		seen[l] = true
		tags = append(tags, l)
		if len(tags) == maxTags {
			break
		}
	}

	return Result{
		Label:      label,
		Severity:   unit(keywordSeverity(label, conf)),
		Confidence: conf,
		Tags:       tags,
	}
}

// flatten merges every head of a multi-head answer. Heads are visited in key
// order so ties resolve the same way on every call.
func flatten(n NestedPredictions) []Prediction {
	keys := make([]string, 0, len(n))
	for k := range n {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []Prediction
	for _, k := range keys {
		out = append(out, n[k]...)
	}
	return out
}

// keywordSeverity derives severity from the label wording, scaled by confidence.
func keywordSeverity(label string, conf float64) float64 {
	words := strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	high, low := false, false
	for _, w := range words {
		if highSeverityWords[w] {
			high = true
		}
		if lowSeverityWords[w] {
			low = true
		}
	}
	switch {
	case high:
		return math.Max(conf, 0.75)
	case low:
		return 0.2 + 0.1*conf
	default:
		return 0.3 + 0.3*conf
	}
}

func cleanLabel(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return UnknownLabel
	}
	return s
}

// score orders predictions with NaN treated as the lowest value.
func score(f float64) float64 {
	if math.IsNaN(f) {
		return math.Inf(-1)
	}
	return f
}

// unit clamps to [0,1] and rounds to 3 decimals; NaN becomes the neutral score.
func unit(f float64) float64 {
	if math.IsNaN(f) {
		return neutralScore
	}
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return math.Round(f*1000) / 1000
}
