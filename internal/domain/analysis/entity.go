package analysis

import (
	"crypto/sha256"
	"encoding/hex"
)

// Source tells which path produced a Result. It is recorded for observability only.
type Source string

const (
	SourceLocal           Source = "local"
	SourceInternalService Source = "internal-service"
	SourceExternalAPI     Source = "external-api"
	SourceCache           Source = "cache"
	SourceFallback        Source = "fallback"
)

// UnknownLabel is used whenever no backend output could be interpreted.
const UnknownLabel = "unknown"

const neutralScore = 0.5

// Result value object: canonical image classification, merged into the report.
type Result struct {
	Label      string   `json:"label"`
	Severity   float64  `json:"severity"`
	Confidence float64  `json:"confidence"`
	Source     Source   `json:"source"`
	Tags       []string `json:"tags,omitempty"`
}

// Neutral is the result for output that could not be interpreted. It carries
// no source; the caller stamps the backend that answered.
func Neutral() Result {
	return Result{
		Label:      UnknownLabel,
		Severity:   neutralScore,
		Confidence: neutralScore,
		Tags:       []string{UnknownLabel},
	}
}

// Fallback is the neutral result used when every backend is unavailable or failed.
func Fallback() Result {
	return Neutral().WithSource(SourceFallback)
}

// IsNeutral reports whether r carries no usable signal.
func (r Result) IsNeutral() bool {
	return r.Label == UnknownLabel
}

// WithSource returns a copy of r tagged with src.
func (r Result) WithSource(src Source) Result {
	r.Source = src
	if r.Tags != nil {
		r.Tags = append([]string(nil), r.Tags...)
	}
	return r
}

// HashBytes returns the cache key for an image: hex sha256 of its exact bytes.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
