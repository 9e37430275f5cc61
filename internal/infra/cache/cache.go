// Package cache holds analysis results keyed by image hash.
package cache

import (
	"time"

	domain "github.com/bryanwahyu/civic-triage/internal/domain/analysis"
)

// entry is the stored form: the result plus when it was written.
type entry struct {
	Result   domain.Result `json:"result"`
	StoredAt time.Time     `json:"stored_at"`
}
