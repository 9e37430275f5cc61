// Package queue implements the analysis job queue: a SQL table with
// visibility leases for production and an in-memory twin for local runs.
package queue

import (
	"time"
	"unicode/utf8"

	"github.com/bryanwahyu/civic-triage/internal/application"
	domain "github.com/bryanwahyu/civic-triage/internal/domain/jobs"
)

const errLeaseExpired = "lease expired with no attempts left"

// maxErrorLen bounds last_error so a huge upstream body does not bloat rows.
const maxErrorLen = 1024

// Options configures queue behaviour.
type Options struct {
	// Name is the logical queue name; several queues can share a table.
	Name string
	// MaxAttempts is how many deliveries a job gets before it is dead. Default 3.
	MaxAttempts int
	// Backoff between failed attempts. Default base 5s, max 5m.
	Backoff domain.Backoff
	// Visibility is how long a claimed job stays hidden. Default 3m.
	Visibility time.Duration
	Clock      application.Clock
}

func (o *Options) defaults() {
	if o.Name == "" {
		o.Name = "image-analysis"
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Backoff.Base <= 0 {
		o.Backoff.Base = 5 * time.Second
	}
	if o.Backoff.Max <= 0 {
		o.Backoff.Max = 5 * time.Minute
	}
	if o.Visibility <= 0 {
		o.Visibility = 3 * time.Minute
	}
	if o.Clock == nil {
		o.Clock = application.SystemClock{}
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	if len(s) <= maxErrorLen {
		return s
	}
	// cut on a rune boundary; utf8mb4 columns reject split sequences
	n := maxErrorLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}
