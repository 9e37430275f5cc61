package jobs

import (
	"fmt"
	"time"

	"github.com/bryanwahyu/civic-triage/internal/domain/analysis"
)

// ID identifies a queued analysis job.
type ID string

// State of a job in the queue. Completed jobs are deleted, so there is no
// completed state on disk.
type State string

const (
	StateQueued State = "queued"
	StateActive State = "active"
	StateDead   State = "dead"
)

// Storage values accepted in a Payload.
const (
	StoragePublic     = "public"
	StorageCloudinary = "cloudinary"
	StorageS3         = "s3"
)

// Payload is the message the create-report path enqueues.
type Payload struct {
	ReportID string `json:"reportId"`
	Storage  string `json:"storage"`
	URL      string `json:"url,omitempty"`
	PublicID string `json:"publicId,omitempty"`
	Key      string `json:"key,omitempty"`
	Bucket   string `json:"bucket,omitempty"`
}

// Reference converts the payload into a storage reference, rejecting
// payloads whose populated fields disagree with Storage.
func (p Payload) Reference() (analysis.StorageReference, error) {
	var ref analysis.StorageReference
	switch p.Storage {
	case StoragePublic:
		ref = analysis.StorageReference{Kind: analysis.KindPublicURL, URL: p.URL}
		if p.Key != "" || p.Bucket != "" || p.PublicID != "" {
			return ref, fmt.Errorf("%w: storage %q carries foreign fields", ErrInvalidPayload, p.Storage)
		}
	case StorageCloudinary:
		ref = analysis.StorageReference{Kind: analysis.KindCDNID, PublicID: p.PublicID}
		if p.Key != "" || p.Bucket != "" || p.URL != "" {
			return ref, fmt.Errorf("%w: storage %q carries foreign fields", ErrInvalidPayload, p.Storage)
		}
	case StorageS3:
		ref = analysis.StorageReference{Kind: analysis.KindObjectStore, Bucket: p.Bucket, Key: p.Key}
		if p.URL != "" || p.PublicID != "" {
			return ref, fmt.Errorf("%w: storage %q carries foreign fields", ErrInvalidPayload, p.Storage)
		}
	default:
		return ref, fmt.Errorf("%w: unknown storage %q", ErrInvalidPayload, p.Storage)
	}
	if err := ref.Validate(); err != nil {
		return ref, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return ref, nil
}

// Validate checks the payload can be processed.
func (p Payload) Validate() error {
	if p.ReportID == "" {
		return fmt.Errorf("%w: reportId is required", ErrInvalidPayload)
	}
	_, err := p.Reference()
	return err
}

// Job is one claimed or stored queue entry.
type Job struct {
	ID          ID        `json:"id"`
	Payload     Payload   `json:"payload"`
	State       State     `json:"state"`
	Attempt     int       `json:"attempt"`
	MaxAttempts int       `json:"max_attempts"`
	LastError   string    `json:"last_error,omitempty"`
	VisibleAt   time.Time `json:"visible_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ReportID is a shortcut for log lines.
func (j *Job) ReportID() string { return j.Payload.ReportID }

// Stats is a snapshot of queue depth by state. Delayed counts queued jobs
// waiting out a retry backoff.
type Stats struct {
	Queued  int `json:"queued"`
	Delayed int `json:"delayed"`
	Active  int `json:"active"`
	Dead    int `json:"dead"`
}
