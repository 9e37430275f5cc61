package jobs

import (
	"context"
	"fmt"
	"log/slog"

	domain "github.com/bryanwahyu/civic-triage/internal/domain/jobs"
	"github.com/bryanwahyu/civic-triage/internal/domain/reports"
)

// Service is the producer side of the analysis queue plus the admin
// operations on it.
type Service struct {
	Queue   domain.Queue
	Reports reports.Repository
	// DefaultBucket fills s3 payloads whose report carries no bucket.
	DefaultBucket string
	Logger        *slog.Logger
}

// Submit validates and enqueues a payload built by the create-report path.
func (s *Service) Submit(ctx context.Context, p domain.Payload) (*domain.Job, error) {
	if p.Storage == domain.StorageS3 && p.Bucket == "" {
		p.Bucket = s.DefaultBucket
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	job, err := s.Queue.Enqueue(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("enqueue analysis for report %s: %w", p.ReportID, err)
	}
	s.logger().Info("analysis job enqueued", "job_id", job.ID, "report_id", p.ReportID, "storage", p.Storage)
	return job, nil
}

// Reanalyze enqueues a new job for an existing report.
func (s *Service) Reanalyze(ctx context.Context, reportID string) (*domain.Job, error) {
	rep, err := s.Reports.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if rep == nil {
		return nil, reports.ErrReportNotFound
	}
	p, err := BuildPayload(rep, s.DefaultBucket)
	if err != nil {
		return nil, err
	}
	return s.Submit(ctx, p)
}

// BuildPayload derives the job payload from a stored report, preferring the
// public photo URL, then the CDN public id, then the object-store key.
func BuildPayload(rep *reports.Report, defaultBucket string) (domain.Payload, error) {
	switch {
	case rep.PhotoURL != "":
		return domain.Payload{ReportID: rep.ID, Storage: domain.StoragePublic, URL: rep.PhotoURL}, nil
	case rep.PhotoPublicID != "":
		return domain.Payload{ReportID: rep.ID, Storage: domain.StorageCloudinary, PublicID: rep.PhotoPublicID}, nil
	case rep.S3Key != "":
		bucket := rep.S3Bucket
		if bucket == "" {
			bucket = defaultBucket
		}
		return domain.Payload{ReportID: rep.ID, Storage: domain.StorageS3, Key: rep.S3Key, Bucket: bucket}, nil
	}
	return domain.Payload{}, fmt.Errorf("report %s: %w", rep.ID, reports.ErrNoImage)
}

func (s *Service) Get(ctx context.Context, id domain.ID) (*domain.Job, error) {
	return s.Queue.Get(ctx, id)
}

func (s *Service) Stats(ctx context.Context) (domain.Stats, error) {
	return s.Queue.Stats(ctx)
}

func (s *Service) Dead(ctx context.Context, limit int) ([]*domain.Job, error) {
	return s.Queue.Dead(ctx, limit)
}

// Retry re-drives a dead job with a fresh attempt budget.
func (s *Service) Retry(ctx context.Context, id domain.ID) error {
	if err := s.Queue.Retry(ctx, id); err != nil {
		return err
	}
	s.logger().Info("dead job requeued", "job_id", id)
	return nil
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
