package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bryanwahyu/civic-triage/internal/application"
	domain "github.com/bryanwahyu/civic-triage/internal/domain/analysis"
	"github.com/bryanwahyu/civic-triage/internal/domain/jobs"
	"github.com/bryanwahyu/civic-triage/internal/domain/reports"
	"github.com/bryanwahyu/civic-triage/internal/metrics"
)

const (
	// DefaultCacheTTL applies when Service.CacheTTL is zero.
	DefaultCacheTTL = time.Hour
	// DefaultSaveReserve applies when Service.SaveReserve is zero.
	DefaultSaveReserve = 10 * time.Second
)

// Service runs the image analysis for one job: fetch, cache lookup, backend
// chain, normalization, report update and owner notification.
// Service is safe for concurrent use once constructed.
type Service struct {
	Fetcher  domain.BlobFetcher
	Cache    domain.Cache // optional
	Backends []domain.Backend
	Reports  reports.Repository
	Routes   reports.Router
	Notifier reports.Notifier // optional
	Clock    application.Clock
	Logger   *slog.Logger
	Metrics  *metrics.Metrics

	CacheTTL time.Duration
	// MinOverrideConfidence gates category overrides on top of the
	// "label maps to a known category" rule. Zero disables the gate.
	MinOverrideConfidence float64
	// SaveReserve is held back from the job deadline for Apply and notify;
	// inference gets the rest. At most half the remaining time is reserved.
	SaveReserve time.Duration
}

// Handle processes one queue job. A returned error sends the job back to the
// queue's retry path; inference failures never do.
func (s *Service) Handle(ctx context.Context, job *jobs.Job) error {
	log := s.logger().With("job_id", job.ID, "report_id", job.ReportID(), "attempt", job.Attempt)

	ref, err := job.Payload.Reference()
	if err != nil {
		return jobs.Permanent(err)
	}

	img, err := s.Fetcher.Fetch(ctx, ref)
	if err != nil {
		return err
	}

	ictx, cancel := s.inferenceContext(ctx)
	res := s.Analyze(ictx, img, log)
	cancel()
	log.Info("image analyzed",
		"label", res.Label, "severity", res.Severity, "confidence", res.Confidence, "source", res.Source)

	rep, err := s.Apply(ctx, job.ReportID(), res, log)
	if err != nil {
		return err
	}

	s.notify(ctx, rep, log)
	return nil
}

// inferenceContext ends inference early enough that the report can still be
// loaded, saved and notified before ctx expires.
func (s *Service) inferenceContext(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	left := time.Until(deadline)
	reserve := s.SaveReserve
	if reserve <= 0 {
		reserve = DefaultSaveReserve
	}
	if reserve > left/2 {
		reserve = left / 2
	}
	return context.WithTimeout(ctx, left-reserve)
}

// Analyze returns the normalized result for img, from cache when possible.
// It never fails; total backend outage yields the fallback result.
func (s *Service) Analyze(ctx context.Context, img []byte, log *slog.Logger) domain.Result {
	if log == nil {
		log = s.logger()
	}
	key := domain.HashBytes(img)

	if cached := s.cacheGet(ctx, key, log); cached != nil {
		return cached.WithSource(domain.SourceCache)
	}

	res := s.Infer(ctx, img, log)
	if res.Source != domain.SourceFallback {
		s.cacheSet(ctx, key, res, log)
	}
	return res
}

// Infer tries each backend in priority order and normalizes the first answer.
func (s *Service) Infer(ctx context.Context, img []byte, log *slog.Logger) domain.Result {
	if log == nil {
		log = s.logger()
	}
	for _, b := range s.Backends {
		src := b.Source()
		start := time.Now()
		raw, err := b.Predict(ctx, img)
		took := time.Since(start)

		switch {
		case err == nil:
			s.Metrics.BackendCall(string(src), "ok", took)
			res := domain.Normalize(raw).WithSource(src)
			if _, ok := raw.(domain.Unrecognized); ok {
				log.Warn("backend output not recognized, using neutral result", "backend", src)
			}
			return res
		case errors.Is(err, domain.ErrBackendUnavailable):
			s.Metrics.BackendCall(string(src), "unavailable", took)
			log.Debug("backend unavailable, skipping", "backend", src)
		default:
			s.Metrics.BackendCall(string(src), "error", took)
			log.Warn("backend failed, falling through", "backend", src, "error", err, "took", took)
		}
		if ctx.Err() != nil {
			break
		}
	}
	log.Warn("no inference backend answered, using fallback result")
	return domain.Fallback()
}

// Apply merges res into the report and saves it.
func (s *Service) Apply(ctx context.Context, reportID string, res domain.Result, log *slog.Logger) (*reports.Report, error) {
	if log == nil {
		log = s.logger()
	}
	rep, err := s.Reports.Get(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("load report %s: %w", reportID, err)
	}
	if rep == nil {
		return nil, fmt.Errorf("load report %s: %w", reportID, reports.ErrReportNotFound)
	}

	mapped := domain.MapCategory(res.Label)
	if mapped != domain.NoOverride && string(mapped) != rep.Category && res.Confidence >= s.MinOverrideConfidence {
		route, ok, err := s.Routes.Route(ctx, string(mapped))
		if err != nil {
			return nil, fmt.Errorf("route category %q: %w", mapped, err)
		}
		log.Info("report re-categorized",
			"from", rep.Category, "to", mapped, "department", route.Department)
		rep.Category = string(mapped)
		if ok {
			rep.AssignedDepartment = route.Department
			if route.Priority != "" {
				rep.Priority = route.Priority
			}
		} else {
			rep.AssignedDepartment = reports.Unassigned
		}
	}

	now := s.clock().Now()
	tags := res.Tags
	if len(tags) == 0 {
		tags = []string{res.Label}
	}
	rep.AITags = append([]string(nil), tags...)
	rep.ML = &reports.MLAnalysis{
		Label:      res.Label,
		Severity:   res.Severity,
		Confidence: res.Confidence,
		Source:     res.Source,
		Category:   string(mapped),
		AnalyzedAt: now,
	}
	rep.UpdatedAt = now

	if err := s.Reports.SaveAnalysis(ctx, rep); err != nil {
		return nil, fmt.Errorf("save report %s: %w", reportID, err)
	}
	return rep, nil
}

func (s *Service) notify(ctx context.Context, rep *reports.Report, log *slog.Logger) {
	if s.Notifier == nil || rep.OwnerID == "" {
		return
	}
	n := reports.Notification{
		OwnerID:  rep.OwnerID,
		ReportID: rep.ID,
		Title:    "Report Analyzed",
		Message:  fmt.Sprintf("Your report %q was reviewed: category %s, status %s.", rep.Title, rep.Category, rep.Status),
		Report:   rep,
	}
	if err := s.Notifier.Notify(ctx, n); err != nil {
		s.Metrics.Notification("failed")
		log.Warn("notification failed", "owner_id", rep.OwnerID, "error", err)
		return
	}
	s.Metrics.Notification("sent")
}

func (s *Service) cacheGet(ctx context.Context, key string, log *slog.Logger) *domain.Result {
	if s.Cache == nil {
		return nil
	}
	res, err := s.Cache.Get(ctx, key)
	switch {
	case err != nil:
		s.Metrics.CacheLookup("error")
		log.Warn("cache get failed, treating as miss", "error", err)
		return nil
	case res == nil:
		s.Metrics.CacheLookup("miss")
		return nil
	}
	s.Metrics.CacheLookup("hit")
	return res
}

func (s *Service) cacheSet(ctx context.Context, key string, res domain.Result, log *slog.Logger) {
	if s.Cache == nil {
		return
	}
	ttl := s.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if err := s.Cache.Set(ctx, key, res, ttl); err != nil {
		log.Warn("cache set failed", "error", err)
	}
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Service) clock() application.Clock {
	if s.Clock != nil {
		return s.Clock
	}
	return application.SystemClock{}
}
