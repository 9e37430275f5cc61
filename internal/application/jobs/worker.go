package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	domain "github.com/bryanwahyu/civic-triage/internal/domain/jobs"
	"github.com/bryanwahyu/civic-triage/internal/metrics"
)

// Handler processes one claimed job. Returning nil completes it.
type Handler interface {
	Handle(ctx context.Context, job *domain.Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *domain.Job) error

func (f HandlerFunc) Handle(ctx context.Context, job *domain.Job) error { return f(ctx, job) }

// Worker pulls jobs from the queue and runs them with bounded concurrency.
type Worker struct {
	Queue   domain.Queue
	Handler Handler
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	Concurrency  int           // default 5
	PollInterval time.Duration // default 1s
	// JobTimeout bounds one handler run; keep it under the queue's
	// visibility window so a slow job is not redelivered while running.
	JobTimeout    time.Duration // default 150s
	StatsInterval time.Duration // default 15s
}

func (w *Worker) defaults() {
	if w.Concurrency <= 0 {
		w.Concurrency = 5
	}
	if w.PollInterval <= 0 {
		w.PollInterval = time.Second
	}
	if w.JobTimeout <= 0 {
		w.JobTimeout = 150 * time.Second
	}
	if w.StatsInterval <= 0 {
		w.StatsInterval = 15 * time.Second
	}
	if w.Logger == nil {
		w.Logger = slog.Default()
	}
}

// Run polls until ctx is cancelled, then waits for in-flight jobs.
func (w *Worker) Run(ctx context.Context) error {
	w.defaults()
	log := w.Logger
	log.Info("analysis worker started",
		"concurrency", w.Concurrency, "poll", w.PollInterval, "job_timeout", w.JobTimeout)

	sem := make(chan struct{}, w.Concurrency)
	var wg sync.WaitGroup

	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()
	statsTicker := time.NewTicker(w.StatsInterval)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("analysis worker stopping, draining in-flight jobs")
			wg.Wait()
			log.Info("analysis worker stopped")
			return nil
		case <-statsTicker.C:
			w.reportDepth(ctx)
		case <-ticker.C:
			w.fill(ctx, sem, &wg)
		}
	}
}

// fill claims jobs while there are free slots.
func (w *Worker) fill(ctx context.Context, sem chan struct{}, wg *sync.WaitGroup) {
	for {
		select {
		case sem <- struct{}{}:
		default:
			return // all slots busy
		}

		job, err := w.Queue.Claim(ctx)
		if err != nil || job == nil {
			<-sem
			if err != nil && ctx.Err() == nil {
				w.Logger.Warn("claim failed", "error", err)
			}
			return
		}

		wg.Add(1)
		go func(j *domain.Job) {
			defer wg.Done()
			defer func() { <-sem }()
			w.Process(ctx, j)
		}(job)
	}
}

// Process runs the handler for one claimed job and settles it in the queue.
func (w *Worker) Process(ctx context.Context, job *domain.Job) {
	w.defaults()
	log := w.Logger.With("job_id", job.ID, "report_id", job.ReportID(), "attempt", job.Attempt)

	jctx, cancel := context.WithTimeout(ctx, w.JobTimeout)
	err := w.run(jctx, job)
	cancel()

	// settle with a fresh context so shutdown does not strand the job
	sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer scancel()

	if err == nil {
		if cerr := w.Queue.Complete(sctx, job); cerr != nil {
			log.Error("complete job failed", "error", cerr)
			return
		}
		w.Metrics.JobHandled("completed")
		log.Info("job completed")
		return
	}

	state, ferr := w.Queue.Fail(sctx, job, err)
	if ferr != nil {
		log.Error("fail job failed", "error", ferr, "cause", err)
		return
	}
	if state == domain.StateDead {
		w.Metrics.JobHandled("dead")
		log.Error("job moved to dead set", "error", err, "max_attempts", job.MaxAttempts)
		return
	}
	w.Metrics.JobHandled("retried")
	log.Warn("job failed, will retry", "error", err)
}

// run calls the handler, turning a panic into an error.
func (w *Worker) run(ctx context.Context, job *domain.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	err = w.Handler.Handle(ctx, job)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("job timed out after %s: %w", w.JobTimeout, err)
	}
	return err
}

func (w *Worker) reportDepth(ctx context.Context) {
	if w.Metrics == nil {
		return
	}
	st, err := w.Queue.Stats(ctx)
	if err != nil {
		w.Logger.Debug("queue stats failed", "error", err)
		return
	}
	w.Metrics.QueueDepth(st)
}
