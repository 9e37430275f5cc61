package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appjobs "github.com/bryanwahyu/civic-triage/internal/application/jobs"
	domain "github.com/bryanwahyu/civic-triage/internal/domain/jobs"
	"github.com/bryanwahyu/civic-triage/internal/domain/reports"
	"github.com/bryanwahyu/civic-triage/internal/infra/notify"
	"github.com/bryanwahyu/civic-triage/internal/metrics"
	"github.com/bryanwahyu/civic-triage/internal/middleware"
)

// maxBodyBytes caps job submission bodies; payloads are references, not images.
const maxBodyBytes = 64 << 10

// Options wires the router. Only Jobs is required.
type Options struct {
	Jobs    *appjobs.Service
	Hub     *notify.Hub // optional SSE stream
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer    prometheus.Gatherer
	Checks      map[string]middleware.HealthChecker
	APIKeys     []string
	Limiter     *middleware.RateLimiter // optional
	CORSOrigins []string
}

type Router struct {
	jobs *appjobs.Service
	log  *slog.Logger
}

func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{jobs: opts.Jobs, log: logger}
	mux := chi.NewRouter()

	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.Logging(logger))
	mux.Use(middleware.Metrics(opts.Metrics))
	if len(opts.CORSOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
	}
	mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	if opts.Limiter != nil {
		mux.Use(middleware.RateLimit(opts.Limiter))
	}

	health := middleware.HealthHandler(opts.Checks)
	mux.Get("/health", health)
	mux.Get("/healthz", health)
	mux.Get("/readyz", middleware.ReadinessHandler)
	mux.Get("/livez", middleware.LivenessHandler)
	if opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/jobs", r.wrap(r.handleSubmit))
		rt.Get("/jobs/stats", r.wrap(r.handleStats))
		rt.Get("/jobs/dead", r.wrap(r.handleDead))
		rt.Get("/jobs/{id}", r.wrap(r.handleGet))
		rt.Post("/jobs/{id}/retry", r.wrap(r.handleRetry))
		rt.Post("/reports/{id}/analysis", r.wrap(r.handleReanalyze))
		if opts.Hub != nil {
			rt.Get("/citizens/{owner}/events", opts.Hub.ServeSSE)
		}
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest marks client input errors that carry no domain sentinel.
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		var br badRequest
		switch {
		case errors.As(err, &br), errors.Is(err, domain.ErrInvalidPayload):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, domain.ErrJobNotFound), errors.Is(err, reports.ErrReportNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, reports.ErrNoImage):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			r.log.Error("request failed", "method", req.Method, "path", req.URL.Path, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// POST /v1/jobs
// Body: {"reportId": "...", "storage": "public|cloudinary|s3", "url"|"publicId"|"key"+"bucket"}
func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) error {
	var p domain.Payload
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return badRequest{fmt.Errorf("decode payload: %w", err)}
	}
	if err := middleware.ValidatePayload(p); err != nil {
		return badRequest{err}
	}
	job, err := r.jobs.Submit(req.Context(), p)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, job)
}

// POST /v1/reports/{id}/analysis
// Re-enqueues analysis for an existing report from its stored photo reference.
func (r *Router) handleReanalyze(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateReportID(id); err != nil {
		return badRequest{err}
	}
	job, err := r.jobs.Reanalyze(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, job)
}

// GET /v1/jobs/stats
func (r *Router) handleStats(w http.ResponseWriter, req *http.Request) error {
	st, err := r.jobs.Stats(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, st)
}

// GET /v1/jobs/dead?limit=20
func (r *Router) handleDead(w http.ResponseWriter, req *http.Request) error {
	list, err := r.jobs.Dead(req.Context(), middleware.ValidateLimit(req.URL.Query().Get("limit")))
	if err != nil {
		return err
	}
	if list == nil {
		list = []*domain.Job{}
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/jobs/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateJobID(id); err != nil {
		return badRequest{err}
	}
	job, err := r.jobs.Get(req.Context(), domain.ID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, job)
}

// POST /v1/jobs/{id}/retry
func (r *Router) handleRetry(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateJobID(id); err != nil {
		return badRequest{err}
	}
	if err := r.jobs.Retry(req.Context(), domain.ID(id)); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"id": id, "state": domain.StateQueued})
}
