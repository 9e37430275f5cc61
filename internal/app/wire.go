// Package app assembles the services from config. The api, worker and
// jobctl binaries share it so they agree on tables, queue name and backends.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bryanwahyu/civic-triage/internal/application"
	appanalysis "github.com/bryanwahyu/civic-triage/internal/application/analysis"
	appjobs "github.com/bryanwahyu/civic-triage/internal/application/jobs"
	"github.com/bryanwahyu/civic-triage/internal/config"
	domain "github.com/bryanwahyu/civic-triage/internal/domain/analysis"
	"github.com/bryanwahyu/civic-triage/internal/domain/jobs"
	"github.com/bryanwahyu/civic-triage/internal/domain/reports"
	"github.com/bryanwahyu/civic-triage/internal/infra/ai/openai"
	"github.com/bryanwahyu/civic-triage/internal/infra/blob"
	"github.com/bryanwahyu/civic-triage/internal/infra/cache"
	mysqlp "github.com/bryanwahyu/civic-triage/internal/infra/db/mysql"
	"github.com/bryanwahyu/civic-triage/internal/infra/db/postgres"
	"github.com/bryanwahyu/civic-triage/internal/infra/db/sqlite"
	"github.com/bryanwahyu/civic-triage/internal/infra/inference/hosted"
	"github.com/bryanwahyu/civic-triage/internal/infra/inference/local"
	"github.com/bryanwahyu/civic-triage/internal/infra/inference/modelsvc"
	"github.com/bryanwahyu/civic-triage/internal/infra/notify"
	"github.com/bryanwahyu/civic-triage/internal/infra/queue"
	"github.com/bryanwahyu/civic-triage/internal/infra/storage"
	"github.com/bryanwahyu/civic-triage/internal/metrics"
	"github.com/bryanwahyu/civic-triage/internal/middleware"
)

// routeSeeder is implemented by the database route tables.
type routeSeeder interface {
	reports.Router
	Seed(ctx context.Context, routes map[string]reports.Route) error
}

// Infra holds the shared connections. Close releases them.
type Infra struct {
	Cfg     *config.Config
	Logger  *slog.Logger
	DB      *sql.DB
	Dialect queue.Dialect
	Reports reports.Repository
	Routes  reports.Router
	Queue   jobs.Queue
	Store   *storage.Store // nil when minio is not configured
	Checks  map[string]middleware.HealthChecker

	closers []func() error
}

// Open connects the database, picks the repositories and builds the queue.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Infra, error) {
	in := &Infra{Cfg: cfg, Logger: logger, Checks: map[string]middleware.HealthChecker{}}
	if err := in.openDB(ctx); err != nil {
		in.Close()
		return nil, err
	}
	if err := in.openRoutes(ctx); err != nil {
		in.Close()
		return nil, err
	}
	if err := in.openQueue(ctx); err != nil {
		in.Close()
		return nil, err
	}
	if cfg.MinioEnabled() {
		store, err := storage.New(ctx, cfg.Minio.Endpoint, cfg.Minio.Region, cfg.Minio.BucketName,
			cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.UseSSL)
		if err != nil {
			in.Close()
			return nil, fmt.Errorf("minio init: %w", err)
		}
		in.Store = store
		in.Checks["minio"] = middleware.CheckFunc(store.Ping)
	}
	return in, nil
}

func (in *Infra) openDB(ctx context.Context) error {
	cfg := in.Cfg
	var (
		db  *sql.DB
		err error
	)
	switch cfg.Database.Driver {
	case "postgres":
		db, err = postgres.Connect(ctx, cfg.PostgresDSN())
		in.Dialect = queue.Postgres
	case "sqlite":
		db, err = sqlite.Connect(ctx, cfg.Database.Path)
		in.Dialect = queue.SQLite
	default:
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		in.Dialect = queue.MySQL
	}
	if err != nil {
		return fmt.Errorf("%s connect: %w", cfg.Database.Driver, err)
	}
	in.DB = db
	in.closers = append(in.closers, db.Close)
	in.Checks["database"] = &middleware.DatabaseHealthChecker{DB: db}

	if cfg.Database.AutoMigrate {
		if in.Dialect == queue.Postgres {
			err = postgres.EnsureSchema(ctx, db)
		} else {
			// the mysql DDL is portable to sqlite
			err = mysqlp.EnsureSchema(ctx, db)
		}
		if err != nil {
			return err
		}
	}
	if in.Dialect == queue.Postgres {
		in.Reports = postgres.NewReportRepository(db)
	} else {
		in.Reports = mysqlp.NewReportRepository(db)
	}
	return nil
}

func (in *Infra) openRoutes(ctx context.Context) error {
	cfg := in.Cfg
	if cfg.Routing.Source != "database" {
		in.Routes = reports.NewStaticRouter(cfg.Routing.Routes)
		return nil
	}
	var rr routeSeeder
	if in.Dialect == queue.Postgres {
		rr = postgres.NewRouteRepository(in.DB)
	} else {
		rr = mysqlp.NewRouteRepository(in.DB)
	}
	if cfg.Database.AutoMigrate {
		if err := rr.Seed(ctx, cfg.Routing.Routes); err != nil {
			return fmt.Errorf("seed department routes: %w", err)
		}
	}
	in.Routes = rr
	return nil
}

func (in *Infra) openQueue(ctx context.Context) error {
	q := in.Cfg.Queue
	opts := queue.Options{
		Name:        q.Name,
		MaxAttempts: q.MaxAttempts,
		Backoff:     jobs.Backoff{Base: q.BackoffBase, Max: q.BackoffMax},
		Visibility:  q.Visibility,
		Clock:       application.SystemClock{},
	}
	if q.Backend == "memory" {
		in.Logger.Warn("using in-memory queue, jobs are lost on restart")
		in.Queue = queue.NewMemory(opts)
		return nil
	}
	sq := queue.NewSQL(in.DB, in.Dialect, opts)
	if in.Cfg.Database.AutoMigrate {
		if err := sq.EnsureTable(ctx); err != nil {
			return err
		}
	}
	in.Queue = sq
	in.Checks["queue"] = &middleware.QueueHealthChecker{Queue: sq}
	return nil
}

// Close releases connections in reverse order.
func (in *Infra) Close() error {
	var errs []error
	for i := len(in.closers) - 1; i >= 0; i-- {
		errs = append(errs, in.closers[i]())
	}
	in.closers = nil
	return errors.Join(errs...)
}

// JobService is the producer/admin side of the queue.
func (in *Infra) JobService() *appjobs.Service {
	bucket := in.Cfg.Minio.BucketName
	if in.Store != nil {
		bucket = in.Store.Bucket()
	}
	return &appjobs.Service{
		Queue:         in.Queue,
		Reports:       in.Reports,
		DefaultBucket: bucket,
		Logger:        in.Logger,
	}
}

// Backends returns the inference chain in priority order: local model,
// internal model service, external API.
func Backends(cfg *config.Config, hc *http.Client) []domain.Backend {
	inf := cfg.Inference
	var external domain.Backend
	if inf.External.Provider == "openai" {
		c := openai.NewClient(inf.External.Token, inf.External.Model, inf.External.BaseURL, inf.External.RPS)
		c.Timeout = inf.External.Timeout
		external = c
	} else {
		external = hosted.New(hosted.Config{
			BaseURL: inf.External.BaseURL,
			Model:   inf.External.Model,
			Token:   inf.External.Token,
			Timeout: inf.External.Timeout,
			RPS:     inf.External.RPS,
			Burst:   inf.External.Burst,
		}, hc)
	}
	return []domain.Backend{
		local.New(inf.Local.ModelPath),
		modelsvc.New(inf.Service.URL, hc, inf.Service.Timeout),
		external,
	}
}

// Cache opens the configured result cache; nil means caching is off.
// Redis being down never blocks startup and only degrades /healthz.
func (in *Infra) Cache(ctx context.Context) domain.Cache {
	c := in.Cfg.Cache
	switch c.Backend {
	case "redis":
		rdb := cache.Dial(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB, in.Logger)
		in.closers = append(in.closers, rdb.Close)
		rc := cache.NewRedis(rdb, application.SystemClock{})
		in.Checks["redis"] = middleware.Optional(middleware.CheckFunc(rc.Ping))
		return rc
	case "memory":
		return cache.NewMemory(application.SystemClock{})
	}
	return nil
}

// Notifier fans out to the webhook and the in-process hub (either may be
// absent) and always logs.
func Notifier(cfg *config.Config, logger *slog.Logger, hub *notify.Hub) reports.Notifier {
	multi := notify.Multi{notify.Log{Logger: logger}}
	if cfg.Notify.WebhookURL != "" {
		multi = append(multi, &notify.Webhook{URL: cfg.Notify.WebhookURL, Secret: cfg.Notify.WebhookSecret})
	}
	if hub != nil {
		multi = append(multi, hub)
	}
	return multi
}

// AnalysisService builds the consumer side.
func (in *Infra) AnalysisService(ctx context.Context, m *metrics.Metrics, hub *notify.Hub) *appanalysis.Service {
	cfg := in.Cfg
	svc := &appanalysis.Service{
		Backends: Backends(cfg, nil),
		Reports:  in.Reports,
		Routes:   in.Routes,
		Notifier: Notifier(cfg, in.Logger, hub),
		Clock:    application.SystemClock{},
		Logger:   in.Logger,
		Metrics:  m,

		CacheTTL:              cfg.Cache.TTL,
		MinOverrideConfidence: cfg.Analysis.MinOverrideConfidence,
		SaveReserve:           cfg.Analysis.SaveReserve,
	}

	f := &blob.Fetcher{
		CDNBaseURL:    cfg.Cloudinary.BaseURL,
		DefaultBucket: cfg.Minio.BucketName,
		Timeout:       cfg.Fetch.Timeout,
		MaxBytes:      cfg.Fetch.MaxBytes,
	}
	if f.CDNBaseURL == "" {
		f.CDNBaseURL = blob.CloudinaryBase(cfg.Cloudinary.CloudName)
	}
	if in.Store != nil {
		f.Objects = in.Store
	}
	svc.Fetcher = f

	if c := in.Cache(ctx); c != nil {
		svc.Cache = c
	}
	if url := cfg.Inference.Service.URL; url != "" {
		in.Checks["model_service"] = middleware.Optional(middleware.CheckFunc(modelsvc.New(url, nil, 5*time.Second).Health))
	}
	return svc
}

// Worker wraps svc in the queue consumer.
func (in *Infra) Worker(svc *appanalysis.Service, m *metrics.Metrics) *appjobs.Worker {
	q := in.Cfg.Queue
	return &appjobs.Worker{
		Queue:        in.Queue,
		Handler:      svc,
		Logger:       in.Logger,
		Metrics:      m,
		Concurrency:  q.Concurrency,
		PollInterval: q.PollInterval,
		JobTimeout:   q.JobTimeout,
	}
}
