package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/bryanwahyu/civic-triage/internal/app"
	"github.com/bryanwahyu/civic-triage/internal/config"
	"github.com/bryanwahyu/civic-triage/internal/infra/httpserver"
	"github.com/bryanwahyu/civic-triage/internal/infra/notify"
	"github.com/bryanwahyu/civic-triage/internal/logging"
	"github.com/bryanwahyu/civic-triage/internal/metrics"
	"github.com/bryanwahyu/civic-triage/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer in.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var hub *notify.Hub
	if cfg.Notify.Hub {
		hub = notify.NewHub(logger)
	}

	// worker ikut jalan di proses API (dev / single node)
	workerDone := make(chan struct{})
	if cfg.Server.EmbedWorker {
		w := in.Worker(in.AnalysisService(ctx, m, hub), m)
		go func() {
			defer close(workerDone)
			if err := w.Run(ctx); err != nil {
				logger.Error("embedded worker stopped", "error", err)
			}
		}()
	} else {
		close(workerDone)
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	sweepStop := make(chan struct{})
	defer close(sweepStop)
	go limiter.Run(sweepStop, time.Minute)

	handler := httpserver.NewRouter(httpserver.Options{
		Jobs:        in.JobService(),
		Hub:         hub,
		Logger:      logger,
		Metrics:     m,
		Gatherer:    reg,
		Checks:      in.Checks,
		APIKeys:     cfg.Auth.APIKeys,
		Limiter:     limiter,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		// no WriteTimeout: the SSE stream is long-lived
		IdleTimeout: 60 * time.Second,
	}

	// run server
	go func() {
		logger.Info("server listening", "addr", addr, "db", cfg.Database.Driver,
			"queue", cfg.Queue.Backend, "embedded_worker", cfg.Server.EmbedWorker)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	logger.Info("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	<-workerDone
}
