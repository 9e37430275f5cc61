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

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bryanwahyu/civic-triage/internal/app"
	"github.com/bryanwahyu/civic-triage/internal/config"
	"github.com/bryanwahyu/civic-triage/internal/logging"
	"github.com/bryanwahyu/civic-triage/internal/metrics"
	"github.com/bryanwahyu/civic-triage/internal/middleware"
)

// The worker consumes the analysis queue. It serves only probes and
// /metrics on the configured port.
func main() {
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr).With("component", "worker")

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

	if cfg.Notify.Hub {
		logger.Warn("notify.hub has no subscribers in a standalone worker; use the webhook or an embedded worker")
	}
	svc := in.AnalysisService(ctx, m, nil)
	for _, b := range svc.Backends {
		logger.Info("inference backend", "source", b.Source())
	}

	mux := chi.NewRouter()
	mux.Get("/healthz", middleware.HealthHandler(in.Checks))
	mux.Get("/livez", middleware.LivenessHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("probe server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("probe server error", "error", err)
		}
	}()

	if err := in.Worker(svc, m).Run(ctx); err != nil {
		logger.Error("worker stopped", "error", err)
	}

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx2)
}
