package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ignite/outreach-crm/internal/api"
	"github.com/ignite/outreach-crm/internal/app"
	"github.com/ignite/outreach-crm/internal/config"
	"github.com/ignite/outreach-crm/internal/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	metricsAddr := flag.String("metrics-addr", ":9091", "address for /health and /metrics")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("[Worker] Failed to load config", "error", err)
		os.Exit(1)
	}
	app.ConfigureLogging(cfg.Log)
	defer logger.Sync()

	logger.Info("[Worker] Starting outreach worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("[Worker] Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	r := chi.NewRouter()
	r.Get("/health", api.NewHealthChecker(a.DB, a.Redis).HandleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/jobs", func(w http.ResponseWriter, _ *http.Request) {
		api.WriteJobStatus(w, a.Scheduler.Status())
	})
	srv := &http.Server{Addr: *metricsAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("[Worker] Metrics server error", "error", err)
		}
	}()

	a.Scheduler.Start()
	for name, st := range a.Scheduler.Status() {
		logger.Info("[Worker] Job scheduled", "job", name, "schedule", st.Schedule, "next_run", st.NextRun)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("[Worker] Shutting down; waiting for running jobs")
	stopped := a.Scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer shutdownCancel()
	select {
	case <-stopped.Done():
	case <-shutdownCtx.Done():
		logger.Warn("[Worker] Jobs still executing at shutdown deadline")
	}
	_ = srv.Shutdown(shutdownCtx)
	logger.Info("[Worker] Stopped")
}
