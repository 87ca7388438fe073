package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/outreach-crm/internal/api"
	"github.com/ignite/outreach-crm/internal/app"
	"github.com/ignite/outreach-crm/internal/auth"
	"github.com/ignite/outreach-crm/internal/config"
	"github.com/ignite/outreach-crm/internal/pkg/logger"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %w", port, addr, err)
	}
	return ln.Close()
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/config.yaml"
}

func main() {
	cfg, err := config.LoadFromEnv(configPath())
	if err != nil {
		logger.Error("[Server] Failed to load config", "error", err)
		os.Exit(1)
	}
	app.ConfigureLogging(cfg.Log)
	defer logger.Sync()

	host, port := cfg.Server.GetHost(), cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		logger.Error("[Server] Pre-flight check failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("[Server] Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	opts := api.RouteOptions{
		APIKey: cfg.Auth.APIKey,
		Health: api.NewHealthChecker(a.DB, a.Redis),
	}
	if cfg.Auth.Enabled && cfg.Auth.GoogleClientID != "" {
		baseURL := fmt.Sprintf("http://%s:%d", host, port)
		opts.AuthManager = auth.NewAuthManager(cfg.Auth, baseURL)
		opts.AuthManager.CleanupExpiredSessions(ctx)
		logger.Info("[Server] Google authentication enabled", "allowed_domain", cfg.Auth.AllowedDomain)
	} else if cfg.Auth.APIKey == "" {
		logger.Warn("[Server] Authentication disabled; /api is open")
	}

	handlers := api.NewHandlers(a.Service, a.Scheduler, a.Scanner)
	server := api.NewServer(cfg.Server, handlers, opts)

	if cfg.Server.RunScheduler {
		a.Scheduler.Start()
		logger.Info("[Server] In-process scheduler started")
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		logger.Info("[Server] Listening", "addr", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("[Server] Server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("[Server] Shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("[Server] Shutdown error", "error", err)
	}
	if cfg.Server.RunScheduler {
		select {
		case <-a.Scheduler.Stop().Done():
		case <-shutdownCtx.Done():
			logger.Warn("[Server] Jobs still executing at shutdown deadline")
		}
	}
	logger.Info("[Server] Stopped")
}
