// Package app assembles the CRM components from configuration. cmd/server,
// cmd/worker and cmd/crmctl share it so every binary wires the same graph.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-crm/internal/brain"
	"github.com/ignite/outreach-crm/internal/config"
	"github.com/ignite/outreach-crm/internal/generator"
	"github.com/ignite/outreach-crm/internal/mailer"
	"github.com/ignite/outreach-crm/internal/metrics"
	"github.com/ignite/outreach-crm/internal/pkg/distlock"
	"github.com/ignite/outreach-crm/internal/pkg/logger"
	"github.com/ignite/outreach-crm/internal/repository/memory"
	"github.com/ignite/outreach-crm/internal/repository/postgres"
	"github.com/ignite/outreach-crm/internal/scanner"
	"github.com/ignite/outreach-crm/internal/scheduler"
	"github.com/ignite/outreach-crm/internal/search"
	"github.com/ignite/outreach-crm/internal/service/crm"
	"github.com/ignite/outreach-crm/internal/storage"
)

// App holds the wired components. Brain and Mailer are nil when their
// provider is not configured; the matching jobs are then not registered.
type App struct {
	Config    *config.Config
	DB        *sql.DB
	Redis     *redis.Client
	Gateway   *crm.Gateway
	Service   *crm.Service
	Locks     *distlock.Provider
	Metrics   *metrics.Metrics
	Scanner   *scanner.Scanner
	Brain     *brain.Brain
	Mailer    *mailer.Mailer
	Scheduler *scheduler.Scheduler
}

// ConfigureLogging applies the log section to the package logger.
func ConfigureLogging(cfg config.LogConfig) {
	logger.Configure(cfg.Format, logger.ParseLevel(cfg.Level), cfg.RedactPII)
}

// New connects to the configured stores and builds every component.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Metrics: metrics.Default()}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	a.Service = crm.NewService(a.Gateway)
	a.openRedis(ctx)
	a.Locks = distlock.NewProvider(a.Redis, a.DB)
	logger.Info("[App] Lock backend selected", "backend", a.Locks.Backend())

	loc := config.Location(cfg.Scanner.Timezone)

	source, err := search.New(search.Options{
		Provider:   cfg.Search.Provider,
		APIKey:     cfg.Search.APIKey,
		BaseURL:    cfg.Search.BaseURL,
		MaxResults: cfg.Search.MaxResults,
		Timeout:    time.Duration(cfg.Search.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		logger.Warn("[App] News search disabled; only birthdays will be scanned", "error", err)
		source = nil
	}
	a.Scanner = scanner.New(a.Gateway, source, scanner.Options{
		AccountLimit: cfg.Scanner.AccountLimit,
		PeopleLimit:  cfg.Scanner.PeopleLimit,
		RecentWindow: cfg.Scanner.RecentWindow,
		CallDelay:    cfg.Scanner.CallDelay(),
		Location:     loc,
		Metrics:      a.Metrics,
	})

	if err := a.buildBrain(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildMailer(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildScheduler(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	db := a.Config.Database
	switch db.Driver {
	case "memory":
		logger.Warn("[App] Using in-memory store; data is lost on exit")
		a.Gateway = memory.NewGateway()
		return nil
	case "postgres", "":
	default:
		return fmt.Errorf("unknown database driver %q", db.Driver)
	}
	if db.URL == "" {
		return errors.New("database.url (or DATABASE_URL) is required for the postgres driver")
	}

	conn, err := sql.Open("postgres", db.URL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(db.MaxOpenConns)
	conn.SetMaxIdleConns(db.MaxIdleConns)
	conn.SetConnMaxLifetime(db.ConnMaxLifetime())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return fmt.Errorf("ping database: %w", err)
	}
	logger.Info("[App] Connected to database")
	a.DB = conn
	a.Gateway = postgres.NewGateway(conn)
	return nil
}

// openRedis is best-effort: without Redis, locks fall back to Postgres
// advisory locks or process-local locks.
func (a *App) openRedis(ctx context.Context) {
	if a.Config.Redis.URL == "" {
		return
	}
	opts, err := redis.ParseURL(a.Config.Redis.URL)
	if err != nil {
		logger.Warn("[App] Invalid redis url, continuing without redis", "error", err)
		return
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("[App] Redis unreachable, continuing without redis", "error", err)
		client.Close()
		return
	}
	logger.Info("[App] Connected to redis")
	a.Redis = client
}

func (a *App) buildBrain(ctx context.Context) error {
	gc := a.Config.Generator
	provider, err := generator.NewProvider(ctx, generator.ProviderOptions{
		Provider:  gc.Provider,
		APIKey:    gc.APIKey,
		Model:     gc.Model,
		BaseURL:   gc.BaseURL,
		Region:    gc.Region,
		MaxTokens: gc.MaxTokens,
		Timeout:   time.Duration(gc.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		logger.Warn("[App] Generator disabled; trigger processing jobs not registered", "error", err)
		return nil
	}

	sc := a.Config.Storage
	store, err := storage.New(ctx, storage.Options{
		Type:      sc.Type,
		LocalPath: sc.LocalPath,
		Bucket:    sc.S3Bucket,
		Region:    sc.AWSRegion,
		Prefix:    sc.S3Prefix,
	})
	if err != nil {
		return fmt.Errorf("transcript store: %w", err)
	}

	opts := []generator.Option{generator.WithStore(store)}
	if gc.PromptTemplate != "" {
		tpl, err := generator.LoadTemplate(gc.PromptTemplate)
		if err != nil {
			return fmt.Errorf("prompt template: %w", err)
		}
		opts = append(opts, tpl)
	}
	gen := generator.New(provider, opts...)

	a.Brain = brain.New(a.Gateway, gen, a.Locks,
		brain.WithClaimTTL(time.Duration(gc.ClaimTTLSeconds)*time.Second),
		brain.WithMetrics(a.Metrics),
	)
	logger.Info("[App] Generator ready", "provider", provider.Name(), "transcripts", sc.Type)
	return nil
}

func (a *App) buildMailer(ctx context.Context) error {
	mc := a.Config.Mail
	var transport mailer.Transport
	switch mc.Transport {
	case "none":
		logger.Warn("[App] Mail transport disabled; send_pending not registered")
		return nil
	case "smtp", "":
		if mc.SMTPHost == "" {
			logger.Warn("[App] SMTP host not configured; send_pending not registered")
			return nil
		}
		transport = &mailer.SMTPTransport{
			Host:     mc.SMTPHost,
			Port:     mc.SMTPPort,
			Username: mc.SMTPUsername,
			Password: mc.SMTPPassword,
			From:     mc.FromEmail,
			FromName: mc.FromName,
		}
	case "ses":
		t, err := mailer.NewSESTransport(ctx, mc.SESRegion, mc.SESAccessKey, mc.SESSecretKey, mc.FromEmail, mc.FromName)
		if err != nil {
			return fmt.Errorf("ses transport: %w", err)
		}
		transport = t
	default:
		return fmt.Errorf("unknown mail transport %q", mc.Transport)
	}

	a.Mailer = mailer.New(a.Gateway, transport,
		mailer.WithSignature(mc.Signature),
		mailer.WithSendDelay(mc.SendDelay()),
		mailer.WithMetrics(a.Metrics),
	)
	logger.Info("[App] Mailer ready", "transport", mc.Transport)
	return nil
}

func (a *App) buildScheduler() error {
	sc := a.Config.Scheduler
	a.Scheduler = scheduler.New(a.Locks,
		scheduler.WithLockTTL(time.Duration(sc.LockTTLMinutes)*time.Minute),
		scheduler.WithMetrics(a.Metrics),
		scheduler.WithLocation(config.Location(sc.Timezone)),
	)

	reg := func(name, spec string, fn scheduler.JobFunc) error {
		if err := a.Scheduler.Register(name, spec, fn); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
		return nil
	}

	if err := reg(scheduler.JobScanEvents, sc.ScanEvents, func(ctx context.Context) (any, error) {
		return a.Scanner.RunFullScan(ctx)
	}); err != nil {
		return err
	}
	if a.Brain != nil {
		process := func(ctx context.Context) (any, error) { return a.Brain.ProcessTriggers(ctx) }
		if err := reg(scheduler.JobProcessTriggers, sc.ProcessTriggers, process); err != nil {
			return err
		}
		if err := reg(scheduler.JobProcessLeftovers, sc.ProcessLeftovers, process); err != nil {
			return err
		}
	}
	if a.Mailer != nil {
		if err := reg(scheduler.JobSendPending, sc.SendPending, func(ctx context.Context) (any, error) {
			return a.Mailer.SendPending(ctx)
		}); err != nil {
			return err
		}
	}
	logger.Info("[App] Jobs registered", "jobs", a.Scheduler.Jobs())
	return nil
}

// Close releases database and Redis connections.
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
