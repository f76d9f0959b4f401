package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/groundwork-backend/internal/data/db"
	"github.com/yungbote/groundwork-backend/internal/data/repos"
	httpx "github.com/yungbote/groundwork-backend/internal/http"
	"github.com/yungbote/groundwork-backend/internal/observability"
	"github.com/yungbote/groundwork-backend/internal/platform/envutil"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    repos.Set
	Clients  Clients
	Services Services
	Metrics  *observability.Metrics
	Server   *httpx.Server

	pg           *db.PostgresService
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

type options struct {
	log        *logger.Logger
	withoutAPI bool
}

type Option func(*options)

// WithLogger reuses an existing logger instead of building one from LOG_MODE.
func WithLogger(log *logger.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithoutHTTP skips handler and router wiring; used by the operator CLI.
func WithoutHTTP() Option {
	return func(o *options) { o.withoutAPI = true }
}

func New(ctx context.Context, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	log := o.log
	if log == nil {
		l, err := logger.New(envutil.String("LOG_MODE", "development"))
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		log = l
	}

	log.Info("Loading environment variables...")
	cfg, err := LoadConfig(log)
	if err != nil {
		return nil, err
	}

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "groundwork-" + string(cfg.RunMode),
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	metrics := observability.Init(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	theDB := pg.DB()
	if cfg.AutoMigrate {
		if err := db.AutoMigrateAll(theDB); err != nil {
			_ = pg.Close()
			log.Sync()
			return nil, fmt.Errorf("postgres automigrate: %w", err)
		}
		if err := db.EnsureCodingIndexes(theDB); err != nil {
			_ = pg.Close()
			log.Sync()
			return nil, fmt.Errorf("postgres indexes: %w", err)
		}
	}

	clients, err := wireClients(log)
	if err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	reposet := repos.NewSet(theDB, log)

	serviceset, err := wireServices(ctx, theDB, log, cfg, reposet, clients, metrics)
	if err != nil {
		clients.Close()
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	a := &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		Metrics:      metrics,
		pg:           pg,
		otelShutdown: otelShutdown,
	}
	if !o.withoutAPI && cfg.RunMode.ServesHTTP() {
		handlers := wireHandlers(log, theDB, serviceset)
		a.Server = wireServer(log, handlers, metrics, otelShutdown != nil)
	}
	return a, nil
}

// Start launches the background side of the process for the configured run mode: job
// execution (Temporal worker when a client is configured, otherwise the poll worker) and the
// metrics collectors.
func (a *App) Start(ctx context.Context) error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.Metrics != nil {
		a.Metrics.StartPostgresCollector(ctx, a.Log, a.DB)
		a.Metrics.StartJobQueueCollector(ctx, a.Log, a.DB)
		if a.Clients.EventBus != nil {
			a.Metrics.StartRedisCollector(ctx, a.Log, a.Clients.EventBus.Client())
		}
		if a.Cfg.MetricsAddr != "" && !a.Cfg.RunMode.ServesHTTP() {
			a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
		}
	}

	if !a.Cfg.RunMode.RunsWorkers() {
		return nil
	}
	if a.Services.TemporalWorker != nil {
		if err := a.Services.TemporalWorker.Start(ctx); err != nil {
			return fmt.Errorf("start temporal worker: %w", err)
		}
		return nil
	}
	if a.Services.JobWorker != nil {
		a.Services.JobWorker.Start(ctx)
	}
	return nil
}

// Run starts the background side and, when the run mode serves HTTP, blocks on the API
// server until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if a == nil {
		return errors.New("app not initialized")
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	if a.Server == nil {
		a.Log.Info("Worker running", "run_mode", a.Cfg.RunMode)
		<-ctx.Done()
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
		errCh <- a.Server.Run(a.Cfg.HTTPAddr)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Log.Warn("HTTP server shutdown failed", "error", err)
	}
	return nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Clients.Close()
	if a.pg != nil {
		if err := a.pg.Close(); err != nil {
			a.Log.Warn("postgres close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(ctx)
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
