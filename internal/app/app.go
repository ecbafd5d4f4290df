package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/hypermind-backend/internal/data/db"
	"github.com/yungbote/hypermind-backend/internal/http"
	"github.com/yungbote/hypermind-backend/internal/observability"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
	"github.com/yungbote/hypermind-backend/internal/realtime"
	"github.com/yungbote/hypermind-backend/internal/services"
)

// Options picks which parts of the process New wires.
type Options struct {
	// Memory swaps Postgres for a private in-memory sqlite database and the
	// object store for an in-memory one.
	Memory bool
	// Worker runs the dispatcher in this process. It implies Connect.
	Worker bool
	// HTTP builds the API router.
	HTTP bool
	// Connect dials external services (LLM gateway, GCP, Neo4j, Redis).
	Connect bool
}

type App struct {
	Log     *logger.Logger
	Cfg     Config
	DB      *gorm.DB
	Store   *db.PostgresService
	Clients Clients
	Jobs    *Jobs
	Runs    services.RunService
	Hub     *realtime.Hub
	Router  *gin.Engine
	Metrics *observability.Metrics

	opts         Options
	server       *http.Server
	shutdownOTel func(context.Context) error
	cancel       context.CancelFunc
}

func New(ctx context.Context, opts Options) (*App, error) {
	cfg := LoadConfig()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if opts.Memory {
		cfg.DB.SQLitePath = ":memory:"
	}
	if opts.Worker {
		opts.Connect = true
	}

	a := &App{Log: log, Cfg: cfg, opts: opts}
	a.shutdownOTel = observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	a.Metrics = observability.Init(log)

	store, err := OpenDB(log, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store
	a.DB = store.DB()

	if opts.Connect {
		clients, err := wireClients(ctx, log, cfg, a.DB, opts.Memory)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Clients = clients
	} else {
		a.Clients = offlineClients(log, a.DB)
	}

	if opts.HTTP || opts.Worker {
		a.Hub = realtime.NewHub(log)
	}
	jobs, err := wireJobs(ctx, log, cfg, a.DB, store.DSN(), a.Clients, a.Hub, a.Metrics)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Jobs = jobs

	log.Info("Wiring services...")
	a.Runs = services.NewRunService(a.DB, log, jobs.Bus, jobs.Registry, jobs.Gate)

	if opts.HTTP {
		handlers := wireHandlers(log, a.DB, a.Runs, a.Hub)
		a.Router = wireRouter(log, cfg, handlers, a.Metrics)
		a.server = &http.Server{Engine: a.Router}
	}
	return a, nil
}

// OpenDB connects and migrates the configured database.
func OpenDB(log *logger.Logger, cfg Config) (*db.PostgresService, error) {
	store, err := db.NewPostgresService(log, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := db.AutoMigrateAll(store.DB()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return store, nil
}

// Start launches background work: the dispatcher when this process is a
// worker, and the Redis forwarder when it serves streams.
func (a *App) Start(ctx context.Context) error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.Hub != nil && a.Clients.RunBus != nil {
		if err := forwardRunBus(ctx, a.Clients.RunBus, a.Hub); err != nil {
			return fmt.Errorf("start run forwarder: %w", err)
		}
	}
	if a.opts.Worker {
		a.Metrics.StartDeliveryCollector(ctx, a.Log, a.DB)
		if err := a.Jobs.Start(ctx, a.Log, a.Store.DSN()); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) Run(addr string) error {
	if a == nil || a.server == nil {
		return fmt.Errorf("app not initialized for HTTP")
	}
	if addr == "" {
		addr = a.Cfg.Addr
	}
	a.Log.Info("HTTP server listening", "addr", addr)
	return a.server.Run(addr)
}

// Close stops the HTTP server and dispatcher, then releases connections.
// Runs interrupted here resume in the next worker.
func (a *App) Close() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.Log.Warn("HTTP shutdown", "error", err)
		}
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Jobs != nil {
		if a.opts.Worker {
			a.Jobs.Dispatcher.Stop()
		}
		a.Jobs.Close()
	}
	a.Clients.Close(ctx)
	if a.Store != nil {
		_ = a.Store.Close()
	}
	if a.shutdownOTel != nil {
		_ = a.shutdownOTel(ctx)
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
