package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/trackchat-backend/internal/data/db"
	"github.com/yungbote/trackchat-backend/internal/http"
	"github.com/yungbote/trackchat-backend/internal/observability"
	"github.com/yungbote/trackchat-backend/internal/platform/logger"
	"github.com/yungbote/trackchat-backend/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    Repos
	Services Services
	Clients  Clients
	Hub      *realtime.Hub
	Metrics  *observability.Metrics
	Server   *http.Server

	dbService    *db.DatabaseService
	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}

	otelShutdown := observability.InitOTel(ctx, log, cfg.Otel)
	metrics := observability.Init(log, cfg.MetricsEnabled)

	dbService, err := db.NewDatabaseService(log, cfg.DB)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	theDB := dbService.DB()

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}

	hub := realtime.NewHub(log, cfg.WSSendBuffer)
	reposet := wireRepos(theDB, log)
	serviceset := wireServices(theDB, log, cfg, reposet, clients, hub)
	handlerset := wireHandlers(log, theDB, cfg, serviceset, hub)
	middleware := wireMiddleware(log, cfg, serviceset)
	server := wireServer(log, cfg, metrics, handlerset, middleware)

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		Clients:      clients,
		Hub:          hub,
		Metrics:      metrics,
		Server:       server,
		dbService:    dbService,
		otelShutdown: otelShutdown,
	}, nil
}

// Run serves until ctx is cancelled or a component fails, then drains every
// socket connection.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)

	a.Metrics.StartDBCollector(gctx, a.Log, a.DB)
	if a.Clients.Redis != nil {
		a.Metrics.StartRedisCollector(gctx, a.Log, a.Clients.Redis)
	}
	a.Metrics.StartServer(gctx, a.Log, a.Cfg.MetricsAddr)

	g.Go(func() error {
		if err := a.Services.Presence.Warm(gctx); err != nil {
			a.Log.Warn("presence warm-up failed; falling back to storage", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		defer a.Hub.Shutdown()
		return a.Server.Run(gctx, a.Cfg.ShutdownGrace)
	})
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Hub != nil {
		a.Hub.Shutdown()
	}
	a.Clients.Close()
	if a.dbService != nil {
		_ = a.dbService.Close()
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
