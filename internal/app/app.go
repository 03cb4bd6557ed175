package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/alexivanou/guide-offline/internal/api"
	"github.com/alexivanou/guide-offline/internal/cachetier"
	"github.com/alexivanou/guide-offline/internal/client"
	"github.com/alexivanou/guide-offline/internal/config"
	"github.com/alexivanou/guide-offline/internal/connectivity"
	"github.com/alexivanou/guide-offline/internal/database"
	"github.com/alexivanou/guide-offline/internal/repository"
	"github.com/alexivanou/guide-offline/internal/seeder"
	"github.com/alexivanou/guide-offline/internal/service"
	"github.com/alexivanou/guide-offline/internal/stats"
	"github.com/dgraph-io/badger/v4"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// App owns every long-lived component of the offline companion
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *sqlx.DB
	Repos   *repository.Container
	Cache   *cachetier.Manager
	Client  *client.Client
	Monitor *connectivity.Monitor
	Prober  *connectivity.Prober
	Service *service.Service
	Stats   *stats.Collector

	cacheDB *badger.DB
}

// New connects the store, applies migrations, seeds bundled packages into an
// empty store and brings the cache tiers up. Cache install failures are logged
// and the tiers are activated anyway so runtime caching still works.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	db, err := database.Connect(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	a.DB = db
	logger.Info("Connected to database", zap.String("type", string(cfg.DB.Type)))

	if err := database.Migrate(db, cfg.DB); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a.Repos = repository.NewRepositories(db, cfg.DB.Type, repository.Options{
		QuotaBytes:  cfg.Storage.QuotaBytes,
		MaxAttempts: cfg.Sync.MaxAttempts,
		Logger:      logger,
	})

	if err := a.autoSeed(ctx); err != nil {
		a.Close()
		return nil, err
	}

	cacheDB, err := cachetier.OpenBadger(cfg.Cache.Dir, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.cacheDB = cacheDB
	a.Cache = cachetier.NewManager(cachetier.NewBadgerStore(cacheDB), cachetier.Options{
		Generation:   cfg.Cache.Generation,
		Prefix:       cfg.Cache.Prefix,
		AppOrigin:    cfg.Cache.AppOrigin,
		StaticAssets: cfg.Cache.StaticAssets,
		TileOrigins:  cfg.Cache.TileOrigins,
		Logger:       logger,
	})
	if err := a.Cache.Install(ctx); err != nil {
		logger.Warn("Cache install failed, continuing without precache", zap.Error(err))
	}
	if err := a.Cache.Activate(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to activate cache tiers: %w", err)
	}

	a.Client = client.New(client.Options{
		BaseURL:    cfg.Sync.APIBaseURL,
		HTTPClient: a.Cache.Client(cfg.Sync.RequestTimeout),
		Logger:     logger,
	})
	a.Monitor = connectivity.NewMonitor(cfg.Sync.StartOnline, logger)
	a.Prober = connectivity.NewProber(a.Monitor, a.Client.Health, cfg.Sync.ProbeInterval, cfg.Sync.RequestTimeout, logger)

	a.Service = service.NewService(a.Repos, a.Client, a.Monitor, service.Options{
		AudioInterval: cfg.Audio.PrefetchInterval,
		Logger:        logger,
	})
	a.Stats = stats.NewCollector(db, cfg.DB)

	return a, nil
}

func (a *App) autoSeed(ctx context.Context) error {
	empty, err := repository.IsStoreEmpty(ctx, a.DB)
	if err != nil || !empty {
		return err
	}

	a.Logger.Info("Store is empty, seeding bundled packages...", zap.String("dir", a.Config.Seeder.DataDir))
	packages, err := seeder.NewParser(a.Config.Seeder.DataDir).ParsePackages()
	if errors.Is(err, fs.ErrNotExist) {
		a.Logger.Info("No bundled packages found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to parse bundled packages: %w", err)
	}
	result, err := seeder.Seed(ctx, a.Repos.Packages, packages, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to seed bundled packages: %w", err)
	}
	a.Logger.Info("Bundled packages seeded", zap.Int("saved", result.Saved))
	return nil
}

// Start runs the connectivity prober until ctx is done, then initializes the coordinator.
func (a *App) Start(ctx context.Context) error {
	go a.Prober.Run(ctx)
	return a.Service.Initialize(ctx)
}

// Router returns the local UI API
func (a *App) Router() http.Handler {
	return api.NewRouter(a.Service, a.Cache, a.Stats, a.Logger)
}

// Close releases every component in reverse start order
func (a *App) Close() {
	if a.Service != nil {
		a.Service.Close()
	}
	if a.cacheDB != nil {
		if err := a.cacheDB.Close(); err != nil {
			a.Logger.Warn("Failed to close cache store", zap.Error(err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn("Failed to close database", zap.Error(err))
		}
	}
}
