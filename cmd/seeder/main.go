package main

import (
	"context"
	"flag"
	"log"

	"github.com/alexivanou/guide-offline/internal/config"
	"github.com/alexivanou/guide-offline/internal/database"
	"github.com/alexivanou/guide-offline/internal/repository"
	"github.com/alexivanou/guide-offline/internal/seeder"
	"go.uber.org/zap"
)

func main() {
	dataDir := flag.String("dir", "", "Directory of bundled packages (default: SEEDER_DATA_DIR)")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if *dataDir == "" {
		*dataDir = cfg.Seeder.DataDir
	}

	ctx := context.Background()
	db, err := database.Connect(ctx, cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Connected to database", zap.String("type", string(cfg.DB.Type)))

	if err := database.Migrate(db, cfg.DB); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	logger.Info("Parsing bundled packages...", zap.String("dir", *dataDir))
	packages, err := seeder.NewParser(*dataDir).ParsePackages()
	if err != nil {
		logger.Fatal("Failed to parse packages", zap.Error(err))
	}

	repos := repository.NewRepositories(db, cfg.DB.Type, repository.Options{
		QuotaBytes: cfg.Storage.QuotaBytes,
		Logger:     logger,
	})

	result, err := seeder.Seed(ctx, repos.Packages, packages, logger)
	if err != nil {
		logger.Fatal("Failed to seed packages", zap.Error(err))
	}

	logger.Info("Package import completed successfully!",
		zap.Int("parsed", len(packages)),
		zap.Int("saved", result.Saved),
		zap.Int("skipped", result.Skipped),
	)
}
