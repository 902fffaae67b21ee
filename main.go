package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"fxHistory/config"
	"fxHistory/internal/adapters/logger"
	"fxHistory/internal/adapters/metrics"
	"fxHistory/internal/adapters/sqlite"
	"fxHistory/internal/app"
	"fxHistory/internal/history"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := logger.New(cfg.LogFormat, cfg.LogLevel.String())
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	if zl, ok := appLogger.(*logger.ZapLogger); ok {
		defer zl.Sync()
	}
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 4. Initialize Metrics
	promMetrics, err := metrics.New(nil)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to register metrics")
		log.Fatalf("FATAL: Failed to register metrics: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, nil, appLogger)
		go func() {
			if err := srv.Start(ctx); err != nil {
				appLogger.Error(ctx, err, "Metrics server exited with error")
			}
		}()
	}

	// 5. Initialize Bar Source
	source, err := app.NewBarSource(cfg, appLogger, repo)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize bar source")
		log.Fatalf("FATAL: Failed to initialize bar source: %v", err)
	}
	appLogger.Info(context.Background(), "Bar source initialized", map[string]interface{}{"feed": cfg.Feed})

	// 6. Initialize History Registry
	registry, err := history.NewRegistry(history.Options{
		Logger:        appLogger,
		Metrics:       promMetrics,
		DefaultFormat: cfg.Format,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize history registry")
		log.Fatalf("FATAL: Failed to initialize history registry: %v", err)
	}

	// 7. Initialize Application Service
	deps := app.Deps{
		Logger:   appLogger,
		Registry: registry,
		Source:   source,
		Feed:     cfg.Feed,
		Runs:     repo,
		Metrics:  promMetrics,
	}
	if cfg.Feed != config.FeedSQLite {
		deps.Archive = repo
	}
	syncService, err := app.NewSyncService(cfg, deps)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize sync service")
		log.Fatalf("FATAL: Failed to initialize sync service: %v", err)
	}
	appLogger.Info(context.Background(), "Sync service initialized")

	// 8. Start the Service
	if err := syncService.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Sync service exited with error")
		cancel()
		log.Fatalf("FATAL: Sync service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
