package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/foldaway/mrtdown-data-sub000/internal/availability"
	"github.com/foldaway/mrtdown-data-sub000/internal/config"
	"github.com/foldaway/mrtdown-data-sub000/internal/db"
	"github.com/foldaway/mrtdown-data-sub000/internal/handlers"
	"github.com/foldaway/mrtdown-data-sub000/internal/logging"
	"github.com/foldaway/mrtdown-data-sub000/internal/report"
	"github.com/foldaway/mrtdown-data-sub000/internal/repository"
	"github.com/foldaway/mrtdown-data-sub000/internal/store"
)

func main() {
	envDir := flag.String("env-dir", ".", "Directory holding .env and .env.local")
	flag.Parse()

	// .env.local overrides .env for local development
	config.LoadDotEnv(*envDir)

	cfg, err := config.Load()
	if err != nil {
		logging.Must("info", "json").Fatal("Invalid configuration", zap.Error(err))
	}
	logger := logging.Must(cfg.LogLevel, cfg.LogFormat)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snapshots, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open snapshot store", zap.Error(err))
	}
	defer closeStore()

	engine := availability.New(cfg.Location, availability.WithMaxOccurrences(cfg.MaxRecurrenceOccurrences))
	reports := report.NewService(snapshots, engine, logger,
		report.WithDefaultCount(cfg.DefaultBucketCount),
		report.WithRetention(cfg.Retention()),
	)

	router := handlers.NewRouter(
		cfg.AllowedOrigins,
		handlers.NewUptimeHandler(reports, logger),
		handlers.NewHealthHandler(reports),
		logger,
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		logger.Info("Status API starting",
			zap.String("addr", srv.Addr),
			zap.String("utc_offset", cfg.Location.String()),
			zap.Strings("routes", []string{
				"GET /health",
				"GET /metrics",
				"GET /api/lines/status",
				"GET /api/lines/{lineID}/uptime",
				"GET /api/network/uptime",
				"GET /api/uptime/ranking",
				"GET /api/uptime/comparison",
			}),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Goodbye!")
}

// openStore reads from PostgreSQL when DATABASE_URL is set and from the
// local SQLite database otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.SnapshotStore, func(), error) {
	if cfg.DatabaseURL != "" {
		pg, err := repository.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Connected to PostgreSQL")
		return pg, pg.Close, nil
	}

	database, err := db.Connect(cfg.DatabasePath, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := database.EnsureSchema(ctx); err != nil {
		database.Close()
		return nil, nil, err
	}
	logger.Info("Connected to SQLite", zap.String("path", cfg.DatabasePath))
	return database, func() { database.Close() }, nil
}
