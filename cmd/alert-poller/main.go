package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/foldaway/mrtdown-data-sub000/internal/config"
	"github.com/foldaway/mrtdown-data-sub000/internal/db"
	"github.com/foldaway/mrtdown-data-sub000/internal/logging"
	"github.com/foldaway/mrtdown-data-sub000/internal/realtime/alerts"
)

func main() {
	envDir := flag.String("env-dir", ".", "Directory holding .env and .env.local")
	metricsAddr := flag.String("metrics-addr", "", "If set, serve Prometheus metrics on this address (e.g. :9090)")
	once := flag.Bool("once", false, "Poll a single time and exit")
	flag.Parse()

	config.LoadDotEnv(*envDir)

	cfg, err := config.Load()
	if err != nil {
		logging.Must("info", "json").Fatal("Invalid configuration", zap.Error(err))
	}
	logger := logging.Must(cfg.LogLevel, cfg.LogFormat)
	defer logger.Sync()

	if cfg.GTFSAlertsURL == "" {
		logger.Fatal("GTFS_ALERTS_URL is required")
	}

	logger.Info("Starting alert poller",
		zap.String("feed", cfg.GTFSAlertsURL),
		zap.Duration("poll_interval", cfg.AlertPollInterval),
		zap.Duration("retention", cfg.Retention()),
	)

	database, err := db.Connect(cfg.DatabasePath, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure database schema", zap.Error(err))
	}

	opts := []alerts.Option{alerts.WithRetention(cfg.Retention())}
	if cfg.AlertLinePattern != nil {
		opts = append(opts, alerts.WithLinePattern(cfg.AlertLinePattern))
	}
	poller := alerts.NewPoller(database, cfg.GTFSAlertsURL, logger, opts...)

	if *once {
		if _, err := poller.Poll(ctx); err != nil {
			logger.Fatal("Poll failed", zap.Error(err))
		}
		return
	}

	if *metricsAddr != "" {
		srv := &http.Server{Addr: *metricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	// Blocks until SIGINT or SIGTERM
	poller.Run(ctx, cfg.AlertPollInterval)
	logger.Info("Goodbye!")
}
