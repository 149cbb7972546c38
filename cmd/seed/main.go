package main

import (
	"context"
	"flag"
	"time"

	"go.uber.org/zap"

	"github.com/foldaway/mrtdown-data-sub000/internal/config"
	"github.com/foldaway/mrtdown-data-sub000/internal/db"
	"github.com/foldaway/mrtdown-data-sub000/internal/logging"
	"github.com/foldaway/mrtdown-data-sub000/internal/seed"
)

func main() {
	envDir := flag.String("env-dir", ".", "Directory holding .env and .env.local")
	file := flag.String("file", "data/seed.yaml", "YAML file with lines, holidays and incidents")
	check := flag.Bool("check", false, "Validate the file without writing it")
	flag.Parse()

	config.LoadDotEnv(*envDir)

	cfg, err := config.Load()
	if err != nil {
		logging.Must("info", "json").Fatal("Invalid configuration", zap.Error(err))
	}
	logger := logging.Must(cfg.LogLevel, cfg.LogFormat)
	defer logger.Sync()

	fx, err := seed.Load(*file, cfg.Location, cfg.MaxRecurrenceOccurrences)
	if err != nil {
		logger.Fatal("Invalid seed file", zap.String("file", *file), zap.Error(err))
	}
	logger.Info("Seed file valid",
		zap.Int("lines", len(fx.Lines)),
		zap.Int("holidays", len(fx.Holidays)),
		zap.Int("incidents", len(fx.Incidents)),
	)
	if *check {
		return
	}

	database, err := db.Connect(cfg.DatabasePath, logger)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer database.Close()

	ctx := context.Background()
	if err := database.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure schema", zap.Error(err))
	}
	if err := fx.Apply(ctx, database, time.Now().UTC()); err != nil {
		logger.Fatal("Failed to apply seed", zap.Error(err))
	}
	logger.Info("Seed applied", zap.String("db", cfg.DatabasePath))
}
