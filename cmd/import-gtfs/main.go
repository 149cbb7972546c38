package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/foldaway/mrtdown-data-sub000/internal/availability"
	"github.com/foldaway/mrtdown-data-sub000/internal/db"
	"github.com/foldaway/mrtdown-data-sub000/internal/logging"
	"github.com/foldaway/mrtdown-data-sub000/internal/static"
	"github.com/foldaway/mrtdown-data-sub000/internal/static/gtfs"
)

func main() {
	// Command line flags
	dbPath := flag.String("db", "data/status.db", "Path to SQLite database")
	gtfsPath := flag.String("gtfs", "data/gtfs", "GTFS zip file, or a directory containing GTFS zip files")
	only := flag.String("lines", "", "Comma separated line ids to import (default: every route)")
	dryRun := flag.Bool("dry-run", false, "Print the derived lines without writing them")
	feedURL := flag.String("url", "", "If set, download the GTFS zip from this URL into -cache-dir instead of reading -gtfs")
	cacheDir := flag.String("cache-dir", "data/cache", "Where a downloaded feed and its manifest are kept")
	maxAgeDays := flag.Int("max-age-days", 7, "Re-download a cached feed older than this")
	force := flag.Bool("force", false, "Import even when the cached feed is fresh")
	logFormat := flag.String("log-format", "console", "Log format: json or console")
	flag.Parse()

	logger := logging.Must("info", *logFormat)
	defer logger.Sync()

	ctx := context.Background()

	var fetcher *static.Fetcher
	var zips []string
	if *feedURL != "" {
		fetcher = &static.Fetcher{
			URL:      *feedURL,
			CacheDir: *cacheDir,
			MaxAge:   time.Duration(*maxAgeDays) * 24 * time.Hour,
			Logger:   logger,
		}
		path, downloaded, err := fetcher.FetchIfStale(ctx)
		if err != nil {
			logger.Fatal("Failed to download GTFS feed", zap.Error(err))
		}
		if !downloaded && !*force {
			logger.Info("Lines already imported from the cached feed, nothing to do")
			return
		}
		zips = []string{path}
	} else {
		var err error
		if zips, err = findZips(*gtfsPath); err != nil {
			logger.Fatal("Failed to locate GTFS feeds", zap.Error(err))
		}
	}
	if len(zips) == 0 {
		logger.Fatal("No GTFS zip files found", zap.String("path", *gtfsPath))
	}

	var filter []string
	for _, id := range strings.Split(*only, ",") {
		if id = strings.TrimSpace(id); id != "" {
			filter = append(filter, id)
		}
	}

	var lines []availability.Line
	seen := make(map[string]string)
	for _, zipPath := range zips {
		logger.Info("Processing feed", zap.String("file", filepath.Base(zipPath)))

		data, err := gtfs.Parse(zipPath, logger)
		if err != nil {
			logger.Error("Failed to parse feed", zap.String("file", zipPath), zap.Error(err))
			continue
		}
		derived, err := gtfs.DeriveLines(data, filter...)
		if err != nil {
			logger.Error("Failed to derive lines", zap.String("file", zipPath), zap.Error(err))
			continue
		}
		for _, l := range derived {
			if prev, dup := seen[l.ID]; dup {
				logger.Warn("Line defined by more than one feed, keeping the first",
					zap.String("line", l.ID), zap.String("kept", prev), zap.String("dropped", zipPath))
				continue
			}
			seen[l.ID] = zipPath
			lines = append(lines, l)
		}
	}

	for _, l := range lines {
		logger.Info("Derived line",
			zap.String("line", l.ID),
			zap.String("weekday", l.Weekday.Start.String()+"-"+l.Weekday.End.String()),
			zap.String("weekend", l.Weekend.Start.String()+"-"+l.Weekend.End.String()),
			zap.String("service_start", l.ServiceStart.String()),
		)
	}
	if *dryRun {
		return
	}

	database, err := db.Connect(*dbPath, logger)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer database.Close()

	if err := database.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure schema", zap.Error(err))
	}
	if err := database.UpsertLines(ctx, lines); err != nil {
		logger.Fatal("Failed to store lines", zap.Error(err))
	}
	if fetcher != nil {
		ids := make([]string, 0, len(lines))
		for _, l := range lines {
			ids = append(ids, l.ID)
		}
		if err := fetcher.MarkImported(ids); err != nil {
			logger.Warn("Failed to write feed manifest", zap.Error(err))
		}
	}
	logger.Info("Import complete", zap.Int("lines", len(lines)), zap.String("db", *dbPath))
}

// findZips returns path itself when it is a file, or the zip files directly
// inside it when it is a directory.
func findZips(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".zip") {
			continue
		}
		out = append(out, filepath.Join(path, entry.Name()))
	}
	return out, nil
}
