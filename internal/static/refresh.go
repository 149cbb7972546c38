package static

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// ManifestName is written next to the cached feed after every successful import
const ManifestName = "manifest.json"

// Manifest records when a cached GTFS feed was last imported
type Manifest struct {
	UpdatedAt   string   `json:"updated_at"`
	GeneratedAt string   `json:"generated_at,omitempty"` // legacy name of updated_at
	FeedURL     string   `json:"feed_url,omitempty"`
	Lines       []string `json:"lines,omitempty"`
}

// Fetcher keeps a local copy of a static GTFS feed no older than MaxAge
type Fetcher struct {
	URL      string
	CacheDir string
	MaxAge   time.Duration

	Client *http.Client
	Logger *zap.Logger
	Now    func() time.Time
}

// ZipPath is where the cached feed lives
func (f *Fetcher) ZipPath() string {
	return filepath.Join(f.CacheDir, "gtfs.zip")
}

// ManifestPath is where the manifest of the cached feed lives
func (f *Fetcher) ManifestPath() string {
	return filepath.Join(f.CacheDir, ManifestName)
}

// Stale reports whether the cached feed needs downloading again
func (f *Fetcher) Stale() bool {
	if _, err := os.Stat(f.ZipPath()); err != nil {
		return true
	}
	return isStaleOrMissing(f.ManifestPath(), f.MaxAge, f.now())
}

// FetchIfStale downloads the feed when the cache is stale and returns the
// path of the zip, and whether a download happened.
func (f *Fetcher) FetchIfStale(ctx context.Context) (string, bool, error) {
	logger := f.logger()
	if !f.Stale() {
		logger.Info("Static feed is fresh, skipping download", zap.String("path", f.ZipPath()))
		return f.ZipPath(), false, nil
	}

	if err := os.MkdirAll(f.CacheDir, 0755); err != nil {
		return "", false, err
	}
	logger.Info("Downloading static feed", zap.String("url", f.URL))
	if err := f.download(ctx); err != nil {
		return "", false, err
	}
	return f.ZipPath(), true, nil
}

// MarkImported writes the manifest for the cached feed
func (f *Fetcher) MarkImported(lineIDs []string) error {
	data, err := json.MarshalIndent(Manifest{
		UpdatedAt: f.now().UTC().Format(time.RFC3339),
		FeedURL:   f.URL,
		Lines:     lineIDs,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.ManifestPath(), data, 0644)
}

// download writes to a temporary file first so a failed transfer never
// replaces a good cached feed
func (f *Fetcher) download(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return err
	}
	resp, err := f.client().Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", f.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: HTTP %d", f.URL, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(f.CacheDir, "gtfs-*.zip.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("download %s: %w", f.URL, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.ZipPath())
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return &http.Client{Timeout: 2 * time.Minute}
}

func (f *Fetcher) logger() *zap.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return zap.NewNop()
}

func (f *Fetcher) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func isStaleOrMissing(manifestPath string, maxAge time.Duration, now time.Time) bool {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return true
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return true
	}

	stamp := manifest.UpdatedAt
	if stamp == "" {
		stamp = manifest.GeneratedAt
	}
	updatedAt, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return true
	}

	return now.Sub(updatedAt) > maxAge
}
