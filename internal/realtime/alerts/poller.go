package alerts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/foldaway/mrtdown-data-sub000/internal/availability"
	"github.com/foldaway/mrtdown-data-sub000/internal/db"
	"github.com/foldaway/mrtdown-data-sub000/internal/metrics"
)

// IncidentStore is the persistence the poller writes to. *db.DB satisfies it.
type IncidentStore interface {
	LineIDs(ctx context.Context) ([]string, error)
	IncidentStarts(ctx context.Context, source string) (map[string]time.Time, error)
	UpsertIncidents(ctx context.Context, source string, incidents []availability.IncidentDefinition, seenAt time.Time) error
	CloseMissingIncidents(ctx context.Context, source string, activeIDs []string, at time.Time) (int64, error)
	RecordIngestRun(ctx context.Context, run db.IngestRun) (string, error)
	Cleanup(ctx context.Context, retention time.Duration, now time.Time) (int64, error)
}

// Poller turns a GTFS-RT alerts feed into incidents
type Poller struct {
	store     IncidentStore
	url       string
	pattern   *regexp.Regexp
	retention time.Duration
	client    *http.Client
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Poller
type Option func(*Poller)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(p *Poller) { p.client = c }
}

// WithLinePattern sets the route id pattern used by the converter
func WithLinePattern(re *regexp.Regexp) Option {
	return func(p *Poller) { p.pattern = re }
}

// WithRetention enables cleanup after every poll
func WithRetention(d time.Duration) Option {
	return func(p *Poller) { p.retention = d }
}

// WithClock overrides the poll timestamp source
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// NewPoller creates a poller for the feed at url
func NewPoller(store IncidentStore, url string, logger *zap.Logger, opts ...Option) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Poller{
		store:  store,
		url:    url,
		logger: logger,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll fetches the feed once, upserts the alerts it maps to incidents and
// closes incidents from earlier polls that are no longer reported.
func (p *Poller) Poll(ctx context.Context) (db.IngestRun, error) {
	polledAt := p.now().UTC()
	run := db.IngestRun{Source: db.SourceGTFSRT, PolledAt: polledAt}

	feed, err := p.fetchFeed(ctx)
	if err != nil {
		metrics.AlertPollFailures.Inc()
		return run, fmt.Errorf("failed to fetch alerts: %w", err)
	}

	lineIDs, err := p.store.LineIDs(ctx)
	if err != nil {
		metrics.AlertPollFailures.Inc()
		return run, err
	}
	starts, err := p.store.IncidentStarts(ctx, db.SourceGTFSRT)
	if err != nil {
		metrics.AlertPollFailures.Inc()
		return run, err
	}

	res := NewConverter(lineIDs, p.pattern).Convert(feed, polledAt, starts)
	run.AlertsSeen = len(res.Incidents) + res.Skipped

	if err := p.store.UpsertIncidents(ctx, db.SourceGTFSRT, res.Incidents, polledAt); err != nil {
		metrics.AlertPollFailures.Inc()
		return run, fmt.Errorf("failed to store incidents: %w", err)
	}
	run.IncidentsUpserted = len(res.Incidents)

	activeIDs := make([]string, 0, len(res.Incidents))
	for _, inc := range res.Incidents {
		if inc.End == nil || inc.End.After(polledAt) {
			activeIDs = append(activeIDs, inc.ID)
		}
		metrics.AlertsIngested.WithLabelValues(string(inc.Type)).Inc()
	}
	metrics.AlertsSkipped.Add(float64(res.Skipped))

	closed, err := p.store.CloseMissingIncidents(ctx, db.SourceGTFSRT, activeIDs, polledAt)
	if err != nil {
		metrics.AlertPollFailures.Inc()
		return run, fmt.Errorf("failed to close resolved incidents: %w", err)
	}
	run.IncidentsClosed = closed

	runID, err := p.store.RecordIngestRun(ctx, run)
	if err != nil {
		return run, err
	}

	p.logger.Info("alerts polled",
		zap.String("run_id", runID),
		zap.Int("alerts", run.AlertsSeen),
		zap.Int("upserted", run.IncidentsUpserted),
		zap.Int("skipped", res.Skipped),
		zap.Int64("closed", run.IncidentsClosed),
	)
	return run, nil
}

// Run polls immediately and then every interval until ctx is cancelled
func (p *Poller) Run(ctx context.Context, interval time.Duration) {
	p.pollOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.pollOnce(ctx)
		case <-ctx.Done():
			p.logger.Info("polling loop stopped")
			return
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	if _, err := p.Poll(ctx); err != nil {
		p.logger.Error("alert poll failed", zap.Error(err))
	}

	n, err := p.store.Cleanup(ctx, p.retention, p.now().UTC())
	if err != nil {
		p.logger.Error("cleanup failed", zap.Error(err))
		return
	}
	metrics.IncidentsCleaned.Add(float64(n))
}

func (p *Poller) fetchFeed(ctx context.Context) (*gtfs.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(data, feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal protobuf: %w", err)
	}

	return feed, nil
}
