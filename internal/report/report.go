// Package report evaluates availability reports against a fresh snapshot per
// request. Lines are measured in parallel; every report is traced and timed.
package report

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/foldaway/mrtdown-data-sub000/internal/availability"
	"github.com/foldaway/mrtdown-data-sub000/internal/metrics"
	"github.com/foldaway/mrtdown-data-sub000/internal/store"
)

// ErrLineNotFound is returned when a report names a line that does not exist
var ErrLineNotFound = errors.New("line not found")

// Service computes reports
type Service struct {
	store        store.SnapshotStore
	engine       *availability.Engine
	logger       *zap.Logger
	tracer       trace.Tracer
	now          func() time.Time
	defaultCount int
	parallelism  int
	retention    time.Duration
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the evaluation instant
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTracer replaces the global tracer
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithDefaultCount sets the bucket count used when a request asks for zero
func WithDefaultCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.defaultCount = n
		}
	}
}

// WithParallelism caps how many lines are measured at once
func WithParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// WithRetention drops periods that start before now minus d, since incidents
// that ended before then may already have been deleted. Zero keeps every period.
func WithRetention(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retention = d
		}
	}
}

// NewService creates a report service
func NewService(st store.SnapshotStore, engine *availability.Engine, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:        st,
		engine:       engine,
		logger:       logger.Named("report"),
		tracer:       otel.Tracer("github.com/foldaway/mrtdown-data-sub000/internal/report"),
		now:          time.Now,
		defaultCount: 30,
		parallelism:  runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request selects the periods of a report
type Request struct {
	Granularity availability.Granularity
	Count       int
}

// StatusReport is the current status of every line
type StatusReport struct {
	GeneratedAt time.Time
	Lines       []availability.LineStatus
}

// UptimeReport holds one row per bucket, oldest first
type UptimeReport struct {
	GeneratedAt time.Time
	LineID      string
	Granularity availability.Granularity
	Rows        []availability.MetricRow
	// Truncated is set when older buckets were dropped at the retention horizon
	Truncated   bool
}

// RankingReport ranks every line over one cumulative period
type RankingReport struct {
	GeneratedAt time.Time
	Granularity availability.Granularity
	Period      availability.Bucket
	Rows        []availability.MetricRow
	Truncated   bool
}

// ComparisonReport pairs each line's current and prior periods
type ComparisonReport struct {
	GeneratedAt time.Time
	Granularity availability.Granularity
	Current     availability.Bucket
	Prior       availability.Bucket
	Lines       []availability.Comparison
	Truncated   bool
}

// evaluation is the shared state of one report
type evaluation struct {
	span      trace.Span
	now       time.Time
	snap      availability.Snapshot
	timelines []availability.Timeline
}

func (s *Service) begin(ctx context.Context, name string, attrs ...attribute.KeyValue) (*evaluation, error) {
	ctx, span := s.tracer.Start(ctx, "report."+name, trace.WithAttributes(attrs...))

	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return s.fail(&evaluation{span: span}, name, "snapshot", fmt.Errorf("failed to load snapshot: %w", err))
	}
	timelines, err := s.engine.Timelines(snap)
	if err != nil {
		return s.fail(&evaluation{span: span}, name, "invalid_data", err)
	}

	span.SetAttributes(
		attribute.Int("lines", len(snap.Lines)),
		attribute.Int("incidents", len(snap.Incidents)),
	)
	return &evaluation{span: span, now: s.now(), snap: snap, timelines: timelines}, nil
}

func (s *Service) fail(ev *evaluation, name, reason string, err error) (*evaluation, error) {
	metrics.ReportFailures.WithLabelValues(name, reason).Inc()
	ev.span.RecordError(err)
	ev.span.SetStatus(codes.Error, reason)
	ev.span.End()
	if reason != "bad_request" && reason != "not_found" {
		s.logger.Error("report failed", zap.String("report", name), zap.String("reason", reason), zap.Error(err))
	}
	return nil, err
}

func (s *Service) finish(ev *evaluation, name string, started time.Time) {
	metrics.ObserveReport(name, started)
	metrics.LinesEvaluated.Add(float64(len(ev.timelines)))
	ev.span.End()
	s.logger.Debug("report computed",
		zap.String("report", name),
		zap.Int("lines", len(ev.timelines)),
		zap.Duration("took", time.Since(started)),
	)
}

func (s *Service) count(n int) int {
	if n == 0 {
		return s.defaultCount
	}
	return n
}

// planBuckets plans count buckets and drops those starting before the
// retention horizon. The in-progress bucket is always kept.
func (s *Service) planBuckets(g availability.Granularity, count int, now time.Time) ([]availability.Bucket, bool, error) {
	buckets, err := s.engine.PlanBuckets(g, count, now)
	if err != nil || s.retention == 0 {
		return buckets, false, err
	}
	horizon := now.Add(-s.retention)
	i := 0
	for i < len(buckets)-1 && buckets[i].Start.Before(horizon) {
		i++
	}
	return buckets[i:], i > 0, nil
}

// planPeriods plans the current and prior periods, shrinking count until the
// oldest period needed starts at or after the retention horizon. A count of
// one is never shrunk further.
func (s *Service) planPeriods(g availability.Granularity, count int, now time.Time, withPrior bool) (current, prior availability.Bucket, truncated bool, err error) {
	for {
		current, prior, err = s.engine.PlanComparisonPeriods(g, count, now)
		if err != nil || s.retention == 0 || count == 1 {
			return current, prior, truncated, err
		}
		oldest := current.Start
		if withPrior {
			oldest = prior.Start
		}
		if !oldest.Before(now.Add(-s.retention)) {
			return current, prior, truncated, nil
		}
		count--
		truncated = true
	}
}

// Statuses classifies every line at the current instant
func (s *Service) Statuses(ctx context.Context) (*StatusReport, error) {
	started := time.Now()
	ev, err := s.begin(ctx, "statuses")
	if err != nil {
		return nil, err
	}
	defer s.finish(ev, "statuses", started)

	out := make([]availability.LineStatus, len(ev.timelines))
	for i, tl := range ev.timelines {
		out[i] = s.engine.Classify(tl, ev.snap.Holidays, ev.now)
	}
	return &StatusReport{GeneratedAt: ev.now, Lines: out}, nil
}

// LineUptime measures one line over count buckets ending with the current one
func (s *Service) LineUptime(ctx context.Context, lineID string, req Request) (*UptimeReport, error) {
	started := time.Now()
	ev, err := s.begin(ctx, "line_uptime",
		attribute.String("line_id", lineID),
		attribute.String("granularity", string(req.Granularity)),
		attribute.Int("count", req.Count),
	)
	if err != nil {
		return nil, err
	}

	var timeline *availability.Timeline
	for i := range ev.timelines {
		if ev.timelines[i].Line.ID == lineID {
			timeline = &ev.timelines[i]
			break
		}
	}
	if timeline == nil {
		_, err := s.fail(ev, "line_uptime", "not_found", fmt.Errorf("%w: %s", ErrLineNotFound, lineID))
		return nil, err
	}

	buckets, truncated, err := s.planBuckets(req.Granularity, s.count(req.Count), ev.now)
	if err != nil {
		_, err := s.fail(ev, "line_uptime", "bad_request", err)
		return nil, err
	}
	defer s.finish(ev, "line_uptime", started)

	rows := make([]availability.MetricRow, len(buckets))
	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, b := range buckets {
		g.Go(func() error {
			rows[i] = s.engine.Measure(*timeline, ev.snap.Holidays, b, ev.now)
			return nil
		})
	}
	g.Wait()

	return &UptimeReport{GeneratedAt: ev.now, LineID: lineID, Granularity: req.Granularity, Rows: rows, Truncated: truncated}, nil
}

// Network measures all lines together over count buckets
func (s *Service) Network(ctx context.Context, req Request) (*UptimeReport, error) {
	started := time.Now()
	ev, err := s.begin(ctx, "network",
		attribute.String("granularity", string(req.Granularity)),
		attribute.Int("count", req.Count),
	)
	if err != nil {
		return nil, err
	}

	buckets, truncated, err := s.planBuckets(req.Granularity, s.count(req.Count), ev.now)
	if err != nil {
		_, err := s.fail(ev, "network", "bad_request", err)
		return nil, err
	}
	defer s.finish(ev, "network", started)

	rows := make([]availability.MetricRow, len(buckets))
	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, b := range buckets {
		g.Go(func() error {
			rows[i] = s.engine.MeasureNetwork(ev.timelines, ev.snap.Holidays, b, ev.now)
			return nil
		})
	}
	g.Wait()

	return &UptimeReport{GeneratedAt: ev.now, Granularity: req.Granularity, Rows: rows, Truncated: truncated}, nil
}

// Ranking ranks every line over the cumulative current period of count buckets
func (s *Service) Ranking(ctx context.Context, req Request) (*RankingReport, error) {
	started := time.Now()
	ev, err := s.begin(ctx, "ranking",
		attribute.String("granularity", string(req.Granularity)),
		attribute.Int("count", req.Count),
	)
	if err != nil {
		return nil, err
	}

	current, _, truncated, err := s.planPeriods(req.Granularity, s.count(req.Count), ev.now, false)
	if err != nil {
		_, err := s.fail(ev, "ranking", "bad_request", err)
		return nil, err
	}
	defer s.finish(ev, "ranking", started)

	rows := s.measureLines(ev, current)
	return &RankingReport{
		GeneratedAt: ev.now,
		Granularity: req.Granularity,
		Period:      current,
		Rows:        availability.RankRows(rows),
		Truncated:   truncated,
	}, nil
}

// Comparison measures every line over the current and prior periods, each ranked
func (s *Service) Comparison(ctx context.Context, req Request) (*ComparisonReport, error) {
	started := time.Now()
	ev, err := s.begin(ctx, "comparison",
		attribute.String("granularity", string(req.Granularity)),
		attribute.Int("count", req.Count),
	)
	if err != nil {
		return nil, err
	}

	current, prior, truncated, err := s.planPeriods(req.Granularity, s.count(req.Count), ev.now, true)
	if err != nil {
		_, err := s.fail(ev, "comparison", "bad_request", err)
		return nil, err
	}
	defer s.finish(ev, "comparison", started)

	currentRows := s.measureLines(ev, current)
	priorRows := s.measureLines(ev, prior)
	return &ComparisonReport{
		GeneratedAt: ev.now,
		Granularity: req.Granularity,
		Current:     current,
		Prior:       prior,
		Lines: availability.PairComparisons(ev.timelines,
			availability.RankRows(currentRows), availability.RankRows(priorRows)),
		Truncated: truncated,
	}, nil
}

// measureLines measures every timeline over period, in timeline order
func (s *Service) measureLines(ev *evaluation, period availability.Bucket) []availability.MetricRow {
	rows := make([]availability.MetricRow, len(ev.timelines))
	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, tl := range ev.timelines {
		g.Go(func() error {
			rows[i] = s.engine.Measure(tl, ev.snap.Holidays, period, ev.now)
			return nil
		})
	}
	g.Wait()
	return rows
}

// Ping checks the underlying store
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
