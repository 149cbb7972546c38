package availability

import (
	"sort"
	"time"
)

// Engine evaluates availability in one operating timezone. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	loc      *time.Location
	expander Expander
}

// Option configures an Engine
type Option func(*engineOptions)

type engineOptions struct {
	maxOccurrences int
}

// WithMaxOccurrences caps recurrence expansion per incident
func WithMaxOccurrences(n int) Option {
	return func(o *engineOptions) {
		o.maxOccurrences = n
	}
}

// New creates an engine for the given operating timezone
func New(loc *time.Location, opts ...Option) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{loc: loc, expander: NewExpander(loc, o.maxOccurrences)}
}

// Location returns the operating timezone
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Expand expands a single incident definition
func (e *Engine) Expand(def IncidentDefinition) ([]ConcreteInterval, error) {
	return e.expander.Expand(def)
}

// ResolveWindow returns the service window of line on date
func (e *Engine) ResolveWindow(line Line, date Date, holidays HolidayCalendar) (ServiceWindow, error) {
	return ResolveWindow(line, date, holidays, e.loc)
}

// PlanBuckets plans count+1 buckets ending with the one containing anchor
func (e *Engine) PlanBuckets(g Granularity, count int, anchor time.Time) ([]Bucket, error) {
	return PlanBuckets(g, count, anchor, e.loc)
}

// PlanComparisonPeriods plans the current and prior comparison periods
func (e *Engine) PlanComparisonPeriods(g Granularity, count int, anchor time.Time) (current, prior Bucket, err error) {
	return PlanComparisonPeriods(g, count, anchor, e.loc)
}

// Timeline is one line together with the concrete intervals of every incident
// that affects it, ordered by start.
type Timeline struct {
	Line      Line
	Intervals []ConcreteInterval
}

// Timelines expands every incident once and groups the intervals by line, in
// the order lines appear in the snapshot. Incidents naming unknown lines are
// still validated but otherwise ignored. Any invalid incident aborts the
// whole evaluation.
func (e *Engine) Timelines(snap Snapshot) ([]Timeline, error) {
	byLine := make(map[string][]ConcreteInterval, len(snap.Lines))
	for _, l := range snap.Lines {
		byLine[l.ID] = nil
	}
	for _, def := range snap.Incidents {
		intervals, err := e.expander.Expand(def)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool, len(def.LineIDs))
		for _, id := range def.LineIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			if _, ok := byLine[id]; ok {
				byLine[id] = append(byLine[id], intervals...)
			}
		}
	}

	out := make([]Timeline, 0, len(snap.Lines))
	for _, l := range snap.Lines {
		intervals := byLine[l.ID]
		sortIntervals(intervals)
		out = append(out, Timeline{Line: l, Intervals: intervals})
	}
	return out, nil
}

func sortIntervals(intervals []ConcreteInterval) {
	sort.SliceStable(intervals, func(i, j int) bool {
		if !intervals[i].Start.Equal(intervals[j].Start) {
			return intervals[i].Start.Before(intervals[j].Start)
		}
		return intervals[i].IncidentID < intervals[j].IncidentID
	})
}
