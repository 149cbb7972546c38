package availability

import (
	"sort"
	"time"
)

// Measure computes the metrics of one line over one period.
//
// Service time is the union of the line's daily windows inside the period,
// limited to [service start, now). Downtime counts disruption and maintenance
// intervals clipped to that service time. Issues cover every incident type and
// are clipped to the period only.
func (e *Engine) Measure(tl Timeline, holidays HolidayCalendar, period Bucket, now time.Time) MetricRow {
	row := newRow(tl.Line.ID, period)

	bound := period.Bound()
	serviceBound, hasBound := bound.Intersect(Bound{
		Start: tl.Line.ServiceStart.Midnight(e.loc),
		End:   now,
	})
	var spans []Bound
	if hasBound {
		spans = serviceSpans(tl.Line, serviceBound, holidays, e.loc)
	}
	for _, s := range spans {
		row.ServiceSeconds += s.Seconds()
	}
	row.HasService = row.ServiceSeconds > 0

	downtime := make(map[IncidentType]float64, 2)
	issues := newIssueAccumulator()
	for _, iv := range tl.Intervals {
		if !iv.Start.Before(bound.End) {
			break
		}
		if seg, ok := Clip(iv, bound, now); ok {
			issues.add(seg)
		}
		if !iv.Type.CountsAsDowntime() || len(spans) == 0 {
			continue
		}
		seg, ok := Clip(iv, serviceBound, now)
		if !ok {
			continue
		}
		for _, s := range ClipToService(seg.interval(), spans, e.loc, now) {
			downtime[s.Type] += s.Seconds()
		}
	}

	row.setDowntime(downtime)
	row.Issues = issues.stats()
	return row
}

// Aggregate measures every line of the snapshot over every bucket. Rows are
// ordered by line (snapshot order) and then by bucket.
func (e *Engine) Aggregate(snap Snapshot, buckets []Bucket, now time.Time) ([]MetricRow, error) {
	timelines, err := e.Timelines(snap)
	if err != nil {
		return nil, err
	}
	rows := make([]MetricRow, 0, len(timelines)*len(buckets))
	for _, tl := range timelines {
		for _, b := range buckets {
			rows = append(rows, e.Measure(tl, snap.Holidays, b, now))
		}
	}
	return rows, nil
}

// MeasureNetwork combines all lines into one row per period. Service and
// downtime are summed across lines; issues are counted once per incident even
// when it affects several lines.
func (e *Engine) MeasureNetwork(timelines []Timeline, holidays HolidayCalendar, period Bucket, now time.Time) MetricRow {
	lineRows := make([]MetricRow, 0, len(timelines))
	for _, tl := range timelines {
		lineRows = append(lineRows, e.Measure(tl, holidays, period, now))
	}
	row := combineService(period, lineRows)

	issues := newIssueAccumulator()
	seen := make(map[string]map[int64]bool)
	bound := period.Bound()
	for _, tl := range timelines {
		for _, iv := range tl.Intervals {
			starts := seen[iv.IncidentID]
			if starts == nil {
				starts = make(map[int64]bool)
				seen[iv.IncidentID] = starts
			}
			if starts[iv.Start.UnixNano()] {
				continue
			}
			starts[iv.Start.UnixNano()] = true
			if seg, ok := Clip(iv, bound, now); ok {
				issues.add(seg)
			}
		}
	}
	row.Issues = issues.stats()
	return row
}

// combineService sums the service and downtime of line rows covering the same period
func combineService(period Bucket, rows []MetricRow) MetricRow {
	out := newRow("", period)
	downtime := make(map[IncidentType]float64, 2)
	for _, r := range rows {
		out.ServiceSeconds += r.ServiceSeconds
		for _, d := range r.DowntimeByType {
			downtime[d.Type] += d.Seconds
		}
	}
	out.HasService = out.ServiceSeconds > 0
	out.setDowntime(downtime)
	return out
}

// UptimeRatio returns the share of service time not lost to downtime. With no
// service time there is nothing to measure against and the ratio is 1.
func UptimeRatio(serviceSeconds, downtimeSeconds float64) float64 {
	if serviceSeconds <= 0 {
		return 1
	}
	ratio := (serviceSeconds - downtimeSeconds) / serviceSeconds
	switch {
	case ratio < 0:
		return 0
	case ratio > 1:
		return 1
	}
	return ratio
}

func newRow(lineID string, period Bucket) MetricRow {
	return MetricRow{
		LineID:     lineID,
		Label:      period.Label,
		Start:      period.Start,
		End:        period.End,
		InProgress: period.InProgress,
	}
}

func (r *MetricRow) setDowntime(byType map[IncidentType]float64) {
	r.DowntimeByType = make([]TypeSeconds, 0, len(DowntimeTypes()))
	r.DowntimeSeconds = 0
	for _, t := range DowntimeTypes() {
		r.DowntimeByType = append(r.DowntimeByType, TypeSeconds{Type: t, Seconds: byType[t]})
		r.DowntimeSeconds += byType[t]
	}
	r.UptimeRatio = UptimeRatio(r.ServiceSeconds, r.DowntimeSeconds)
}

func (s ClippedSegment) interval() ConcreteInterval {
	end := s.End
	return ConcreteInterval{IncidentID: s.IncidentID, Type: s.Type, Start: s.Start, End: &end}
}

// issueAccumulator collects clipped seconds per incident, per type
type issueAccumulator map[IncidentType]map[string]float64

func newIssueAccumulator() issueAccumulator {
	return make(issueAccumulator, len(AllIncidentTypes()))
}

func (a issueAccumulator) add(seg ClippedSegment) {
	byID := a[seg.Type]
	if byID == nil {
		byID = make(map[string]float64)
		a[seg.Type] = byID
	}
	byID[seg.IncidentID] += seg.Seconds()
}

func (a issueAccumulator) stats() []IssueStat {
	out := make([]IssueStat, 0, len(AllIncidentTypes()))
	for _, t := range AllIncidentTypes() {
		byID := a[t]
		stat := IssueStat{Type: t, IDs: make([]string, 0, len(byID))}
		for id := range byID {
			stat.IDs = append(stat.IDs, id)
		}
		sort.Strings(stat.IDs)

		var w welford
		for _, id := range stat.IDs {
			stat.Seconds += byID[id]
			w.update(byID[id])
		}
		stat.Count = len(stat.IDs)
		stat.MeanSeconds = w.mean
		stat.StdDevSeconds = w.stdDev()
		out = append(out, stat)
	}
	return out
}
