package availability

import (
	"sort"
	"time"
)

// RankRows assigns competition ranks ("1224") by uptime ratio, highest first,
// to rows that all cover the same period. The returned slice is a sorted copy;
// rows sharing a ratio share a rank and are ordered by line id.
func RankRows(rows []MetricRow) []MetricRow {
	out := make([]MetricRow, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UptimeRatio != out[j].UptimeRatio {
			return out[i].UptimeRatio > out[j].UptimeRatio
		}
		return out[i].LineID < out[j].LineID
	})
	for i := range out {
		out[i].TotalLines = len(out)
		if i > 0 && out[i].UptimeRatio == out[i-1].UptimeRatio {
			out[i].Rank = out[i-1].Rank
			continue
		}
		out[i].Rank = i + 1
	}
	return out
}

// RankLines measures every line over period and ranks them
func (e *Engine) RankLines(snap Snapshot, period Bucket, now time.Time) ([]MetricRow, error) {
	timelines, err := e.Timelines(snap)
	if err != nil {
		return nil, err
	}
	rows := make([]MetricRow, 0, len(timelines))
	for _, tl := range timelines {
		rows = append(rows, e.Measure(tl, snap.Holidays, period, now))
	}
	return RankRows(rows), nil
}

// Comparison holds one line's cumulative metrics for the current period and
// the equally long period before it
type Comparison struct {
	LineID  string
	Current MetricRow
	Prior   MetricRow
}

// Compare measures every line over the current and prior comparison periods.
// Both periods are ranked across lines. Results follow snapshot line order.
func (e *Engine) Compare(snap Snapshot, g Granularity, count int, now time.Time) ([]Comparison, error) {
	current, prior, err := e.PlanComparisonPeriods(g, count, now)
	if err != nil {
		return nil, err
	}
	timelines, err := e.Timelines(snap)
	if err != nil {
		return nil, err
	}

	currentRows := make([]MetricRow, 0, len(timelines))
	priorRows := make([]MetricRow, 0, len(timelines))
	for _, tl := range timelines {
		currentRows = append(currentRows, e.Measure(tl, snap.Holidays, current, now))
		priorRows = append(priorRows, e.Measure(tl, snap.Holidays, prior, now))
	}
	return PairComparisons(timelines, RankRows(currentRows), RankRows(priorRows)), nil
}

// PairComparisons matches ranked current and prior rows back to timeline order
func PairComparisons(timelines []Timeline, current, prior []MetricRow) []Comparison {
	byLine := func(rows []MetricRow) map[string]MetricRow {
		m := make(map[string]MetricRow, len(rows))
		for _, r := range rows {
			m[r.LineID] = r
		}
		return m
	}
	cur, pri := byLine(current), byLine(prior)
	out := make([]Comparison, 0, len(timelines))
	for _, tl := range timelines {
		out = append(out, Comparison{
			LineID:  tl.Line.ID,
			Current: cur[tl.Line.ID],
			Prior:   pri[tl.Line.ID],
		})
	}
	return out
}
