package models

import (
	"time"

	"github.com/foldaway/mrtdown-data-sub000/internal/availability"
)

// TypeDuration is the downtime attributed to one incident type
type TypeDuration struct {
	Type    string  `json:"type"`
	Seconds float64 `json:"seconds"`
}

// IssueSummary groups the incidents of one type inside a period
type IssueSummary struct {
	Type          string   `json:"type"`
	IDs           []string `json:"ids"`
	Count         int      `json:"count"`
	TotalSeconds  float64  `json:"totalSeconds"`
	MeanSeconds   float64  `json:"meanSeconds"`
	StdDevSeconds float64  `json:"stdDevSeconds"`
}

// MetricRow is the availability of a line, or of the whole network, over one period.
// HasService is false when the period contains no service time; UptimeRatio is then 1.
type MetricRow struct {
	LineID          string         `json:"lineId,omitempty"`
	Label           string         `json:"label"`
	Start           time.Time      `json:"start"`
	End             time.Time      `json:"end"`
	InProgress      bool           `json:"inProgress"`
	HasService      bool           `json:"hasService"`
	ServiceSeconds  float64        `json:"serviceSeconds"`
	DowntimeSeconds float64        `json:"downtimeSeconds"`
	DowntimeByType  []TypeDuration `json:"downtimeByType"`
	UptimeRatio     float64        `json:"uptimeRatio"`
	Issues          []IssueSummary `json:"issues"`
	Rank            int            `json:"rank,omitempty"`
	TotalLines      int            `json:"totalLines,omitempty"`
}

// Period is a reporting period without metrics
type Period struct {
	Label      string    `json:"label"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	InProgress bool      `json:"inProgress"`
}

// LineComparison pairs one line's current and prior periods
type LineComparison struct {
	LineID  string    `json:"lineId"`
	Current MetricRow `json:"current"`
	Prior   MetricRow `json:"prior"`
}

// NewMetricRow converts an engine row
func NewMetricRow(r availability.MetricRow) MetricRow {
	out := MetricRow{
		LineID:          r.LineID,
		Label:           r.Label,
		Start:           r.Start,
		End:             r.End,
		InProgress:      r.InProgress,
		HasService:      r.HasService,
		ServiceSeconds:  r.ServiceSeconds,
		DowntimeSeconds: r.DowntimeSeconds,
		DowntimeByType:  make([]TypeDuration, 0, len(r.DowntimeByType)),
		UptimeRatio:     r.UptimeRatio,
		Issues:          make([]IssueSummary, 0, len(r.Issues)),
		Rank:            r.Rank,
		TotalLines:      r.TotalLines,
	}
	for _, d := range r.DowntimeByType {
		out.DowntimeByType = append(out.DowntimeByType, TypeDuration{Type: string(d.Type), Seconds: d.Seconds})
	}
	for _, s := range r.Issues {
		ids := s.IDs
		if ids == nil {
			ids = []string{}
		}
		out.Issues = append(out.Issues, IssueSummary{
			Type:          string(s.Type),
			IDs:           ids,
			Count:         s.Count,
			TotalSeconds:  s.Seconds,
			MeanSeconds:   s.MeanSeconds,
			StdDevSeconds: s.StdDevSeconds,
		})
	}
	return out
}

// NewMetricRows converts engine rows, keeping their order
func NewMetricRows(rows []availability.MetricRow) []MetricRow {
	out := make([]MetricRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, NewMetricRow(r))
	}
	return out
}

// NewPeriod converts a bucket
func NewPeriod(b availability.Bucket) Period {
	return Period{Label: b.Label, Start: b.Start, End: b.End, InProgress: b.InProgress}
}

// NewLineComparisons converts engine comparisons
func NewLineComparisons(cs []availability.Comparison) []LineComparison {
	out := make([]LineComparison, 0, len(cs))
	for _, c := range cs {
		out = append(out, LineComparison{
			LineID:  c.LineID,
			Current: NewMetricRow(c.Current),
			Prior:   NewMetricRow(c.Prior),
		})
	}
	return out
}
