package availability

import (
	"fmt"
	"strings"
	"time"
)

// Granularity is the width of one reporting bucket
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityMonth Granularity = "month"
	GranularityYear  Granularity = "year"
)

// ParseGranularity parses day, month or year
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case GranularityDay, GranularityMonth, GranularityYear:
		return g, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidGranularity, s)
}

// Truncate returns the start of the unit containing t, in loc
func (g Granularity) Truncate(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	switch g {
	case GranularityYear:
		return time.Date(local.Year(), time.January, 1, 0, 0, 0, 0, loc)
	case GranularityMonth:
		return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	}
}

// Add shifts a truncated instant by n units
func (g Granularity) Add(t time.Time, n int) time.Time {
	switch g {
	case GranularityYear:
		return t.AddDate(n, 0, 0)
	case GranularityMonth:
		return t.AddDate(0, n, 0)
	default:
		return t.AddDate(0, 0, n)
	}
}

// Label formats the bucket starting at t
func (g Granularity) Label(t time.Time) string {
	switch g {
	case GranularityYear:
		return t.Format("2006")
	case GranularityMonth:
		return t.Format("2006-01")
	default:
		return t.Format(dateLayout)
	}
}

func (g Granularity) valid() bool {
	_, err := ParseGranularity(string(g))
	return err == nil
}

// PlanBuckets returns count+1 contiguous buckets of one unit each, oldest
// first, the last of which contains anchor and is marked in progress.
func PlanBuckets(g Granularity, count int, anchor time.Time, loc *time.Location) ([]Bucket, error) {
	if !g.valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidGranularity, g)
	}
	if count < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBucketCount, count)
	}
	current := g.Truncate(anchor, loc)
	buckets := make([]Bucket, 0, count+1)
	for i := count; i >= 0; i-- {
		start := g.Add(current, -i)
		buckets = append(buckets, Bucket{
			Label:      g.Label(start),
			Start:      start,
			End:        g.Add(start, 1),
			InProgress: i == 0,
		})
	}
	return buckets, nil
}

// PlanComparisonPeriods returns the count units ending with the unit that
// contains anchor, and the count units immediately before them.
func PlanComparisonPeriods(g Granularity, count int, anchor time.Time, loc *time.Location) (current, prior Bucket, err error) {
	if !g.valid() {
		return Bucket{}, Bucket{}, fmt.Errorf("%w: %q", ErrInvalidGranularity, g)
	}
	if count < 1 {
		return Bucket{}, Bucket{}, fmt.Errorf("%w: %d", ErrInvalidBucketCount, count)
	}
	truncated := g.Truncate(anchor, loc)
	current = Bucket{
		Label:      "current",
		Start:      g.Add(truncated, -(count - 1)),
		End:        g.Add(truncated, 1),
		InProgress: true,
	}
	prior = Bucket{
		Label: "prior",
		Start: g.Add(current.Start, -count),
		End:   current.Start,
	}
	return current, prior, nil
}
