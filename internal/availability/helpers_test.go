package availability

import (
	"testing"
	"time"
)

// sgt is a fixed +08:00 operating timezone with no daylight saving
var sgt = time.FixedZone("SGT", 8*60*60)

func at(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, sgt)
}

func ptr(t time.Time) *time.Time {
	return &t
}

func hours(t *testing.T, start, end string) OperatingHours {
	t.Helper()
	s, err := ParseTimeOfDay(start)
	if err != nil {
		t.Fatalf("parse %q: %v", start, err)
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		t.Fatalf("parse %q: %v", end, err)
	}
	return OperatingHours{Start: s, End: e}
}

// standardLine runs 05:30-24:00 on weekdays and 06:00-24:00 on weekends
func standardLine(t *testing.T, id string) Line {
	return Line{
		ID:           id,
		Name:         id,
		Weekday:      hours(t, "05:30", "24:00"),
		Weekend:      hours(t, "06:00", "24:00"),
		ServiceStart: NewDate(2020, time.January, 1),
	}
}

// overnightLine runs 06:00-01:00 every day
func overnightLine(t *testing.T, id string) Line {
	return Line{
		ID:           id,
		Weekday:      hours(t, "06:00", "01:00"),
		Weekend:      hours(t, "06:00", "01:00"),
		ServiceStart: NewDate(2020, time.January, 1),
	}
}

func dayBucket(d Date) Bucket {
	return Bucket{Label: d.String(), Start: d.Midnight(sgt), End: d.AddDays(1).Midnight(sgt)}
}
