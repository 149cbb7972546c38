package availability

import (
	"fmt"
	"sort"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar date in the operating timezone
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate returns a normalised date, so NewDate(2024, 1, 32) is 1 February
func NewDate(year int, month time.Month, day int) Date {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// DateOf returns the calendar date of t in loc
func DateOf(t time.Time, loc *time.Location) Date {
	local := t.In(loc)
	return Date{Year: local.Year(), Month: local.Month(), Day: local.Day()}
}

// ParseDate parses a YYYY-MM-DD date
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// IsZero reports whether d is the zero date
func (d Date) IsZero() bool {
	return d == Date{}
}

// AddDays returns d shifted by n calendar days
func (d Date) AddDays(n int) Date {
	return NewDate(d.Year, d.Month, d.Day+n)
}

// Compare returns -1, 0 or +1 as d is before, equal to or after o
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return sign(d.Year - o.Year)
	case d.Month != o.Month:
		return sign(int(d.Month) - int(o.Month))
	default:
		return sign(d.Day - o.Day)
	}
}

// Before reports whether d is strictly before o
func (d Date) Before(o Date) bool {
	return d.Compare(o) < 0
}

// After reports whether d is strictly after o
func (d Date) After(o Date) bool {
	return d.Compare(o) > 0
}

// Weekday returns the day of week
func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

// Midnight returns the instant at which d begins in loc
func (d Date) Midnight(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// At returns the absolute instant of the wall-clock time tod on d in loc
func (d Date) At(tod TimeOfDay, loc *time.Location) time.Time {
	return d.Midnight(loc).Add(tod.Duration())
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}

// HolidayCalendar is an immutable set of public holidays. The zero value is
// an empty calendar.
type HolidayCalendar struct {
	dates map[Date]struct{}
}

// NewHolidayCalendar builds a calendar from the given dates
func NewHolidayCalendar(dates ...Date) HolidayCalendar {
	set := make(map[Date]struct{}, len(dates))
	for _, d := range dates {
		set[d] = struct{}{}
	}
	return HolidayCalendar{dates: set}
}

// Contains reports whether d is a holiday
func (c HolidayCalendar) Contains(d Date) bool {
	_, ok := c.dates[d]
	return ok
}

// Len returns the number of holidays
func (c HolidayCalendar) Len() int {
	return len(c.dates)
}

// Dates returns the holidays in ascending order
func (c HolidayCalendar) Dates() []Date {
	out := make([]Date, 0, len(c.dates))
	for d := range c.dates {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// HoursFor returns the operating hours that apply to date: the weekend window
// on Saturdays, Sundays and holidays, the weekday window otherwise.
func HoursFor(line Line, date Date, holidays HolidayCalendar) OperatingHours {
	if holidays.Contains(date) {
		return line.Weekend
	}
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return line.Weekend
	}
	return line.Weekday
}

// ResolveWindow materialises the absolute service window of line on date.
// Dates before the line's service start have no window.
func ResolveWindow(line Line, date Date, holidays HolidayCalendar, loc *time.Location) (ServiceWindow, error) {
	if date.Before(line.ServiceStart) {
		return ServiceWindow{}, fmt.Errorf("%w: line %s on %s (service starts %s)",
			ErrNoServiceWindow, line.ID, date, line.ServiceStart)
	}
	hours := HoursFor(line, date, holidays)
	start := date.At(hours.Start, loc)
	end := date.At(hours.End, loc)
	if hours.Overnight() {
		end = date.AddDays(1).At(hours.End, loc)
	}
	return ServiceWindow{LineID: line.ID, Date: date, Start: start, End: end}, nil
}

// serviceSpans returns the line's service time inside bound as a sorted list of
// non-overlapping ranges. Every window that can reach into bound is considered,
// including the overnight tail of the day before bound starts.
func serviceSpans(line Line, bound Bound, holidays HolidayCalendar, loc *time.Location) []Bound {
	if !bound.End.After(bound.Start) {
		return nil
	}
	first := DateOf(bound.Start, loc).AddDays(-1)
	if first.Before(line.ServiceStart) {
		first = line.ServiceStart
	}
	last := DateOf(bound.End, loc)

	var (
		spans   []Bound
		prevEnd time.Time
	)
	for day := first; !day.After(last); day = day.AddDays(1) {
		w, err := ResolveWindow(line, day, holidays, loc)
		if err != nil {
			continue
		}
		span := w.Bound()
		// A long overnight window may run into the next day's window.
		if span.Start.Before(prevEnd) {
			span.Start = prevEnd
		}
		prevEnd = laterOf(prevEnd, span.End)
		clipped, ok := span.Intersect(bound)
		if !ok {
			continue
		}
		spans = append(spans, clipped)
	}
	return spans
}
