package gtfs

import (
	"fmt"
	"sort"
	"time"

	"github.com/foldaway/mrtdown-data-sub000/internal/availability"
)

const secondsPerDay = int(availability.EndOfDay)

// dayClass says on which kinds of day a service runs
type dayClass struct {
	weekday bool
	weekend bool
}

type span struct {
	first, last int
	ok          bool
}

func (s *span) add(first, last int) {
	if !s.ok || first < s.first {
		s.first = first
	}
	if !s.ok || last > s.last {
		s.last = last
	}
	s.ok = true
}

// DeriveLines builds one line per route with a weekday and a weekend window
// spanning the first departure to the last arrival of its trips. Routes with
// no timed trips are left out. When only one kind of day has trips its window
// is used for both. The line id is the route short name, or the route id when
// the short name is empty. only, when non-empty, restricts the routes by line id.
func DeriveLines(data *Data, only ...string) ([]availability.Line, error) {
	filter := make(map[string]bool, len(only))
	for _, id := range only {
		filter[id] = true
	}

	classes, starts := serviceCalendar(data)

	tripSpans := make(map[string]*span)
	for _, st := range data.StopTimes {
		s, ok := tripSpans[st.TripID]
		if !ok {
			s = &span{}
			tripSpans[st.TripID] = s
		}
		s.add(st.DepartureTime, st.ArrivalTime)
	}

	type routeAcc struct {
		weekday, weekend span
		serviceStart     availability.Date
	}
	acc := make(map[string]*routeAcc)
	for _, trip := range data.Trips {
		ts, ok := tripSpans[trip.TripID]
		if !ok || ts.last <= ts.first {
			continue
		}
		class, ok := classes[trip.ServiceID]
		if !ok {
			continue
		}
		r, ok := acc[trip.RouteID]
		if !ok {
			r = &routeAcc{}
			acc[trip.RouteID] = r
		}
		if class.weekday {
			r.weekday.add(ts.first, ts.last)
		}
		if class.weekend {
			r.weekend.add(ts.first, ts.last)
		}
		if start, ok := starts[trip.ServiceID]; ok && (r.serviceStart.IsZero() || start.Before(r.serviceStart)) {
			r.serviceStart = start
		}
	}

	var lines []availability.Line
	seen := make(map[string]bool)
	for _, route := range data.Routes {
		r, ok := acc[route.RouteID]
		if !ok || (!r.weekday.ok && !r.weekend.ok) {
			continue
		}
		id := route.RouteShortName
		if id == "" {
			id = route.RouteID
		}
		if len(filter) > 0 && !filter[id] {
			continue
		}
		if seen[id] {
			return nil, fmt.Errorf("routes share line id %q", id)
		}
		seen[id] = true

		weekday, weekend := r.weekday, r.weekend
		if !weekday.ok {
			weekday = weekend
		}
		if !weekend.ok {
			weekend = weekday
		}

		line := availability.Line{
			ID:           id,
			Name:         route.RouteLongName,
			Weekday:      operatingHours(weekday.first, weekday.last),
			Weekend:      operatingHours(weekend.first, weekend.last),
			ServiceStart: r.serviceStart,
		}
		if err := line.Validate(); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	return lines, nil
}

// operatingHours folds a service-day span, whose times may run past 24:00,
// into a wall-clock window. A span ending after midnight becomes an overnight
// window and a span of a full day or more covers the whole day.
func operatingHours(first, last int) availability.OperatingHours {
	if last-first >= secondsPerDay {
		return availability.OperatingHours{Start: 0, End: availability.EndOfDay}
	}
	shift := (first / secondsPerDay) * secondsPerDay
	first -= shift
	last -= shift
	if last > secondsPerDay {
		last -= secondsPerDay
	}
	return availability.OperatingHours{
		Start: availability.TimeOfDay(first),
		End:   availability.TimeOfDay(last),
	}
}

// serviceCalendar classifies each service id by the kinds of day it runs on
// and finds its earliest active date, from calendar.txt and the added dates
// of calendar_dates.txt.
func serviceCalendar(data *Data) (map[string]dayClass, map[string]availability.Date) {
	classes := make(map[string]dayClass)
	starts := make(map[string]availability.Date)

	mark := func(id string, day time.Weekday) {
		c := classes[id]
		if day == time.Saturday || day == time.Sunday {
			c.weekend = true
		} else {
			c.weekday = true
		}
		classes[id] = c
	}
	earliest := func(id string, d availability.Date) {
		if cur, ok := starts[id]; !ok || d.Before(cur) {
			starts[id] = d
		}
	}

	for _, entry := range data.Calendar {
		for day, runs := range entry.Days {
			if runs {
				mark(entry.ServiceID, time.Weekday(day))
			}
		}
		if d, err := parseGTFSDate(entry.StartDate); err == nil {
			earliest(entry.ServiceID, d)
		}
	}

	for _, cd := range data.CalendarDates {
		if cd.ExceptionType != 1 {
			continue
		}
		d, err := parseGTFSDate(cd.Date)
		if err != nil {
			continue
		}
		mark(cd.ServiceID, time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday())
		earliest(cd.ServiceID, d)
	}

	return classes, starts
}

func parseGTFSDate(s string) (availability.Date, error) {
	t, err := time.Parse("20060102", s)
	if err != nil {
		return availability.Date{}, fmt.Errorf("invalid GTFS date %q: %w", s, err)
	}
	return availability.NewDate(t.Year(), t.Month(), t.Day()), nil
}
