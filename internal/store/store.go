// Package store holds the row shapes shared by the SQLite and Postgres
// snapshot stores and their conversion into engine types.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/foldaway/mrtdown-data-sub000/internal/availability"
)

// SnapshotStore loads the immutable input of one evaluation
type SnapshotStore interface {
	Snapshot(ctx context.Context) (availability.Snapshot, error)
	Ping(ctx context.Context) error
}

// LineRecord is a stored line with its times still in text form
type LineRecord struct {
	ID           string
	Name         string
	WeekdayStart string
	WeekdayEnd   string
	WeekendStart string
	WeekendEnd   string
	ServiceStart string
}

// Line parses the record into an engine line
func (r LineRecord) Line() (availability.Line, error) {
	var (
		line = availability.Line{ID: r.ID, Name: r.Name}
		err  error
	)
	if line.Weekday, err = parseHours(r.WeekdayStart, r.WeekdayEnd); err != nil {
		return availability.Line{}, fmt.Errorf("line %s weekday hours: %w", r.ID, err)
	}
	if line.Weekend, err = parseHours(r.WeekendStart, r.WeekendEnd); err != nil {
		return availability.Line{}, fmt.Errorf("line %s weekend hours: %w", r.ID, err)
	}
	if line.ServiceStart, err = availability.ParseDate(r.ServiceStart); err != nil {
		return availability.Line{}, fmt.Errorf("line %s service start: %w", r.ID, err)
	}
	if err := line.Validate(); err != nil {
		return availability.Line{}, err
	}
	return line, nil
}

func parseHours(start, end string) (availability.OperatingHours, error) {
	s, err := availability.ParseTimeOfDay(start)
	if err != nil {
		return availability.OperatingHours{}, err
	}
	e, err := availability.ParseTimeOfDay(end)
	if err != nil {
		return availability.OperatingHours{}, err
	}
	return availability.OperatingHours{Start: s, End: e}, nil
}

// IncidentRecord is a stored incident with its affected line ids
type IncidentRecord struct {
	ID         string
	Type       string
	Title      string
	Start      time.Time
	End        *time.Time
	Recurrence string
	LineIDs    []string
}

// Definition converts the record into an engine incident definition. Interval
// and recurrence validation is left to the engine.
func (r IncidentRecord) Definition() (availability.IncidentDefinition, error) {
	typ, err := availability.ParseIncidentType(r.Type)
	if err != nil {
		return availability.IncidentDefinition{}, &availability.IncidentError{IncidentID: r.ID, Err: err}
	}
	return availability.IncidentDefinition{
		ID:         r.ID,
		Type:       typ,
		Title:      r.Title,
		LineIDs:    r.LineIDs,
		Start:      r.Start,
		End:        r.End,
		Recurrence: r.Recurrence,
	}, nil
}

// Build assembles a snapshot from stored records, keeping line order
func Build(lines []LineRecord, holidays []string, incidents []IncidentRecord) (availability.Snapshot, error) {
	var snap availability.Snapshot

	for _, r := range lines {
		l, err := r.Line()
		if err != nil {
			return availability.Snapshot{}, err
		}
		snap.Lines = append(snap.Lines, l)
	}

	dates := make([]availability.Date, 0, len(holidays))
	for _, h := range holidays {
		d, err := availability.ParseDate(h)
		if err != nil {
			return availability.Snapshot{}, fmt.Errorf("holiday: %w", err)
		}
		dates = append(dates, d)
	}
	snap.Holidays = availability.NewHolidayCalendar(dates...)

	for _, r := range incidents {
		def, err := r.Definition()
		if err != nil {
			return availability.Snapshot{}, err
		}
		snap.Incidents = append(snap.Incidents, def)
	}
	return snap, nil
}
