// Package seed loads line, holiday and incident fixtures from YAML.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/foldaway/mrtdown-data-sub000/internal/availability"
	"github.com/foldaway/mrtdown-data-sub000/internal/db"
)

// incidentNamespace derives stable ids for incidents declared without one, so
// re-seeding the same file updates rows instead of duplicating them.
var incidentNamespace = uuid.MustParse("8f7d3c1e-5b0a-4f7e-9d7c-2a6b1e4c9f30")

// File mirrors the YAML document
type File struct {
	Lines     []LineDoc     `yaml:"lines"`
	Holidays  []HolidayDoc  `yaml:"holidays"`
	Incidents []IncidentDoc `yaml:"incidents"`
}

// HoursDoc is an operating window in HH:MM form
type HoursDoc struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// LineDoc describes one line
type LineDoc struct {
	ID           string    `yaml:"id"`
	Name         string    `yaml:"name"`
	Weekday      HoursDoc  `yaml:"weekday"`
	Weekend      *HoursDoc `yaml:"weekend"`
	ServiceStart string    `yaml:"service_start"`
}

// HolidayDoc describes one public holiday
type HolidayDoc struct {
	Date string `yaml:"date"`
	Name string `yaml:"name"`
}

// IncidentDoc describes one incident. Start and End accept RFC 3339 or a
// local "YYYY-MM-DD HH:MM" in the operating timezone.
type IncidentDoc struct {
	ID         string   `yaml:"id"`
	Type       string   `yaml:"type"`
	Title      string   `yaml:"title"`
	Lines      []string `yaml:"lines"`
	Start      string   `yaml:"start"`
	End        string   `yaml:"end"`
	Recurrence string   `yaml:"recurrence"`
}

// Fixture is a validated seed file
type Fixture struct {
	Lines     []availability.Line
	Holidays  []db.Holiday
	Incidents []availability.IncidentDefinition
}

// Load reads and validates the seed file at path
func Load(path string, loc *time.Location, maxOccurrences int) (*Fixture, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	return Parse(content, loc, maxOccurrences)
}

// Parse decodes and validates a seed document. Every incident must reference
// declared lines when the document declares any, and recurring incidents
// must expand within maxOccurrences.
func Parse(content []byte, loc *time.Location, maxOccurrences int) (*Fixture, error) {
	var doc File
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	fx := &Fixture{}
	known := make(map[string]bool)
	for i, ld := range doc.Lines {
		line, err := ld.line()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
		if known[line.ID] {
			return nil, fmt.Errorf("line %s declared twice", line.ID)
		}
		known[line.ID] = true
		fx.Lines = append(fx.Lines, line)
	}

	for i, hd := range doc.Holidays {
		d, err := availability.ParseDate(hd.Date)
		if err != nil {
			return nil, fmt.Errorf("holiday %d: %w", i, err)
		}
		fx.Holidays = append(fx.Holidays, db.Holiday{Date: d, Name: hd.Name})
	}

	expander := availability.NewExpander(loc, maxOccurrences)
	ids := make(map[string]bool)
	for i, id := range doc.Incidents {
		inc, err := id.definition(loc)
		if err != nil {
			return nil, fmt.Errorf("incident %d: %w", i, err)
		}
		if ids[inc.ID] {
			return nil, fmt.Errorf("incident %s declared twice", inc.ID)
		}
		ids[inc.ID] = true
		if len(known) > 0 {
			for _, lineID := range inc.LineIDs {
				if !known[lineID] {
					return nil, fmt.Errorf("incident %s references unknown line %s", inc.ID, lineID)
				}
			}
		}
		if _, err := expander.Expand(inc); err != nil {
			return nil, err
		}
		fx.Incidents = append(fx.Incidents, inc)
	}

	return fx, nil
}

func (ld LineDoc) line() (availability.Line, error) {
	if ld.ID == "" {
		return availability.Line{}, errors.New("id is required")
	}
	weekday, err := ld.Weekday.hours()
	if err != nil {
		return availability.Line{}, fmt.Errorf("line %s weekday: %w", ld.ID, err)
	}
	weekend := weekday
	if ld.Weekend != nil {
		if weekend, err = ld.Weekend.hours(); err != nil {
			return availability.Line{}, fmt.Errorf("line %s weekend: %w", ld.ID, err)
		}
	}
	start, err := availability.ParseDate(ld.ServiceStart)
	if err != nil {
		return availability.Line{}, fmt.Errorf("line %s service_start: %w", ld.ID, err)
	}

	line := availability.Line{
		ID:           ld.ID,
		Name:         ld.Name,
		Weekday:      weekday,
		Weekend:      weekend,
		ServiceStart: start,
	}
	return line, line.Validate()
}

func (hd HoursDoc) hours() (availability.OperatingHours, error) {
	start, err := availability.ParseTimeOfDay(hd.Start)
	if err != nil {
		return availability.OperatingHours{}, err
	}
	end, err := availability.ParseTimeOfDay(hd.End)
	if err != nil {
		return availability.OperatingHours{}, err
	}
	h := availability.OperatingHours{Start: start, End: end}
	return h, h.Validate()
}

func (doc IncidentDoc) definition(loc *time.Location) (availability.IncidentDefinition, error) {
	typ, err := availability.ParseIncidentType(doc.Type)
	if err != nil {
		return availability.IncidentDefinition{}, err
	}
	start, err := parseTimestamp(doc.Start, loc)
	if err != nil {
		return availability.IncidentDefinition{}, fmt.Errorf("start: %w", err)
	}

	inc := availability.IncidentDefinition{
		ID:         doc.ID,
		Type:       typ,
		Title:      doc.Title,
		LineIDs:    doc.Lines,
		Start:      start,
		Recurrence: doc.Recurrence,
	}
	if doc.End != "" {
		end, err := parseTimestamp(doc.End, loc)
		if err != nil {
			return availability.IncidentDefinition{}, fmt.Errorf("end: %w", err)
		}
		inc.End = &end
	}
	if inc.ID == "" {
		key := fmt.Sprintf("%s|%s|%s", inc.Type, inc.Title, inc.Start.UTC().Format(time.RFC3339))
		inc.ID = uuid.NewSHA1(incidentNamespace, []byte(key)).String()
	}
	return inc, nil
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return t, nil
}

// Writer is the persistence a fixture is applied to. *db.DB satisfies it.
type Writer interface {
	UpsertLines(ctx context.Context, lines []availability.Line) error
	UpsertHolidays(ctx context.Context, holidays []db.Holiday) error
	UpsertIncidents(ctx context.Context, source string, incidents []availability.IncidentDefinition, seenAt time.Time) error
}

// Apply writes the fixture with incidents attributed to the seed source
func (fx *Fixture) Apply(ctx context.Context, w Writer, seenAt time.Time) error {
	if err := w.UpsertLines(ctx, fx.Lines); err != nil {
		return fmt.Errorf("seed lines: %w", err)
	}
	if err := w.UpsertHolidays(ctx, fx.Holidays); err != nil {
		return fmt.Errorf("seed holidays: %w", err)
	}
	if err := w.UpsertIncidents(ctx, db.SourceSeed, fx.Incidents, seenAt); err != nil {
		return fmt.Errorf("seed incidents: %w", err)
	}
	return nil
}
