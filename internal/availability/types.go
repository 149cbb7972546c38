package availability

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IncidentType is the closed set of incident categories
type IncidentType string

const (
	IncidentDisruption     IncidentType = "disruption"
	IncidentMaintenance    IncidentType = "maintenance"
	IncidentInfrastructure IncidentType = "infrastructure"
)

// AllIncidentTypes returns every incident type in display order
func AllIncidentTypes() []IncidentType {
	return []IncidentType{IncidentDisruption, IncidentMaintenance, IncidentInfrastructure}
}

// DowntimeTypes returns the incident types that count against uptime
func DowntimeTypes() []IncidentType {
	return []IncidentType{IncidentDisruption, IncidentMaintenance}
}

// Valid reports whether t is one of the known incident types
func (t IncidentType) Valid() bool {
	switch t {
	case IncidentDisruption, IncidentMaintenance, IncidentInfrastructure:
		return true
	}
	return false
}

// CountsAsDowntime reports whether incidents of this type reduce the uptime ratio.
// Infrastructure incidents are reported as issues only.
func (t IncidentType) CountsAsDowntime() bool {
	return t == IncidentDisruption || t == IncidentMaintenance
}

// ParseIncidentType parses a stored incident type, accepting the short "infra" alias
func ParseIncidentType(s string) (IncidentType, error) {
	switch t := IncidentType(strings.ToLower(strings.TrimSpace(s))); t {
	case "infra":
		return IncidentInfrastructure, nil
	default:
		if t.Valid() {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownIncidentType, s)
}

// TimeOfDay is a local wall-clock time expressed as seconds after midnight.
// 24:00 is allowed and means the following midnight.
type TimeOfDay int

// EndOfDay is the 24:00 wall-clock time
const EndOfDay TimeOfDay = 24 * 60 * 60

// NewTimeOfDay builds a TimeOfDay from hours, minutes and seconds
func NewTimeOfDay(hour, minute, second int) TimeOfDay {
	return TimeOfDay(hour*3600 + minute*60 + second)
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS" in the range 00:00 to 24:00
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	values := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid time of day %q", s)
		}
		values[i] = v
	}
	if values[1] > 59 || values[2] > 59 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	tod := NewTimeOfDay(values[0], values[1], values[2])
	if tod > EndOfDay {
		return 0, fmt.Errorf("time of day %q is past 24:00", s)
	}
	return tod, nil
}

// Duration returns the offset from midnight
func (t TimeOfDay) Duration() time.Duration {
	return time.Duration(t) * time.Second
}

func (t TimeOfDay) String() string {
	s := int(t)
	if s%60 != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", s/3600, s%3600/60, s%60)
	}
	return fmt.Sprintf("%02d:%02d", s/3600, s%3600/60)
}

// OperatingHours is a pair of local wall-clock times. When End is not after Start
// the window runs into the next calendar day.
type OperatingHours struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Overnight reports whether the window crosses midnight
func (h OperatingHours) Overnight() bool {
	return h.End <= h.Start
}

// Validate rejects windows that cannot be materialised
func (h OperatingHours) Validate() error {
	if h.Start < 0 || h.Start >= EndOfDay {
		return fmt.Errorf("window start %s must be before 24:00", h.Start)
	}
	if h.End < 0 || h.End > EndOfDay {
		return fmt.Errorf("window end %s must not be after 24:00", h.End)
	}
	return nil
}

// Line is a transit line as seen by the engine
type Line struct {
	ID           string
	Name         string
	Weekday      OperatingHours
	Weekend      OperatingHours
	ServiceStart Date
}

// Validate checks the line's operating hours and service start
func (l Line) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("line id is required")
	}
	if err := l.Weekday.Validate(); err != nil {
		return fmt.Errorf("line %s weekday: %w", l.ID, err)
	}
	if err := l.Weekend.Validate(); err != nil {
		return fmt.Errorf("line %s weekend: %w", l.ID, err)
	}
	if l.ServiceStart.IsZero() {
		return fmt.Errorf("line %s has no service start date", l.ID)
	}
	return nil
}

// IncidentDefinition is a stored incident record. A definition with a
// recurrence rule is a template whose Start/End give the first occurrence
// and the duration of every occurrence.
type IncidentDefinition struct {
	ID         string
	Type       IncidentType
	Title      string
	LineIDs    []string
	Start      time.Time
	End        *time.Time
	Recurrence string
}

// Open reports whether the incident has no recorded end
func (d IncidentDefinition) Open() bool {
	return d.End == nil
}

// ConcreteInterval is a non-recurring [Start, End) range. A nil End means the
// interval is still open.
type ConcreteInterval struct {
	IncidentID string
	Type       IncidentType
	Start      time.Time
	End        *time.Time
}

// EndAt returns the interval end, substituting now for an open interval
func (c ConcreteInterval) EndAt(now time.Time) time.Time {
	if c.End == nil {
		return now
	}
	return *c.End
}

// Covers reports whether instant t falls inside the interval
func (c ConcreteInterval) Covers(t time.Time) bool {
	if t.Before(c.Start) {
		return false
	}
	return c.End == nil || t.Before(*c.End)
}

// Bound is an absolute half-open [Start, End) range
type Bound struct {
	Start time.Time
	End   time.Time
}

// Seconds returns the length of the bound, zero when empty
func (b Bound) Seconds() float64 {
	if !b.End.After(b.Start) {
		return 0
	}
	return b.End.Sub(b.Start).Seconds()
}

// Contains reports whether t falls inside the bound
func (b Bound) Contains(t time.Time) bool {
	return !t.Before(b.Start) && t.Before(b.End)
}

// Intersect returns the overlap of two bounds and whether it is non-empty
func (b Bound) Intersect(o Bound) (Bound, bool) {
	out := Bound{Start: laterOf(b.Start, o.Start), End: earlierOf(b.End, o.End)}
	return out, out.End.After(out.Start)
}

// ServiceWindow is the absolute operating range of one line on one calendar day
type ServiceWindow struct {
	LineID string
	Date   Date
	Start  time.Time
	End    time.Time
}

// Bound returns the window as an absolute range
func (w ServiceWindow) Bound() Bound {
	return Bound{Start: w.Start, End: w.End}
}

// ClippedSegment is the part of an incident interval inside a bound. End is
// always after Start.
type ClippedSegment struct {
	IncidentID string
	Type       IncidentType
	Start      time.Time
	End        time.Time
}

// Seconds returns the segment length
func (s ClippedSegment) Seconds() float64 {
	return s.End.Sub(s.Start).Seconds()
}

// Bucket is one reporting period
type Bucket struct {
	Label      string
	Start      time.Time
	End        time.Time
	InProgress bool
}

// Bound returns the bucket range
func (b Bucket) Bound() Bound {
	return Bound{Start: b.Start, End: b.End}
}

// TypeSeconds pairs an incident type with a duration in seconds
type TypeSeconds struct {
	Type    IncidentType
	Seconds float64
}

// IssueStat summarises the incidents of one type inside a period
type IssueStat struct {
	Type          IncidentType
	IDs           []string
	Count         int
	Seconds       float64
	MeanSeconds   float64
	StdDevSeconds float64
}

// MetricRow is the engine output for one line (or the whole network) and one period
type MetricRow struct {
	LineID          string
	Label           string
	Start           time.Time
	End             time.Time
	InProgress      bool
	HasService      bool
	ServiceSeconds  float64
	DowntimeSeconds float64
	DowntimeByType  []TypeSeconds
	UptimeRatio     float64
	Issues          []IssueStat
	Rank            int
	TotalLines      int
}

// Downtime returns the downtime seconds recorded for type t
func (r MetricRow) Downtime(t IncidentType) float64 {
	for _, d := range r.DowntimeByType {
		if d.Type == t {
			return d.Seconds
		}
	}
	return 0
}

// Issue returns the issue summary for type t
func (r MetricRow) Issue(t IncidentType) IssueStat {
	for _, s := range r.Issues {
		if s.Type == t {
			return s
		}
	}
	return IssueStat{Type: t}
}

// Snapshot is the immutable input of one evaluation
type Snapshot struct {
	Lines     []Line
	Incidents []IncidentDefinition
	Holidays  HolidayCalendar
}

// Line returns the line with the given id
func (s Snapshot) Line(id string) (Line, bool) {
	for _, l := range s.Lines {
		if l.ID == id {
			return l, true
		}
	}
	return Line{}, false
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlierOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
