package availability

import (
	"sort"
	"time"
)

// Status is the operational state of a line at one instant
type Status string

// Statuses in priority order; the first that applies wins.
const (
	StatusFutureService      Status = "future_service"
	StatusClosedForDay       Status = "closed_for_day"
	StatusOngoingDisruption  Status = "ongoing_disruption"
	StatusOngoingMaintenance Status = "ongoing_maintenance"
	StatusOngoingInfra       Status = "ongoing_infra"
	StatusNormal             Status = "normal"
)

var ongoingStatus = map[IncidentType]Status{
	IncidentDisruption:     StatusOngoingDisruption,
	IncidentMaintenance:    StatusOngoingMaintenance,
	IncidentInfrastructure: StatusOngoingInfra,
}

// LineStatus is the classifier result for one line
type LineStatus struct {
	LineID string
	Status Status
	// Window is the service window containing now, if any
	Window *ServiceWindow
	// ActiveIncidentIDs lists every incident covering now, of any type
	ActiveIncidentIDs []string
}

// Classify returns the status of a line at now
func (e *Engine) Classify(tl Timeline, holidays HolidayCalendar, now time.Time) LineStatus {
	out := LineStatus{LineID: tl.Line.ID, ActiveIncidentIDs: activeIncidents(tl.Intervals, now)}

	today := DateOf(now, e.loc)
	if tl.Line.ServiceStart.After(today) {
		out.Status = StatusFutureService
		return out
	}

	// Only today's window or the overnight tail of yesterday's can contain now.
	for _, day := range []Date{today.AddDays(-1), today} {
		w, err := ResolveWindow(tl.Line, day, holidays, e.loc)
		if err != nil {
			continue
		}
		if w.Bound().Contains(now) {
			out.Window = &w
			break
		}
	}
	if out.Window == nil {
		out.Status = StatusClosedForDay
		return out
	}

	for _, t := range AllIncidentTypes() {
		for _, iv := range tl.Intervals {
			if iv.Type == t && iv.Covers(now) {
				out.Status = ongoingStatus[t]
				return out
			}
		}
	}
	out.Status = StatusNormal
	return out
}

// ClassifyAll classifies every line of the snapshot, in snapshot order
func (e *Engine) ClassifyAll(snap Snapshot, now time.Time) ([]LineStatus, error) {
	timelines, err := e.Timelines(snap)
	if err != nil {
		return nil, err
	}
	out := make([]LineStatus, 0, len(timelines))
	for _, tl := range timelines {
		out = append(out, e.Classify(tl, snap.Holidays, now))
	}
	return out, nil
}

func activeIncidents(intervals []ConcreteInterval, now time.Time) []string {
	seen := make(map[string]bool)
	ids := []string{}
	for _, iv := range intervals {
		if iv.Covers(now) && !seen[iv.IncidentID] {
			seen[iv.IncidentID] = true
			ids = append(ids, iv.IncidentID)
		}
	}
	sort.Strings(ids)
	return ids
}
