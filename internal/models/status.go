package models

import (
	"time"

	"github.com/foldaway/mrtdown-data-sub000/internal/availability"
)

// ServiceWindow is the operating window a line is currently inside
type ServiceWindow struct {
	Date  string    `json:"date"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// LineStatus is the live status of one line
type LineStatus struct {
	LineID            string         `json:"lineId"`
	Status            string         `json:"status"` // "normal", "ongoing_disruption", "ongoing_maintenance", "ongoing_infra", "closed_for_day", "future_service"
	Window            *ServiceWindow `json:"window,omitempty"`
	ActiveIncidentIDs []string       `json:"activeIncidentIds"`
}

// NewLineStatus converts an engine status
func NewLineStatus(s availability.LineStatus) LineStatus {
	out := LineStatus{
		LineID:            s.LineID,
		Status:            string(s.Status),
		ActiveIncidentIDs: s.ActiveIncidentIDs,
	}
	if out.ActiveIncidentIDs == nil {
		out.ActiveIncidentIDs = []string{}
	}
	if s.Window != nil {
		out.Window = &ServiceWindow{
			Date:  s.Window.Date.String(),
			Start: s.Window.Start,
			End:   s.Window.End,
		}
	}
	return out
}
