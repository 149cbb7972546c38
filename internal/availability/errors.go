package availability

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRecurrenceRule is returned for malformed, unbounded or oversized rules
	ErrInvalidRecurrenceRule = errors.New("invalid recurrence rule")
	// ErrInvalidInterval is returned when an incident ends before it starts
	ErrInvalidInterval = errors.New("invalid interval")
	// ErrNoServiceWindow is returned for a date before the line's service start
	ErrNoServiceWindow = errors.New("no service window")
	// ErrInvalidBucketCount is returned when fewer than one bucket is requested
	ErrInvalidBucketCount = errors.New("invalid bucket count")
	// ErrUnknownIncidentType is returned for an incident type outside the closed set
	ErrUnknownIncidentType = errors.New("unknown incident type")
	// ErrInvalidGranularity is returned for a granularity other than day, month or year
	ErrInvalidGranularity = errors.New("invalid granularity")
)

// IncidentError ties a data error to the incident that caused it
type IncidentError struct {
	IncidentID string
	Err        error
}

func (e *IncidentError) Error() string {
	return fmt.Sprintf("incident %s: %v", e.IncidentID, e.Err)
}

func (e *IncidentError) Unwrap() error {
	return e.Err
}

func incidentErr(id string, err error) error {
	return &IncidentError{IncidentID: id, Err: err}
}
