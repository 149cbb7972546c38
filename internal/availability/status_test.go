package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classify(t *testing.T, line Line, incidents []IncidentDefinition, now time.Time) LineStatus {
	t.Helper()
	statuses, err := New(sgt).ClassifyAll(Snapshot{Lines: []Line{line}, Incidents: incidents}, now)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	return statuses[0]
}

func TestClassifyOpenDisruptionFromYesterday(t *testing.T) {
	line := standardLine(t, "NSL")
	incidents := []IncidentDefinition{{
		ID:      "track-fault",
		Type:    IncidentDisruption,
		LineIDs: []string{"NSL"},
		Start:   at(2024, time.March, 4, 22, 0),
	}}

	for _, now := range []time.Time{
		at(2024, time.March, 5, 5, 30),
		at(2024, time.March, 5, 12, 0),
		at(2024, time.March, 5, 23, 59),
	} {
		got := classify(t, line, incidents, now)
		assert.Equal(t, StatusOngoingDisruption, got.Status, "at %s", now)
		assert.Equal(t, []string{"track-fault"}, got.ActiveIncidentIDs)
	}

	closed := classify(t, line, incidents, at(2024, time.March, 5, 3, 0))
	assert.Equal(t, StatusClosedForDay, closed.Status)
	assert.Nil(t, closed.Window)
	assert.Equal(t, []string{"track-fault"}, closed.ActiveIncidentIDs)

	future := line
	future.ServiceStart = NewDate(2024, time.March, 10)
	assert.Equal(t, StatusFutureService, classify(t, future, incidents, at(2024, time.March, 5, 12, 0)).Status)
}

func TestClassifyPriority(t *testing.T) {
	line := standardLine(t, "EWL")
	now := at(2024, time.March, 5, 12, 0)
	incident := func(id string, typ IncidentType) IncidentDefinition {
		return IncidentDefinition{
			ID:      id,
			Type:    typ,
			LineIDs: []string{"EWL"},
			Start:   at(2024, time.March, 5, 11, 0),
			End:     ptr(at(2024, time.March, 5, 13, 0)),
		}
	}

	tests := []struct {
		name      string
		incidents []IncidentDefinition
		want      Status
	}{
		{"none", nil, StatusNormal},
		{"infra only", []IncidentDefinition{incident("i", IncidentInfrastructure)}, StatusOngoingInfra},
		{"maintenance beats infra", []IncidentDefinition{incident("i", IncidentInfrastructure), incident("m", IncidentMaintenance)}, StatusOngoingMaintenance},
		{"disruption beats all", []IncidentDefinition{incident("m", IncidentMaintenance), incident("d", IncidentDisruption), incident("i", IncidentInfrastructure)}, StatusOngoingDisruption},
		{"ended incident", []IncidentDefinition{{
			ID: "old", Type: IncidentDisruption, LineIDs: []string{"EWL"},
			Start: at(2024, time.March, 5, 9, 0), End: ptr(at(2024, time.March, 5, 12, 0)),
		}}, StatusNormal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(t, line, tc.incidents, now)
			assert.Equal(t, tc.want, got.Status)
			assert.Len(t, got.ActiveIncidentIDs, len(tc.incidents)-countEnded(tc.incidents, now))
		})
	}
}

func TestClassifyOvernightTail(t *testing.T) {
	line := overnightLine(t, "CCL")

	got := classify(t, line, nil, at(2024, time.March, 5, 0, 30))
	assert.Equal(t, StatusNormal, got.Status)
	require.NotNil(t, got.Window)
	assert.Equal(t, NewDate(2024, time.March, 4), got.Window.Date)

	got = classify(t, line, nil, at(2024, time.March, 5, 1, 0))
	assert.Equal(t, StatusClosedForDay, got.Status, "window end is exclusive")
}

func TestClassifyAllInvalidIncident(t *testing.T) {
	_, err := New(sgt).ClassifyAll(Snapshot{
		Lines: []Line{standardLine(t, "NSL")},
		Incidents: []IncidentDefinition{{
			ID: "bad", Type: IncidentDisruption, LineIDs: []string{"NSL"},
			Start: at(2024, time.March, 5, 9, 0), End: ptr(at(2024, time.March, 5, 8, 0)),
		}},
	}, at(2024, time.March, 5, 12, 0))
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func countEnded(incidents []IncidentDefinition, now time.Time) int {
	n := 0
	for _, def := range incidents {
		if def.End != nil && !now.Before(*def.End) {
			n++
		}
	}
	return n
}
