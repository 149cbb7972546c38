package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldaway/mrtdown-data-sub000/internal/availability"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Connect(filepath.Join(t.TempDir(), "status.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.EnsureSchema(context.Background()))
	return db
}

func testLine(id string, start, end availability.TimeOfDay) availability.Line {
	return availability.Line{
		ID:           id,
		Name:         id + " line",
		Weekday:      availability.OperatingHours{Start: start, End: end},
		Weekend:      availability.OperatingHours{Start: start + 1800, End: end},
		ServiceStart: availability.NewDate(2020, time.January, 1),
	}
}

func ptr(t time.Time) *time.Time {
	return &t
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.EnsureSchema(context.Background()))
	require.NoError(t, db.Ping(context.Background()))
	assert.Contains(t, SchemaSQL(), "CREATE TABLE IF NOT EXISTS incidents")
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	lines := []availability.Line{
		testLine("NSL", availability.NewTimeOfDay(5, 30, 0), availability.EndOfDay),
		testLine("CCL", availability.NewTimeOfDay(6, 0, 0), availability.NewTimeOfDay(1, 0, 0)),
	}
	require.NoError(t, db.UpsertLines(ctx, lines))
	require.NoError(t, db.UpsertHolidays(ctx, []Holiday{
		{Date: availability.NewDate(2024, time.May, 1), Name: "Labour Day"},
	}))

	start := time.Date(2024, 3, 4, 2, 0, 0, 0, time.UTC)
	incidents := []availability.IncidentDefinition{
		{
			ID: "closed", Type: availability.IncidentDisruption, Title: "Signal fault",
			LineIDs: []string{"NSL", "CCL"}, Start: start, End: ptr(start.Add(time.Hour)),
		},
		{
			ID: "weekly", Type: availability.IncidentMaintenance, Title: "Track works",
			LineIDs: []string{"CCL"}, Start: start.Add(-24 * time.Hour), End: ptr(start.Add(-22 * time.Hour)),
			Recurrence: "FREQ=WEEKLY;COUNT=4",
		},
		{
			ID: "open", Type: availability.IncidentInfrastructure, Title: "Lift",
			LineIDs: []string{"NSL"}, Start: start.Add(2 * time.Hour),
		},
	}
	require.NoError(t, db.UpsertIncidents(ctx, SourceSeed, incidents, start))

	snap, err := db.Snapshot(ctx)
	require.NoError(t, err)

	require.Len(t, snap.Lines, 2)
	assert.Equal(t, "NSL", snap.Lines[0].ID, "lines keep insertion order")
	assert.Equal(t, lines[0], snap.Lines[0])
	assert.Equal(t, lines[1], snap.Lines[1])
	assert.True(t, snap.Holidays.Contains(availability.NewDate(2024, time.May, 1)))

	require.Len(t, snap.Incidents, 3)
	byID := map[string]availability.IncidentDefinition{}
	for _, inc := range snap.Incidents {
		byID[inc.ID] = inc
	}
	assert.ElementsMatch(t, []string{"NSL", "CCL"}, byID["closed"].LineIDs)
	assert.True(t, byID["closed"].Start.Equal(start))
	require.NotNil(t, byID["closed"].End)
	assert.True(t, byID["closed"].End.Equal(start.Add(time.Hour)))
	assert.Equal(t, "FREQ=WEEKLY;COUNT=4", byID["weekly"].Recurrence)
	assert.Nil(t, byID["open"].End)
	assert.Equal(t, availability.IncidentInfrastructure, byID["open"].Type)
}

func TestUpsertIncidentsReplacesLines(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	start := time.Date(2024, 3, 4, 2, 0, 0, 0, time.UTC)

	inc := availability.IncidentDefinition{
		ID: "i", Type: availability.IncidentDisruption, LineIDs: []string{"NSL", "EWL"}, Start: start,
	}
	require.NoError(t, db.UpsertIncidents(ctx, SourceGTFSRT, []availability.IncidentDefinition{inc}, start))

	inc.LineIDs = []string{"EWL"}
	inc.End = ptr(start.Add(time.Hour))
	require.NoError(t, db.UpsertIncidents(ctx, SourceGTFSRT, []availability.IncidentDefinition{inc}, start.Add(time.Minute)))

	snap, err := db.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Incidents, 1)
	assert.Equal(t, []string{"EWL"}, snap.Incidents[0].LineIDs)
	require.NotNil(t, snap.Incidents[0].End)

	err = db.UpsertIncidents(ctx, SourceGTFSRT, []availability.IncidentDefinition{{Title: "no id", Start: start}}, start)
	assert.Error(t, err)
}

func TestUpsertLinesRejectsInvalidHours(t *testing.T) {
	line := testLine("BAD", availability.EndOfDay, availability.NewTimeOfDay(1, 0, 0))
	err := openTestDB(t).UpsertLines(context.Background(), []availability.Line{line})
	assert.Error(t, err)
}

func TestCloseMissingIncidents(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	start := time.Date(2024, 3, 4, 2, 0, 0, 0, time.UTC)

	open := func(id string) availability.IncidentDefinition {
		return availability.IncidentDefinition{ID: id, Type: availability.IncidentDisruption, LineIDs: []string{"NSL"}, Start: start}
	}
	require.NoError(t, db.UpsertIncidents(ctx, SourceGTFSRT, []availability.IncidentDefinition{open("a"), open("b"), open("c")}, start))
	require.NoError(t, db.UpsertIncidents(ctx, SourceManual, []availability.IncidentDefinition{open("manual")}, start))

	closedAt := start.Add(90 * time.Minute)
	n, err := db.CloseMissingIncidents(ctx, SourceGTFSRT, []string{"b"}, closedAt)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	snap, err := db.Snapshot(ctx)
	require.NoError(t, err)
	for _, inc := range snap.Incidents {
		switch inc.ID {
		case "a", "c":
			require.NotNil(t, inc.End, inc.ID)
			assert.True(t, inc.End.Equal(closedAt))
		default:
			assert.Nil(t, inc.End, inc.ID)
		}
	}

	n, err = db.CloseMissingIncidents(ctx, SourceGTFSRT, nil, closedAt)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "an empty feed closes everything still open")
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	old := now.Add(-60 * 24 * time.Hour)

	incidents := []availability.IncidentDefinition{
		{ID: "old", Type: availability.IncidentDisruption, Start: old, End: ptr(old.Add(time.Hour))},
		{ID: "old-recurring", Type: availability.IncidentMaintenance, Start: old, End: ptr(old.Add(time.Hour)), Recurrence: "FREQ=DAILY;COUNT=200"},
		{ID: "recent", Type: availability.IncidentDisruption, Start: now.Add(-time.Hour), End: ptr(now)},
		{ID: "open", Type: availability.IncidentDisruption, Start: old},
	}
	require.NoError(t, db.UpsertIncidents(ctx, SourceSeed, incidents, now))
	_, err := db.RecordIngestRun(ctx, IngestRun{Source: SourceGTFSRT, PolledAt: old})
	require.NoError(t, err)
	runID, err := db.RecordIngestRun(ctx, IngestRun{Source: SourceGTFSRT, PolledAt: now, AlertsSeen: 3})
	require.NoError(t, err)
	assert.Len(t, runID, 36)

	n, err := db.Cleanup(ctx, 0, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = db.Cleanup(ctx, 30*24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	snap, err := db.Snapshot(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(snap.Incidents))
	for _, inc := range snap.Incidents {
		ids = append(ids, inc.ID)
	}
	assert.ElementsMatch(t, []string{"old-recurring", "recent", "open"}, ids)

	var runs int
	require.NoError(t, db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM ingest_runs").Scan(&runs))
	assert.Equal(t, 1, runs)
}
