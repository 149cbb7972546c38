package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foldaway/mrtdown-data-sub000/internal/availability"
)

// Incident sources
const (
	SourceManual = "manual"
	SourceSeed   = "seed"
	SourceGTFSRT = "gtfs-rt"
)

// UpsertIncidents inserts or updates incidents from source and replaces their
// affected lines. seenAt is recorded as the last time the source reported them.
func (db *DB) UpsertIncidents(ctx context.Context, source string, incidents []availability.IncidentDefinition, seenAt time.Time) error {
	if len(incidents) == 0 {
		return nil
	}

	db.LockWrite()
	defer db.UnlockWrite()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	incidentStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO incidents (incident_id, incident_type, title, source, start_at, end_at,
			recurrence, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (incident_id) DO UPDATE SET
			incident_type = excluded.incident_type,
			title = excluded.title,
			source = excluded.source,
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			recurrence = excluded.recurrence,
			last_seen_at = excluded.last_seen_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare incident statement: %w", err)
	}
	defer incidentStmt.Close()

	lineStmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO incident_lines (incident_id, line_id) VALUES (?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare incident line statement: %w", err)
	}
	defer lineStmt.Close()

	seen := formatTime(seenAt)
	for _, inc := range incidents {
		if inc.ID == "" {
			return fmt.Errorf("incident %q has no id", inc.Title)
		}
		_, err := incidentStmt.ExecContext(ctx,
			inc.ID, string(inc.Type), inc.Title, source,
			formatTime(inc.Start), formatTimePtr(inc.End),
			inc.Recurrence, seen, seen,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert incident %s: %w", inc.ID, err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM incident_lines WHERE incident_id = ?", inc.ID); err != nil {
			return fmt.Errorf("failed to clear lines for incident %s: %w", inc.ID, err)
		}
		for _, lineID := range inc.LineIDs {
			if _, err := lineStmt.ExecContext(ctx, inc.ID, lineID); err != nil {
				return fmt.Errorf("failed to insert line for incident %s: %w", inc.ID, err)
			}
		}
	}

	return tx.Commit()
}

// CloseMissingIncidents ends every open incident from source whose id is not
// in activeIDs, setting its end to at. It returns the number of incidents closed.
func (db *DB) CloseMissingIncidents(ctx context.Context, source string, activeIDs []string, at time.Time) (int64, error) {
	db.LockWrite()
	defer db.UnlockWrite()

	args := make([]interface{}, 0, len(activeIDs)+2)
	args = append(args, formatTime(at), source)
	query := "UPDATE incidents SET end_at = ? WHERE source = ? AND end_at IS NULL"

	if len(activeIDs) > 0 {
		placeholders := make([]string, len(activeIDs))
		for i, id := range activeIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		query += fmt.Sprintf(" AND incident_id NOT IN (%s)", strings.Join(placeholders, ","))
	}

	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to close missing incidents: %w", err)
	}
	return result.RowsAffected()
}

// IngestRun summarises one poll of an incident source
type IngestRun struct {
	Source            string
	PolledAt          time.Time
	AlertsSeen        int
	IncidentsUpserted int
	IncidentsClosed   int64
}

// RecordIngestRun stores a poll summary and returns its generated id
func (db *DB) RecordIngestRun(ctx context.Context, run IngestRun) (string, error) {
	runID := uuid.New().String()

	db.LockWrite()
	defer db.UnlockWrite()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO ingest_runs (run_id, source, polled_at_utc, alerts_seen, incidents_upserted, incidents_closed)
		VALUES (?, ?, ?, ?, ?, ?)
	`, runID, run.Source, formatTime(run.PolledAt), run.AlertsSeen, run.IncidentsUpserted, run.IncidentsClosed)
	if err != nil {
		return "", fmt.Errorf("failed to record ingest run: %w", err)
	}

	return runID, nil
}

// IncidentStarts returns the stored start of every incident from source
func (db *DB) IncidentStarts(ctx context.Context, source string) (map[string]time.Time, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT incident_id, start_at FROM incidents WHERE source = ?", source)
	if err != nil {
		return nil, fmt.Errorf("failed to query incident starts: %w", err)
	}
	defer rows.Close()

	starts := make(map[string]time.Time)
	for rows.Next() {
		var id, startAt string
		if err := rows.Scan(&id, &startAt); err != nil {
			return nil, fmt.Errorf("failed to scan incident start: %w", err)
		}
		t, err := parseTime(startAt)
		if err != nil {
			return nil, fmt.Errorf("incident %s start: %w", id, err)
		}
		starts[id] = t
	}
	return starts, rows.Err()
}
