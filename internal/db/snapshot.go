package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/foldaway/mrtdown-data-sub000/internal/availability"
	"github.com/foldaway/mrtdown-data-sub000/internal/store"
)

// Snapshot loads lines, holidays and incidents in one read transaction
func (db *DB) Snapshot(ctx context.Context) (availability.Snapshot, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return availability.Snapshot{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	lines, err := queryLines(ctx, tx)
	if err != nil {
		return availability.Snapshot{}, err
	}
	holidays, err := queryHolidays(ctx, tx)
	if err != nil {
		return availability.Snapshot{}, err
	}
	incidents, err := queryIncidents(ctx, tx)
	if err != nil {
		return availability.Snapshot{}, err
	}

	return store.Build(lines, holidays, incidents)
}

func queryLines(ctx context.Context, tx *sql.Tx) ([]store.LineRecord, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT line_id, name, weekday_start, weekday_end, weekend_start, weekend_end, service_start
		FROM lines
		ORDER BY sort_order, line_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query lines: %w", err)
	}
	defer rows.Close()

	var lines []store.LineRecord
	for rows.Next() {
		var r store.LineRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.WeekdayStart, &r.WeekdayEnd,
			&r.WeekendStart, &r.WeekendEnd, &r.ServiceStart); err != nil {
			return nil, fmt.Errorf("failed to scan line row: %w", err)
		}
		lines = append(lines, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating line rows: %w", err)
	}
	return lines, nil
}

func queryHolidays(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT holiday_date FROM holidays ORDER BY holiday_date")
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan holiday row: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holiday rows: %w", err)
	}
	return dates, nil
}

func queryIncidents(ctx context.Context, tx *sql.Tx) ([]store.IncidentRecord, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT incident_id, incident_type, title, start_at, end_at, recurrence
		FROM incidents
		ORDER BY start_at, incident_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	var (
		incidents []store.IncidentRecord
		index     = make(map[string]int)
	)
	for rows.Next() {
		var (
			r       store.IncidentRecord
			startAt string
			endAt   sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Type, &r.Title, &startAt, &endAt, &r.Recurrence); err != nil {
			return nil, fmt.Errorf("failed to scan incident row: %w", err)
		}
		if r.Start, err = parseTime(startAt); err != nil {
			return nil, fmt.Errorf("incident %s start: %w", r.ID, err)
		}
		if endAt.Valid {
			end, err := parseTime(endAt.String)
			if err != nil {
				return nil, fmt.Errorf("incident %s end: %w", r.ID, err)
			}
			r.End = &end
		}
		index[r.ID] = len(incidents)
		incidents = append(incidents, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating incident rows: %w", err)
	}
	rows.Close()

	lineRows, err := tx.QueryContext(ctx, "SELECT incident_id, line_id FROM incident_lines ORDER BY incident_id, line_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query incident lines: %w", err)
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var incidentID, lineID string
		if err := lineRows.Scan(&incidentID, &lineID); err != nil {
			return nil, fmt.Errorf("failed to scan incident line row: %w", err)
		}
		if i, ok := index[incidentID]; ok {
			incidents[i].LineIDs = append(incidents[i].LineIDs, lineID)
		}
	}
	if err := lineRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating incident line rows: %w", err)
	}
	return incidents, nil
}
