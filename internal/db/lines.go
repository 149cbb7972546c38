package db

import (
	"context"
	"fmt"
	"time"

	"github.com/foldaway/mrtdown-data-sub000/internal/availability"
)

// Holiday is a named public holiday
type Holiday struct {
	Date availability.Date
	Name string
}

// UpsertLines inserts or updates lines. The slice order becomes the display
// order of the lines.
func (db *DB) UpsertLines(ctx context.Context, lines []availability.Line) error {
	if len(lines) == 0 {
		return nil
	}
	for _, l := range lines {
		if err := l.Validate(); err != nil {
			return err
		}
	}

	db.LockWrite()
	defer db.UnlockWrite()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO lines (line_id, name, sort_order, weekday_start, weekday_end,
			weekend_start, weekend_end, service_start, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (line_id) DO UPDATE SET
			name = excluded.name,
			sort_order = excluded.sort_order,
			weekday_start = excluded.weekday_start,
			weekday_end = excluded.weekday_end,
			weekend_start = excluded.weekend_start,
			weekend_end = excluded.weekend_end,
			service_start = excluded.service_start,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare line statement: %w", err)
	}
	defer stmt.Close()

	now := formatTime(time.Now())
	for i, l := range lines {
		_, err := stmt.ExecContext(ctx,
			l.ID, l.Name, i,
			l.Weekday.Start.String(), l.Weekday.End.String(),
			l.Weekend.Start.String(), l.Weekend.End.String(),
			l.ServiceStart.String(), now,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert line %s: %w", l.ID, err)
		}
	}

	return tx.Commit()
}

// UpsertHolidays inserts or renames holidays
func (db *DB) UpsertHolidays(ctx context.Context, holidays []Holiday) error {
	if len(holidays) == 0 {
		return nil
	}

	db.LockWrite()
	defer db.UnlockWrite()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, h := range holidays {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO holidays (holiday_date, name) VALUES (?, ?)
			ON CONFLICT (holiday_date) DO UPDATE SET name = excluded.name
		`, h.Date.String(), h.Name)
		if err != nil {
			return fmt.Errorf("failed to upsert holiday %s: %w", h.Date, err)
		}
	}

	return tx.Commit()
}

// LineIDs returns the ids of all stored lines in display order
func (db *DB) LineIDs(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT line_id FROM lines ORDER BY sort_order, line_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query line ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan line id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
