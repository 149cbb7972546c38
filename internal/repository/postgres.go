package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foldaway/mrtdown-data-sub000/internal/availability"
	"github.com/foldaway/mrtdown-data-sub000/internal/store"
)

// PostgresStore reads snapshots from a Postgres database that mirrors the
// SQLite schema, with native DATE and TIMESTAMPTZ columns.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and verifies the connection
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks that the database is reachable
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Snapshot loads lines, holidays and incidents in one repeatable-read transaction
func (s *PostgresStore) Snapshot(ctx context.Context) (availability.Snapshot, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return availability.Snapshot{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	lines, err := s.lines(ctx, tx)
	if err != nil {
		return availability.Snapshot{}, err
	}
	holidays, err := s.holidays(ctx, tx)
	if err != nil {
		return availability.Snapshot{}, err
	}
	incidents, err := s.incidents(ctx, tx)
	if err != nil {
		return availability.Snapshot{}, err
	}

	return store.Build(lines, holidays, incidents)
}

func (s *PostgresStore) lines(ctx context.Context, tx pgx.Tx) ([]store.LineRecord, error) {
	query := `
		SELECT
			line_id,
			name,
			weekday_start,
			weekday_end,
			weekend_start,
			weekend_end,
			service_start
		FROM lines
		ORDER BY sort_order, line_id
	`

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query lines: %w", err)
	}
	defer rows.Close()

	var lines []store.LineRecord
	for rows.Next() {
		var (
			r            store.LineRecord
			serviceStart time.Time
		)
		err := rows.Scan(
			&r.ID,
			&r.Name,
			&r.WeekdayStart,
			&r.WeekdayEnd,
			&r.WeekendStart,
			&r.WeekendEnd,
			&serviceStart,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan line row: %w", err)
		}
		r.ServiceStart = serviceStart.Format("2006-01-02")
		lines = append(lines, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating line rows: %w", err)
	}

	return lines, nil
}

func (s *PostgresStore) holidays(ctx context.Context, tx pgx.Tx) ([]string, error) {
	rows, err := tx.Query(ctx, "SELECT holiday_date FROM holidays ORDER BY holiday_date")
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan holiday row: %w", err)
		}
		dates = append(dates, d.Format("2006-01-02"))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holiday rows: %w", err)
	}

	return dates, nil
}

func (s *PostgresStore) incidents(ctx context.Context, tx pgx.Tx) ([]store.IncidentRecord, error) {
	query := `
		SELECT
			i.incident_id,
			i.incident_type,
			i.title,
			i.start_at,
			i.end_at,
			i.recurrence,
			COALESCE(array_agg(il.line_id ORDER BY il.line_id) FILTER (WHERE il.line_id IS NOT NULL), '{}')
		FROM incidents i
		LEFT JOIN incident_lines il ON il.incident_id = i.incident_id
		GROUP BY i.incident_id
		ORDER BY i.start_at, i.incident_id
	`

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	var incidents []store.IncidentRecord
	for rows.Next() {
		var r store.IncidentRecord
		err := rows.Scan(
			&r.ID,
			&r.Type,
			&r.Title,
			&r.Start,
			&r.End,
			&r.Recurrence,
			&r.LineIDs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident row: %w", err)
		}
		incidents = append(incidents, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating incident rows: %w", err)
	}

	return incidents, nil
}
