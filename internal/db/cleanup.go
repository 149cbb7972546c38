package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Cleanup deletes non-recurring incidents that ended before now-retention and
// ingest runs older than the same horizon. A zero retention keeps everything.
func (db *DB) Cleanup(ctx context.Context, retention time.Duration, now time.Time) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	horizon := formatTime(now.Add(-retention))

	db.LockWrite()
	defer db.UnlockWrite()

	queries := []struct {
		name  string
		query string
	}{
		{
			name:  "incidents",
			query: "DELETE FROM incidents WHERE end_at IS NOT NULL AND end_at < ? AND recurrence = ''",
		},
		{
			name:  "ingest_runs",
			query: "DELETE FROM ingest_runs WHERE polled_at_utc < ?",
		},
	}

	var incidents int64
	for _, q := range queries {
		result, err := db.conn.ExecContext(ctx, q.query, horizon)
		if err != nil {
			return incidents, fmt.Errorf("failed to cleanup %s: %w", q.name, err)
		}
		rows, _ := result.RowsAffected()
		if q.name == "incidents" {
			incidents = rows
		}
		if rows > 0 {
			db.logger.Info("cleanup deleted rows",
				zap.String("table", q.name),
				zap.Int64("rows", rows),
				zap.String("before", horizon))
		}
	}

	return incidents, nil
}
