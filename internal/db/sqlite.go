package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// schemaSQL is the single source of truth for the database schema.
//
//go:embed schema.sql
var schemaSQL string

const timeLayout = time.RFC3339

// DB wraps a SQLite database connection with write serialization
type DB struct {
	conn    *sql.DB
	writeMu sync.Mutex // serializes all write transactions
	logger  *zap.Logger
}

// Connect opens a SQLite database with WAL mode and foreign keys enabled
func Connect(dbPath string, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dsn := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer. One connection plus writeMu keeps
	// transactions from the poller and cleanup from interleaving.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.Warn("failed to set pragma", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	logger.Info("connected to SQLite database", zap.String("path", dbPath))
	return &DB{conn: conn, logger: logger}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// LockWrite acquires the write mutex. Must be paired with UnlockWrite.
func (db *DB) LockWrite() {
	db.writeMu.Lock()
}

// UnlockWrite releases the write mutex.
func (db *DB) UnlockWrite() {
	db.writeMu.Unlock()
}

// EnsureSchema creates tables if they don't exist
func (db *DB) EnsureSchema(ctx context.Context) error {
	db.LockWrite()
	defer db.UnlockWrite()

	if _, err := db.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	db.logger.Debug("database schema ensured")
	return nil
}

// SchemaSQL returns the embedded schema for external use (e.g., init scripts).
func SchemaSQL() string {
	return schemaSQL
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
