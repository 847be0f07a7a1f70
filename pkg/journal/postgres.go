package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresJournal stores entries in PostgreSQL, for deployments where
// several front-end servers share one journal.
type PostgresJournal struct {
	db *sql.DB
}

// NewPostgresJournal connects using cfg.DSN and ensures the schema exists.
func NewPostgresJournal(cfg Config) (*PostgresJournal, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("PostgreSQL DSN is required")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	j := &PostgresJournal{db: db}
	if err := j.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return j, nil
}

func (j *PostgresJournal) initSchema(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS failures (
		id TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		kind TEXT NOT NULL,
		message TEXT NOT NULL,
		error TEXT,
		attempts INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_failures_created_at ON failures(created_at);
	CREATE INDEX IF NOT EXISTS idx_failures_kind ON failures(kind);
	`)
	return err
}

// Record inserts e; re-recording the same id is ignored.
func (j *PostgresJournal) Record(ctx context.Context, e Entry) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO failures (id, operation, kind, message, error, attempts, outcome, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.Operation, e.Kind, e.Message, e.Error, e.Attempts, e.Outcome, e.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to record failure %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *PostgresJournal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, operation, kind, message, error, attempts, outcome, created_at
		FROM failures ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// CountByKind tallies entries per failure kind.
func (j *PostgresJournal) CountByKind(ctx context.Context) (map[string]int, error) {
	return countByKind(ctx, j.db)
}

// Close closes the database.
func (j *PostgresJournal) Close() error {
	return j.db.Close()
}
