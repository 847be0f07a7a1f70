package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteJournal stores entries in a local SQLite database.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens (or creates) the database at dbPath.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	// WAL + busy timeout so the CLI can read while a server writes.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	j := &SQLiteJournal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return j, nil
}

func (j *SQLiteJournal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS failures (
		id TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		kind TEXT NOT NULL,
		message TEXT NOT NULL,
		error TEXT,
		attempts INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_failures_created_at ON failures(created_at);
	CREATE INDEX IF NOT EXISTS idx_failures_kind ON failures(kind);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Record inserts e.
func (j *SQLiteJournal) Record(ctx context.Context, e Entry) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO failures (id, operation, kind, message, error, attempts, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Operation, e.Kind, e.Message, e.Error, e.Attempts, e.Outcome, e.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to record failure %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *SQLiteJournal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, operation, kind, message, error, attempts, outcome, created_at
		FROM failures ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// CountByKind tallies entries per failure kind.
func (j *SQLiteJournal) CountByKind(ctx context.Context) (map[string]int, error) {
	return countByKind(ctx, j.db)
}

// Close closes the database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var errText sql.NullString
		if err := rows.Scan(&e.ID, &e.Operation, &e.Kind, &e.Message, &errText, &e.Attempts, &e.Outcome, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		e.Error = errText.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func countByKind(ctx context.Context, db *sql.DB) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM failures GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count failures: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}
