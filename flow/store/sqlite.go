package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists job history in a single-file SQLite database.
// Zero-setup local persistence: pass a file path, or ":memory:" for an
// in-memory database that vanishes on Close. WAL mode keeps readers from
// blocking the engine's appends.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore opens (creating if needed) the database at path and
// migrates the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS job_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			status TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			at TEXT NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create job_history table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"CREATE INDEX IF NOT EXISTS idx_job_history_job_id ON job_history(job_id)"); err != nil {
		return fmt.Errorf("create idx_job_history_job_id: %w", err)
	}
	return nil
}

// Append inserts one record.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO job_history (job_id, node_id, status, detail, at) VALUES (?, ?, ?, ?, ?)",
		rec.JobID, rec.NodeID, rec.Status, rec.Detail, rec.At.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append job history: %w", err)
	}
	return nil
}

// History returns the job's records in append order.
func (s *SQLiteStore) History(ctx context.Context, jobID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT job_id, node_id, status, detail, at FROM job_history WHERE job_id = ? ORDER BY id",
		jobID)
	if err != nil {
		return nil, fmt.Errorf("query job history: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanRecords(rows)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return s.db.Close()
}

// scanRecords is shared by the SQL-backed stores; both use the same column
// layout and the RFC 3339 timestamp encoding.
func scanRecords(rows *sql.Rows) ([]Record, error) {
	out := []Record{}
	for rows.Next() {
		var rec Record
		var at string
		if err := rows.Scan(&rec.JobID, &rec.NodeID, &rec.Status, &rec.Detail, &at); err != nil {
			return nil, fmt.Errorf("scan job history row: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse job history timestamp: %w", err)
		}
		rec.At = ts
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job history rows: %w", err)
	}
	return out, nil
}
