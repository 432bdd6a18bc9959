package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore persists job history in MySQL/MariaDB, for deployments that
// keep run history in a shared database. Connections are pooled; the
// schema is migrated on first use.
//
// DSN format: user:password@tcp(host:3306)/dbname — never hardcode
// credentials, read the DSN from the environment.
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore opens a pooled connection to dsn, verifies it and migrates
// the schema.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS job_history (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			job_id VARCHAR(64) NOT NULL,
			node_id VARCHAR(64) NOT NULL,
			status VARCHAR(16) NOT NULL,
			detail TEXT NOT NULL,
			at VARCHAR(64) NOT NULL,
			INDEX idx_job_history_job_id (job_id)
		) ENGINE=InnoDB
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create job_history table: %w", err)
	}
	return nil
}

// Append inserts one record.
func (s *MySQLStore) Append(ctx context.Context, rec Record) error {
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
func (s *MySQLStore) History(ctx context.Context, jobID string) ([]Record, error) {
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

// Close closes the pool.
func (s *MySQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return s.db.Close()
}
