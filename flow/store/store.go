// Package store provides job-history persistence: every job status
// transition the engine applies can be appended to a Store and queried back
// for introspection. History never feeds back into scheduling.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Record is one job status transition.
type Record struct {
	// JobID identifies the job.
	JobID string

	// NodeID identifies the node that submitted the job, if any.
	NodeID string

	// Status is the status the job transitioned to.
	Status string

	// Detail carries extra context, e.g. the error of a failed transition.
	Detail string

	// At is when the transition was recorded.
	At time.Time
}

// Store persists job history records.
//
// Implementations: MemStore (testing, single process), SQLiteStore (local
// single-file persistence), MySQLStore (shared production database).
type Store interface {
	// Append persists one record. Records for the same job arrive in
	// transition order.
	Append(ctx context.Context, rec Record) error

	// History returns a job's records in append order. An unknown job id
	// yields an empty slice, not an error.
	History(ctx context.Context, jobID string) ([]Record, error)

	// Close releases the backend. Further calls return ErrClosed.
	Close() error
}
