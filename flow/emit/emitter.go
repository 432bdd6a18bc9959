// Package emit provides observability event emission for graph execution:
// job lifecycle transitions, node firings and port pushes flow through an
// Emitter to the backend of your choice.
package emit

import "context"

// Event is one observability event emitted during graph execution.
type Event struct {
	// JobID identifies the job the event belongs to; empty for events not
	// tied to a job.
	JobID string `json:"job_id"`

	// NodeID identifies the node involved, if any.
	NodeID string `json:"node_id"`

	// FlowID identifies the flow involved, if any.
	FlowID string `json:"flow_id,omitempty"`

	// Msg names the event, e.g. "job_submitted", "job_done", "node_fired",
	// "port_push".
	Msg string `json:"msg"`

	// Meta carries additional structured data: "error", "job_type",
	// "status", "port", "duration_ms" and friends.
	Meta map[string]any `json:"meta,omitempty"`
}

// Emitter receives observability events from the engine and the graph.
//
// Implementations should be non-blocking (don't slow the driver down),
// safe for concurrent use, and resilient — Emit must not panic, and backend
// failures must not surface into graph execution.
type Emitter interface {
	// Emit delivers a single event.
	Emit(event Event)

	// EmitBatch delivers multiple events in order in one operation.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush pushes any buffered events to the backend.
	Flush(ctx context.Context) error
}
