package emit

import (
	"context"
	"sync"
)

// BufferedEmitter captures events in memory for later inspection. It is the
// emitter of choice in tests and debugging sessions; long-running
// production graphs should prefer a draining backend, since the buffer only
// grows until Clear.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events []Event
}

// Filter selects events in History. Zero-valued fields match everything;
// set fields combine with AND.
type Filter struct {
	JobID  string
	NodeID string
	Msg    string
}

// NewBufferedEmitter creates an empty buffer.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{}
}

// Emit appends the event to the buffer.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

// EmitBatch appends the events in order.
func (b *BufferedEmitter) EmitBatch(_ context.Context, events []Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, events...)
	return nil
}

// Flush is a no-op; the buffer is the backend.
func (b *BufferedEmitter) Flush(context.Context) error { return nil }

// History returns the captured events matching the filter, in emission
// order.
func (b *BufferedEmitter) History(f Filter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Event
	for _, ev := range b.events {
		if f.JobID != "" && ev.JobID != f.JobID {
			continue
		}
		if f.NodeID != "" && ev.NodeID != f.NodeID {
			continue
		}
		if f.Msg != "" && ev.Msg != f.Msg {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Len returns the number of captured events.
func (b *BufferedEmitter) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}

// Clear drops every captured event.
func (b *BufferedEmitter) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}
