package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogEmitter writes events to a writer, either as human-readable text
//
//	[job_done] job=3f2a09e1 node=add meta={"job_type":"thread"}
//
// or as JSONL, one event per line, when jsonMode is set.
type LogEmitter struct {
	mu       sync.Mutex
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a LogEmitter writing to w (os.Stdout when nil).
func NewLogEmitter(w io.Writer, jsonMode bool) *LogEmitter {
	if w == nil {
		w = os.Stdout
	}
	return &LogEmitter{writer: w, jsonMode: jsonMode}
}

// Emit writes one event.
func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.write(event)
}

func (l *LogEmitter) write(event Event) {
	if l.jsonMode {
		data, err := json.Marshal(event)
		if err != nil {
			_, _ = fmt.Fprintf(l.writer, "{\"error\":%q}\n", "marshal event: "+err.Error())
			return
		}
		_, _ = fmt.Fprintf(l.writer, "%s\n", data)
		return
	}
	_, _ = fmt.Fprintf(l.writer, "[%s] job=%s node=%s", event.Msg, short(event.JobID), short(event.NodeID))
	if len(event.Meta) > 0 {
		if metaJSON, err := json.Marshal(event.Meta); err == nil {
			_, _ = fmt.Fprintf(l.writer, " meta=%s", metaJSON)
		} else {
			_, _ = fmt.Fprintf(l.writer, " meta=%v", event.Meta)
		}
	}
	_, _ = fmt.Fprintln(l.writer)
}

// EmitBatch writes the events in order under one lock acquisition.
func (l *LogEmitter) EmitBatch(_ context.Context, events []Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, event := range events {
		l.write(event)
	}
	return nil
}

// Flush is a no-op; events are written as they arrive.
func (l *LogEmitter) Flush(context.Context) error { return nil }

// short abbreviates ids for the text format.
func short(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}
