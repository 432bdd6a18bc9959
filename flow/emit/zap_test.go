package emit

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapEmitter_Emit(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	emitter := NewZapEmitter(zap.New(core))

	emitter.Emit(Event{
		JobID:  "j1",
		NodeID: "n1",
		FlowID: "f1",
		Msg:    "job_done",
		Meta:   map[string]any{"job_type": "local"},
	})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Message != "job_done" || entry.Level != zapcore.InfoLevel {
		t.Fatalf("entry = %v, want info job_done", entry)
	}
	fields := entry.ContextMap()
	if fields["job_id"] != "j1" || fields["node_id"] != "n1" || fields["flow_id"] != "f1" {
		t.Fatalf("fields = %v", fields)
	}
	if fields["job_type"] != "local" {
		t.Fatalf("meta field lost: %v", fields)
	}
}

func TestZapEmitter_FailureLogsAtWarn(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	emitter := NewZapEmitter(zap.New(core))
	emitter.Emit(Event{Msg: "job_failed", Meta: map[string]any{"error": "boom"}})
	entries := logs.All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("entries = %v, want one warn entry", entries)
	}
}

func TestZapEmitter_NilLogger(t *testing.T) {
	emitter := NewZapEmitter(nil)
	emitter.Emit(Event{Msg: "ok"}) // must not panic
	if err := emitter.EmitBatch(context.Background(), []Event{{Msg: "a"}}); err != nil {
		t.Fatal(err)
	}
}
