package emit

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func attributeMap(attrs []attribute.KeyValue) map[string]any {
	out := map[string]any{}
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func newTestTracer(t *testing.T) (*tracetest.InMemoryExporter, *OTelEmitter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	otel.SetTracerProvider(tp)
	return exporter, NewOTelEmitter(otel.Tracer("test"))
}

func TestOTelEmitter_Emit(t *testing.T) {
	exporter, emitter := newTestTracer(t)

	emitter.Emit(Event{
		JobID:  "j1",
		NodeID: "n1",
		FlowID: "f1",
		Msg:    "job_running",
		Meta:   map[string]any{"job_type": "thread", "attempt": 2},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name != "job_running" {
		t.Fatalf("span name = %q, want job_running", span.Name)
	}
	attrs := attributeMap(span.Attributes)
	if attrs["sunmao.job_id"] != "j1" || attrs["sunmao.node_id"] != "n1" || attrs["sunmao.flow_id"] != "f1" {
		t.Fatalf("attrs = %v", attrs)
	}
	if attrs["job_type"] != "thread" || attrs["attempt"] != int64(2) {
		t.Fatalf("meta attrs = %v", attrs)
	}
}

func TestOTelEmitter_ErrorStatus(t *testing.T) {
	exporter, emitter := newTestTracer(t)
	emitter.Emit(Event{Msg: "job_failed", Meta: map[string]any{"error": "boom"}})
	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Fatalf("status = %v, want error", spans[0].Status)
	}
}

func TestOTelEmitter_Batch(t *testing.T) {
	exporter, emitter := newTestTracer(t)
	err := emitter.EmitBatch(context.Background(), []Event{{Msg: "a"}, {Msg: "b"}, {Msg: "c"}})
	if err != nil {
		t.Fatal(err)
	}
	if got := len(exporter.GetSpans()); got != 3 {
		t.Fatalf("spans = %d, want 3", got)
	}
}
