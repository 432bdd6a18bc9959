package emit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns each event into an OpenTelemetry span: the span name is
// the event message, the job/node/flow ids and the metadata become
// attributes, and an "error" metadata entry sets error status. Spans are
// ended immediately — events are points in time, not durations.
//
// Wire it to whatever tracer provider the application configures:
//
//	tracer := otel.Tracer("sunmao-core")
//	emitter := emit.NewOTelEmitter(tracer)
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an emitter producing spans on tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit creates and ends one span for the event.
func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Msg)
	defer span.End()

	span.SetAttributes(
		attribute.String("sunmao.job_id", event.JobID),
		attribute.String("sunmao.node_id", event.NodeID),
		attribute.String("sunmao.flow_id", event.FlowID),
	)
	for k, v := range event.Meta {
		span.SetAttributes(metaAttribute(k, v))
	}
	if errVal, ok := event.Meta["error"]; ok {
		span.SetStatus(codes.Error, fmt.Sprint(errVal))
	}
}

// EmitBatch creates one span per event.
func (o *OTelEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, event := range events {
		o.Emit(event)
	}
	return nil
}

// Flush is a no-op; span export is the tracer provider's concern.
func (o *OTelEmitter) Flush(context.Context) error { return nil }

// metaAttribute maps a metadata value onto a typed span attribute, falling
// back to the string rendering.
func metaAttribute(key string, v any) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(key, val)
	case bool:
		return attribute.Bool(key, val)
	case int:
		return attribute.Int(key, val)
	case int64:
		return attribute.Int64(key, val)
	case float64:
		return attribute.Float64(key, val)
	default:
		return attribute.String(key, fmt.Sprint(val))
	}
}
