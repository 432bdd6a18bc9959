package emit

import (
	"context"

	"go.uber.org/zap"
)

// ZapEmitter routes events through a zap structured logger. Job failures
// log at warn level, everything else at info.
type ZapEmitter struct {
	logger *zap.Logger
}

// NewZapEmitter creates a ZapEmitter. A nil logger falls back to zap.NewNop.
func NewZapEmitter(logger *zap.Logger) *ZapEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapEmitter{logger: logger}
}

// Emit logs one event with job/node/flow ids and the metadata as fields.
func (z *ZapEmitter) Emit(event Event) {
	fields := []zap.Field{
		zap.String("job_id", event.JobID),
		zap.String("node_id", event.NodeID),
	}
	if event.FlowID != "" {
		fields = append(fields, zap.String("flow_id", event.FlowID))
	}
	for k, v := range event.Meta {
		fields = append(fields, zap.Any(k, v))
	}
	if event.Msg == "job_failed" {
		z.logger.Warn(event.Msg, fields...)
		return
	}
	z.logger.Info(event.Msg, fields...)
}

// EmitBatch logs the events in order.
func (z *ZapEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, event := range events {
		z.Emit(event)
	}
	return nil
}

// Flush syncs the underlying logger.
func (z *ZapEmitter) Flush(context.Context) error {
	return z.logger.Sync()
}
