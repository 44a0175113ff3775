package telemetry

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics are the counters recorded by the chat service.
type Metrics struct {
	replies   metric.Int64Counter
	emissions metric.Int64Counter
	dropped   metric.Int64Counter
}

// Reasons a streamed frame did not reach a websocket.
const (
	DropNoSocket     = "no_socket"
	DropSlowConsumer = "slow_consumer"
	DropWriteFailed  = "write_failed"
)

// NewMetrics registers the counters on meter, or on the global meter provider when nil.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}
	replies, err := meter.Int64Counter("travel_agent.replies",
		metric.WithDescription("Completed replies by category and mode"))
	if err != nil {
		return nil, errors.Wrap(err, "register replies counter")
	}
	emissions, err := meter.Int64Counter("travel_agent.stream.emissions",
		metric.WithDescription("Streamed reply emissions published"))
	if err != nil {
		return nil, errors.Wrap(err, "register emissions counter")
	}
	dropped, err := meter.Int64Counter("travel_agent.stream.dropped_frames",
		metric.WithDescription("Streamed frames not delivered to a websocket, by reason"))
	if err != nil {
		return nil, errors.Wrap(err, "register dropped frames counter")
	}
	return &Metrics{replies: replies, emissions: emissions, dropped: dropped}, nil
}

// RecordReply counts one completed reply. mode is "message" or "stream".
func (m *Metrics) RecordReply(ctx context.Context, category, mode string) {
	if m == nil {
		return
	}
	m.replies.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("mode", mode),
	))
}

func (m *Metrics) RecordEmission(ctx context.Context) {
	if m == nil {
		return
	}
	m.emissions.Add(ctx, 1)
}

// RecordDroppedFrames counts n frames lost for reason (one of the Drop* constants).
func (m *Metrics) RecordDroppedFrames(ctx context.Context, reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.dropped.Add(ctx, int64(n), metric.WithAttributes(attribute.String("reason", reason)))
}
