package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestInit_EmptyDirIsNoop(t *testing.T) {
	p, err := Init(context.Background(), Settings{})
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_WritesTraces(t *testing.T) {
	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	})

	dir := filepath.Join(t.TempDir(), "telemetry")
	p, err := Init(context.Background(), Settings{Dir: dir, ServiceName: "travel-agent-test", ServiceVersion: "test"})
	require.NoError(t, err)

	_, span := otel.Tracer(InstrumentationName).Start(context.Background(), "unit")
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))

	b, err := os.ReadFile(filepath.Join(dir, "traces.log"))
	require.NoError(t, err)
	require.Contains(t, string(b), `"unit"`)
	require.Contains(t, string(b), "travel-agent-test")
}

func TestMetrics_Counters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordReply(ctx, "travel", "stream")
	m.RecordReply(ctx, "travel", "stream")
	m.RecordReply(ctx, "greeting", "message")
	for range 5 {
		m.RecordEmission(ctx)
	}
	m.RecordDroppedFrames(ctx, DropSlowConsumer, 3)
	m.RecordDroppedFrames(ctx, DropSlowConsumer, 0)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sums := map[string]metricdata.Sum[int64]{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if s, ok := md.Data.(metricdata.Sum[int64]); ok {
				sums[md.Name] = s
			}
		}
	}

	require.Contains(t, sums, "travel_agent.stream.emissions")
	require.Equal(t, int64(5), sums["travel_agent.stream.emissions"].DataPoints[0].Value)
	require.Equal(t, int64(3), sums["travel_agent.stream.dropped_frames"].DataPoints[0].Value)

	replies := sums["travel_agent.replies"]
	require.Len(t, replies.DataPoints, 2)
	for _, dp := range replies.DataPoints {
		cat, _ := dp.Attributes.Value(attribute.Key("category"))
		switch cat.AsString() {
		case "travel":
			require.Equal(t, int64(2), dp.Value)
		case "greeting":
			require.Equal(t, int64(1), dp.Value)
		default:
			t.Fatalf("unexpected category %q", cat.AsString())
		}
	}
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordReply(context.Background(), "x", "y")
	m.RecordEmission(context.Background())
	m.RecordDroppedFrames(context.Background(), DropNoSocket, 1)
}
