// Package telemetry sets up OpenTelemetry tracing and metrics exported to
// rotated files, plus the counters recorded for chat replies.
package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const InstrumentationName = "github.com/go-go-golems/travel-agent"

type Settings struct {
	// Dir receives traces.log and metrics.log. Empty disables export.
	Dir            string
	ServiceName    string
	ServiceVersion string
	MetricInterval time.Duration
}

// Providers owns the SDK providers installed as otel globals.
type Providers struct {
	tp      *sdktrace.TracerProvider
	mp      *sdkmetric.MeterProvider
	closers []*lumberjack.Logger
}

// Init installs global tracer and meter providers. With an empty Dir the otel
// no-op globals stay in place and Shutdown does nothing.
func Init(ctx context.Context, s Settings) (*Providers, error) {
	if s.Dir == "" {
		return &Providers{}, nil
	}
	if s.ServiceName == "" {
		s.ServiceName = "travel-agent"
	}
	if s.MetricInterval <= 0 {
		s.MetricInterval = 10 * time.Second
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create telemetry dir %s", s.Dir)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(s.ServiceName),
		semconv.ServiceVersion(s.ServiceVersion),
	))
	if err != nil {
		return nil, errors.Wrap(err, "create otel resource")
	}

	traceFile := rotated(filepath.Join(s.Dir, "traces.log"))
	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(traceFile))
	if err != nil {
		return nil, errors.Wrap(err, "create trace exporter")
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	metricsFile := rotated(filepath.Join(s.Dir, "metrics.log"))
	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(metricsFile))
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, errors.Wrap(err, "create metric exporter")
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(s.MetricInterval))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	log.Info().Str("dir", s.Dir).Msg("telemetry export enabled")

	return &Providers{tp: tp, mp: mp, closers: []*lumberjack.Logger{traceFile, metricsFile}}, nil
}

func rotated(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// Shutdown flushes pending spans and metrics and closes the files.
func (p *Providers) Shutdown(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.tp != nil {
		keep(p.tp.Shutdown(ctx))
	}
	if p.mp != nil {
		keep(p.mp.Shutdown(ctx))
	}
	for _, c := range p.closers {
		keep(c.Close())
	}
	return firstErr
}
