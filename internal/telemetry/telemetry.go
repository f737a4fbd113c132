// Package telemetry wires OpenTelemetry traces and metrics to rotating log
// files so an OTEL collector can pick them up without any network setup.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Metrics bundles the counters and tracer the game core records against.
// A nil *Metrics is valid and records nothing, which keeps tests quiet.
type Metrics struct {
	tracer            trace.Tracer
	sessionsStarted   metric.Int64Counter
	roundsCompleted   metric.Int64Counter
	generatorFailures metric.Int64Counter
}

// Init sets up the tracer and meter providers with file-backed stdout
// exporters under dir. The returned cleanup flushes and shuts both down.
func Init(ctx context.Context, service, version, dir string) (*Metrics, func(), error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(service),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create resource: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create telemetry dir: %w", err)
	}

	traceFile := &lumberjack.Logger{
		Filename:   filepath.Join(dir, service+"_traces.log"),
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	traceExporter, err := stdouttrace.New(
		stdouttrace.WithWriter(traceFile),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricsFile := &lumberjack.Logger{
		Filename:   filepath.Join(dir, service+"_metrics.log"),
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	metricExporter, err := stdoutmetric.New(
		stdoutmetric.WithWriter(metricsFile),
		stdoutmetric.WithPrettyPrint(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				metricExporter,
				sdkmetric.WithInterval(10*time.Second),
			),
		),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter(service)
	m := &Metrics{tracer: tp.Tracer(service)}
	if m.sessionsStarted, err = meter.Int64Counter("sceneshow.sessions.started"); err != nil {
		return nil, nil, err
	}
	if m.roundsCompleted, err = meter.Int64Counter("sceneshow.rounds.completed"); err != nil {
		return nil, nil, err
	}
	if m.generatorFailures, err = meter.Int64Counter("sceneshow.generator.failures"); err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = traceFile.Close()
		_ = metricsFile.Close()
	}
	return m, cleanup, nil
}

func (m *Metrics) GetTracer() trace.Tracer {
	if m == nil {
		return nil
	}
	return m.tracer
}

func (m *Metrics) AddSessionStarted(mode string) {
	if m == nil || m.sessionsStarted == nil {
		return
	}
	m.sessionsStarted.Add(context.Background(), 1, metric.WithAttributes(attribute.String("mode", mode)))
}

func (m *Metrics) AddRoundCompleted() {
	if m == nil || m.roundsCompleted == nil {
		return
	}
	m.roundsCompleted.Add(context.Background(), 1)
}

func (m *Metrics) AddGeneratorFailure(kind string) {
	if m == nil || m.generatorFailures == nil {
		return
	}
	m.generatorFailures.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// StartSpan opens a span around a generator call; a nil tracer yields a
// nil span that EndSpan accepts.
func StartSpan(tracer trace.Tracer, ctx context.Context, name, room string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, nil
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("room", room)))
}

func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
