// Package telemetry wires OpenTelemetry tracing and metrics for every
// other component, following the same tracer-per-component convention the
// teacher uses in its hooks package: one named tracer/meter per importing
// package, a stdout exporter for local/dev use, and a no-op provider when
// telemetry is disabled.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Providers holds the constructed trace/meter providers for a process so
// callers can Shutdown them cleanly.
type Providers struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// Setup installs global tracer and meter providers. When enabled is false
// it installs the otel no-op providers, so components that unconditionally
// call otel.Tracer(...)/otel.Meter(...) still work with near-zero
// overhead; this is how RECALL_OTEL_ENABLED=false disables telemetry without the rest
// of the codebase branching on it.
func Setup(enabled bool) (*Providers, error) {
	if !enabled {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return &Providers{}, nil
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("telemetry: trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))
	otel.SetTracerProvider(tp)

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("telemetry: metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))
	otel.SetMeterProvider(mp)

	return &Providers{tracerProvider: tp, meterProvider: mp}, nil
}

// Shutdown flushes and releases any providers this package installed.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return err
		}
	}
	if p.meterProvider != nil {
		return p.meterProvider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns a named tracer for component, following the convention
// every package in this module uses at package-init time.
func Tracer(component string) trace.Tracer {
	return otel.Tracer("github.com/recallgraph/recall/" + component)
}

// Meter returns a named meter for component.
func Meter(component string) metric.Meter {
	return otel.Meter("github.com/recallgraph/recall/" + component)
}
