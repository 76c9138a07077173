// Package tracing wires OpenTelemetry tracing for the HTTP facade. It
// intentionally stays minimal: request spans only (outbound provider calls
// get no spans of their own), no metrics pipeline or exporter
// configuration, since dashboards and alerting are out of scope for this
// system.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Init installs a process-wide TracerProvider tagged with serviceName. It
// registers no span exporter: spans are created and sampled locally so
// downstream otelhttp instrumentation and log correlation (trace_id/span_id)
// work even without a collector configured.
func Init(serviceName string) (func(context.Context) error, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Tracer returns the named tracer from the global TracerProvider. Components
// call this once at construction and reuse the returned Tracer.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
