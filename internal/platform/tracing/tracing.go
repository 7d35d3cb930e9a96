// Package tracing installs the process tracer provider so the otel spans in
// the service and sweep record somewhere.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Setup installs a batching tracer provider exporting to stdout when enabled.
// The returned shutdown flushes pending spans; disabled tracing returns a
// no-op shutdown and leaves the global provider alone (spans become no-ops).
func Setup(enabled bool) (func(context.Context) error, error) {
	if !enabled {
		return func(context.Context) error { return nil }, nil
	}
	exporter, err := stdouttrace.New()
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
