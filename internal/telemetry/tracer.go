// Package telemetry sets up OpenTelemetry tracing for the request pipeline.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer used by Spynl packages.
const InstrumentationName = "github.com/SoftwearDevelopment/spynl"

// InitTracer installs a tracer provider exporting to w (stdout when nil)
// and returns its shutdown function.
func InitTracer(serviceName, environment string, w io.Writer, logger *slog.Logger) (func(context.Context) error, error) {
	if w == nil {
		w = os.Stdout
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(serviceName),
			semconv.DeploymentEnvironment(environment),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)

	logger.Info("OpenTelemetry initialized",
		slog.String("service", serviceName),
		slog.String("environment", environment))

	return tp.Shutdown, nil
}

// Tracer returns the Spynl tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// RecordError marks the span in ctx as failed with the escalated error.
func RecordError(ctx context.Context, err error, errType string, status int) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.RecordError(err, trace.WithAttributes(attribute.String("spynl.error.type", errType)))
	span.SetAttributes(
		attribute.String("spynl.error.type", errType),
		semconv.HTTPStatusCode(status),
	)
	if status >= 500 {
		span.SetStatus(codes.Error, errType)
	}
}

// SetEndpoint annotates the span in ctx with the dispatched endpoint.
func SetEndpoint(ctx context.Context, path, plugin string) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("spynl.endpoint", path),
		attribute.String("spynl.plugin", plugin),
	)
}
