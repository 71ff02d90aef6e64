package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRecordError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	tests := []struct {
		name   string
		status int
		code   codes.Code
	}{
		{"client error", 400, codes.Unset},
		{"server error", 500, codes.Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, span := tp.Tracer("test").Start(context.Background(), tt.name)
			RecordError(ctx, errors.New("boom"), "InvalidResponse", tt.status)
			SetEndpoint(ctx, "/ping", "spynl.core")
			span.End()

			ended := recorder.Ended()
			got := ended[len(ended)-1]
			if got.Status().Code != tt.code {
				t.Errorf("status code = %v, want %v", got.Status().Code, tt.code)
			}
			if len(got.Events()) != 1 || got.Events()[0].Name != "exception" {
				t.Errorf("events = %v", got.Events())
			}
			attrs := map[string]string{}
			for _, kv := range got.Attributes() {
				attrs[string(kv.Key)] = kv.Value.Emit()
			}
			if attrs["spynl.error.type"] != "InvalidResponse" || attrs["spynl.endpoint"] != "/ping" {
				t.Errorf("attributes = %v", attrs)
			}
		})
	}
}

func TestRecordError_NoSpan(t *testing.T) {
	// must not panic without a recording span
	RecordError(context.Background(), errors.New("boom"), "X", 500)
}

func TestInitTracer(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracer("spynl-test", "test", &buf, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}

	_, span := Tracer().Start(context.Background(), "request")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error = %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"Name":"request"`)) {
		t.Errorf("exported spans = %s", buf.String())
	}
}
