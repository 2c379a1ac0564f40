// Copyright 2026 fanjia1024

package tracing

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpans_RecordAttributes(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	ctx, run := StartRunSpan(context.Background(), "run-1", 7)
	_, tool := StartToolSpan(ctx, "search_kb", "run-1")
	tool.End()
	run.End()

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans: got %d", len(spans))
	}
	if spans[0].Name() != "tool.invoke" || spans[1].Name() != "agent.run" {
		t.Fatalf("span names: %s, %s", spans[0].Name(), spans[1].Name())
	}
	if spans[0].Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Fatal("tool span should be child of run span")
	}
}

func TestInitTracer_SetsGlobalProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	tp, err := InitTracer(OTelConfig{ServiceName: "support-agent-test", ExportEndpoint: "127.0.0.1:4318", Insecure: true})
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	if otel.GetTracerProvider() != tp {
		t.Fatal("global tracer provider not replaced")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = tp.Shutdown(ctx)
}
