package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// recordSpans installs a recording tracer provider for the duration of t.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return recorder
}

func attrMap(kvs []attribute.KeyValue) map[attribute.Key]string {
	m := make(map[attribute.Key]string, len(kvs))
	for _, kv := range kvs {
		m[kv.Key] = kv.Value.Emit()
	}
	return m
}

func TestStartDBSpan(t *testing.T) {
	tests := []struct {
		name      string
		system    DBSystem
		table     string
		operation DBOperation
		wantName  string
	}{
		{"postgres list", DBSystemPostgres, "candidates", DBOperationQuery, "query candidates"},
		{"postgres upsert", DBSystemPostgres, "candidates", DBOperationUpsert, "upsert candidates"},
		{"sqlite schema", DBSystemSQLite, "candidates", DBOperationExec, "exec candidates"},
		{"sqlite delete", DBSystemSQLite, "candidates", DBOperationDelete, "delete candidates"},
		{"no table", DBSystemPostgres, "", DBOperationQuery, "query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := recordSpans(t)

			_, endSpan := StartDBSpan(context.Background(), tt.system, tt.table, tt.operation)
			endSpan(nil)

			spans := recorder.Ended()
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			span := spans[0]
			if span.Name() != tt.wantName {
				t.Errorf("expected span name %q, got %q", tt.wantName, span.Name())
			}
			if span.SpanKind() != trace.SpanKindClient {
				t.Errorf("expected client span, got %v", span.SpanKind())
			}

			attrs := attrMap(span.Attributes())
			if attrs["db.system"] != string(tt.system) {
				t.Errorf("db.system = %q", attrs["db.system"])
			}
			if attrs["db.operation"] != string(tt.operation) {
				t.Errorf("db.operation = %q", attrs["db.operation"])
			}
			table, ok := attrs["db.sql.table"]
			if tt.table == "" && ok {
				t.Error("unexpected db.sql.table attribute")
			}
			if tt.table != "" && table != tt.table {
				t.Errorf("db.sql.table = %q", table)
			}
		})
	}
}

func TestStartDBSpan_WithError(t *testing.T) {
	recorder := recordSpans(t)
	dbErr := errors.New("connection reset")

	_, endSpan := StartDBSpan(context.Background(), DBSystemPostgres, "candidates", DBOperationQuery)
	endSpan(dbErr)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	status := spans[0].Status()
	if status.Code != codes.Error || status.Description != dbErr.Error() {
		t.Errorf("unexpected status %+v", status)
	}
	if len(spans[0].Events()) == 0 {
		t.Error("expected the error to be recorded as an event")
	}
}

func TestStartSpan(t *testing.T) {
	recorder := recordSpans(t)

	ctx, endParent := StartSpan(context.Background(), "engine.rank", attribute.Int("molrank.candidates", 3))
	_, endChild := StartSpan(ctx, "engine.graph_build")
	endChild(errors.New("too many candidates"))
	endParent(nil)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	child, parent := spans[0], spans[1]
	if parent.Name() != "engine.rank" || child.Name() != "engine.graph_build" {
		t.Fatalf("unexpected span names %q, %q", parent.Name(), child.Name())
	}
	if child.Parent().SpanID() != parent.SpanContext().SpanID() {
		t.Error("child span should be parented to engine.rank")
	}
	if parent.Status().Code == codes.Error {
		t.Error("parent should not carry the child's error")
	}
	if child.Status().Code != codes.Error {
		t.Errorf("child status = %v", child.Status().Code)
	}
	if attrMap(parent.Attributes())["molrank.candidates"] != "3" {
		t.Errorf("missing initial attribute: %v", parent.Attributes())
	}
}

func TestAddEventAndSetAttributes(t *testing.T) {
	recorder := recordSpans(t)

	ctx, span := otel.Tracer("test").Start(context.Background(), "diffusion")
	AddEvent(ctx, "iteration", attribute.Int("step", 1), attribute.Float64("max_delta", 0.02))
	SetAttributes(ctx, attribute.String("molrank.dataset", "demo"), attribute.Int("molrank.k", 8))
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	events := spans[0].Events()
	if len(events) != 1 || events[0].Name != "iteration" || len(events[0].Attributes) != 2 {
		t.Errorf("unexpected events %+v", events)
	}
	attrs := attrMap(spans[0].Attributes())
	if attrs["molrank.dataset"] != "demo" || attrs["molrank.k"] != "8" {
		t.Errorf("unexpected attributes %v", attrs)
	}
}
