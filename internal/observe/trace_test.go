package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestStartSpan_ReachesExporter(t *testing.T) {
	_, _, exp := setupTelemetry(t)
	ctx, span := StartSpan(context.Background(), "assistant.start")
	if !trace.SpanContextFromContext(ctx).IsValid() {
		t.Error("no span context after StartSpan")
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "assistant.start" {
		t.Errorf("spans = %v", spans)
	}
}

func TestWithSpan(t *testing.T) {
	_, _, _ = setupTelemetry(t)

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	WithSpan(context.Background(), base).Info("no span")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("unexpected trace_id without span: %s", buf.String())
	}
	buf.Reset()

	ctx, span := StartSpan(context.Background(), "guide.tourist")
	defer span.End()
	WithSpan(ctx, base).Info("with span")
	tid := trace.SpanContextFromContext(ctx).TraceID().String()
	if out := buf.String(); !strings.Contains(out, "trace_id="+tid) || !strings.Contains(out, "span_id=") {
		t.Errorf("log line missing trace fields: %s", out)
	}
}

func TestWithSpan_NilLogger(t *testing.T) {
	t.Parallel()
	if WithSpan(context.Background(), nil) != slog.Default() {
		t.Error("nil logger should fall back to slog.Default")
	}
}
