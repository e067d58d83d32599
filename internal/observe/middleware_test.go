package observe

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTelemetry installs an in-memory tracer as the global provider, so
// tests using it must not run in parallel.
func setupTelemetry(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	return m, reader, exp
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/buses/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "missing" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func TestMiddleware_SpanAndCorrelationID(t *testing.T) {
	m, _, exp := setupTelemetry(t)
	h := Middleware(m)(newMux())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/buses/b1", nil))

	if cid := rec.Header().Get("X-Correlation-ID"); len(cid) != 32 {
		t.Errorf("X-Correlation-ID = %q, want 32 hex chars", cid)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "HTTP GET /v1/buses/{id}" {
		t.Errorf("span name = %q", spans[0].Name)
	}
}

func TestMiddleware_RouteLabelAndStatus(t *testing.T) {
	m, reader, exp := setupTelemetry(t)
	h := Middleware(m)(newMux())

	for _, path := range []string{"/v1/buses/b1", "/v1/buses/b2", "/v1/buses/missing", "/nope"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	counts := map[string]uint64{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "nammaroute.http.request.duration" {
				continue
			}
			for _, dp := range met.Data.(metricdata.Histogram[float64]).DataPoints {
				route, _ := dp.Attributes.Value("route")
				counts[route.AsString()] += dp.Count
			}
		}
	}
	if counts["GET /v1/buses/{id}"] != 3 || counts["unmatched"] != 1 {
		t.Errorf("route counts = %v", counts)
	}

	var sawNotFound bool
	for _, s := range exp.GetSpans() {
		for _, a := range s.Attributes {
			if a.Key == "http.response.status_code" && a.Value.AsInt64() == http.StatusNotFound {
				sawNotFound = true
			}
		}
	}
	if !sawNotFound {
		t.Error("no span recorded status 404")
	}
}

func TestMiddleware_PropagatesTraceContext(t *testing.T) {
	m, _, exp := setupTelemetry(t)
	h := Middleware(m)(newMux())

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest(http.MethodGet, "/v1/buses/b1", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("correlation ID = %q, want %q", got, traceID)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].SpanContext.TraceID().String() != traceID {
		t.Errorf("span not joined to incoming trace")
	}
}

func TestMiddleware_LogLineCarriesTraceID(t *testing.T) {
	m, _, _ := setupTelemetry(t)
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })

	rec := httptest.NewRecorder()
	Middleware(m)(newMux()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/buses/b1", nil))

	cid := rec.Header().Get("X-Correlation-ID")
	if cid == "" {
		t.Fatal("no X-Correlation-ID header")
	}
	if line := buf.String(); !strings.Contains(line, "trace_id="+cid) || !strings.Contains(line, "request completed") {
		t.Errorf("log = %q, want request line with trace_id=%s", line, cid)
	}
}
