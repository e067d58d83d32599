// Package observetest builds [observe.Metrics] over an in-memory reader so
// tests can assert on recorded values.
package observetest

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/nammaroute/companion/internal/observe"
)

// Reader collects metrics recorded through the Metrics it was created with.
type Reader struct {
	t      testing.TB
	reader *sdkmetric.ManualReader
}

// NewMetrics returns isolated metrics and their reader. The meter provider
// is shut down when the test ends.
func NewMetrics(t testing.TB) (*observe.Metrics, *Reader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("observe.NewMetrics: %v", err)
	}
	return m, &Reader{t: t, reader: reader}
}

// Find returns the named metric from a fresh collection, or nil.
func (r *Reader) Find(name string) *metricdata.Metrics {
	r.t.Helper()
	var rm metricdata.ResourceMetrics
	if err := r.reader.Collect(context.Background(), &rm); err != nil {
		r.t.Fatalf("collect metrics: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// Sum returns the total of an int64 counter or up-down counter across the
// data points whose attributes include every key/value pair in match
// (given as alternating keys and values).
func (r *Reader) Sum(name string, match ...string) int64 {
	r.t.Helper()
	m := r.Find(name)
	if m == nil {
		return 0
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		r.t.Fatalf("metric %q is %T, not an int64 sum", name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if hasAttrs(dp.Attributes.ToSlice(), match) {
			total += dp.Value
		}
	}
	return total
}

// Count returns the number of observations of a float64 histogram.
func (r *Reader) Count(name string, match ...string) uint64 {
	r.t.Helper()
	m := r.Find(name)
	if m == nil {
		return 0
	}
	hist, ok := m.Data.(metricdata.Histogram[float64])
	if !ok {
		r.t.Fatalf("metric %q is %T, not a float64 histogram", name, m.Data)
	}
	var total uint64
	for _, dp := range hist.DataPoints {
		if hasAttrs(dp.Attributes.ToSlice(), match) {
			total += dp.Count
		}
	}
	return total
}
