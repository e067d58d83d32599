// Package observe wires OpenTelemetry metrics and tracing for the companion:
// the instruments recorded by the assistant, guide and HTTP layers, the
// Prometheus bridge behind /metrics, and trace-aware logging.
//
// Tests should build their own [Metrics] with [NewMetrics] over a
// ManualReader-backed provider instead of using [DefaultMetrics].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/nammaroute/companion"

// Metrics holds the application's instruments. The OTel types are safe for
// concurrent use.
type Metrics struct {
	// ActiveSessions is 1 while a voice session is active.
	ActiveSessions metric.Int64UpDownCounter

	// SessionDuration records how long each voice session stayed active.
	SessionDuration metric.Float64Histogram

	// SessionStarts counts start attempts by "status" (ok,
	// permission_denied, connect_failed).
	SessionStarts metric.Int64Counter

	// FramesSent counts microphone frames written to the session.
	FramesSent metric.Int64Counter

	// FramesDropped counts microphone frames dropped because the send queue
	// was full.
	FramesDropped metric.Int64Counter

	// FramesPlayed counts reply frames that finished playing.
	FramesPlayed metric.Int64Counter

	// Interruptions counts barge-in signals from the remote service.
	Interruptions metric.Int64Counter

	// GuideDuration records guide generation latency by "kind".
	GuideDuration metric.Float64Histogram

	// ProviderRequests counts provider calls by "provider", "kind" and
	// "status".
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider failures by "provider" and "kind".
	ProviderErrors metric.Int64Counter

	// CircuitTransitions counts breaker state changes by "provider" and "to".
	CircuitTransitions metric.Int64Counter

	// HTTPRequestDuration records API latency by "method" and "route".
	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40}

var sessionBuckets = []float64{5, 15, 30, 60, 120, 300, 600, 1200, 3600}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.ActiveSessions, err = m.Int64UpDownCounter("nammaroute.assistant.sessions",
		metric.WithDescription("Number of active voice sessions."),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("nammaroute.assistant.session.duration",
		metric.WithDescription("Length of voice sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionStarts, err = m.Int64Counter("nammaroute.assistant.session.starts",
		metric.WithDescription("Voice session start attempts by outcome."),
	); err != nil {
		return nil, err
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.FramesSent, "nammaroute.assistant.frames_sent", "Microphone frames sent to the voice service."},
		{&met.FramesDropped, "nammaroute.assistant.frames_dropped", "Microphone frames dropped on a full send queue."},
		{&met.FramesPlayed, "nammaroute.assistant.frames_played", "Reply frames played to completion."},
		{&met.Interruptions, "nammaroute.assistant.interruptions", "Interruption signals received from the voice service."},
		{&met.ProviderRequests, "nammaroute.provider.requests", "Provider requests by provider, kind and status."},
		{&met.ProviderErrors, "nammaroute.provider.errors", "Provider errors by provider and kind."},
		{&met.CircuitTransitions, "nammaroute.provider.circuit_transitions", "Circuit breaker state changes."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.GuideDuration, err = m.Float64Histogram("nammaroute.guide.duration",
		metric.WithDescription("Latency of guide text generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("nammaroute.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide Metrics built on the global meter
// provider. Call it after [InitProvider].
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSessionStart counts a start attempt.
func (m *Metrics) RecordSessionStart(ctx context.Context, status string) {
	m.SessionStarts.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
}

// RecordProviderRequest counts one provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider),
		Attr("kind", kind),
		Attr("status", status),
	))
}

// RecordProviderError counts one provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider),
		Attr("kind", kind),
	))
}

// RecordCircuitTransition counts a breaker moving into state to.
func (m *Metrics) RecordCircuitTransition(ctx context.Context, provider, to string) {
	m.CircuitTransitions.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider),
		Attr("to", to),
	))
}
