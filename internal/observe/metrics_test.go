package observe_test

import (
	"context"
	"testing"

	"github.com/nammaroute/companion/internal/observe"
	"github.com/nammaroute/companion/internal/observe/observetest"
)

func TestNewMetrics_InstrumentNames(t *testing.T) {
	t.Parallel()
	m, r := observetest.NewMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.SessionDuration.Record(ctx, 42)
	m.FramesSent.Add(ctx, 3)
	m.FramesDropped.Add(ctx, 1)
	m.FramesPlayed.Add(ctx, 2)
	m.Interruptions.Add(ctx, 1)
	m.GuideDuration.Record(ctx, 0.8)
	m.HTTPRequestDuration.Record(ctx, 0.01)

	sums := map[string]int64{
		"nammaroute.assistant.sessions":       1,
		"nammaroute.assistant.frames_sent":    3,
		"nammaroute.assistant.frames_dropped": 1,
		"nammaroute.assistant.frames_played":  2,
		"nammaroute.assistant.interruptions":  1,
	}
	for name, want := range sums {
		if got := r.Sum(name); got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}
	for _, name := range []string{
		"nammaroute.assistant.session.duration",
		"nammaroute.guide.duration",
		"nammaroute.http.request.duration",
	} {
		if got := r.Count(name); got != 1 {
			t.Errorf("%s count = %d, want 1", name, got)
		}
	}
}

func TestRecordHelpers(t *testing.T) {
	t.Parallel()
	m, r := observetest.NewMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "gemini", "llm", "ok")
	m.RecordProviderRequest(ctx, "gemini", "llm", "ok")
	m.RecordProviderRequest(ctx, "gemini", "llm", "error")
	m.RecordProviderError(ctx, "gemini", "llm")
	m.RecordSessionStart(ctx, "permission_denied")
	m.RecordCircuitTransition(ctx, "gemini", "open")

	if got := r.Sum("nammaroute.provider.requests", "status", "ok"); got != 2 {
		t.Errorf("ok requests = %d, want 2", got)
	}
	if got := r.Sum("nammaroute.provider.requests"); got != 3 {
		t.Errorf("all requests = %d, want 3", got)
	}
	if got := r.Sum("nammaroute.provider.errors", "provider", "gemini"); got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}
	if got := r.Sum("nammaroute.assistant.session.starts", "status", "permission_denied"); got != 1 {
		t.Errorf("starts = %d, want 1", got)
	}
	if got := r.Sum("nammaroute.provider.circuit_transitions", "to", "open"); got != 1 {
		t.Errorf("transitions = %d, want 1", got)
	}
}

func TestAttr(t *testing.T) {
	t.Parallel()
	kv := observe.Attr("route", "GET /v1/buses")
	if string(kv.Key) != "route" || kv.Value.AsString() != "GET /v1/buses" {
		t.Errorf("Attr = %v", kv)
	}
}
