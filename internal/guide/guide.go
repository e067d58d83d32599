// Package guide generates the companion's text content: tourist descriptions
// of landmarks, full-day itineraries and safety-report protocols.
//
// All three are single non-streaming completions against an [llm.Provider],
// usually a [resilience.LLMFallback] so a failing primary model is bypassed.
package guide

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/nammaroute/companion/internal/observe"
	"github.com/nammaroute/companion/pkg/provider/llm"
)

var (
	// ErrInvalidRequest wraps input validation failures.
	ErrInvalidRequest = errors.New("guide: invalid request")

	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("guide: model returned no content")
)

// Kind names the generated content in metrics and spans.
type Kind string

const (
	KindTourist   Kind = "tourist"
	KindItinerary Kind = "itinerary"
	KindSafety    Kind = "safety"
)

// Option configures a [Generator].
type Option func(*Generator)

// WithMetrics records latency and provider outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.log = l }
}

// WithProviderName labels provider metrics. Default: "llm".
func WithProviderName(name string) Option {
	return func(g *Generator) { g.providerName = name }
}

// WithMaxTokens caps the completion length. Zero keeps the provider default.
func WithMaxTokens(n int) Option {
	return func(g *Generator) { g.maxTokens = n }
}

// Generator produces guide content. It is safe for concurrent use.
type Generator struct {
	llm          llm.Provider
	metrics      *observe.Metrics
	log          *slog.Logger
	providerName string
	maxTokens    int
}

// New returns a Generator backed by p.
func New(p llm.Provider, opts ...Option) *Generator {
	g := &Generator{llm: p, log: slog.Default(), providerName: "llm"}
	for _, o := range opts {
		o(g)
	}
	return g
}

// TouristContent describes a landmark in the given UI language.
func (g *Generator) TouristContent(ctx context.Context, landmark, lang string) (string, error) {
	landmark = strings.TrimSpace(landmark)
	if landmark == "" {
		return "", fmt.Errorf("%w: landmark is required", ErrInvalidRequest)
	}
	return g.generate(ctx, KindTourist, touristPrompt(landmark, lang), touristTemperature,
		attribute.String("landmark", landmark), attribute.String("language", lang))
}

// Itinerary plans a morning/afternoon/evening day trip in a city.
func (g *Generator) Itinerary(ctx context.Context, city, lang string) (string, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return "", fmt.Errorf("%w: city is required", ErrInvalidRequest)
	}
	return g.generate(ctx, KindItinerary, itineraryPrompt(city, lang), itineraryTemperature,
		attribute.String("city", city), attribute.String("language", lang))
}

// SafetyProtocol explains how to file an anonymous report at a location.
// An empty reportType becomes [DefaultReportType].
func (g *Generator) SafetyProtocol(ctx context.Context, lat, lng float64, reportType string) (string, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return "", fmt.Errorf("%w: coordinates %g, %g out of range", ErrInvalidRequest, lat, lng)
	}
	reportType = strings.TrimSpace(reportType)
	if reportType == "" {
		reportType = DefaultReportType
	}
	return g.generate(ctx, KindSafety, safetyPrompt(lat, lng, reportType), 0,
		attribute.String("report_type", reportType))
}

func (g *Generator) generate(ctx context.Context, kind Kind, prompt string, temperature float64, attrs ...attribute.KeyValue) (string, error) {
	ctx, span := observe.StartSpan(ctx, "guide."+string(kind), trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	req := llm.UserPrompt(prompt, temperature)
	req.MaxTokens = g.maxTokens
	resp, err := g.llm.Complete(ctx, req)
	if err == nil && (resp == nil || strings.TrimSpace(resp.Content) == "") {
		err = ErrEmptyResponse
	}
	g.record(ctx, kind, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observe.WithSpan(ctx, g.log).Warn("guide generation failed", "kind", kind, "err", err)
		return "", fmt.Errorf("guide: %s: %w", kind, err)
	}
	if resp.Usage.TotalTokens > 0 {
		span.SetAttributes(attribute.Int("llm.tokens.total", resp.Usage.TotalTokens))
	}
	g.log.Debug("guide generated", "kind", kind, "model", g.llm.Model(), "chars", len(resp.Content), "elapsed", time.Since(start))
	return resp.Content, nil
}

func (g *Generator) record(ctx context.Context, kind Kind, elapsed time.Duration, err error) {
	if g.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		g.metrics.RecordProviderError(ctx, g.providerName, "llm")
	}
	g.metrics.RecordProviderRequest(ctx, g.providerName, "llm", status)
	g.metrics.GuideDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		observe.Attr("kind", string(kind)),
		observe.Attr("status", status),
	))
}
