package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nammaroute/companion/internal/config"
	"github.com/nammaroute/companion/internal/observe"
	"github.com/nammaroute/companion/internal/resilience"
	"github.com/nammaroute/companion/pkg/provider/llm"
)

// BuildProviders instantiates the providers named in cfg using the registry.
//
// The S2S provider is required. The LLM is optional; when fallbacks are
// configured the primary and every fallback sit behind their own circuit
// breaker, and breaker transitions are counted on m.
func BuildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*Providers, error) {
	ps := &Providers{}

	s2sEntry := cfg.Providers.S2S
	p, err := reg.CreateS2S(s2sEntry)
	if err != nil {
		return nil, fmt.Errorf("create s2s provider %q: %w", s2sEntry.Name, err)
	}
	ps.S2S = p
	slog.Info("provider created", "kind", "s2s", "name", s2sEntry.Name)

	if cfg.Providers.LLM.Name == "" {
		return ps, nil
	}
	ps.LLM, err = buildLLM(cfg.Providers, reg, m)
	if err != nil {
		return nil, err
	}
	return ps, nil
}

func buildLLM(pc config.ProvidersConfig, reg *config.Registry, m *observe.Metrics) (llm.Provider, error) {
	primary, err := reg.CreateLLM(pc.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", pc.LLM.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", pc.LLM.Name)
	if len(pc.LLMFallbacks) == 0 {
		return primary, nil
	}

	fcfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, _, to resilience.State) {
				if m != nil {
					m.RecordCircuitTransition(context.Background(), name, to.String())
				}
			},
		},
	}
	fb := resilience.NewLLMFallback(primary, pc.LLM.Name, fcfg)
	for i, entry := range pc.LLMFallbacks {
		p, err := reg.CreateLLM(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("llm fallback not registered, skipping", "index", i, "name", entry.Name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %q: %w", entry.Name, err)
		}
		fb.AddFallback(fallbackName(entry, i), p)
	}
	slog.Info("llm fallback chain", "providers", fb.Names())
	return fb, nil
}

// fallbackName keeps breaker names unique when a provider appears twice.
func fallbackName(e config.ProviderEntry, i int) string {
	if e.Model != "" {
		return e.Name + "/" + e.Model
	}
	return fmt.Sprintf("%s#%d", e.Name, i+1)
}
