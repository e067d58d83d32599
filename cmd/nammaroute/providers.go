package main

import (
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/nammaroute/companion/internal/config"
	"github.com/nammaroute/companion/pkg/provider/llm"
	"github.com/nammaroute/companion/pkg/provider/llm/anyllm"
	"github.com/nammaroute/companion/pkg/provider/s2s"
	geminilive "github.com/nammaroute/companion/pkg/provider/s2s/gemini"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── S2S ───────────────────────────────────────────────────────────────────

	reg.RegisterS2S("gemini-live", func(entry config.ProviderEntry) (s2s.Provider, error) {
		opts := []geminilive.Option{geminilive.WithLogger(slog.Default())}
		if entry.Model != "" {
			opts = append(opts, geminilive.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, geminilive.WithBaseURL(entry.BaseURL))
		}
		if d := optDuration(entry.Options, "keepalive"); d > 0 {
			opts = append(opts, geminilive.WithKeepalive(d))
		}
		if v, ok := entry.Options["transcription"].(bool); ok {
			opts = append(opts, geminilive.WithTranscription(v))
		}
		return geminilive.New(entry.APIKey, opts...), nil
	})

	// ── LLM ───────────────────────────────────────────────────────────────────
	// Hosted backends share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range anyllm.Supported() {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	for kind, names := range reg.Names() {
		slog.Debug("registered providers", "kind", kind, "names", names)
	}
}

// optDuration reads a Go duration string such as "20s" from provider
// options. Missing or malformed values yield zero.
func optDuration(opts map[string]any, key string) time.Duration {
	s, ok := opts[key].(string)
	if !ok {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
