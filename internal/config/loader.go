package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/nammaroute/companion/internal/locale"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"s2s": {"gemini-live"},
	"llm": {"gemini", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp"},
}

// Env holds the environment variables that override file settings.
type Env struct {
	ListenAddr   string `envconfig:"NAMMAROUTE_LISTEN_ADDR"`
	LogLevel     string `envconfig:"NAMMAROUTE_LOG_LEVEL"`
	Language     string `envconfig:"NAMMAROUTE_LANGUAGE"`
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
}

// LoadDotEnv loads KEY=value pairs from the given files (".env" when none
// are named) into the process environment. Missing files are ignored and
// variables that are already set are left alone.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %q: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with environment overrides applied. An empty path yields the
// defaults plus the environment.
func Load(path string) (*Config, error) {
	if path == "" {
		return finish(&Config{})
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment
// overrides and defaults, and validates the result. An empty document is
// accepted.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	var env Env
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	env.Apply(cfg)
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Apply copies the non-empty overrides into cfg. The Gemini key fills any
// Gemini provider that has no key of its own.
func (e Env) Apply(cfg *Config) {
	if e.ListenAddr != "" {
		cfg.Server.ListenAddr = e.ListenAddr
	}
	if e.LogLevel != "" {
		cfg.Server.LogLevel = LogLevel(e.LogLevel)
	}
	if e.Language != "" {
		cfg.Assistant.Language = e.Language
	}
	if e.GeminiAPIKey == "" {
		return
	}
	if name := cfg.Providers.S2S.Name; (name == "" || name == DefaultS2SProvider) && cfg.Providers.S2S.APIKey == "" {
		cfg.Providers.S2S.APIKey = e.GeminiAPIKey
	}
	if cfg.Providers.LLM.Name == "gemini" && cfg.Providers.LLM.APIKey == "" {
		cfg.Providers.LLM.APIKey = e.GeminiAPIKey
	}
	for i := range cfg.Providers.LLMFallbacks {
		fb := &cfg.Providers.LLMFallbacks[i]
		if fb.Name == "gemini" && fb.APIKey == "" {
			fb.APIKey = e.GeminiAPIKey
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("s2s", cfg.Providers.S2S.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("llm", fb.Name)
	}
	if len(cfg.Providers.LLMFallbacks) > 0 && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm_fallbacks requires providers.llm"))
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; guide content will not be available")
	}

	a := cfg.Assistant
	if a.Language != "" && !locale.IsSupported(a.Language) {
		errs = append(errs, fmt.Errorf("assistant.language %q is not supported; valid values: en, ta, hi", a.Language))
	}
	if a.FrameSamples < 0 {
		errs = append(errs, fmt.Errorf("assistant.frame_samples %d must not be negative", a.FrameSamples))
	}
	if a.SendBuffer < 0 {
		errs = append(errs, fmt.Errorf("assistant.send_buffer %d must not be negative", a.SendBuffer))
	}
	if slices.Contains(a.CaptureCommand, "") {
		errs = append(errs, errors.New("assistant.capture_command contains an empty argument"))
	}
	if slices.Contains(a.PlaybackCommand, "") {
		errs = append(errs, errors.New("assistant.playback_command contains an empty argument"))
	}
	if a.PlaybackRate < 0 || a.PlaybackRate > 192000 {
		errs = append(errs, fmt.Errorf("assistant.playback_rate %d is out of range [0, 192000]", a.PlaybackRate))
	}
	if a.PlaybackChannels < 0 || a.PlaybackChannels > 8 {
		errs = append(errs, fmt.Errorf("assistant.playback_channels %d is out of range [0, 8]", a.PlaybackChannels))
	}
	if loc := a.Location; loc != nil {
		if loc.Lat < -90 || loc.Lat > 90 {
			errs = append(errs, fmt.Errorf("assistant.location.lat %g is out of range [-90, 90]", loc.Lat))
		}
		if loc.Lng < -180 || loc.Lng > 180 {
			errs = append(errs, fmt.Errorf("assistant.location.lng %g is out of range [-180, 180]", loc.Lng))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
