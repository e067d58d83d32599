// Package config provides the configuration schema, loader, and provider
// registry for the NammaRoute companion.
package config

import "github.com/nammaroute/companion/internal/locale"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

const (
	// DefaultListenAddr keeps the local API on the loopback interface.
	DefaultListenAddr = "127.0.0.1:8080"

	// DefaultS2SProvider is the spoken-dialogue backend used when none is named.
	DefaultS2SProvider = "gemini-live"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Assistant AssistantConfig `yaml:"assistant"`
	Transit   TransitConfig   `yaml:"transit"`
}

// ServerConfig holds network and logging settings for the local API.
type ServerConfig struct {
	// ListenAddr is the TCP address the API listens on (e.g., "127.0.0.1:8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig selects the backends registered in the [Registry].
type ProvidersConfig struct {
	// S2S is the live spoken-dialogue service.
	S2S ProviderEntry `yaml:"s2s"`

	// LLM generates guide content.
	LLM ProviderEntry `yaml:"llm"`

	// LLMFallbacks are tried in order when LLM fails or its breaker is open.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini-live", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`
}

// AssistantConfig holds the voice session settings.
type AssistantConfig struct {
	// Language is the UI language code used in the system instruction
	// ("en", "ta" or "hi").
	Language string `yaml:"language"`

	// Voice is the prebuilt voice of the spoken-dialogue service.
	Voice string `yaml:"voice"`

	// FrameSamples is the capture frame length. Zero uses the default.
	FrameSamples int `yaml:"frame_samples"`

	// SendBuffer is the outbound frame queue length. Zero uses the default.
	SendBuffer int `yaml:"send_buffer"`

	// CaptureCommand overrides the recorder command line.
	CaptureCommand []string `yaml:"capture_command"`

	// PlaybackCommand overrides the player command line.
	PlaybackCommand []string `yaml:"playback_command"`

	// PlaybackRate and PlaybackChannels describe the output device when it
	// cannot take 24 kHz mono. Reply audio is converted before it is written.
	PlaybackRate     int `yaml:"playback_rate"`
	PlaybackChannels int `yaml:"playback_channels"`

	// Location is the user's position, if known.
	Location *LocationConfig `yaml:"location"`
}

// LocationConfig is a WGS84 coordinate pair.
type LocationConfig struct {
	Lat float64 `yaml:"lat"`
	Lng float64 `yaml:"lng"`
}

// TransitConfig points at the transit catalog.
type TransitConfig struct {
	// DataFile replaces the built-in catalog when set.
	DataFile string `yaml:"data_file"`
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Providers.S2S.Name == "" {
		c.Providers.S2S.Name = DefaultS2SProvider
	}
	if c.Assistant.Language == "" {
		c.Assistant.Language = locale.DefaultCode
	}
}
