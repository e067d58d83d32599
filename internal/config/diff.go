package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be applied without a restart are tracked; the rest
// are listed in RestartRequired.
type ConfigDiff struct {
	LanguageChanged bool
	NewLanguage     string

	VoiceChanged bool
	NewVoice     string

	LocationChanged bool
	NewLocation     *LocationConfig

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired names changed settings that only take effect on the
	// next process start.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LanguageChanged && !d.VoiceChanged && !d.LocationChanged &&
		!d.LogLevelChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Assistant.Language != new.Assistant.Language {
		d.LanguageChanged = true
		d.NewLanguage = new.Assistant.Language
	}
	if old.Assistant.Voice != new.Assistant.Voice {
		d.VoiceChanged = true
		d.NewVoice = new.Assistant.Voice
	}
	if !sameLocation(old.Assistant.Location, new.Assistant.Location) {
		d.LocationChanged = true
		d.NewLocation = new.Assistant.Location
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !sameEntry(old.Providers.S2S, new.Providers.S2S) {
		d.RestartRequired = append(d.RestartRequired, "providers.s2s")
	}
	if !sameEntry(old.Providers.LLM, new.Providers.LLM) || !sameEntries(old.Providers.LLMFallbacks, new.Providers.LLMFallbacks) {
		d.RestartRequired = append(d.RestartRequired, "providers.llm")
	}
	if old.Transit.DataFile != new.Transit.DataFile {
		d.RestartRequired = append(d.RestartRequired, "transit.data_file")
	}

	return d
}

func sameLocation(a, b *LocationConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// sameEntry ignores Options, which are opaque to the config layer.
func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}

func sameEntries(a, b []ProviderEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sameEntry(a[i], b[i]) {
			return false
		}
	}
	return true
}
