// Package app wires the companion subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the catalog, the voice
// assistant and the guide from the config, Run serves the local HTTP API
// until its context ends, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithMicrophone,
// WithSpeaker, WithCatalog, ...). When an option is not provided, New
// creates the real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nammaroute/companion/internal/assistant"
	"github.com/nammaroute/companion/internal/config"
	"github.com/nammaroute/companion/internal/guide"
	"github.com/nammaroute/companion/internal/health"
	"github.com/nammaroute/companion/internal/observe"
	"github.com/nammaroute/companion/internal/transit"
	"github.com/nammaroute/companion/pkg/audio"
	"github.com/nammaroute/companion/pkg/audio/capture"
	"github.com/nammaroute/companion/pkg/audio/playback"
	"github.com/nammaroute/companion/pkg/provider/llm"
	"github.com/nammaroute/companion/pkg/provider/s2s"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured.
type Providers struct {
	S2S s2s.Provider
	LLM llm.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger
	logLevel  *slog.LevelVar

	catalog   *transit.Catalog
	assistant *assistant.Assistant
	guide     *guide.Generator
	health    *health.Handler
	metrics   *observe.Metrics
	telemetry *observe.Telemetry
	mic       capture.Source
	speaker   assistant.SinkFactory

	// deviceChecks probe the recorder and player binaries New launches.
	deviceChecks []health.Checker

	configPath    string
	watchInterval time.Duration

	handler http.Handler

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCatalog injects a transit catalog instead of loading one from config.
func WithCatalog(c *transit.Catalog) Option {
	return func(a *App) { a.catalog = c }
}

// WithMicrophone injects a capture source instead of the recorder command.
func WithMicrophone(src capture.Source) Option {
	return func(a *App) { a.mic = src }
}

// WithSpeaker injects a sink factory instead of the player command.
func WithSpeaker(f assistant.SinkFactory) Option {
	return func(a *App) { a.speaker = f }
}

// WithMetrics sets the instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithTelemetry serves /metrics from t and shuts it down with the app.
func WithTelemetry(t *observe.Telemetry) Option {
	return func(a *App) { a.telemetry = t }
}

// WithLogger sets the application logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithLogLevel lets config reloads adjust the level of the process logger.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// WithConfigWatch makes Run poll path and apply hot-reloadable settings.
// A non-positive interval uses the watcher default.
func WithConfigWatch(path string, interval time.Duration) Option {
	return func(a *App) {
		a.configPath = path
		a.watchInterval = interval
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers come
// from the caller (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.S2S == nil {
		return nil, errors.New("app: an s2s provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Transit catalog ───────────────────────────────────────────────
	if err := a.initCatalog(ctx); err != nil {
		return nil, fmt.Errorf("app: init catalog: %w", err)
	}

	// ── 2. Audio devices ─────────────────────────────────────────────────
	a.initAudio()

	// ── 3. Assistant ─────────────────────────────────────────────────────
	a.initAssistant()

	// ── 4. Guide ─────────────────────────────────────────────────────────
	if providers.LLM != nil {
		a.guide = guide.New(providers.LLM,
			guide.WithMetrics(a.metrics),
			guide.WithLogger(a.log),
			guide.WithProviderName(cfg.Providers.LLM.Name),
		)
	}

	// ── 5. Health + routes ───────────────────────────────────────────────
	a.initHealth()
	a.handler = a.routes()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initCatalog(_ context.Context) error {
	if a.catalog != nil {
		return nil
	}
	if path := a.cfg.Transit.DataFile; path != "" {
		c, err := transit.LoadFile(path)
		if err != nil {
			return err
		}
		a.catalog = c
		a.log.Info("loaded transit catalog", "path", path, "buses", len(c.Buses()))
		return nil
	}
	a.catalog = transit.Default()
	return nil
}

func (a *App) initAudio() {
	if a.mic == nil {
		argv := a.cfg.Assistant.CaptureCommand
		if len(argv) == 0 {
			argv = capture.DefaultRecorderCommand
		}
		a.mic = capture.NewCommandSource(argv...)
		a.deviceChecks = append(a.deviceChecks, health.Binary("recorder", argv[0]))
	}
	if a.speaker == nil {
		ac := a.cfg.Assistant
		var format audio.Format
		if ac.PlaybackRate > 0 || ac.PlaybackChannels > 0 {
			format = audio.Format{SampleRate: ac.PlaybackRate, Channels: ac.PlaybackChannels}
			if format.SampleRate == 0 {
				format.SampleRate = audio.SampleRate
			}
			if format.Channels == 0 {
				format.Channels = audio.Channels
			}
		}
		argv := ac.PlaybackCommand
		if len(argv) == 0 {
			argv = playback.PlayerCommand(format)
		}
		a.deviceChecks = append(a.deviceChecks, health.Binary("player", argv[0]))
		log := a.log
		a.speaker = func() (playback.Sink, error) {
			return playback.NewCommandSink(
				playback.WithCommand(argv...),
				playback.WithFormat(format),
				playback.WithSinkLogger(log),
			), nil
		}
		if !format.IsZero() {
			log.Info("reply audio converted for playback", "format", format)
		}
	}
}

func (a *App) initAssistant() {
	ac := a.cfg.Assistant
	opts := []assistant.Option{
		assistant.WithLanguage(ac.Language),
		assistant.WithVoice(ac.Voice),
		assistant.WithMetrics(a.metrics),
		assistant.WithLogger(a.log),
	}
	if ac.FrameSamples > 0 {
		opts = append(opts, assistant.WithFrameSamples(ac.FrameSamples))
	}
	if ac.SendBuffer > 0 {
		opts = append(opts, assistant.WithSendBuffer(ac.SendBuffer))
	}
	if loc := ac.Location; loc != nil {
		opts = append(opts, assistant.WithLocation(loc.Lat, loc.Lng))
	}
	a.assistant = assistant.New(a.providers.S2S, a.mic, a.speaker, a.catalog, opts...)

	a.assistant.OnNotice(func(n assistant.Notice) {
		attrs := []any{"kind", n.Kind, "session_id", n.SessionID}
		if n.Err != nil {
			attrs = append(attrs, "err", n.Err)
			a.log.Warn(n.Message, attrs...)
			return
		}
		a.log.Info(n.Message, attrs...)
	})
	a.assistant.OnTranscript(func(t assistant.Transcript) {
		a.log.Debug("transcript", "session_id", t.SessionID, "speaker", t.Speaker, "text", t.Text)
	})
	a.closers = append(a.closers, a.assistant.Close)
}

func (a *App) initHealth() {
	checks := []health.Checker{
		health.NonEmpty("transit_catalog", func() int { return len(a.catalog.Buses()) }),
		health.Static("s2s_provider", nil),
	}
	checks = append(checks, a.deviceChecks...)
	if a.cfg.Providers.LLM.Name != "" {
		var err error
		if a.providers.LLM == nil {
			err = fmt.Errorf("llm provider %q could not be created", a.cfg.Providers.LLM.Name)
		}
		checks = append(checks, health.Static("llm_provider", err))
	}
	a.health = health.New(checks...)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler { return a.handler }

// Assistant returns the voice assistant.
func (a *App) Assistant() *assistant.Assistant { return a.assistant }

// Catalog returns the transit catalog.
func (a *App) Catalog() *transit.Catalog { return a.catalog }

// Guide returns the guide generator, or nil when no LLM is configured.
func (a *App) Guide() *guide.Generator { return a.guide }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API on the configured address until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener, which it closes.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("api listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if a.configPath != "" {
		g.Go(func() error { return a.watchConfig(ctx) })
	}
	return g.Wait()
}

func (a *App) watchConfig(ctx context.Context) error {
	r, err := config.NewReloader(a.configPath, a.ApplyConfig,
		config.WithReloadInterval(a.watchInterval),
		config.WithReloadLogger(a.log),
	)
	if err != nil {
		return err
	}
	return r.Run(ctx)
}

// ApplyConfig applies the hot-reloadable differences between old and new.
// Assistant settings take effect on the next session.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LanguageChanged {
		a.assistant.SetLanguage(d.NewLanguage)
	}
	if d.VoiceChanged {
		a.assistant.SetVoice(d.NewVoice)
	}
	if d.LocationChanged {
		if loc := d.NewLocation; loc != nil {
			a.assistant.SetLocation(loc.Lat, loc.Lng)
		} else {
			a.assistant.ClearLocation()
		}
	}
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
	}
	if len(d.RestartRequired) > 0 {
		a.log.Warn("config changes need a restart", "settings", d.RestartRequired)
	}
	if !d.Empty() {
		a.log.Info("config applied",
			"language", d.LanguageChanged,
			"voice", d.VoiceChanged,
			"location", d.LocationChanged,
			"log_level", d.LogLevelChanged,
		)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}
		if a.telemetry != nil {
			if err := a.telemetry.Shutdown(ctx); err != nil {
				a.log.Warn("telemetry shutdown error", "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

// SlogLevel maps a config level onto slog.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
