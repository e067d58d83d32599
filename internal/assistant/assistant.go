// Package assistant runs the hands-free voice assistant: it streams the
// microphone to a spoken-dialogue service and plays the spoken replies back
// in order.
//
// An [Assistant] holds at most one session. [Assistant.Start] replaces any
// active session, and every exit path (user stop, remote close, transport or
// microphone failure) releases the microphone, the transport and the audio
// output exactly once.
//
// Lifecycle:
//
//	idle --Start--> connecting --setup complete--> active --Stop/close/error--> idle
//
// A refused microphone returns to idle without ever entering connecting.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nammaroute/companion/internal/locale"
	"github.com/nammaroute/companion/internal/observe"
	"github.com/nammaroute/companion/internal/transit"
	"github.com/nammaroute/companion/pkg/audio"
	"github.com/nammaroute/companion/pkg/audio/capture"
	"github.com/nammaroute/companion/pkg/audio/playback"
	"github.com/nammaroute/companion/pkg/provider/s2s"
)

var (
	// ErrNotActive is returned by operations that need an active session.
	ErrNotActive = errors.New("assistant: no active session")

	// ErrStopped is returned by Start when Stop cancelled it mid-connect.
	ErrStopped = errors.New("assistant: start cancelled by stop")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("assistant: closed")
)

const defaultSendBuffer = 16

// SinkFactory opens the audio output for a new session. Each session closes
// the sink it was given.
type SinkFactory func() (playback.Sink, error)

// Option configures an [Assistant].
type Option func(*Assistant)

// WithLanguage sets the initial UI language code. Default: "en".
func WithLanguage(code string) Option {
	return func(a *Assistant) { a.language = locale.Code(code) }
}

// WithVoice sets the service voice. Default: [s2s.DefaultVoice].
func WithVoice(voice string) Option {
	return func(a *Assistant) { a.voice = voice }
}

// WithLocation sets the initial user location.
func WithLocation(lat, lng float64) Option {
	return func(a *Assistant) { a.location = &Location{Lat: lat, Lng: lng} }
}

// WithFrameSamples sets the capture frame length. Default:
// [audio.DefaultFrameSamples].
func WithFrameSamples(n int) Option {
	return func(a *Assistant) {
		if n > 0 {
			a.frameSamples = n
		}
	}
}

// WithSendBuffer sets how many encoded frames may wait for the transport
// before new frames are dropped. Default: 16.
func WithSendBuffer(n int) Option {
	return func(a *Assistant) {
		if n > 0 {
			a.sendBuffer = n
		}
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Assistant) { a.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Assistant) { a.log = l }
}

// Assistant is safe for concurrent use.
type Assistant struct {
	provider s2s.Provider
	mic      capture.Source
	speaker  SinkFactory
	catalog  *transit.Catalog

	frameSamples int
	sendBuffer   int
	metrics      *observe.Metrics
	log          *slog.Logger

	// startMu serialises Start and Stop so that at most one session is ever
	// being built or torn down.
	startMu sync.Mutex

	mu            sync.Mutex
	life          lifecycle
	current       *session
	cancelConnect context.CancelCauseFunc
	language      string
	voice         string
	location      *Location
	closed        bool
	noticeFns     []func(Notice)
	transcriptFns []func(Transcript)
}

// New returns an idle Assistant.
func New(provider s2s.Provider, mic capture.Source, speaker SinkFactory, catalog *transit.Catalog, opts ...Option) *Assistant {
	a := &Assistant{
		provider:     provider,
		mic:          mic,
		speaker:      speaker,
		catalog:      catalog,
		frameSamples: audio.DefaultFrameSamples,
		sendBuffer:   defaultSendBuffer,
		log:          slog.Default(),
		language:     locale.DefaultCode,
		voice:        s2s.DefaultVoice,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a
}

// Start opens a new session, stopping the current one first.
//
// If the microphone is refused the returned error wraps
// [capture.ErrPermissionDenied], a [NoticePermissionDenied] is emitted and
// the assistant stays idle. If the service cannot be reached the microphone
// is released and the assistant returns to idle. Cancelling ctx aborts the
// start but does not end a session that already became active.
func (a *Assistant) Start(ctx context.Context) (err error) {
	a.startMu.Lock()
	defer a.startMu.Unlock()

	ctx, span := observe.StartSpan(ctx, "assistant.start")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return ErrClosed
	}

	a.stopCurrent(endReplaced)

	// The session outlives ctx; ctx only bounds the start itself.
	sessCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	detach := context.AfterFunc(ctx, func() { cancel(context.Cause(ctx)) })
	defer detach()

	id := uuid.NewString()
	span.SetAttributes(attribute.String("session_id", id))
	log := a.log.With("session_id", id)

	mic, err := capture.Start(sessCtx, a.mic, capture.WithFrameSamples(a.frameSamples))
	if err != nil {
		cancel(nil)
		kind, status := NoticeMicrophoneError, "microphone_error"
		if errors.Is(err, capture.ErrPermissionDenied) {
			kind, status = NoticePermissionDenied, "permission_denied"
		}
		log.Warn("microphone unavailable", "err", err)
		a.metrics.RecordSessionStart(ctx, status)
		a.notify(newNotice(kind, "", err))
		return fmt.Errorf("assistant: start: %w", err)
	}

	a.mu.Lock()
	a.life.connect()
	a.cancelConnect = cancel
	cfg := s2s.SessionConfig{
		Voice:        a.voice,
		Instructions: Instructions(a.language, a.location, a.catalog.Snapshot()),
		Modalities:   []string{s2s.ModalityAudio},
	}
	a.mu.Unlock()

	log.Debug("connecting", "voice", cfg.Voice)
	handle, err := a.provider.Connect(sessCtx, cfg)
	var sink playback.Sink
	if err == nil {
		if sink, err = a.speaker(); err != nil {
			_ = handle.Close()
			err = fmt.Errorf("open audio output: %w", err)
		}
	}
	if err != nil {
		_ = mic.Close()
		a.mu.Lock()
		a.life.reset()
		a.cancelConnect = nil
		a.mu.Unlock()

		if cause := context.Cause(sessCtx); cause != nil {
			return aborted(log, cause)
		}
		cancel(nil)
		log.Warn("connect failed", "err", err)
		a.metrics.RecordSessionStart(ctx, "connect_failed")
		a.notify(newNotice(NoticeConnectFailed, id, err))
		return fmt.Errorf("assistant: connect: %w", err)
	}

	// From here on only Stop or teardown may cancel the session.
	detached := detach()

	a.mu.Lock()
	cause := context.Cause(sessCtx)
	if cause == nil && !detached {
		cause = context.Cause(ctx)
	}
	if cause != nil {
		a.life.reset()
		a.cancelConnect = nil
		a.mu.Unlock()
		cancel(cause)
		_ = mic.Close()
		_ = handle.Close()
		_ = sink.Close()
		return aborted(log, cause)
	}

	sess := &session{
		id:           id,
		startedAt:    time.Now(),
		log:          log,
		metrics:      a.metrics,
		capture:      mic,
		handle:       handle,
		queue:        playback.New(sink, playback.WithLogger(log)),
		sendQ:        make(chan []int16, a.sendBuffer),
		cancel:       cancel,
		onEnd:        a.sessionEnded,
		onTranscript: a.emitTranscript,
	}
	a.life.activate()
	a.current = sess
	a.cancelConnect = nil
	a.metrics.ActiveSessions.Add(ctx, 1)
	sess.start()
	a.mu.Unlock()

	log.Info("session active")
	a.metrics.RecordSessionStart(ctx, "ok")
	a.notify(newNotice(NoticeStarted, id, nil))
	return nil
}

func aborted(log *slog.Logger, cause error) error {
	log.Info("start aborted", "cause", cause)
	if errors.Is(cause, ErrStopped) {
		return ErrStopped
	}
	return fmt.Errorf("assistant: start: %w", cause)
}

// Stop ends the current session, or aborts a start in progress. It is
// idempotent and returns once every session resource has been released.
func (a *Assistant) Stop() error {
	a.mu.Lock()
	if a.cancelConnect != nil {
		a.cancelConnect(ErrStopped)
	}
	a.mu.Unlock()

	a.startMu.Lock()
	defer a.startMu.Unlock()
	a.stopCurrent(endStopped)
	return nil
}

// stopCurrent detaches and ends the current session. startMu must be held.
func (a *Assistant) stopCurrent(reason endReason) {
	a.mu.Lock()
	s := a.current
	a.current = nil
	a.life.reset()
	a.mu.Unlock()

	if s == nil {
		return
	}
	s.end(reason, nil)
	s.wait()
}

// sessionEnded runs once per session after its resources are released.
func (a *Assistant) sessionEnded(s *session, reason endReason, cause error) {
	a.mu.Lock()
	if a.current == s {
		a.current = nil
		a.life.reset()
	}
	a.mu.Unlock()

	if reason == endReplaced {
		return
	}
	a.notify(newNotice(reason.notice(), s.id, cause))
}

// Interrupt silences the current reply locally, discarding queued audio.
func (a *Assistant) Interrupt() error {
	a.mu.Lock()
	s := a.current
	a.mu.Unlock()
	if s == nil {
		return ErrNotActive
	}
	s.queue.Interrupt()
	return nil
}

// Status returns a snapshot of the assistant.
func (a *Assistant) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := Status{State: a.life.state}
	if a.current != nil {
		st = a.current.status()
	}
	st.Language = a.language
	if a.location != nil {
		loc := *a.location
		st.Location = &loc
	}
	return st
}

// SetLanguage changes the UI language used by the next session.
func (a *Assistant) SetLanguage(code string) {
	a.mu.Lock()
	a.language = locale.Code(code)
	a.mu.Unlock()
}

// SetVoice changes the voice used by the next session.
func (a *Assistant) SetVoice(voice string) {
	if voice == "" {
		voice = s2s.DefaultVoice
	}
	if offered := a.Voices(); len(offered) > 0 && !slices.Contains(offered, voice) {
		a.log.Warn("voice not offered by the service", "voice", voice, "offered", offered)
	}
	a.mu.Lock()
	a.voice = voice
	a.mu.Unlock()
}

// Voices lists the prebuilt voices the service accepts. Empty means the
// provider does not say.
func (a *Assistant) Voices() []string {
	return slices.Clone(a.provider.Capabilities().Voices)
}

// SetLocation records the user's position for the next session.
func (a *Assistant) SetLocation(lat, lng float64) {
	a.mu.Lock()
	a.location = &Location{Lat: lat, Lng: lng}
	a.mu.Unlock()
}

// ClearLocation forgets the user's position.
func (a *Assistant) ClearLocation() {
	a.mu.Lock()
	a.location = nil
	a.mu.Unlock()
}

// OnNotice registers fn for user-visible notices. Callbacks run on internal
// goroutines and must not block.
func (a *Assistant) OnNotice(fn func(Notice)) {
	a.mu.Lock()
	a.noticeFns = append(a.noticeFns, fn)
	a.mu.Unlock()
}

// OnTranscript registers fn for transcription lines, when the provider
// produces them. Callbacks must not block.
func (a *Assistant) OnTranscript(fn func(Transcript)) {
	a.mu.Lock()
	a.transcriptFns = append(a.transcriptFns, fn)
	a.mu.Unlock()
}

// Close stops the current session and rejects further starts.
func (a *Assistant) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return a.Stop()
}

func (a *Assistant) notify(n Notice) {
	a.mu.Lock()
	fns := slices.Clone(a.noticeFns)
	a.mu.Unlock()
	for _, fn := range fns {
		fn(n)
	}
}

func (a *Assistant) emitTranscript(t Transcript) {
	a.mu.Lock()
	fns := slices.Clone(a.transcriptFns)
	a.mu.Unlock()
	for _, fn := range fns {
		fn(t)
	}
}
