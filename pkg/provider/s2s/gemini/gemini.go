// Package gemini connects the assistant to the Gemini Live
// BidiGenerateContent service over a WebSocket.
//
// The first client message configures the session (model, voice, system
// instruction); the service answers with setupComplete. Microphone audio is
// then streamed as realtimeInput chunks and reply audio comes back inside
// serverContent messages. Audio is base64 over 24 kHz mono PCM16 in both
// directions.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/nammaroute/companion/pkg/audio"
	"github.com/nammaroute/companion/pkg/provider/s2s"
)

// Defaults for [New].
const (
	DefaultModel   = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultBaseURL = "wss://generativelanguage.googleapis.com/ws"

	// DefaultKeepalive is the WebSocket ping interval.
	DefaultKeepalive = 20 * time.Second

	servicePath = "/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	pingTimeout = 5 * time.Second

	// Reply audio arrives in messages far above the library's 32 KiB
	// default read limit.
	maxMessageBytes = 16 << 20

	eventBuffer = 64
)

// voices are the prebuilt voices the service documents.
var voices = []string{"Zephyr", "Puck", "Charon", "Kore", "Fenrir", "Aoede", "Leda", "Orus"}

var errLocalClose = errors.New("gemini: closed locally")

// Option configures a [Provider].
type Option func(*Provider)

// WithModel selects the Live model. Empty keeps [DefaultModel].
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL points the provider at another endpoint, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = u
		}
	}
}

// WithKeepalive sets the ping interval. Zero disables pings.
func WithKeepalive(d time.Duration) Option {
	return func(p *Provider) { p.keepalive = d }
}

// WithTranscription asks the service for text transcripts of both sides,
// delivered as [s2s.EventTranscript].
func WithTranscription(enabled bool) Option {
	return func(p *Provider) { p.transcribe = enabled }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.log = l
		}
	}
}

// Provider opens Gemini Live sessions. It holds no connection state and is
// safe for concurrent use.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	keepalive  time.Duration
	transcribe bool
	log        *slog.Logger
}

var _ s2s.Provider = (*Provider)(nil)

// New returns a Provider that authenticates with apiKey.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:    apiKey,
		model:     DefaultModel,
		baseURL:   DefaultBaseURL,
		keepalive: DefaultKeepalive,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Capabilities implements [s2s.Provider].
func (p *Provider) Capabilities() s2s.Capabilities {
	return s2s.Capabilities{
		SampleRate:         audio.SampleRate,
		MaxSessionDuration: 15 * time.Minute,
		Voices:             slices.Clone(voices),
	}
}

// Connect dials the service, sends the setup message and waits for
// setupComplete. ctx bounds only the handshake; the session lives until
// Close or until the service ends it.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	endpoint := p.baseURL + servicePath + "?key=" + url.QueryEscape(p.apiKey)
	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: dial: %w", err)
	}
	conn.SetReadLimit(maxMessageBytes)

	if err := handshake(ctx, conn, newSetup(p.model, cfg, p.transcribe)); err != nil {
		conn.Close(websocket.StatusPolicyViolation, "setup failed")
		return nil, fmt.Errorf("gemini: setup: %w", err)
	}

	s := newSession(conn, p.log)
	go s.receive()
	if p.keepalive > 0 {
		go s.ping(p.keepalive)
	}
	p.log.Debug("gemini session open", "model", p.model, "voice", cfg.VoiceName())
	return s, nil
}

// handshake sends msg and reads until setupComplete or an error arrives.
// Other messages before the acknowledgement are ignored.
func handshake(ctx context.Context, conn *websocket.Conn, msg clientSetup) error {
	if err := writeJSON(ctx, conn, msg); err != nil {
		return err
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("waiting for setupComplete: %w", err)
		}
		var m serverMessage
		if json.Unmarshal(data, &m) != nil {
			continue
		}
		switch {
		case m.Error != nil:
			return m.Error
		case m.SetupComplete != nil:
			return nil
		}
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gemini: encode: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// session is one open Live connection. receive owns the events channel.
type session struct {
	conn   *websocket.Conn
	log    *slog.Logger
	events chan s2s.Event

	// ctx is cancelled with errLocalClose by Close, or with nil once
	// receive returns.
	ctx    context.Context
	cancel context.CancelCauseFunc

	mu  sync.Mutex
	err error

	closeOnce sync.Once
}

var _ s2s.SessionHandle = (*session)(nil)

func newSession(conn *websocket.Conn, log *slog.Logger) *session {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &session{
		conn:   conn,
		log:    log,
		events: make(chan s2s.Event, eventBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *session) receive() {
	defer close(s.events)
	defer s.cancel(nil)

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				s.fail(fmt.Errorf("gemini: read: %w", err))
			}
			return
		}

		var m serverMessage
		if json.Unmarshal(data, &m) != nil {
			continue
		}
		if m.Error != nil {
			s.fail(m.Error)
			return
		}
		if m.GoAway != nil {
			s.log.Info("gemini service will disconnect soon", "time_left", m.GoAway.TimeLeft)
		}
		if m.ServerContent == nil {
			continue
		}
		for _, ev := range m.ServerContent.events() {
			select {
			case s.events <- ev:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

// ping keeps idle connections open. A failed ping is only logged; a dead
// transport surfaces through receive.
func (s *session) ping(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(s.ctx, pingTimeout)
			if err := s.conn.Ping(ctx); err != nil && s.ctx.Err() == nil {
				s.log.Debug("gemini keepalive failed", "err", err)
			}
			cancel()
		}
	}
}

func (s *session) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// SendAudio implements [s2s.SessionHandle].
func (s *session) SendAudio(pcm []int16) error {
	if s.ctx.Err() != nil {
		return s2s.ErrSessionClosed
	}
	if err := writeJSON(s.ctx, s.conn, newAudio(pcm)); err != nil {
		if s.ctx.Err() != nil {
			return s2s.ErrSessionClosed
		}
		return fmt.Errorf("gemini: send audio: %w", err)
	}
	return nil
}

// Events implements [s2s.SessionHandle].
func (s *session) Events() <-chan s2s.Event { return s.events }

// Err implements [s2s.SessionHandle].
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements [s2s.SessionHandle].
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel(errLocalClose)
		err := s.conn.Close(websocket.StatusNormalClosure, "session closed")
		var ce websocket.CloseError
		if err != nil && !errors.As(err, &ce) {
			s.log.Debug("gemini close", "err", err)
		}
	})
	return nil
}
