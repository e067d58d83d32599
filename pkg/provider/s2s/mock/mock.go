// Package mock provides test doubles for the s2s package interfaces.
//
// Use Provider to verify Connect calls and feed controlled sessions. Use
// Session to push inbound events and inspect what the caller sent.
//
// Example:
//
//	p := &mock.Provider{}
//	handle, _ := p.Connect(ctx, cfg)
//	sess := p.Sessions()[0]
//	sess.Push(s2s.Event{Kind: s2s.EventAudio, Audio: pcm})
//	sess.Finish(nil) // remote close
package mock

import (
	"context"
	"sync"

	"github.com/nammaroute/companion/pkg/provider/s2s"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Cfg is the SessionConfig passed to Connect.
	Cfg s2s.SessionConfig
}

// Provider is a mock implementation of s2s.Provider. Each successful Connect
// returns a fresh [Session] unless Session is set.
type Provider struct {
	mu sync.Mutex

	// Session, when non-nil, is returned by every Connect call.
	Session *Session

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// Block, when non-nil, makes Connect wait until it is closed or ctx ends.
	Block chan struct{}

	// ProviderCapabilities is returned by Capabilities.
	ProviderCapabilities s2s.Capabilities

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall

	sessions []*Session
}

var _ s2s.Provider = (*Provider)(nil)

// Connect records the call and returns a session or ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Cfg: cfg})
	block, connectErr := p.Block, p.ConnectErr
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if connectErr != nil {
		return nil, connectErr
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	sess := p.Session
	if sess == nil {
		sess = NewSession()
	}
	p.sessions = append(p.sessions, sess)
	return sess, nil
}

// Capabilities returns ProviderCapabilities.
func (p *Provider) Capabilities() s2s.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ProviderCapabilities
}

// Sessions returns every session handed out by Connect, in order.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, len(p.sessions))
	copy(out, p.sessions)
	return out
}

// Calls returns a copy of the recorded Connect calls.
func (p *Provider) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ConnectCall, len(p.ConnectCalls))
	copy(out, p.ConnectCalls)
	return out
}

// Session is a mock s2s.SessionHandle.
type Session struct {
	mu sync.Mutex

	events     chan s2s.Event
	sent       [][]int16
	err        error
	closeCalls int
	finished   bool

	// SendErr, if non-nil, is returned by SendAudio.
	SendErr error
}

var _ s2s.SessionHandle = (*Session)(nil)

// NewSession returns a session with a buffered events channel.
func NewSession() *Session {
	return &Session{events: make(chan s2s.Event, 256)}
}

// Push delivers an inbound event. It is a no-op after the session finished.
func (s *Session) Push(ev s2s.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.events <- ev
}

// Finish ends the session from the remote side with err (nil for a clean
// close) and closes the events channel.
func (s *Session) Finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.finished = true
	s.err = err
	close(s.events)
}

// SendAudio records pcm.
func (s *Session) SendAudio(pcm []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished || s.closeCalls > 0 {
		return s2s.ErrSessionClosed
	}
	if s.SendErr != nil {
		return s.SendErr
	}
	cp := make([]int16, len(pcm))
	copy(cp, pcm)
	s.sent = append(s.sent, cp)
	return nil
}

// Events returns the inbound event channel.
func (s *Session) Events() <-chan s2s.Event { return s.events }

// Err returns the error passed to Finish.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close counts the call and closes the events channel on the first call.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closeCalls++
	s.mu.Unlock()
	s.Finish(nil)
	return nil
}

// Sent returns every chunk passed to SendAudio.
func (s *Session) Sent() [][]int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]int16, len(s.sent))
	copy(out, s.sent)
	return out
}

// CloseCalls returns how many times Close was called.
func (s *Session) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}
