// Package mock provides in-memory implementations of the capture [capture.Source]
// and [capture.Stream] interfaces and the playback [playback.Sink] interface
// for use in unit tests.
//
// All mocks are safe for concurrent use. They record every call so that tests
// can assert on call counts and arguments, and they expose exported fields
// that the test can set to control behaviour.
//
// Typical usage:
//
//	stream := &mock.Stream{Samples: make([]float32, 8192)}
//	src := &mock.Source{Stream: stream}
//	c, err := capture.Start(ctx, src)
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/nammaroute/companion/pkg/audio"
	"github.com/nammaroute/companion/pkg/audio/capture"
)

// ─── Stream ──────────────────────────────────────────────────────────────────

// Stream is a mock [capture.Stream] that replays Samples and then either
// returns ReadErr or blocks until closed when Live is set.
type Stream struct {
	mu sync.Mutex

	// Samples is the audio returned by successive Read calls.
	Samples []float32

	// ReadErr is returned once Samples is exhausted. Defaults to io.EOF.
	ReadErr error

	// Live makes Read block after Samples is exhausted until Close is called,
	// like a real microphone.
	Live bool

	// CloseError is returned by Close.
	CloseError error

	pos        int
	closeCalls int
	closed     chan struct{}
	once       sync.Once
}

func (s *Stream) init() {
	s.once.Do(func() { s.closed = make(chan struct{}) })
}

// Read implements [capture.Stream].
func (s *Stream) Read(buf []float32) (int, error) {
	s.init()
	s.mu.Lock()
	if s.pos < len(s.Samples) {
		n := copy(buf, s.Samples[s.pos:])
		s.pos += n
		s.mu.Unlock()
		return n, nil
	}
	live, err := s.Live, s.ReadErr
	s.mu.Unlock()

	if live {
		<-s.closed
		return 0, io.EOF
	}
	if err == nil {
		err = io.EOF
	}
	return 0, err
}

// Close implements [capture.Stream]. Every call is counted.
func (s *Stream) Close() error {
	s.init()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	if s.closeCalls == 1 {
		close(s.closed)
	}
	return s.CloseError
}

// CloseCalls returns how many times Close was called.
func (s *Stream) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

// ─── Source ──────────────────────────────────────────────────────────────────

// Source is a mock [capture.Source].
type Source struct {
	mu sync.Mutex

	// Stream is returned by Open. A fresh live stream is created when nil.
	Stream *Stream

	// OpenError is returned by Open instead of a stream.
	OpenError error

	openCalls int
	opened    []*Stream
}

var _ capture.Source = (*Source)(nil)

// Open implements [capture.Source].
func (s *Source) Open(_ context.Context) (capture.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openCalls++
	if s.OpenError != nil {
		return nil, s.OpenError
	}
	st := s.Stream
	if st == nil {
		st = &Stream{Live: true}
	}
	s.opened = append(s.opened, st)
	return st, nil
}

// OpenCalls returns how many times Open was called.
func (s *Source) OpenCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openCalls
}

// Opened returns every stream handed out by Open, in order.
func (s *Source) Opened() []*Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Stream, len(s.opened))
	copy(out, s.opened)
	return out
}

// ─── Sink ────────────────────────────────────────────────────────────────────

// Sink is a mock playback sink. Play returns immediately unless Gate is set.
type Sink struct {
	mu sync.Mutex

	// Gate, when non-nil, makes Play block until a value is received from it
	// or ctx is cancelled.
	Gate chan struct{}

	// Started, when non-nil, receives every frame as Play begins. A full
	// channel blocks Play until the frame is taken or ctx is cancelled.
	Started chan audio.Frame

	// PlayError is returned by Play for frames that are not cancelled.
	PlayError error

	// CloseError is returned by Close.
	CloseError error

	played     []audio.Frame
	cancelled  []audio.Frame
	active     int
	maxActive  int
	closeCalls int
}

// Play implements the playback sink interface.
func (s *Sink) Play(ctx context.Context, frame audio.Frame) error {
	s.mu.Lock()
	s.active++
	if s.active > s.maxActive {
		s.maxActive = s.active
	}
	gate, started, playErr := s.Gate, s.Started, s.PlayError
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()

	if started != nil {
		select {
		case started <- frame:
		case <-ctx.Done():
		}
	}
	if gate != nil && ctx.Err() == nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		s.cancelled = append(s.cancelled, frame)
		return err
	}
	if playErr != nil {
		return playErr
	}
	s.played = append(s.played, frame)
	return nil
}

// Close implements the playback sink interface. Every call is counted.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return s.CloseError
}

// Played returns the frames that finished playing, in order.
func (s *Sink) Played() []audio.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.Frame, len(s.played))
	copy(out, s.played)
	return out
}

// Cancelled returns the frames whose Play was cancelled.
func (s *Sink) Cancelled() []audio.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.Frame, len(s.cancelled))
	copy(out, s.cancelled)
	return out
}

// MaxConcurrent returns the highest number of overlapping Play calls seen.
func (s *Sink) MaxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxActive
}

// CloseCalls returns how many times Close was called.
func (s *Sink) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}
