package assistant

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nammaroute/companion/internal/observe"
	"github.com/nammaroute/companion/pkg/audio"
	"github.com/nammaroute/companion/pkg/audio/capture"
	"github.com/nammaroute/companion/pkg/audio/playback"
	"github.com/nammaroute/companion/pkg/provider/s2s"
)

var errSessionEnded = errors.New("assistant: session ended")

// endReason records what tore a session down. Only the first reason is kept.
type endReason int

const (
	endStopped endReason = iota
	endReplaced
	endRemoteClosed
	endTransportError
	endMicrophoneError
)

func (r endReason) String() string {
	switch r {
	case endStopped:
		return "stopped"
	case endReplaced:
		return "replaced"
	case endRemoteClosed:
		return "remote_closed"
	case endTransportError:
		return "transport_error"
	case endMicrophoneError:
		return "microphone_error"
	default:
		return "unknown"
	}
}

func (r endReason) notice() NoticeKind {
	switch r {
	case endRemoteClosed:
		return NoticeRemoteClosed
	case endTransportError:
		return NoticeTransportError
	case endMicrophoneError:
		return NoticeMicrophoneError
	default:
		return NoticeStopped
	}
}

// session owns the resources of one conversation: the microphone capture,
// the transport handle and the playback queue. Three goroutines move data:
// pump (capture to send queue), sender (send queue to transport) and inbound
// (transport events to playback).
type session struct {
	id        string
	startedAt time.Time
	log       *slog.Logger
	metrics   *observe.Metrics

	capture *capture.Capture
	handle  s2s.SessionHandle
	queue   *playback.Queue
	sendQ   chan []int16

	listening     atomic.Bool
	playing       atomic.Bool
	sent          atomic.Int64
	dropped       atomic.Int64
	interruptions atomic.Int64

	cancel context.CancelCauseFunc

	// onEnd runs once after resources are released, with the winning reason.
	onEnd        func(s *session, reason endReason, err error)
	onTranscript func(Transcript)

	endOnce sync.Once
	wg      sync.WaitGroup
}

func (s *session) start() {
	s.listening.Store(true)
	s.queue.OnPlayingChange(s.playing.Store)

	s.wg.Add(3)
	go s.pump()
	go s.sender()
	go s.inbound()
}

// pump encodes captured frames and offers them to the send queue without
// ever blocking the capture reader.
func (s *session) pump() {
	defer s.wg.Done()
	defer close(s.sendQ)

	ctx := context.Background()
	for buf := range s.capture.Frames() {
		pcm := audio.EncodeFloats(buf)
		select {
		case s.sendQ <- pcm:
		default:
			s.dropped.Add(1)
			s.metrics.FramesDropped.Add(ctx, 1)
		}
	}
	s.listening.Store(false)

	if err := s.capture.Err(); err != nil {
		s.log.Warn("microphone failed", "err", err)
		s.end(endMicrophoneError, err)
	}
}

func (s *session) sender() {
	defer s.wg.Done()

	ctx := context.Background()
	for pcm := range s.sendQ {
		if err := s.handle.SendAudio(pcm); err != nil {
			if !errors.Is(err, s2s.ErrSessionClosed) {
				s.log.Warn("send audio failed", "err", err)
				s.end(endTransportError, err)
			}
			return
		}
		s.sent.Add(1)
		s.metrics.FramesSent.Add(ctx, 1)
	}
}

func (s *session) inbound() {
	defer s.wg.Done()

	ctx := context.Background()
	for ev := range s.handle.Events() {
		switch ev.Kind {
		case s2s.EventAudio:
			if len(ev.Audio) == 0 {
				continue
			}
			if err := s.queue.Enqueue(audio.NewFrame(ev.Audio)); err != nil {
				s.log.Debug("reply frame dropped", "err", err)
			}
		case s2s.EventInterrupted:
			s.queue.Interrupt()
			s.interruptions.Add(1)
			s.metrics.Interruptions.Add(ctx, 1)
			s.log.Debug("reply interrupted")
		case s2s.EventTurnComplete:
			s.log.Debug("turn complete", "queued", s.queue.Len())
		case s2s.EventTranscript:
			s.log.Debug("transcript", "speaker", ev.Speaker, "text", ev.Text)
			if s.onTranscript != nil {
				s.onTranscript(Transcript{SessionID: s.id, Speaker: string(ev.Speaker), Text: ev.Text})
			}
		}
	}

	if err := s.handle.Err(); err != nil {
		s.end(endTransportError, err)
		return
	}
	s.end(endRemoteClosed, nil)
}

// end releases the microphone, the transport and the audio output exactly
// once. It never waits for the session goroutines, so any of them may call
// it.
func (s *session) end(reason endReason, cause error) {
	s.endOnce.Do(func() {
		s.listening.Store(false)
		s.cancel(errSessionEnded)

		var errs []error
		if err := s.capture.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := s.handle.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := s.queue.Close(); err != nil {
			errs = append(errs, err)
		}
		s.playing.Store(false)

		ctx := context.Background()
		stats := s.queue.Stats()
		s.metrics.FramesPlayed.Add(ctx, stats.Played)
		s.metrics.ActiveSessions.Add(ctx, -1)
		s.metrics.SessionDuration.Record(ctx, time.Since(s.startedAt).Seconds())

		s.log.Info("session ended",
			"reason", reason.String(),
			"cause", cause,
			"frames_sent", s.sent.Load(),
			"frames_dropped", s.dropped.Load(),
			"frames_played", stats.Played,
			"release_err", errors.Join(errs...),
		)

		if s.onEnd != nil {
			s.onEnd(s, reason, cause)
		}
	})
}

// wait blocks until all session goroutines have returned. It must not be
// called from one of them.
func (s *session) wait() {
	s.wg.Wait()
}

func (s *session) status() Status {
	return Status{
		State:         StateActive,
		Listening:     s.listening.Load(),
		Playing:       s.playing.Load(),
		SessionID:     s.id,
		StartedAt:     s.startedAt,
		FramesSent:    s.sent.Load(),
		FramesDropped: s.dropped.Load(),
		FramesPlayed:  s.queue.Stats().Played,
		Interruptions: s.interruptions.Load(),
	}
}
