// Package s2s defines the Provider interface for speech-to-speech backends.
//
// An S2S provider wraps a real-time voice service that accepts raw audio input
// and returns synthesised audio output in a single stateful session. The
// central abstraction is [SessionHandle]: a bidirectional channel carrying
// microphone audio out and reply audio plus control signals back.
//
// All implementations must be safe for concurrent use.
package s2s

import (
	"context"
	"errors"
	"time"
)

// ErrSessionClosed is returned by [SessionHandle.SendAudio] once the session
// has been closed locally or by the remote side.
var ErrSessionClosed = errors.New("s2s: session closed")

const (
	// DefaultVoice is the prebuilt voice used when SessionConfig.Voice is empty.
	DefaultVoice = "Zephyr"

	// ModalityAudio requests spoken replies.
	ModalityAudio = "AUDIO"
)

// SessionConfig is the fixed configuration sent when a session opens.
type SessionConfig struct {
	// Voice is the prebuilt voice identity. Empty means [DefaultVoice].
	Voice string

	// Instructions is the system instruction for the whole session.
	Instructions string

	// Modalities lists the requested response modalities. Empty means audio
	// only.
	Modalities []string
}

// VoiceName returns the effective voice.
func (c SessionConfig) VoiceName() string {
	if c.Voice == "" {
		return DefaultVoice
	}
	return c.Voice
}

// ResponseModalities returns the effective modalities.
func (c SessionConfig) ResponseModalities() []string {
	if len(c.Modalities) == 0 {
		return []string{ModalityAudio}
	}
	return c.Modalities
}

// EventKind discriminates inbound session events.
type EventKind int

const (
	// EventAudio carries a chunk of reply audio in Event.Audio.
	EventAudio EventKind = iota + 1

	// EventInterrupted reports that the remote side detected user speech and
	// abandoned the reply in progress. Queued reply audio must be discarded.
	EventInterrupted

	// EventTurnComplete marks the end of a model turn.
	EventTurnComplete

	// EventTranscript carries recognised user speech or the text form of the
	// model's reply in Event.Text.
	EventTranscript
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventAudio:
		return "audio"
	case EventInterrupted:
		return "interrupted"
	case EventTurnComplete:
		return "turn_complete"
	case EventTranscript:
		return "transcript"
	default:
		return "unknown"
	}
}

// Speaker identifies who a transcript belongs to.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerModel Speaker = "model"
)

// Event is one inbound message from the session, delivered in receive order.
type Event struct {
	Kind EventKind

	// Audio holds mono PCM16 samples at the session rate for EventAudio.
	Audio []int16

	// Text and Speaker are set for EventTranscript.
	Text    string
	Speaker Speaker
}

// Capabilities describes static properties of the provider.
type Capabilities struct {
	// SampleRate is the PCM rate in both directions.
	SampleRate int

	// MaxSessionDuration is the provider-imposed session lifetime. Zero means
	// no documented limit.
	MaxSessionDuration time.Duration

	// Voices lists the prebuilt voices the provider accepts.
	Voices []string
}

// SessionHandle represents an open session. All methods must be safe for
// concurrent use. Callers must call Close when the session is no longer
// needed.
type SessionHandle interface {
	// SendAudio encodes pcm and delivers it to the remote side. It returns
	// [ErrSessionClosed] after the session ended.
	SendAudio(pcm []int16) error

	// Events returns the inbound event channel. Events arrive in the order the
	// remote side sent them. The channel is closed when the session ends for
	// any reason; call Err afterwards to tell a clean close from a failure.
	Events() <-chan Event

	// Err returns the error that ended the session, or nil on a clean close.
	Err() error

	// Close terminates the session and releases the transport. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any S2S backend.
type Provider interface {
	// Connect opens a session and returns once the remote side acknowledged
	// the configuration. The caller owns the returned handle.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)

	// Capabilities returns static metadata about the provider.
	Capabilities() Capabilities
}
