package assistant

import (
	"fmt"
	"time"
)

// State is the lifecycle state of the assistant.
type State int

const (
	// StateIdle means no session exists.
	StateIdle State = iota

	// StateConnecting means the microphone is open and the voice service is
	// being dialled.
	StateConnecting

	// StateActive means a session is streaming audio in both directions.
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{StateIdle, StateConnecting, StateActive} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("assistant: unknown state %q", b)
}

// Status is a point-in-time view of the assistant.
type Status struct {
	State State `json:"state"`

	// Listening is true while microphone frames are being captured.
	Listening bool `json:"listening"`

	// Playing is true while a reply frame is being played.
	Playing bool `json:"playing"`

	SessionID string    `json:"session_id,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`

	FramesSent    int64 `json:"frames_sent"`
	FramesDropped int64 `json:"frames_dropped"`
	FramesPlayed  int64 `json:"frames_played"`
	Interruptions int64 `json:"interruptions"`

	Language string    `json:"language"`
	Location *Location `json:"location,omitempty"`
}

// Location is a user position in decimal degrees.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// lifecycle is the state value owned by the Assistant. Every method must be
// called with the assistant mutex held.
type lifecycle struct {
	state State
}

// connect moves idle to connecting.
func (l *lifecycle) connect() bool {
	if l.state != StateIdle {
		return false
	}
	l.state = StateConnecting
	return true
}

// activate moves connecting to active.
func (l *lifecycle) activate() bool {
	if l.state != StateConnecting {
		return false
	}
	l.state = StateActive
	return true
}

// reset moves any state to idle.
func (l *lifecycle) reset() {
	l.state = StateIdle
}
