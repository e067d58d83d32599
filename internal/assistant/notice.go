package assistant

import "time"

// NoticeKind classifies a user-visible notice.
type NoticeKind string

const (
	NoticeStarted          NoticeKind = "started"
	NoticeStopped          NoticeKind = "stopped"
	NoticePermissionDenied NoticeKind = "permission_denied"
	NoticeMicrophoneError  NoticeKind = "microphone_error"
	NoticeConnectFailed    NoticeKind = "connect_failed"
	NoticeTransportError   NoticeKind = "transport_error"
	NoticeRemoteClosed     NoticeKind = "remote_closed"
)

// Notice is a message the user should hear or see, e.g. "Microphone access
// denied".
type Notice struct {
	Kind      NoticeKind `json:"kind"`
	Message   string     `json:"message"`
	SessionID string     `json:"session_id,omitempty"`
	Err       error      `json:"-"`
	Time      time.Time  `json:"time"`
}

var noticeMessages = map[NoticeKind]string{
	NoticeStarted:          "Assistant is listening.",
	NoticeStopped:          "Assistant stopped.",
	NoticePermissionDenied: "Microphone access denied. Please allow microphone access to talk to the assistant.",
	NoticeMicrophoneError:  "The microphone could not be opened.",
	NoticeConnectFailed:    "Could not reach the voice assistant. Please try again.",
	NoticeTransportError:   "The connection to the voice assistant was lost.",
	NoticeRemoteClosed:     "The voice assistant ended the conversation.",
}

func newNotice(kind NoticeKind, sessionID string, err error) Notice {
	return Notice{
		Kind:      kind,
		Message:   noticeMessages[kind],
		SessionID: sessionID,
		Err:       err,
		Time:      time.Now(),
	}
}

// Transcript is a line of recognised speech from either side.
type Transcript struct {
	SessionID string `json:"session_id"`
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
}
