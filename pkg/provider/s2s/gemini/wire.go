package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nammaroute/companion/pkg/audio"
	"github.com/nammaroute/companion/pkg/provider/s2s"
)

// Client → service.

type clientSetup struct {
	Setup setup `json:"setup"`
}

type setup struct {
	Model                    string     `json:"model"`
	GenerationConfig         generation `json:"generationConfig"`
	SystemInstruction        *content   `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}  `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}  `json:"outputAudioTranscription,omitempty"`
}

type generation struct {
	ResponseModalities []string `json:"responseModalities"`
	SpeechConfig       speech   `json:"speechConfig"`
}

type speech struct {
	VoiceConfig struct {
		PrebuiltVoiceConfig struct {
			VoiceName string `json:"voiceName"`
		} `json:"prebuiltVoiceConfig"`
	} `json:"voiceConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type clientAudio struct {
	RealtimeInput struct {
		Media blob `json:"media"`
	} `json:"realtimeInput"`
}

// newSetup builds the first message of a session.
func newSetup(model string, cfg s2s.SessionConfig, transcribe bool) clientSetup {
	var s setup
	s.Model = "models/" + strings.TrimPrefix(model, "models/")
	s.GenerationConfig.ResponseModalities = cfg.ResponseModalities()
	s.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName = cfg.VoiceName()
	if cfg.Instructions != "" {
		s.SystemInstruction = &content{Parts: []part{{Text: cfg.Instructions}}}
	}
	if transcribe {
		s.InputAudioTranscription = &struct{}{}
		s.OutputAudioTranscription = &struct{}{}
	}
	return clientSetup{Setup: s}
}

// newAudio wraps one frame of microphone PCM for the realtime input stream.
func newAudio(pcm []int16) clientAudio {
	var m clientAudio
	m.RealtimeInput.Media = blob{MIMEType: audio.MIMEType, Data: audio.EncodeBase64(pcm)}
	return m
}

// Service → client.

type serverMessage struct {
	SetupComplete json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent  `json:"serverContent,omitempty"`
	GoAway        *goAway         `json:"goAway,omitempty"`
	Error         *ServerError    `json:"error,omitempty"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

type serverContent struct {
	ModelTurn           *content `json:"modelTurn,omitempty"`
	TurnComplete        bool     `json:"turnComplete,omitempty"`
	Interrupted         bool     `json:"interrupted,omitempty"`
	InputTranscription  *text    `json:"inputTranscription,omitempty"`
	OutputTranscription *text    `json:"outputTranscription,omitempty"`
}

type text struct {
	Text string `json:"text"`
}

// ServerError is an error message sent by the service. It ends the session.
type ServerError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

func (e *ServerError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	if e.Code != 0 {
		return fmt.Sprintf("gemini: service error %d: %s", e.Code, msg)
	}
	return "gemini: service error: " + msg
}

// events converts one serverContent message to session events in the order
// the service meant them: reply audio, transcripts, then the interruption
// and turn-complete markers. Parts that are not PCM or do not decode are
// skipped.
func (sc *serverContent) events() []s2s.Event {
	var out []s2s.Event
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData == nil || !isPCM(p.InlineData.MIMEType) {
				continue
			}
			pcm, err := audio.DecodeBase64(p.InlineData.Data)
			if err != nil || len(pcm) == 0 {
				continue
			}
			out = append(out, s2s.Event{Kind: s2s.EventAudio, Audio: pcm})
		}
	}
	if t := sc.InputTranscription; t != nil && t.Text != "" {
		out = append(out, s2s.Event{Kind: s2s.EventTranscript, Speaker: s2s.SpeakerUser, Text: t.Text})
	}
	if t := sc.OutputTranscription; t != nil && t.Text != "" {
		out = append(out, s2s.Event{Kind: s2s.EventTranscript, Speaker: s2s.SpeakerModel, Text: t.Text})
	}
	if sc.Interrupted {
		out = append(out, s2s.Event{Kind: s2s.EventInterrupted})
	}
	if sc.TurnComplete {
		out = append(out, s2s.Event{Kind: s2s.EventTurnComplete})
	}
	return out
}

func isPCM(mime string) bool {
	return mime == "" || strings.HasPrefix(mime, "audio/pcm")
}
