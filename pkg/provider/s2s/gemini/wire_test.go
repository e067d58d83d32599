package gemini

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/nammaroute/companion/pkg/audio"
	"github.com/nammaroute/companion/pkg/provider/s2s"
)

func TestNewSetup(t *testing.T) {
	t.Parallel()

	msg := newSetup("models/gemini-live", s2s.SessionConfig{Voice: "Puck"}, true)
	if msg.Setup.Model != "models/gemini-live" {
		t.Errorf("model = %q, want a single models/ prefix", msg.Setup.Model)
	}
	if msg.Setup.SystemInstruction != nil {
		t.Errorf("systemInstruction = %+v, want omitted", msg.Setup.SystemInstruction)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"voiceName":"Puck"`, `"inputAudioTranscription":{}`, `"outputAudioTranscription":{}`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("setup JSON missing %s: %s", want, data)
		}
	}

	data, _ = json.Marshal(newSetup("gemini-live", s2s.SessionConfig{}, false))
	if strings.Contains(string(data), "Transcription") {
		t.Errorf("transcription requested while disabled: %s", data)
	}
}

func TestServerContentEvents(t *testing.T) {
	t.Parallel()

	sc := serverContent{
		ModelTurn: &content{Parts: []part{
			{Text: "thinking"},
			{InlineData: &blob{MIMEType: "image/png", Data: audio.EncodeBase64([]int16{9})}},
			{InlineData: &blob{MIMEType: "audio/pcm;rate=24000", Data: audio.EncodeBase64([]int16{1, 2})}},
			{InlineData: &blob{MIMEType: "audio/pcm", Data: "AQID"}},
			{InlineData: &blob{Data: audio.EncodeBase64([]int16{3})}},
		}},
		OutputTranscription: &text{Text: "Bus 21G is near"},
		InputTranscription:  &text{},
		Interrupted:         true,
		TurnComplete:        true,
	}

	got := sc.events()
	kinds := make([]s2s.EventKind, len(got))
	for i, ev := range got {
		kinds[i] = ev.Kind
	}
	want := []s2s.EventKind{s2s.EventAudio, s2s.EventAudio, s2s.EventTranscript, s2s.EventInterrupted, s2s.EventTurnComplete}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", kinds, want)
		}
	}
	if got[0].Audio[1] != 2 || got[1].Audio[0] != 3 {
		t.Errorf("audio = %v, %v", got[0].Audio, got[1].Audio)
	}
	if got[2].Speaker != s2s.SpeakerModel || got[2].Text != "Bus 21G is near" {
		t.Errorf("transcript = %+v", got[2])
	}
}

func TestServerError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  ServerError
		want string
	}{
		{ServerError{Code: 429, Message: "quota"}, "gemini: service error 429: quota"},
		{ServerError{Message: "bad frame"}, "gemini: service error: bad frame"},
		{ServerError{}, "gemini: service error: unknown error"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
