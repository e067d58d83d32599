package assistant_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nammaroute/companion/internal/assistant"
	"github.com/nammaroute/companion/internal/observe/observetest"
	"github.com/nammaroute/companion/internal/transit"
	"github.com/nammaroute/companion/pkg/audio"
	"github.com/nammaroute/companion/pkg/audio/capture"
	audiomock "github.com/nammaroute/companion/pkg/audio/mock"
	"github.com/nammaroute/companion/pkg/audio/playback"
	"github.com/nammaroute/companion/pkg/provider/s2s"
	s2smock "github.com/nammaroute/companion/pkg/provider/s2s/mock"
)

type harness struct {
	a        *assistant.Assistant
	provider *s2smock.Provider
	mic      *audiomock.Source
	metrics  *observetest.Reader

	// gate and started, when set before Start, are shared by every sink.
	// Nothing drains started except the test that sets it.
	gate    chan struct{}
	started chan audio.Frame

	mu      sync.Mutex
	sinks   []*audiomock.Sink
	notices []assistant.Notice
}

func newHarness(t *testing.T, provider s2s.Provider, opts ...assistant.Option) *harness {
	t.Helper()
	h := &harness{mic: &audiomock.Source{}}
	if p, ok := provider.(*s2smock.Provider); ok {
		h.provider = p
	}
	m, r := observetest.NewMetrics(t)
	h.metrics = r

	speaker := func() (playback.Sink, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		s := &audiomock.Sink{Gate: h.gate, Started: h.started}
		h.sinks = append(h.sinks, s)
		return s, nil
	}
	opts = append([]assistant.Option{assistant.WithMetrics(m)}, opts...)
	h.a = assistant.New(provider, h.mic, speaker, transit.Default(), opts...)
	h.a.OnNotice(func(n assistant.Notice) {
		h.mu.Lock()
		h.notices = append(h.notices, n)
		h.mu.Unlock()
	})
	t.Cleanup(func() { _ = h.a.Close() })
	return h
}

func (h *harness) sink(i int) *audiomock.Sink {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sinks[i]
}

func (h *harness) noticeKinds() []assistant.NoticeKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	var kinds []assistant.NoticeKind
	for _, n := range h.notices {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

func (h *harness) hasNotice(kind assistant.NoticeKind) bool {
	for _, k := range h.noticeKinds() {
		if k == kind {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func reply(v int16) s2s.Event {
	return s2s.Event{Kind: s2s.EventAudio, Audio: []int16{v, v, v}}
}

func TestRepliesPlayInReceivedOrder(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &s2smock.Provider{})
	if err := h.a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sess := h.provider.Sessions()[0]

	const n = 100
	for i := range n {
		sess.Push(reply(int16(i)))
	}
	sink := h.sink(0)
	waitFor(t, "all replies played", func() bool { return len(sink.Played()) == n })

	for i, f := range sink.Played() {
		if f.Samples[0] != int16(i) {
			t.Fatalf("played[%d] = %d, want %d", i, f.Samples[0], i)
		}
	}
	if got := sink.MaxConcurrent(); got != 1 {
		t.Errorf("MaxConcurrent = %d, want 1", got)
	}
	if got := h.a.Status().FramesPlayed; got != n {
		t.Errorf("FramesPlayed = %d, want %d", got, n)
	}
}

func TestInterruptionDiscardsQueuedReplies(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &s2smock.Provider{})
	h.gate = make(chan struct{})
	h.started = make(chan audio.Frame, 8)
	if err := h.a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sess := h.provider.Sessions()[0]

	sess.Push(reply(1))
	if f := <-h.started; f.Samples[0] != 1 {
		t.Fatalf("first frame = %d", f.Samples[0])
	}
	waitFor(t, "playing", func() bool { return h.a.Status().Playing })

	for v := int16(2); v <= 5; v++ {
		sess.Push(reply(v))
	}
	sess.Push(s2s.Event{Kind: s2s.EventInterrupted})
	sess.Push(reply(6))

	select {
	case f := <-h.started:
		if f.Samples[0] != 6 {
			t.Fatalf("frame after interruption = %d, want 6", f.Samples[0])
		}
	case <-time.After(3 * time.Second):
		t.Fatal("frame 6 never started")
	}
	h.gate <- struct{}{}

	sink := h.sink(0)
	waitFor(t, "frame 6 played", func() bool { return len(sink.Played()) == 1 })
	if got := sink.Played()[0].Samples[0]; got != 6 {
		t.Errorf("played = %d, want 6", got)
	}
	if c := sink.Cancelled(); len(c) != 1 || c[0].Samples[0] != 1 {
		t.Errorf("cancelled = %v, want only frame 1", c)
	}
	if got := h.a.Status().Interruptions; got != 1 {
		t.Errorf("Interruptions = %d, want 1", got)
	}
	if got := h.metrics.Sum("nammaroute.assistant.interruptions"); got != 1 {
		t.Errorf("interruptions metric = %d", got)
	}
}

func TestStopReleasesExactlyOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &s2smock.Provider{})
	if err := h.a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for range 3 {
		if err := h.a.Stop(); err != nil {
			t.Fatalf("Stop: %v", err)
		}
	}

	if got := h.mic.Opened()[0].CloseCalls(); got != 1 {
		t.Errorf("microphone closed %d times, want 1", got)
	}
	if got := h.provider.Sessions()[0].CloseCalls(); got != 1 {
		t.Errorf("transport closed %d times, want 1", got)
	}
	if got := h.sink(0).CloseCalls(); got != 1 {
		t.Errorf("audio output closed %d times, want 1", got)
	}
	if st := h.a.Status(); st.State != assistant.StateIdle || st.SessionID != "" {
		t.Errorf("status after stop = %+v", st)
	}
	if got := h.metrics.Sum("nammaroute.assistant.sessions"); got != 0 {
		t.Errorf("active sessions = %d, want 0", got)
	}
	if !h.hasNotice(assistant.NoticeStopped) {
		t.Errorf("notices = %v, want stopped", h.noticeKinds())
	}
}

func TestNoticeSubscribersMayRegisterFromCallback(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &s2smock.Provider{})

	var mu sync.Mutex
	var late []assistant.NoticeKind
	h.a.OnNotice(func(assistant.Notice) {
		// Registering while notices are being delivered must not deadlock.
		h.a.OnNotice(func(n assistant.Notice) {
			mu.Lock()
			late = append(late, n.Kind)
			mu.Unlock()
		})
	})

	if err := h.a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.a.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !h.hasNotice(assistant.NoticeStopped) {
		t.Errorf("first subscriber notices = %v", h.noticeKinds())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(late) == 0 {
		t.Error("subscriber added from a callback never received a notice")
	}
}

func TestStopAfterRemoteCloseReleasesOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &s2smock.Provider{})
	if err := h.a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.provider.Sessions()[0].Finish(nil)
	waitFor(t, "idle after remote close", func() bool { return h.a.Status().State == assistant.StateIdle })

	if err := h.a.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := h.mic.Opened()[0].CloseCalls(); got != 1 {
		t.Errorf("microphone closed %d times, want 1", got)
	}
	if got := h.provider.Sessions()[0].CloseCalls(); got != 1 {
		t.Errorf("transport closed %d times, want 1", got)
	}
	if got := h.sink(0).CloseCalls(); got != 1 {
		t.Errorf("audio output closed %d times, want 1", got)
	}
	if !h.hasNotice(assistant.NoticeRemoteClosed) || h.hasNotice(assistant.NoticeStopped) {
		t.Errorf("notices = %v, want remote_closed only", h.noticeKinds())
	}
}

func TestTransportErrorTearsDown(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &s2smock.Provider{})
	if err := h.a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.provider.Sessions()[0].Finish(errors.New("websocket: connection reset"))

	waitFor(t, "idle after transport error", func() bool { return h.a.Status().State == assistant.StateIdle })
	waitFor(t, "transport error notice", func() bool { return h.hasNotice(assistant.NoticeTransportError) })
	if got := h.mic.Opened()[0].CloseCalls(); got != 1 {
		t.Errorf("microphone closed %d times, want 1", got)
	}
	if got := h.sink(0).CloseCalls(); got != 1 {
		t.Errorf("audio output closed %d times, want 1", got)
	}
}

func TestStartReplacesActiveSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &s2smock.Provider{})
	ctx := context.Background()
	if err := h.a.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	firstID := h.a.Status().SessionID
	if err := h.a.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	st := h.a.Status()
	if st.State != assistant.StateActive || st.SessionID == "" || st.SessionID == firstID {
		t.Fatalf("status = %+v, want a new active session", st)
	}

	sessions := h.provider.Sessions()
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}
	if sessions[0].CloseCalls() != 1 || sessions[1].CloseCalls() != 0 {
		t.Errorf("close calls = %d, %d; want 1, 0", sessions[0].CloseCalls(), sessions[1].CloseCalls())
	}
	streams := h.mic.Opened()
	if streams[0].CloseCalls() != 1 || streams[1].CloseCalls() != 0 {
		t.Errorf("microphone close calls = %d, %d", streams[0].CloseCalls(), streams[1].CloseCalls())
	}
	if h.sink(0).CloseCalls() != 1 || h.sink(1).CloseCalls() != 0 {
		t.Errorf("sink close calls = %d, %d", h.sink(0).CloseCalls(), h.sink(1).CloseCalls())
	}
	if got := h.metrics.Sum("nammaroute.assistant.sessions"); got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}

	// Late events from the replaced session go nowhere.
	sessions[0].Push(reply(9))
	sessions[1].Push(reply(1))
	waitFor(t, "reply on new session", func() bool { return len(h.sink(1).Played()) == 1 })
	if len(h.sink(0).Played()) != 0 {
		t.Error("replaced session played audio")
	}
}

func TestConcurrentStartsLeaveOneSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &s2smock.Provider{})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.a.Start(context.Background())
		}()
	}
	wg.Wait()

	open := 0
	for _, s := range h.provider.Sessions() {
		if s.CloseCalls() == 0 {
			open++
		}
	}
	if open != 1 {
		t.Errorf("open sessions = %d, want 1", open)
	}
	if got := h.metrics.Sum("nammaroute.assistant.sessions"); got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
}

func TestPermissionDeniedStaysIdle(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &s2smock.Provider{})
	h.mic.OpenError = fmt.Errorf("arecord: %w", capture.ErrPermissionDenied)

	err := h.a.Start(context.Background())
	if !errors.Is(err, capture.ErrPermissionDenied) {
		t.Fatalf("Start err = %v, want ErrPermissionDenied", err)
	}
	if st := h.a.Status(); st.State != assistant.StateIdle {
		t.Errorf("state = %v, want idle", st.State)
	}
	if n := len(h.provider.Calls()); n != 0 {
		t.Errorf("Connect called %d times; the assistant must not enter connecting", n)
	}
	if kinds := h.noticeKinds(); len(kinds) != 1 || kinds[0] != assistant.NoticePermissionDenied {
		t.Errorf("notices = %v, want [permission_denied]", kinds)
	}
	if got := h.metrics.Sum("nammaroute.assistant.session.starts", "status", "permission_denied"); got != 1 {
		t.Errorf("permission_denied starts = %d", got)
	}
}

func TestConnectFailureReleasesMicrophone(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &s2smock.Provider{ConnectErr: errors.New("setup rejected")})

	if err := h.a.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded, want error")
	}
	if got := h.mic.Opened()[0].CloseCalls(); got != 1 {
		t.Errorf("microphone closed %d times, want 1", got)
	}
	if st := h.a.Status(); st.State != assistant.StateIdle {
		t.Errorf("state = %v, want idle", st.State)
	}
	if !h.hasNotice(assistant.NoticeConnectFailed) {
		t.Errorf("notices = %v", h.noticeKinds())
	}
}

func TestStopDuringConnect(t *testing.T) {
	t.Parallel()
	p := &s2smock.Provider{Block: make(chan struct{})}
	h := newHarness(t, p)

	errc := make(chan error, 1)
	go func() { errc <- h.a.Start(context.Background()) }()

	waitFor(t, "connecting", func() bool { return h.a.Status().State == assistant.StateConnecting })
	if err := h.a.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := <-errc; !errors.Is(err, assistant.ErrStopped) {
		t.Errorf("Start err = %v, want ErrStopped", err)
	}
	if got := h.mic.Opened()[0].CloseCalls(); got != 1 {
		t.Errorf("microphone closed %d times, want 1", got)
	}
	if h.hasNotice(assistant.NoticeConnectFailed) {
		t.Error("stop during connect reported a connect failure")
	}
	if st := h.a.Status(); st.State != assistant.StateIdle {
		t.Errorf("state = %v, want idle", st.State)
	}
}

func TestCapturedFramesAreEncodedAndSent(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &s2smock.Provider{}, assistant.WithFrameSamples(4))
	h.mic.Stream = &audiomock.Stream{
		Samples: []float32{0, 0.5, -0.5, 1, -1, 0.25, 2, -2},
		Live:    true,
	}
	if err := h.a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sess := h.provider.Sessions()[0]
	waitFor(t, "two frames sent", func() bool { return len(sess.Sent()) == 2 })

	want := [][]int16{
		audio.EncodeFloats([]float32{0, 0.5, -0.5, 1}),
		audio.EncodeFloats([]float32{-1, 0.25, 2, -2}),
	}
	for i, got := range sess.Sent() {
		if fmt.Sprint(got) != fmt.Sprint(want[i]) {
			t.Errorf("frame %d = %v, want %v", i, got, want[i])
		}
	}
	st := h.a.Status()
	if st.FramesSent != 2 || !st.Listening {
		t.Errorf("status = %+v", st)
	}
	if got := h.metrics.Sum("nammaroute.assistant.frames_sent"); got != 2 {
		t.Errorf("frames_sent metric = %d", got)
	}
}

// stalledProvider hands out sessions whose SendAudio blocks until Close.
type stalledProvider struct {
	s2smock.Provider
	sess *stalledSession
}

type stalledSession struct {
	*s2smock.Session
	release   chan struct{}
	closeOnce sync.Once
}

func (p *stalledProvider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	p.sess = &stalledSession{Session: s2smock.NewSession(), release: make(chan struct{})}
	return p.sess, nil
}

func (s *stalledSession) SendAudio(pcm []int16) error {
	<-s.release
	return s2s.ErrSessionClosed
}

func (s *stalledSession) Close() error {
	s.closeOnce.Do(func() { close(s.release) })
	return s.Session.Close()
}

func TestFullSendQueueDropsFrames(t *testing.T) {
	t.Parallel()
	p := &stalledProvider{}
	h := newHarness(t, p, assistant.WithFrameSamples(4), assistant.WithSendBuffer(2))
	h.mic.Stream = &audiomock.Stream{Samples: make([]float32, 4*50), Live: true}

	if err := h.a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// One frame is stuck in SendAudio and two wait in the queue.
	waitFor(t, "47 dropped frames", func() bool { return h.a.Status().FramesDropped == 47 })
	if got := h.metrics.Sum("nammaroute.assistant.frames_dropped"); got != 47 {
		t.Errorf("frames_dropped metric = %d", got)
	}
	if st := h.a.Status(); st.State != assistant.StateActive {
		t.Errorf("a stalled transport must not end the session, state = %v", st.State)
	}
	if err := h.a.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestSessionConfig(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &s2smock.Provider{}, assistant.WithLanguage("ta"), assistant.WithVoice("Puck"))
	h.a.SetLocation(13.0418, 80.2341)
	if err := h.a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	cfg := h.provider.Calls()[0].Cfg
	if cfg.Voice != "Puck" {
		t.Errorf("voice = %q", cfg.Voice)
	}
	if len(cfg.Modalities) != 1 || cfg.Modalities[0] != s2s.ModalityAudio {
		t.Errorf("modalities = %v", cfg.Modalities)
	}
	for _, want := range []string{
		"- Language: Tamil",
		"- Current Location: Lat: 13.0418, Lng: 80.2341",
		`{"number":"21G","origin":"Broadway","destination":"Tambaram","eta":"5 mins"}`,
		`["Kapaleeshwarar Temple","Rockfort Temple"]`,
	} {
		if !strings.Contains(cfg.Instructions, want) {
			t.Errorf("instructions missing %q:\n%s", want, cfg.Instructions)
		}
	}

	// Settings apply to the next session only.
	h.a.SetLanguage("hi")
	h.a.ClearLocation()
	h.a.SetVoice("")
	if err := h.a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	cfg = h.provider.Calls()[1].Cfg
	if !strings.Contains(cfg.Instructions, "- Language: Hindi") ||
		!strings.Contains(cfg.Instructions, "Unknown (using Chennai as default)") {
		t.Errorf("second instructions:\n%s", cfg.Instructions)
	}
	if cfg.Voice != s2s.DefaultVoice {
		t.Errorf("voice = %q, want default", cfg.Voice)
	}
}

func TestInterruptRequiresSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &s2smock.Provider{})
	if err := h.a.Interrupt(); !errors.Is(err, assistant.ErrNotActive) {
		t.Errorf("Interrupt err = %v, want ErrNotActive", err)
	}
	if err := h.a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := h.a.Interrupt(); err != nil {
		t.Errorf("Interrupt err = %v", err)
	}
}

func TestTranscriptsAreForwarded(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &s2smock.Provider{})
	got := make(chan assistant.Transcript, 1)
	h.a.OnTranscript(func(tr assistant.Transcript) { got <- tr })
	if err := h.a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.provider.Sessions()[0].Push(s2s.Event{Kind: s2s.EventTranscript, Speaker: s2s.SpeakerModel, Text: "Bus 21G arrives in 5 minutes."})

	select {
	case tr := <-got:
		if tr.Text != "Bus 21G arrives in 5 minutes." || tr.SessionID == "" {
			t.Errorf("transcript = %+v", tr)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no transcript")
	}
}

func TestStartAfterClose(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &s2smock.Provider{})
	if err := h.a.Close(); err != nil {
		t.Fatal(err)
	}
	if err := h.a.Start(context.Background()); !errors.Is(err, assistant.ErrClosed) {
		t.Errorf("Start err = %v, want ErrClosed", err)
	}
}

func TestVoicesComeFromProvider(t *testing.T) {
	t.Parallel()
	p := &s2smock.Provider{ProviderCapabilities: s2s.Capabilities{Voices: []string{"Zephyr", "Puck"}}}
	h := newHarness(t, p)

	voices := h.a.Voices()
	if len(voices) != 2 || voices[0] != "Zephyr" {
		t.Fatalf("Voices() = %v", voices)
	}
	voices[0] = "changed"
	if h.a.Voices()[0] != "Zephyr" {
		t.Error("Voices() shares the provider slice")
	}

	// Unknown voices are still passed through; the service has the final say.
	h.a.SetVoice("Nova")
	if err := h.a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := p.Calls()[0].Cfg.Voice; got != "Nova" {
		t.Errorf("voice = %q", got)
	}
}
