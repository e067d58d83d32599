package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nammaroute/companion/internal/config"
)

const (
	reloadBaseYAML = `
server:
  log_level: info
assistant:
  language: en
`
	reloadEditedYAML = `
server:
  log_level: debug
assistant:
  language: ta
  voice: Puck
`
	reloadBrokenYAML = `
server:
  log_level: bananas
`
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}

// touch moves the modification time so coarse filesystem clocks still
// register an edit.
func touch(t *testing.T, path string, d time.Duration) {
	t.Helper()
	ts := time.Now().Add(d)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func newReloader(t *testing.T, content string, onChange func(old, new *config.Config)) (*config.Reloader, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nammaroute.yaml")
	writeFile(t, path, content)
	r, err := config.NewReloader(path, onChange, config.WithReloadInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewReloader: %v", err)
	}
	return r, path
}

func TestReloader_InitialLoad(t *testing.T) {
	t.Parallel()
	r, _ := newReloader(t, reloadBaseYAML, nil)
	if cfg := r.Current(); cfg.Server.LogLevel != config.LogInfo || cfg.Assistant.Language != "en" {
		t.Fatalf("Current() = %+v", cfg)
	}
}

func TestReloader_InitialLoadFails(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nammaroute.yaml")
	writeFile(t, path, reloadBrokenYAML)
	if _, err := config.NewReloader(path, nil); err == nil {
		t.Fatal("expected error for invalid initial config")
	}
	if _, err := config.NewReloader(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestReloader_Check(t *testing.T) {
	t.Parallel()

	var diffs []config.ConfigDiff
	r, path := newReloader(t, reloadBaseYAML, func(old, new *config.Config) {
		diffs = append(diffs, config.Diff(old, new))
	})

	if changed, err := r.Check(); changed || err != nil {
		t.Fatalf("Check() on untouched file = %v, %v", changed, err)
	}

	writeFile(t, path, reloadEditedYAML)
	touch(t, path, time.Second)
	changed, err := r.Check()
	if !changed || err != nil {
		t.Fatalf("Check() after edit = %v, %v", changed, err)
	}
	if len(diffs) != 1 {
		t.Fatalf("onChange calls = %d, want 1", len(diffs))
	}
	d := diffs[0]
	if !d.LanguageChanged || d.NewLanguage != "ta" || !d.VoiceChanged || !d.LogLevelChanged {
		t.Errorf("diff = %+v", d)
	}
	if got := r.Current().Assistant.Language; got != "ta" {
		t.Errorf("Current language = %q", got)
	}
}

func TestReloader_KeepsLastGoodConfig(t *testing.T) {
	t.Parallel()
	calls := 0
	r, path := newReloader(t, reloadBaseYAML, func(_, _ *config.Config) { calls++ })

	writeFile(t, path, reloadBrokenYAML)
	touch(t, path, time.Second)
	if changed, err := r.Check(); changed || err == nil {
		t.Fatalf("Check() on broken edit = %v, %v; want error", changed, err)
	}
	if calls != 0 {
		t.Fatalf("onChange called %d times", calls)
	}
	if r.Current().Server.LogLevel != config.LogInfo {
		t.Errorf("log level = %q, want previous value", r.Current().Server.LogLevel)
	}
}

func TestReloader_TouchWithoutEdit(t *testing.T) {
	t.Parallel()
	calls := 0
	r, path := newReloader(t, reloadBaseYAML, func(_, _ *config.Config) { calls++ })

	touch(t, path, time.Second)
	if changed, err := r.Check(); changed || err != nil {
		t.Fatalf("Check() after touch = %v, %v", changed, err)
	}
	if calls != 0 {
		t.Fatalf("onChange called %d times", calls)
	}
}

func TestReloader_Run(t *testing.T) {
	t.Parallel()

	changed := make(chan *config.Config, 1)
	r, path := newReloader(t, reloadBaseYAML, func(_, new *config.Config) {
		select {
		case changed <- new:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	writeFile(t, path, reloadEditedYAML)
	touch(t, path, time.Second)

	select {
	case cfg := <-changed:
		if cfg.Assistant.Voice != "Puck" {
			t.Errorf("voice = %q", cfg.Assistant.Voice)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("edit not picked up")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
