package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func serve(t *testing.T, h *Handler, path string) (int, result) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec.Code, body
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	code, body := serve(t, New(Static("broken", errors.New("x"))), "/healthz")
	if code != http.StatusOK || body.Status != "ok" {
		t.Errorf("healthz = %d %+v", code, body)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		checkers []Checker
		code     int
		status   string
		checks   map[string]string
	}{
		{"no checkers", nil, http.StatusOK, "ok", nil},
		{
			"all pass",
			[]Checker{Static("gemini_key", nil), NonEmpty("catalog", func() int { return 3 })},
			http.StatusOK, "ok",
			map[string]string{"gemini_key": "ok", "catalog": "ok"},
		},
		{
			"one fails",
			[]Checker{Static("gemini_key", errors.New("GEMINI_API_KEY not set")), NonEmpty("catalog", func() int { return 0 })},
			http.StatusServiceUnavailable, "fail",
			map[string]string{"gemini_key": "fail: GEMINI_API_KEY not set", "catalog": "fail: empty"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			code, body := serve(t, New(tc.checkers...), "/readyz")
			if code != tc.code || body.Status != tc.status {
				t.Fatalf("readyz = %d %q, want %d %q", code, body.Status, tc.code, tc.status)
			}
			for k, v := range tc.checks {
				if body.Checks[k] != v {
					t.Errorf("checks[%s] = %q, want %q", k, body.Checks[k], v)
				}
			}
		})
	}
}

func TestReadyz_ChecksRunConcurrently(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	slow := func(ctx context.Context) error {
		started <- struct{}{}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h := New(Checker{Name: "a", Check: slow}, Checker{Name: "b", Check: slow})

	go func() {
		<-started
		<-started
		close(release)
	}()

	done := make(chan int, 1)
	go func() {
		rec := httptest.NewRecorder()
		h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		done <- rec.Code
	}()
	select {
	case code := <-done:
		if code != http.StatusOK {
			t.Errorf("code = %d", code)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("checks did not run concurrently")
	}
}

func TestBinary(t *testing.T) {
	t.Parallel()
	if err := Binary("shell", "sh").Check(context.Background()); err != nil {
		t.Errorf("sh: %v", err)
	}
	err := Binary("player", "definitely-not-a-player-binary").Check(context.Background())
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("missing binary err = %v", err)
	}
	if err := Binary("player", "").Check(context.Background()); err == nil {
		t.Error("empty program should fail")
	}
}
