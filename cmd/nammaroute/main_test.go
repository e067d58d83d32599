package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// runCLI executes the root command with args against a config file in a
// temporary directory. The CLI installs a process-wide logger, so these
// tests do not run in parallel.
func runCLI(t *testing.T, config string, args ...string) (string, string, error) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "nammaroute.yaml")
	if err := os.WriteFile(path, []byte(config), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GEMINI_API_KEY", "")

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", path, "--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, s, want string) {
	t.Helper()
	if !strings.Contains(s, want) {
		t.Fatalf("output missing %q:\n%s", want, s)
	}
}

func requireNotContains(t *testing.T, s, unwanted string) {
	t.Helper()
	if strings.Contains(s, unwanted) {
		t.Fatalf("output unexpectedly contains %q:\n%s", unwanted, s)
	}
}

const minimalConfig = "server:\n  log_level: error\n"

func TestBusesCommand(t *testing.T) {
	out, _, err := runCLI(t, minimalConfig, "buses")
	if err != nil {
		t.Fatalf("buses: %v", err)
	}
	for _, want := range []string{"21G", "32B", "102", "Tambaram"} {
		requireContains(t, out, want)
	}
}

func TestBusesCommand_FuzzyStops(t *testing.T) {
	out, _, err := runCLI(t, minimalConfig, "buses", "--from", "broadway", "--to", "tambaram")
	if err != nil {
		t.Fatalf("buses: %v", err)
	}
	requireContains(t, out, "21G")
	requireNotContains(t, out, "32B")
}

func TestBusesCommand_UnknownStop(t *testing.T) {
	_, _, err := runCLI(t, minimalConfig, "buses", "--from", "zzzz")
	if err == nil || !strings.Contains(err.Error(), `unknown stop "zzzz"`) {
		t.Fatalf("err = %v, want unknown stop", err)
	}
}

func TestBusesCommand_Detail(t *testing.T) {
	out, _, err := runCLI(t, minimalConfig, "buses", "b1")
	if err != nil {
		t.Fatalf("buses b1: %v", err)
	}
	requireContains(t, out, "Bus 21G: Broadway → Tambaram")
	requireContains(t, out, "next")
	requireContains(t, out, "Adyar")
}

func TestLandmarksCommand(t *testing.T) {
	out, _, err := runCLI(t, minimalConfig, "landmarks", "kapaleeshwarar")
	if err != nil {
		t.Fatalf("landmarks: %v", err)
	}
	requireContains(t, out, "Kapaleeshwarar Temple")
	requireNotContains(t, out, "Rockfort")
}

func TestRoomsCommand(t *testing.T) {
	out, _, err := runCLI(t, minimalConfig, "rooms", "--max-rent", "1000")
	if err != nil {
		t.Fatalf("rooms: %v", err)
	}
	requireContains(t, out, "Adyar Guest House")
	requireNotContains(t, out, "Mylapore Residency")
}

func TestCatalogFromDataFile(t *testing.T) {
	data := filepath.Join(t.TempDir(), "data.yaml")
	doc := `buses:
  - id: x1
    number: 5C
    origin: Guindy
    destination: Velachery
    current_stop: Guindy
    eta: 4 mins
    fare: 10
    crowding: low
    seats: {men: 1, women: 1, total: 2}
    stops:
      - {name: Guindy, time: "07:00"}
      - {name: Velachery, time: "07:20"}
`
	if err := os.WriteFile(data, []byte(doc), 0o644); err != nil {
		t.Fatalf("write data: %v", err)
	}
	out, _, err := runCLI(t, minimalConfig+"transit:\n  data_file: "+data+"\n", "buses")
	if err != nil {
		t.Fatalf("buses: %v", err)
	}
	requireContains(t, out, "5C")
	requireNotContains(t, out, "21G")
}

func TestGuideCommand_RequiresLLM(t *testing.T) {
	_, _, err := runCLI(t, minimalConfig, "guide", "itinerary", "Chennai")
	if !errors.Is(err, errNoGuide) {
		t.Fatalf("err = %v, want errNoGuide", err)
	}
}

func TestInvalidConfig(t *testing.T) {
	_, _, err := runCLI(t, "server:\n  log_level: loud\n", "buses")
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestVersionFlag(t *testing.T) {
	out, _, err := runCLI(t, minimalConfig, "--version")
	if err != nil {
		t.Fatalf("--version: %v", err)
	}
	requireContains(t, out, version)
}
