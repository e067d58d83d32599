package capture

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRecorderCommand records 24 kHz mono float32 samples to stdout.
var DefaultRecorderCommand = []string{"arecord", "-q", "-t", "raw", "-f", "FLOAT_LE", "-c", "1", "-r", "24000"}

var commandContext = exec.CommandContext

// recorderWaitDelay bounds how long Close waits for the recorder's stderr
// after it was killed, e.g. when a grandchild still holds the pipe.
const recorderWaitDelay = 2 * time.Second

// permissionMarkers are recorder stderr fragments that indicate the device
// was refused rather than missing or broken.
var permissionMarkers = []string{"permission denied", "eacces", "operation not permitted"}

// CommandSource is a [Source] that runs an external recorder process and
// reads little-endian float32 samples from its stdout.
type CommandSource struct {
	argv []string
}

// NewCommandSource returns a source running argv, or
// [DefaultRecorderCommand] when argv is empty.
func NewCommandSource(argv ...string) *CommandSource {
	if len(argv) == 0 {
		argv = DefaultRecorderCommand
	}
	return &CommandSource{argv: argv}
}

var _ Source = (*CommandSource)(nil)

// Open starts the recorder and waits for its first sample. A recorder that
// exits before producing audio is reported through its stderr; refusals wrap
// [ErrPermissionDenied].
func (s *CommandSource) Open(ctx context.Context) (Stream, error) {
	cmd := commandContext(context.Background(), s.argv[0], s.argv[1:]...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = recorderWaitDelay
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("capture: recorder %q not found: %w", s.argv[0], err)
		}
		return nil, fmt.Errorf("capture: start %s: %w", s.argv[0], err)
	}

	st := &commandStream{cmd: cmd, stdout: stdout, r: bufio.NewReaderSize(stdout, 64*1024)}

	ready := make(chan error, 1)
	go func() {
		st.readMu.Lock()
		defer st.readMu.Unlock()
		_, err := st.r.Peek(4)
		ready <- err
	}()

	select {
	case <-ctx.Done():
		_ = st.Close()
		<-ready
		return nil, ctx.Err()
	case err := <-ready:
		if err == nil {
			return st, nil
		}
		_ = st.Close()
		return nil, classifyRecorderFailure(s.argv[0], stderr.String(), err)
	}
}

func classifyRecorderFailure(name, stderr string, readErr error) error {
	msg := strings.TrimSpace(stderr)
	lower := strings.ToLower(msg)
	for _, m := range permissionMarkers {
		if strings.Contains(lower, m) {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, msg)
		}
	}
	if msg == "" {
		return fmt.Errorf("capture: %s produced no audio: %w", name, readErr)
	}
	return fmt.Errorf("capture: %s failed: %s", name, msg)
}

// commandStream reads the recorder's stdout. readMu is held for the whole of
// every read so Close can reap the process only after reads have returned.
type commandStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	r      *bufio.Reader

	readMu sync.Mutex
	raw    []byte

	closed    atomic.Bool
	closeOnce sync.Once
}

// Read implements [Stream]. It blocks until len(buf) samples are available or
// the recorder stops.
func (s *commandStream) Read(buf []float32) (int, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	if s.closed.Load() {
		return 0, io.EOF
	}

	if need := len(buf) * 4; cap(s.raw) < need {
		s.raw = make([]byte, need)
	}
	raw := s.raw[:len(buf)*4]

	n, err := io.ReadFull(s.r, raw)
	samples := n / 4
	for i := range samples {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || (err != nil && s.closed.Load()) {
		err = io.EOF
	}
	return samples, err
}

// Close kills the recorder, closes our end of its stdout so a blocked Read
// returns, and reaps the process once no read is in flight.
func (s *commandStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.stdout.Close()

		s.readMu.Lock()
		defer s.readMu.Unlock()
		_ = s.cmd.Wait()
	})
	return nil
}
