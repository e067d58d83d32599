package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/nammaroute/companion/pkg/audio"
)

// DefaultPlayerCommand plays raw 24 kHz mono PCM16 from stdin.
var DefaultPlayerCommand = PlayerCommand(audio.AssistantFormat)

// PlayerCommand returns the aplay command line for raw PCM16 in format f.
func PlayerCommand(f audio.Format) []string {
	if f.IsZero() {
		f = audio.AssistantFormat
	}
	return []string{"aplay", "-q", "-t", "raw", "-f", "S16_LE",
		"-c", strconv.Itoa(f.Channels), "-r", strconv.Itoa(f.SampleRate)}
}

var commandContext = exec.CommandContext

// CommandSink is a [Sink] that pipes PCM16 into an external player process.
//
// The player is started lazily on the first Play. Play writes the frame and
// then waits for the frame's duration so that cancellation takes effect at
// the audio clock rather than at pipe speed. On cancellation the player is
// killed, discarding whatever it had buffered, and restarted on the next Play.
type CommandSink struct {
	argv   []string
	log    *slog.Logger
	format audio.Format

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	closed bool
}

// CommandSinkOption configures a [CommandSink].
type CommandSinkOption func(*CommandSink)

// WithCommand overrides the player command line.
func WithCommand(argv ...string) CommandSinkOption {
	return func(s *CommandSink) {
		if len(argv) > 0 {
			s.argv = argv
		}
	}
}

// WithFormat converts every frame to f before it reaches the player. The
// zero Format writes frames as they arrive.
func WithFormat(f audio.Format) CommandSinkOption {
	return func(s *CommandSink) { s.format = f }
}

// WithSinkLogger sets the logger used for player lifecycle messages.
func WithSinkLogger(l *slog.Logger) CommandSinkOption {
	return func(s *CommandSink) {
		if l != nil {
			s.log = l
		}
	}
}

// NewCommandSink returns a sink that runs [DefaultPlayerCommand] unless
// overridden.
func NewCommandSink(opts ...CommandSinkOption) *CommandSink {
	s := &CommandSink{argv: DefaultPlayerCommand, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ Sink = (*CommandSink)(nil)

// Play implements [Sink].
func (s *CommandSink) Play(ctx context.Context, frame audio.Frame) error {
	out := frame
	if !s.format.IsZero() {
		var err error
		if out, err = audio.Convert(frame, s.format); err != nil {
			return fmt.Errorf("playback: %w", err)
		}
	}
	stdin, err := s.ensure()
	if err != nil {
		return err
	}

	start := time.Now()
	buf := audio.PCM16Bytes(out.Samples)
	errc := make(chan error, 1)
	go func() {
		_, err := stdin.Write(buf)
		errc <- err
	}()

	select {
	case <-ctx.Done():
		s.kill()
		<-errc
		return ctx.Err()
	case err := <-errc:
		if err != nil {
			s.kill()
			return fmt.Errorf("playback: write to player: %w", err)
		}
	}

	if err := pace(ctx, start, frame.Duration()); err != nil {
		s.kill()
		return err
	}
	return nil
}

// Close stops the player. Close is idempotent.
func (s *CommandSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cmd, stdin := s.cmd, s.stdin
	s.cmd, s.stdin = nil, nil
	s.mu.Unlock()

	if cmd == nil {
		return nil
	}
	// Closing stdin lets the player drain its buffer and exit on its own.
	_ = stdin.Close()
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil
		}
		return fmt.Errorf("playback: wait for player: %w", err)
	}
	return nil
}

func (s *CommandSink) ensure() (io.Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSinkClosed
	}
	if s.cmd != nil {
		return s.stdin, nil
	}

	cmd := commandContext(context.Background(), s.argv[0], s.argv[1:]...) //nolint:gosec
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("playback: stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("playback: start %s: %w", s.argv[0], err)
	}
	s.log.Debug("playback: player started", "cmd", s.argv[0], "pid", cmd.Process.Pid)
	s.cmd, s.stdin = cmd, stdin
	return stdin, nil
}

// kill terminates the player so buffered audio is dropped.
func (s *CommandSink) kill() {
	s.mu.Lock()
	cmd, stdin := s.cmd, s.stdin
	s.cmd, s.stdin = nil, nil
	s.mu.Unlock()

	if cmd == nil {
		return
	}
	_ = cmd.Process.Kill()
	_ = stdin.Close()
	_ = cmd.Wait()
	s.log.Debug("playback: player stopped")
}
