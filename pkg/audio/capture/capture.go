// Package capture acquires the microphone and slices its sample stream into
// fixed-size frames.
//
// A [Source] opens the device and yields a [Stream] of floating point samples
// at the assistant sample rate. [Start] wraps the stream in a [Capture] whose
// reader goroutine emits frames of a fixed length on [Capture.Frames].
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/nammaroute/companion/pkg/audio"
)

// ErrPermissionDenied is returned (wrapped) by a [Source] when access to the
// microphone is refused.
var ErrPermissionDenied = errors.New("capture: microphone permission denied")

// Source acquires a microphone.
type Source interface {
	// Open acquires the device. Implementations must return an error wrapping
	// [ErrPermissionDenied] when access is refused.
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open microphone.
type Stream interface {
	// Read fills buf with mono samples in [-1, 1] and returns how many were
	// written. It returns io.EOF when the device has no more audio.
	Read(buf []float32) (int, error)

	// Close releases the device and unblocks a pending Read.
	Close() error
}

const defaultBuffer = 8

// Option configures a [Capture].
type Option func(*Capture)

// WithFrameSamples sets the number of samples per emitted frame. Defaults to
// [audio.DefaultFrameSamples].
func WithFrameSamples(n int) Option {
	return func(c *Capture) {
		if n > 0 {
			c.frameSamples = n
		}
	}
}

// WithBuffer sets the capacity of the frames channel.
func WithBuffer(n int) Option {
	return func(c *Capture) {
		if n >= 0 {
			c.buffer = n
		}
	}
}

// Capture reads a [Stream] on a background goroutine and emits fixed-size
// frames. It is created by [Start] and released by [Capture.Close].
type Capture struct {
	stream       Stream
	frameSamples int
	buffer       int

	frames chan []float32
	done   chan struct{}
	exited chan struct{}

	mu  sync.Mutex
	err error

	closeOnce sync.Once
	closeErr  error
}

// Start opens src and begins reading. Cancelling ctx has the same effect as
// calling [Capture.Close]. If src refuses access the returned error wraps
// [ErrPermissionDenied].
func Start(ctx context.Context, src Source, opts ...Option) (*Capture, error) {
	c := &Capture{
		frameSamples: audio.DefaultFrameSamples,
		buffer:       defaultBuffer,
		done:         make(chan struct{}),
		exited:       make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}

	stream, err := src.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture: open: %w", err)
	}
	c.stream = stream
	c.frames = make(chan []float32, c.buffer)

	go c.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-c.done:
		}
	}()
	return c, nil
}

// Frames returns the channel of captured frames. Every frame holds exactly
// the configured number of samples; a trailing partial frame at end of stream
// is zero-padded. The channel is closed when capture stops.
func (c *Capture) Frames() <-chan []float32 {
	return c.frames
}

// FrameSamples returns the configured frame length.
func (c *Capture) FrameSamples() int {
	return c.frameSamples
}

// Err returns the error that ended capture, or nil if the stream ended
// cleanly or was closed.
func (c *Capture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close stops the reader goroutine and releases the stream exactly once.
// Close is idempotent; later calls return the first result.
func (c *Capture) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.stream.Close()
		<-c.exited
	})
	return c.closeErr
}

func (c *Capture) readLoop() {
	defer close(c.exited)
	defer close(c.frames)

	buf := make([]float32, c.frameSamples)
	filled := 0
	for {
		n, err := c.stream.Read(buf[filled:])
		filled += n
		if filled == len(buf) {
			if !c.emit(buf) {
				return
			}
			filled = 0
		}
		if err == nil {
			continue
		}

		if c.closing() {
			return
		}
		if filled > 0 {
			clear(buf[filled:])
			c.emit(buf)
		}
		if !errors.Is(err, io.EOF) {
			c.mu.Lock()
			c.err = fmt.Errorf("capture: read: %w", err)
			c.mu.Unlock()
		}
		return
	}
}

// emit sends a copy of buf. It reports false when capture is closing.
func (c *Capture) emit(buf []float32) bool {
	frame := make([]float32, len(buf))
	copy(frame, buf)
	select {
	case c.frames <- frame:
		return true
	case <-c.done:
		return false
	}
}

func (c *Capture) closing() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
