package playback

import (
	"context"
	"errors"
	"time"

	"github.com/nammaroute/companion/pkg/audio"
)

// ErrSinkClosed is returned by Play after the sink was closed.
var ErrSinkClosed = errors.New("playback: sink closed")

// Sink is an audio output device.
//
// Play blocks until frame has finished playing. When ctx is cancelled it
// must stop output promptly and return ctx.Err(). Play is never called
// concurrently by a [Queue].
type Sink interface {
	Play(ctx context.Context, frame audio.Frame) error
	Close() error
}

// pace blocks until d has elapsed since start, or ctx is done.
func pace(ctx context.Context, start time.Time, d time.Duration) error {
	wait := d - time.Since(start)
	if wait <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
