// Package playback plays assistant replies strictly in arrival order.
//
// A [Queue] owns a single consumer goroutine that hands frames to a [Sink]
// one at a time. [Queue.Interrupt] is a hard cancellation: pending frames are
// discarded and the frame currently playing is cancelled through its own
// context before Interrupt returns.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/nammaroute/companion/pkg/audio"
)

// ErrQueueClosed is returned by [Queue.Enqueue] after [Queue.Close].
var ErrQueueClosed = errors.New("playback: queue closed")

// defaultQueueCap is the initial capacity hint for the pending slice.
const defaultQueueCap = 32

// Option configures a [Queue] during construction.
type Option func(*Queue)

// WithQueueCapacity sets the initial capacity hint for pending frames. It is
// not a limit; the queue grows as needed.
func WithQueueCapacity(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.pending = make([]audio.Frame, 0, n)
		}
	}
}

// WithLogger sets the logger used for sink failures.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.log = l
		}
	}
}

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	// Played counts frames the sink finished playing.
	Played int64
	// Discarded counts frames dropped by Interrupt or Close, including the
	// frame that was cancelled mid-play.
	Discarded int64
	// Interrupts counts calls to Interrupt that had something to stop.
	Interrupts int64
	// Failed counts frames the sink rejected with an error.
	Failed int64
}

// Queue is an ordered FIFO of frames awaiting playback.
//
// At most one frame is handed to the sink at a time and frames start in
// exactly the order they were enqueued. All exported methods are safe for
// concurrent use.
type Queue struct {
	sink Sink
	log  *slog.Logger

	mu            sync.Mutex
	pending       []audio.Frame
	playing       bool               // true from the first dequeue until the queue runs dry
	cancelPlaying context.CancelFunc // cancels the frame currently in Sink.Play
	playDone      chan struct{}      // closed once the current Play has returned
	onPlaying     func(bool)
	stats         Stats
	closed        bool

	ctx    context.Context
	cancel context.CancelFunc
	notify chan struct{}
	done   chan struct{}
	exited chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// New creates a [Queue] that plays frames on sink and starts the consumer
// goroutine. Call [Queue.Close] to stop it and release the sink.
func New(sink Sink, opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		sink:    sink,
		log:     slog.Default(),
		pending: make([]audio.Frame, 0, defaultQueueCap),
		ctx:     ctx,
		cancel:  cancel,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	go q.dispatch()
	return q
}

// Enqueue appends frame to the tail of the queue. Empty frames are ignored.
func (q *Queue) Enqueue(frame audio.Frame) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if len(frame.Samples) == 0 {
		return nil
	}
	q.pending = append(q.pending, frame)

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Interrupt discards every pending frame and cancels the frame currently
// playing. It returns only after the sink has stopped, so no frame enqueued
// before the call begins playing afterwards. Frames enqueued after Interrupt
// returns play normally.
//
// Interrupt must not be called from an [Queue.OnPlayingChange] callback.
func (q *Queue) Interrupt() {
	q.mu.Lock()
	wait := q.interruptLocked()
	q.mu.Unlock()

	if wait != nil {
		<-wait
	}
}

// interruptLocked clears pending frames and cancels the current one. It
// returns the channel to wait on, or nil when nothing was playing.
// Must be called with q.mu held.
func (q *Queue) interruptLocked() chan struct{} {
	dropped := int64(len(q.pending))
	clear(q.pending)
	q.pending = q.pending[:0]

	var wait chan struct{}
	if q.cancelPlaying != nil {
		q.cancelPlaying()
		q.cancelPlaying = nil
		wait = q.playDone
		dropped++
	}
	if dropped > 0 {
		q.stats.Discarded += dropped
		q.stats.Interrupts++
	}
	return wait
}

// Len returns the number of frames waiting to play, excluding the frame
// currently playing.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Playing reports whether a reply is currently being played.
func (q *Queue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// OnPlayingChange registers fn to be called whenever the queue starts or
// stops playing. Only one callback is kept; later calls replace it. fn runs
// on the consumer goroutine and must not block or call back into the queue.
func (q *Queue) OnPlayingChange(fn func(playing bool)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onPlaying = fn
}

// Close interrupts playback, stops the consumer goroutine and closes the
// sink. Close is idempotent; later calls return the first result.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		wait := q.interruptLocked()
		q.mu.Unlock()

		if wait != nil {
			<-wait
		}
		q.cancel()
		close(q.done)
		<-q.exited
		q.closeErr = q.sink.Close()
	})
	return q.closeErr
}

// dispatch is the consumer goroutine. It runs until Close.
func (q *Queue) dispatch() {
	defer close(q.exited)
	for {
		select {
		case <-q.done:
			return
		case <-q.notify:
		}

		for {
			frame, ctx, started, ok := q.dequeue()
			if !ok {
				break
			}
			if started {
				q.report(true)
			}
			q.finish(ctx, q.sink.Play(ctx, frame))
		}
	}
}

// dequeue pops the head frame and arms a fresh cancellation for it. started
// is true when the queue was idle before this frame.
func (q *Queue) dequeue() (frame audio.Frame, ctx context.Context, started, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.pending) == 0 {
		return audio.Frame{}, nil, false, false
	}
	frame = q.pending[0]
	q.pending[0] = audio.Frame{}
	q.pending = q.pending[1:]

	ctx, cancel := context.WithCancel(q.ctx)
	q.cancelPlaying = cancel
	q.playDone = make(chan struct{})
	started = !q.playing
	q.playing = true
	return frame, ctx, started, true
}

// finish records the outcome of one Play call and releases anyone waiting in
// Interrupt. When the queue went idle the change is reported before waiters
// are released, so Playing() is already false once Interrupt returns.
func (q *Queue) finish(ctx context.Context, err error) {
	q.mu.Lock()
	cancelled := ctx.Err() != nil
	switch {
	case cancelled:
		// counted by interruptLocked
	case err != nil:
		q.stats.Failed++
		q.log.Warn("playback: sink failed, skipping frame", "err", err)
	default:
		q.stats.Played++
	}
	if q.cancelPlaying != nil {
		q.cancelPlaying()
		q.cancelPlaying = nil
	}
	done := q.playDone
	q.playDone = nil
	stopped := false
	if len(q.pending) == 0 || q.closed {
		stopped = q.playing
		q.playing = false
	}
	q.mu.Unlock()

	if stopped {
		q.report(false)
	}
	close(done)
}

func (q *Queue) report(playing bool) {
	q.mu.Lock()
	fn := q.onPlaying
	q.mu.Unlock()
	if fn != nil {
		fn(playing)
	}
}
