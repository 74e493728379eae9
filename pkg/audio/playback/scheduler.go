package playback

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Option configures a [Scheduler] during construction.
type Option func(*Scheduler)

// WithOnEmpty registers the handler invoked when the last scheduled buffer
// finishes or is flushed, i.e. when the model stops being audible. It is
// called outside the scheduler's lock, on whichever goroutine delivered the
// completion, and must not block.
func WithOnEmpty(handler func()) Option {
	return func(s *Scheduler) {
		s.onEmpty = handler
	}
}

// WithLogger sets the logger used for interrupt diagnostics. Defaults to
// [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// Scheduled describes where an enqueued buffer landed on the device clock.
type Scheduled struct {
	// Start is the clock position at which the buffer begins.
	Start time.Duration

	// End is Start plus the buffer's duration; the next buffer starts here
	// unless the clock has already moved past it.
	End time.Duration

	// Lookahead is how far End lies ahead of the clock at scheduling time.
	Lookahead time.Duration
}

// voice is one buffer the scheduler handed to the output.
type voice struct {
	handle Handle
	start  time.Duration
	end    time.Duration
}

// Scheduler plays a stream of buffers back to back on an [Output].
//
// For each buffer of duration D the scheduler computes
// start = max(nextStart, clock.Now()), schedules the buffer there and advances
// nextStart to start+D. Buffers that arrive early queue up contiguously;
// buffers that arrive late start at the current clock position, leaving a gap
// rather than synthesizing silence.
//
// All exported methods are safe for concurrent use.
type Scheduler struct {
	out     Output
	onEmpty func()
	log     *slog.Logger

	mu        sync.Mutex
	nextStart time.Duration
	active    map[*voice]struct{}
	closed    bool
}

// New creates a [Scheduler] for out.
func New(out Output, opts ...Option) *Scheduler {
	s := &Scheduler{
		out:    out,
		log:    slog.Default(),
		active: make(map[*voice]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enqueue schedules buf directly after the previously enqueued buffer, or at
// the current clock position if that lies in the past. A failed schedule
// leaves the scheduler state untouched.
func (s *Scheduler) Enqueue(buf *Buffer) (Scheduled, error) {
	d := buf.Duration()
	if d <= 0 {
		return Scheduled{}, ErrEmptyBuffer
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Scheduled{}, ErrClosed
	}

	now := s.out.Now()
	v := &voice{}

	// The device may render between Now and Schedule, in which case the
	// output places the buffer later than requested. The chain continues
	// from where it really ends.
	h, start, err := s.out.Schedule(buf, max(s.nextStart, now), func() { s.finished(v) })
	if err != nil {
		return Scheduled{}, fmt.Errorf("playback: schedule: %w", err)
	}
	v.handle, v.start, v.end = h, start, start+d

	s.nextStart = v.end
	s.active[v] = struct{}{}

	return Scheduled{Start: v.start, End: v.end, Lookahead: v.end - now}, nil
}

// finished is the completion callback of v. Completions for voices that were
// already flushed are ignored.
func (s *Scheduler) finished(v *voice) {
	s.mu.Lock()
	if _, ok := s.active[v]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.active, v)
	empty := len(s.active) == 0
	handler := s.onEmpty
	s.mu.Unlock()

	if empty && handler != nil {
		handler()
	}
}

// Interrupt stops every scheduled or playing buffer, clears the active set
// and resets nextStart so the next buffer starts at the current clock
// position. It returns the number of buffers that were stopped. Interrupt is
// idempotent; on an empty scheduler it changes nothing and emits no event.
func (s *Scheduler) Interrupt(reason InterruptReason) int {
	s.mu.Lock()
	n := s.flushLocked()
	handler := s.onEmpty
	s.mu.Unlock()

	if n == 0 {
		return 0
	}
	s.log.Debug("playback interrupted", "reason", reason.String(), "buffers", n)
	if handler != nil {
		handler()
	}
	return n
}

// flushLocked stops and forgets all active voices. Stops happen under the
// lock so no buffer enqueued after the flush can overlap a stale one.
// Caller must hold s.mu.
func (s *Scheduler) flushLocked() int {
	n := len(s.active)
	for v := range s.active {
		v.handle.Stop()
	}
	clear(s.active)
	s.nextStart = 0
	return n
}

// Close flushes all audio and rejects further buffers. It is safe to call
// more than once.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	n := s.flushLocked()
	handler := s.onEmpty
	s.mu.Unlock()

	if n > 0 && handler != nil {
		handler()
	}
	return nil
}

// Active returns the number of buffers that are scheduled or playing.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStart returns the clock position at which the next buffer would start
// if the clock has not passed it. Zero means unset.
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// Lookahead returns how much scheduled audio lies ahead of the clock.
func (s *Scheduler) Lookahead() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.active) == 0 {
		return 0
	}
	return max(s.nextStart-s.out.Now(), 0)
}
