// Package mock provides in-memory fakes of the audio device abstractions for
// use in unit tests: a manually advanced [Clock], an [Output] that records
// every scheduled buffer, and a [CaptureSource] that delivers blocks on
// demand.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	out := mock.NewOutput()
//	sched := playback.New(out)
//	sched.Enqueue(buf)
//	out.Advance(200 * time.Millisecond) // fires completion callbacks
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/audio/device"
	"github.com/MrWong99/voxbridge/pkg/audio/playback"
)

// Compile-time interface assertions.
var (
	_ playback.Output      = (*Output)(nil)
	_ device.CaptureSource = (*CaptureSource)(nil)
)

// ─── Clock ────────────────────────────────────────────────────────────────────

// Clock is a deterministic [playback.Clock] that only moves when told to.
type Clock struct {
	mu  sync.Mutex
	now time.Duration
}

// Now implements [playback.Clock].
func (c *Clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to d.
func (c *Clock) Set(d time.Duration) {
	c.mu.Lock()
	c.now = d
	c.mu.Unlock()
}

// Add moves the clock forward by d.
func (c *Clock) Add(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

// ─── Output ───────────────────────────────────────────────────────────────────

// Scheduled records one call to [Output.Schedule].
type Scheduled struct {
	Buffer *playback.Buffer
	At     time.Duration
	Handle *Handle
}

// End returns At plus the buffer's duration.
func (s Scheduled) End() time.Duration {
	return s.At + s.Buffer.Duration()
}

// Output is a mock [playback.Output] driven by an embedded [Clock]. Buffers
// never play by themselves: call [Output.Advance] to move the clock and fire
// completion callbacks of buffers whose end has been reached.
type Output struct {
	Clock

	mu sync.Mutex

	// ScheduleErr, when non-nil, is returned by Schedule.
	ScheduleErr error

	// Calls holds every successful Schedule call, in order.
	Calls []Scheduled

	// CallCountSchedule records how many times Schedule was called,
	// including failed calls.
	CallCountSchedule int

	// ResumeErr and PauseErr are returned by Resume and Pause.
	ResumeErr error
	PauseErr  error

	// CallCountResume and CallCountPause record Resume and Pause calls.
	CallCountResume int
	CallCountPause  int

	running bool
}

// NewOutput returns an Output whose clock starts at zero.
func NewOutput() *Output {
	return &Output{}
}

// Schedule implements [playback.Output]. Buffers start exactly at the
// requested position.
func (o *Output) Schedule(buf *playback.Buffer, at time.Duration, onEnded func()) (playback.Handle, time.Duration, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.CallCountSchedule++
	if o.ScheduleErr != nil {
		return nil, 0, o.ScheduleErr
	}
	h := &Handle{onEnded: onEnded}
	o.Calls = append(o.Calls, Scheduled{Buffer: buf, At: at, Handle: h})
	return h, at, nil
}

// Resume marks the output as running. A failed Resume leaves it paused.
func (o *Output) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.CallCountResume++
	if o.ResumeErr != nil {
		return o.ResumeErr
	}
	o.running = true
	return nil
}

// Pause marks the output as paused.
func (o *Output) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.CallCountPause++
	o.running = false
	return o.PauseErr
}

// Running reports whether the output was resumed and not paused since.
func (o *Output) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// PauseCount returns how many times Pause was called.
func (o *Output) PauseCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.CallCountPause
}

// Scheduled returns a copy of all recorded Schedule calls.
func (o *Output) Scheduled() []Scheduled {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Scheduled, len(o.Calls))
	copy(out, o.Calls)
	return out
}

// Advance moves the clock forward by d and fires the completion callback of
// every buffer that ended at or before the new clock position and was
// neither stopped nor already completed. Callbacks run in schedule order on
// the calling goroutine.
func (o *Output) Advance(d time.Duration) {
	o.Clock.Add(d)
	now := o.Clock.Now()

	for _, s := range o.Scheduled() {
		if s.End() <= now {
			s.Handle.complete()
		}
	}
}

// ─── Handle ───────────────────────────────────────────────────────────────────

// Handle is the [playback.Handle] returned by [Output.Schedule].
type Handle struct {
	mu        sync.Mutex
	onEnded   func()
	stopped   bool
	completed bool

	// CallCountStop records how many times Stop was called.
	CallCountStop int
}

// Stop implements [playback.Handle].
func (h *Handle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.CallCountStop++
	h.stopped = true
}

// Stopped reports whether Stop has been called.
func (h *Handle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// StopCount returns how many times Stop has been called.
func (h *Handle) StopCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.CallCountStop
}

// Complete fires the completion callback as if the device finished playing
// the buffer, regardless of the clock. It does nothing for stopped or
// already completed buffers.
func (h *Handle) Complete() {
	h.complete()
}

// ForceComplete fires the completion callback even if the buffer was
// stopped, mimicking devices that report a late end event.
func (h *Handle) ForceComplete() {
	h.mu.Lock()
	fn := h.onEnded
	h.completed = true
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (h *Handle) complete() {
	h.mu.Lock()
	if h.stopped || h.completed {
		h.mu.Unlock()
		return
	}
	h.completed = true
	fn := h.onEnded
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// ─── CaptureSource ────────────────────────────────────────────────────────────

// CaptureSource is a mock [device.CaptureSource]. Call [CaptureSource.Emit]
// to deliver a block to the registered callback while started.
type CaptureSource struct {
	mu      sync.Mutex
	onBlock func([]float32)

	// FormatResult is returned by Format. Defaults to 16 kHz mono if zero.
	FormatResult audio.Format

	// StartErr, when non-nil, is returned by Start.
	StartErr error

	// StopErr is returned by Stop.
	StopErr error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int
}

// Format implements [device.CaptureSource].
func (c *CaptureSource) Format() audio.Format {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FormatResult == (audio.Format{}) {
		return audio.Format{SampleRate: audio.CaptureRate, Channels: 1}
	}
	return c.FormatResult
}

// Start implements [device.CaptureSource].
func (c *CaptureSource) Start(_ context.Context, onBlock func([]float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountStart++
	if c.StartErr != nil {
		return c.StartErr
	}
	c.onBlock = onBlock
	return nil
}

// Stop implements [device.CaptureSource].
func (c *CaptureSource) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountStop++
	c.onBlock = nil
	return c.StopErr
}

// Emit delivers block to the callback registered by Start. It reports false
// if the source is not started.
func (c *CaptureSource) Emit(block []float32) bool {
	c.mu.Lock()
	fn := c.onBlock
	c.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(block)
	return true
}

// StopCount returns how many times Stop was called.
func (c *CaptureSource) StopCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountStop
}

// Started reports whether a callback is registered.
func (c *CaptureSource) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onBlock != nil
}
