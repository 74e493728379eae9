package playback

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/voxbridge/pkg/audio"
)

// Compile-time interface assertion.
var _ Output = (*Timeline)(nil)

// Timeline is a software [Output] for pull-based audio devices. The device
// callback calls [Timeline.Render] for every period; the frames rendered so
// far form the device clock. Scheduled buffers are mixed into the period at
// their frame positions, so back-to-back buffers are sample-contiguous.
//
// All exported methods are safe for concurrent use.
type Timeline struct {
	format audio.Format

	mu      sync.Mutex
	pos     int64 // frames rendered
	voices  []*timelineVoice
	lastEnd int64 // end frame of the most recently scheduled voice
}

type timelineVoice struct {
	t       *Timeline
	samples []float32
	start   int64 // frame position
	frames  int64
	onEnded func()
}

// NewTimeline creates a timeline that renders interleaved float32 audio in
// format f.
func NewTimeline(f audio.Format) *Timeline {
	return &Timeline{format: f}
}

// Format returns the timeline's sample format.
func (t *Timeline) Format() audio.Format {
	return t.format
}

// Now implements [Clock].
func (t *Timeline) Now() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return FramesToDuration(t.pos, t.format.SampleRate)
}

// Schedule implements [Output]. Positions in the past are moved to the
// current frame and the returned start reflects the move. A start within one
// frame of the previous buffer's end is snapped to that end so rounding never
// opens a one-sample gap or overlap.
func (t *Timeline) Schedule(buf *Buffer, at time.Duration, onEnded func()) (Handle, time.Duration, error) {
	if buf.Format != t.format {
		return nil, 0, fmt.Errorf("%w: got %s, want %s", ErrFormatMismatch, buf.Format, t.format)
	}
	frames := int64(buf.Frames())
	if frames == 0 {
		return nil, 0, ErrEmptyBuffer
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	start := DurationToFrames(at, t.format.SampleRate)
	if d := start - t.lastEnd; d >= -1 && d <= 1 && t.lastEnd >= t.pos {
		start = t.lastEnd
	}
	start = max(start, t.pos)

	v := &timelineVoice{
		t:       t,
		samples: buf.Samples,
		start:   start,
		frames:  frames,
		onEnded: onEnded,
	}
	i, _ := slices.BinarySearchFunc(t.voices, start, func(e *timelineVoice, s int64) int {
		switch {
		case e.start < s:
			return -1
		case e.start > s:
			return 1
		default:
			return 0
		}
	})
	t.voices = slices.Insert(t.voices, i, v)
	t.lastEnd = max(t.lastEnd, start+frames)

	// Report the exact start when it was not moved, so callers chaining on
	// it see no rounding drift.
	actual := at
	if start != DurationToFrames(at, t.format.SampleRate) {
		actual = FramesToDuration(start, t.format.SampleRate)
	}
	return v, actual, nil
}

// Render fills out with the next len(out)/channels frames and advances the
// clock. Completion callbacks of buffers that finished in this period run
// after the internal lock is released, on the calling goroutine.
func (t *Timeline) Render(out []float32) {
	ch := t.format.Channels
	n := int64(len(out) / ch)
	clear(out)

	t.mu.Lock()
	from, to := t.pos, t.pos+n
	var ended []func()
	kept := t.voices[:0]
	for _, v := range t.voices {
		if v.start >= to {
			kept = append(kept, v)
			continue
		}
		lo := max(v.start, from)
		hi := min(v.start+v.frames, to)
		for f := lo; f < hi; f++ {
			src := (f - v.start) * int64(ch)
			dst := (f - from) * int64(ch)
			for c := range int64(ch) {
				out[dst+c] += v.samples[src+c]
			}
		}
		if v.start+v.frames <= to {
			if v.onEnded != nil {
				ended = append(ended, v.onEnded)
			}
			continue
		}
		kept = append(kept, v)
	}
	clear(t.voices[len(kept):])
	t.voices = kept
	t.pos = to
	t.mu.Unlock()

	for i, s := range out {
		if s > 1 {
			out[i] = 1
		} else if s < -1 {
			out[i] = -1
		}
	}
	for _, fn := range ended {
		fn()
	}
}

// Pending returns the number of buffers that are scheduled or playing.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.voices)
}

// Stop implements [Handle].
func (v *timelineVoice) Stop() {
	t := v.t
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := slices.Index(t.voices, v); i >= 0 {
		t.voices = slices.Delete(t.voices, i, i+1)
		// The next buffer may start immediately instead of after the
		// stopped one.
		if v.start+v.frames == t.lastEnd {
			t.lastEnd = t.pos
			for _, o := range t.voices {
				t.lastEnd = max(t.lastEnd, o.start+o.frames)
			}
		}
	}
}
