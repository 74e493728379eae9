// Package playback schedules decoded audio buffers against an output device
// clock so that consecutive buffers play back to back, with no gap and no
// overlap, and can all be flushed at once when the listener barges in.
//
// The package is split into three pieces:
//
//   - [Clock] and [Output] abstract the device. Tests use a fake clock; the
//     real device is a [Timeline] rendered by an audio callback.
//   - [Scheduler] owns the playback state of one conversation session: the
//     time at which the next buffer starts and the set of buffers that are
//     scheduled or playing.
//   - [Buffer] is one device-ready chunk of audio.
package playback

import (
	"errors"
	"time"

	"github.com/MrWong99/voxbridge/pkg/audio"
)

var (
	// ErrEmptyBuffer is returned when a buffer with no frames is enqueued.
	ErrEmptyBuffer = errors.New("playback: empty buffer")

	// ErrClosed is returned when enqueueing onto a closed scheduler.
	ErrClosed = errors.New("playback: scheduler closed")

	// ErrFormatMismatch is returned by an [Output] that cannot play a
	// buffer's format.
	ErrFormatMismatch = errors.New("playback: buffer format does not match output")
)

// Clock is the monotonic time reference of an output device. Now reports the
// current playback position measured from the moment the device was created.
type Clock interface {
	Now() time.Duration
}

// Handle controls one scheduled buffer.
type Handle interface {
	// Stop silences the buffer. Stop is total: it never fails, may be called
	// any number of times and is a no-op for buffers that already finished.
	// Stop must not invoke the buffer's completion callback synchronously.
	Stop()
}

// Output is a device that can start a buffer at a given clock position.
//
// Implementations must be safe for concurrent use.
type Output interface {
	Clock

	// Schedule arranges for buf to start playing at clock position at and
	// returns a handle that can stop it, together with the position the
	// buffer actually starts at. That position is at, give or take one frame
	// of rounding, unless the clock moved past at before the buffer was
	// placed; then it is the later clock position.
	// onEnded is called exactly once when the buffer has been fully played;
	// it is not called for stopped buffers and must not be called before
	// Schedule returns.
	Schedule(buf *Buffer, at time.Duration, onEnded func()) (Handle, time.Duration, error)
}

// Buffer is a decoded, device-ready chunk of audio. Samples are interleaved
// float32 values in [-1, 1].
type Buffer struct {
	Samples []float32
	Format  audio.Format
}

// Frames returns the number of sample frames (samples per channel).
func (b *Buffer) Frames() int {
	if b == nil || b.Format.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Format.Channels
}

// Duration returns frames / sample rate.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.Format.SampleRate <= 0 {
		return 0
	}
	return FramesToDuration(int64(b.Frames()), b.Format.SampleRate)
}

// FramesToDuration converts a frame count at rate to a duration.
func FramesToDuration(frames int64, rate int) time.Duration {
	return time.Duration(frames * int64(time.Second) / int64(rate))
}

// DurationToFrames converts d to the nearest frame position at rate.
func DurationToFrames(d time.Duration, rate int) int64 {
	return (int64(d)*int64(rate) + int64(time.Second)/2) / int64(time.Second)
}

// InterruptReason identifies why scheduled audio was flushed.
type InterruptReason int

const (
	// BargeIn indicates the remote service detected the user talking over
	// the model.
	BargeIn InterruptReason = iota

	// UserRequest indicates an explicit interrupt control signal.
	UserRequest

	// SessionEnd indicates the session is being torn down.
	SessionEnd
)

// String returns the human-readable name of the interrupt reason.
func (r InterruptReason) String() string {
	switch r {
	case BargeIn:
		return "barge_in"
	case UserRequest:
		return "user_request"
	case SessionEnd:
		return "session_end"
	default:
		return "unknown"
	}
}
