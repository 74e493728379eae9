// Package decode turns inbound model audio frames into buffers the local
// output device can play.
//
// Each frame goes through base64 decoding, PCM16 to float conversion,
// resampling when the frame's declared rate differs from the device's native
// rate, and channel remapping. Malformed frames fail individually with an
// [*Error]; the adapter itself stays usable.
package decode

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/audio/playback"
)

// Reason classifies why a frame could not be decoded.
type Reason string

const (
	ReasonMalformedBase64   Reason = "malformed_base64"
	ReasonTruncatedPCM      Reason = "truncated_pcm"
	ReasonEmptyFrame        Reason = "empty_frame"
	ReasonUnsupportedFormat Reason = "unsupported_format"
)

// Bounds on a frame's declared format. The rate is remote input and scales
// the resampled length by target/src, so it is capped on both sides.
const (
	maxChannels   = 8
	minSampleRate = 8000
	maxSampleRate = 384000
)

// Error reports a frame that was dropped.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "decode: " + string(e.Reason)
	}
	return fmt.Sprintf("decode: %s: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ReasonOf returns the [Reason] carried by err, or "" if err is not a
// decode error.
func ReasonOf(err error) Reason {
	var de *Error
	if errors.As(err, &de) {
		return de.Reason
	}
	return ""
}

// Option configures an [Adapter].
type Option func(*Adapter)

// WithResampler replaces the default linear resampler.
func WithResampler(r Resampler) Option {
	return func(a *Adapter) {
		if r != nil {
			a.resampler = r
		}
	}
}

// Adapter converts inbound frames to the output device's native format.
//
// Not safe for concurrent use; a session decodes frames sequentially so that
// playback order matches arrival order.
type Adapter struct {
	target    audio.Format
	resampler Resampler

	warnedMismatch sync.Once
}

// New creates an Adapter producing buffers in target format.
func New(target audio.Format, opts ...Option) *Adapter {
	a := &Adapter{
		target:    target,
		resampler: Linear{},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Target returns the output format of decoded buffers.
func (a *Adapter) Target() audio.Format {
	return a.target
}

// Decode converts one inbound frame into a playable buffer. The returned
// buffer's duration equals the frame's sample count divided by its declared
// rate, up to one output frame of rounding.
func (a *Adapter) Decode(frame audio.EncodedFrame) (*playback.Buffer, error) {
	src := frameFormat(frame)
	if src.Channels > maxChannels || src.SampleRate < minSampleRate || src.SampleRate > maxSampleRate {
		return nil, &Error{Reason: ReasonUnsupportedFormat, Err: fmt.Errorf("source %s", src)}
	}
	if a.target.SampleRate <= 0 || a.target.Channels <= 0 {
		return nil, &Error{Reason: ReasonUnsupportedFormat, Err: fmt.Errorf("target %s", a.target)}
	}

	pcm, err := audio.DecodeBase64(frame.Data)
	if err != nil {
		return nil, &Error{Reason: ReasonMalformedBase64, Err: err}
	}
	if len(pcm) == 0 {
		return nil, &Error{Reason: ReasonEmptyFrame}
	}
	if len(pcm)%(2*src.Channels) != 0 {
		return nil, &Error{
			Reason: ReasonTruncatedPCM,
			Err:    fmt.Errorf("%d bytes is not a whole number of %d-channel PCM16 frames", len(pcm), src.Channels),
		}
	}

	samples, err := audio.PCM16ToFloat(pcm)
	if err != nil {
		return nil, &Error{Reason: ReasonTruncatedPCM, Err: err}
	}

	if src != a.target {
		a.warnedMismatch.Do(func() {
			slog.Info("decode: converting model audio to device format",
				"from", src.String(),
				"to", a.target.String(),
			)
		})
	}

	if src.SampleRate != a.target.SampleRate {
		samples = a.resampler.Resample(samples, src.Channels, src.SampleRate, a.target.SampleRate)
		if len(samples) == 0 {
			return nil, &Error{Reason: ReasonEmptyFrame, Err: errors.New("no frames after resampling")}
		}
	}
	if src.Channels != a.target.Channels {
		samples = audio.ConvertChannels(samples, src.Channels, a.target.Channels)
	}

	return &playback.Buffer{Samples: samples, Format: a.target}, nil
}

// Reset discards resampler state carried between frames. Call it after an
// interruption so flushed audio does not bleed into the next utterance.
func (a *Adapter) Reset() {
	a.resampler.Reset()
}

// frameFormat resolves a frame's declared format. A missing rate falls back
// to the MIME type's rate parameter and then to the service output rate.
func frameFormat(frame audio.EncodedFrame) audio.Format {
	f := frame.Format()
	if f.SampleRate <= 0 {
		if r, ok := audio.ParsePCMMIMEType(frame.MIMEType); ok && r > 0 {
			f.SampleRate = r
		} else {
			f.SampleRate = audio.OutputRate
		}
	}
	if f.Channels <= 0 {
		f.Channels = 1
	}
	return f
}
