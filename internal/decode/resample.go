package decode

import (
	"fmt"
	"strings"

	"github.com/oov/audio/resampler"

	"github.com/MrWong99/voxbridge/pkg/audio"
)

// Resampler converts interleaved float samples between sample rates.
type Resampler interface {
	// Resample converts samples from src to dst Hz. The result carries the
	// same duration as the input.
	Resample(samples []float32, channels, src, dst int) []float32

	// Reset discards any filter history.
	Reset()
}

// Quality names a [Resampler] implementation.
type Quality string

const (
	// QualityLinear is stateless linear interpolation.
	QualityLinear Quality = "linear"

	// QualitySinc is a windowed-sinc filter that keeps history across frames.
	QualitySinc Quality = "sinc"
)

// IsValid reports whether q names a known resampler.
func (q Quality) IsValid() bool {
	switch q {
	case QualityLinear, QualitySinc:
		return true
	}
	return false
}

// NewResampler returns the resampler for q. An empty quality selects linear.
func NewResampler(q Quality) (Resampler, error) {
	switch Quality(strings.ToLower(string(q))) {
	case "", QualityLinear:
		return Linear{}, nil
	case QualitySinc:
		return &Sinc{Quality: defaultSincQuality}, nil
	default:
		return nil, fmt.Errorf("decode: unknown resampler quality %q", q)
	}
}

// Linear resamples with linear interpolation. It keeps no state.
type Linear struct{}

// Resample implements [Resampler].
func (Linear) Resample(samples []float32, channels, src, dst int) []float32 {
	return audio.ResampleLinear(samples, channels, src, dst)
}

// Reset implements [Resampler].
func (Linear) Reset() {}

const defaultSincQuality = 10

// sincFilter is the streaming filter built by resampler.New.
type sincFilter interface {
	ProcessFloat32(channel int, in, out []float32) (read, written int)
}

// Sinc resamples with the windowed-sinc filter from github.com/oov/audio.
// The filter is rebuilt whenever the stream's rates or channel count change.
//
// Not safe for concurrent use.
type Sinc struct {
	// Quality is the filter quality from 0 (fastest) to 10 (best).
	Quality int

	r        sincFilter
	channels int
	src, dst int

	planarIn  [][]float32
	planarOut [][]float32
}

// Resample implements [Resampler].
func (s *Sinc) Resample(samples []float32, channels, src, dst int) []float32 {
	if channels <= 0 || src <= 0 || dst <= 0 || src == dst {
		return samples
	}
	if s.r == nil || s.channels != channels || s.src != src || s.dst != dst {
		s.r = resampler.New(channels, src, dst, s.Quality)
		s.channels, s.src, s.dst = channels, src, dst
	}

	frames := len(samples) / channels
	want := audio.ResampledFrames(frames, src, dst)
	s.grow(channels, frames, want+64)

	for i := range frames {
		for ch := range channels {
			s.planarIn[ch][i] = samples[i*channels+ch]
		}
	}

	written := 0
	for ch := range channels {
		in := s.planarIn[ch][:frames]
		out := s.planarOut[ch]
		n := 0
		for len(in) > 0 && n < len(out) {
			read, w := s.r.ProcessFloat32(ch, in, out[n:])
			if read == 0 && w == 0 {
				break
			}
			in = in[read:]
			n += w
		}
		if ch == 0 || n < written {
			written = n
		}
	}

	out := make([]float32, written*channels)
	for i := range written {
		for ch := range channels {
			out[i*channels+ch] = s.planarOut[ch][i]
		}
	}
	return out
}

// Reset implements [Resampler]. The next call builds a fresh filter.
func (s *Sinc) Reset() {
	s.r = nil
}

func (s *Sinc) grow(channels, inFrames, outFrames int) {
	if len(s.planarIn) != channels {
		s.planarIn = make([][]float32, channels)
		s.planarOut = make([][]float32, channels)
	}
	for ch := range channels {
		if cap(s.planarIn[ch]) < inFrames {
			s.planarIn[ch] = make([]float32, inFrames)
		}
		s.planarIn[ch] = s.planarIn[ch][:inFrames]
		if cap(s.planarOut[ch]) < outFrames {
			s.planarOut[ch] = make([]float32, outFrames)
		}
		s.planarOut[ch] = s.planarOut[ch][:outFrames]
	}
}
