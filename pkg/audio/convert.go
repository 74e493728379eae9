package audio

import (
	"log/slog"
	"math"
	"sync"
)

// FormatConverter converts interleaved float samples to a target format. It
// logs a warning on the first format mismatch.
// Create one per stream; not designed for shared use across goroutines.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
}

// Convert converts samples in format from to the target format. If the source
// format already matches the target, the input is returned unchanged (zero
// allocation). Conversion order: resample first, then channel convert.
func (c *FormatConverter) Convert(samples []float32, from Format) []float32 {
	if from == c.Target {
		return samples
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", from.String(),
			"to", c.Target.String(),
		)
	})

	out := samples
	if from.SampleRate != c.Target.SampleRate {
		out = ResampleLinear(out, from.Channels, from.SampleRate, c.Target.SampleRate)
	}
	if from.Channels != c.Target.Channels {
		out = ConvertChannels(out, from.Channels, c.Target.Channels)
	}
	return out
}

// ResampledFrames returns the number of output frames that carry the same
// duration as n input frames when going from srcRate to dstRate.
func ResampledFrames(n, srcRate, dstRate int) int {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return n
	}
	return int(math.Round(float64(n) * float64(dstRate) / float64(srcRate)))
}

// ResampleLinear resamples interleaved float samples from srcRate to dstRate
// using linear interpolation. The output holds [ResampledFrames] frames, so
// frames/rate (the buffer's duration) is preserved. If the rates match or are
// not positive, the input is returned unchanged.
func ResampleLinear(samples []float32, channels, srcRate, dstRate int) []float32 {
	if channels <= 0 || srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return samples
	}
	srcFrames := len(samples) / channels
	if srcFrames == 0 {
		return nil
	}
	dstFrames := ResampledFrames(srcFrames, srcRate, dstRate)
	if dstFrames == 0 {
		return nil
	}

	out := make([]float32, dstFrames*channels)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		if srcIdx >= srcFrames {
			srcIdx = srcFrames - 1
		}
		frac := float32(srcPos - float64(srcIdx))
		next := srcIdx + 1
		if next >= srcFrames {
			next = srcIdx
		}
		for ch := range channels {
			s0 := samples[srcIdx*channels+ch]
			s1 := samples[next*channels+ch]
			out[i*channels+ch] = s0*(1-frac) + s1*frac
		}
	}
	return out
}

// ConvertChannels remaps interleaved float samples between channel counts.
// Mono is duplicated into every output channel; any layout going to mono is
// averaged. Other layouts keep the shared leading channels and fill the rest
// with the average of the source frame.
func ConvertChannels(samples []float32, from, to int) []float32 {
	if from <= 0 || to <= 0 || from == to {
		return samples
	}
	frames := len(samples) / from
	out := make([]float32, frames*to)
	for i := range frames {
		src := samples[i*from : (i+1)*from]
		dst := out[i*to : (i+1)*to]

		if from == 1 {
			for ch := range dst {
				dst[ch] = src[0]
			}
			continue
		}

		var sum float32
		for _, s := range src {
			sum += s
		}
		avg := sum / float32(from)

		if to == 1 {
			dst[0] = avg
			continue
		}
		for ch := range dst {
			if ch < from {
				dst[ch] = src[ch]
			} else {
				dst[ch] = avg
			}
		}
	}
	return out
}
