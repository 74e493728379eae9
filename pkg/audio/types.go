package audio

import (
	"fmt"
	"strconv"
	"strings"
)

// Wire rates of the live conversation. Capture audio is sent at CaptureRate,
// model speech arrives at OutputRate; both are mono.
const (
	CaptureRate = 16000
	OutputRate  = 24000
)

// pcmMIMEPrefix is the MIME type of raw little-endian PCM16. The sample rate is
// carried as a "rate" parameter.
const pcmMIMEPrefix = "audio/pcm"

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "24000Hz mono".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// BytesPerSecond returns the PCM16 byte rate for the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// EncodedFrame is one chunk of PCM16 audio in its transport representation.
// Frames flow in both directions: the capture path produces them for the
// remote service and the remote service delivers model speech in the same
// shape. Frames are immutable once produced; ownership passes to whoever
// receives the value.
type EncodedFrame struct {
	// Data is the base64 (standard alphabet, padded) text of the PCM16 payload.
	Data string

	// MIMEType is the declared content type, e.g. "audio/pcm;rate=16000".
	MIMEType string

	// SampleRate in Hz.
	SampleRate int

	// Channels: 1 for every frame the live service exchanges.
	Channels int
}

// Format returns the frame's declared sample rate and channel count.
func (f EncodedFrame) Format() Format {
	return Format{SampleRate: f.SampleRate, Channels: f.Channels}
}

// PCMMIMEType returns the MIME type for raw PCM16 at the given sample rate,
// e.g. "audio/pcm;rate=16000".
func PCMMIMEType(sampleRate int) string {
	return pcmMIMEPrefix + ";rate=" + strconv.Itoa(sampleRate)
}

// ParsePCMMIMEType extracts the sample rate from a PCM MIME type. ok is false
// when the type is not audio/pcm. rate is 0 when the type carries no rate
// parameter.
func ParsePCMMIMEType(mime string) (rate int, ok bool) {
	parts := strings.Split(mime, ";")
	if strings.TrimSpace(strings.ToLower(parts[0])) != pcmMIMEPrefix {
		return 0, false
	}
	for _, p := range parts[1:] {
		k, v, found := strings.Cut(strings.TrimSpace(p), "=")
		if !found || strings.ToLower(k) != "rate" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			return 0, true
		}
		return n, true
	}
	return 0, true
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
