package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math"
)

// ErrOddLength is returned when a PCM16 byte buffer does not hold a whole
// number of samples.
var ErrOddLength = errors.New("audio: odd byte count in PCM16 data")

// FloatToPCM16 converts floating-point samples to little-endian signed 16-bit
// PCM. Samples are clamped to [-1, 1]; NaN and infinities become silence.
// Positive values scale by 32767 and negative values by 32768 so both ends of
// the int16 range are reachable.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

// PCM16ToFloat is the inverse of [FloatToPCM16]. The round trip differs from
// the original by at most one quantization step (1/32767).
func PCM16ToFloat(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, ErrOddLength
	}
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = int16ToFloat(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return out, nil
}

// EncodeBase64 returns the standard padded base64 text of b.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBase64 reverses [EncodeBase64].
func DecodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

func floatToInt16(s float32) int16 {
	v := float64(s)
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return 0
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}
	if v < 0 {
		return int16(math.Round(v * 32768))
	}
	return int16(math.Round(v * 32767))
}

func int16ToFloat(s int16) float32 {
	if s < 0 {
		return float32(s) / 32768
	}
	return float32(s) / 32767
}
