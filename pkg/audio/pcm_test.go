package audio_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/MrWong99/voxbridge/pkg/audio"
)

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestFloatToPCM16(t *testing.T) {
	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{name: "silence", in: 0, want: 0},
		{name: "full positive", in: 1, want: 32767},
		{name: "full negative", in: -1, want: -32768},
		{name: "half positive rounds", in: 0.5, want: 16384},
		{name: "half negative", in: -0.5, want: -16384},
		{name: "clamp above", in: 1.7, want: 32767},
		{name: "clamp below", in: -3, want: -32768},
		{name: "NaN", in: float32(math.NaN()), want: 0},
		{name: "positive infinity", in: float32(math.Inf(1)), want: 0},
		{name: "negative infinity", in: float32(math.Inf(-1)), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bytesToSamples(audio.FloatToPCM16([]float32{tt.in}))
			if len(got) != 1 {
				t.Fatalf("expected 1 sample, got %d", len(got))
			}
			if got[0] != tt.want {
				t.Errorf("FloatToPCM16(%v) = %d, want %d", tt.in, got[0], tt.want)
			}
		})
	}
}

func TestFloatToPCM16_LittleEndian(t *testing.T) {
	got := audio.FloatToPCM16([]float32{1, -1})
	want := []byte{0xFF, 0x7F, 0x00, 0x80}
	if !bytes.Equal(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}
}

func TestPCM16ToFloat_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	in := make([]float32, 4096)
	for i := range in {
		in[i] = rng.Float32()*2 - 1
	}
	in[0], in[1], in[2] = 1, -1, 0

	out, err := audio.PCM16ToFloat(audio.FloatToPCM16(in))
	if err != nil {
		t.Fatalf("PCM16ToFloat: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length: got %d, want %d", len(out), len(in))
	}
	const step = 1.0 / 32767
	for i := range in {
		if d := math.Abs(float64(out[i] - in[i])); d > step {
			t.Fatalf("sample %d: |%f - %f| = %g exceeds one quantization step", i, out[i], in[i], d)
		}
	}
}

func TestPCM16ToFloat_OddLength(t *testing.T) {
	_, err := audio.PCM16ToFloat([]byte{0x01, 0x02, 0x03})
	if !errors.Is(err, audio.ErrOddLength) {
		t.Errorf("expected ErrOddLength, got %v", err)
	}
}

func TestPCM16ToFloat_Empty(t *testing.T) {
	out, err := audio.PCM16ToFloat(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected no samples, got %d", len(out))
	}
}

func TestBase64_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	for _, n := range []int{0, 1, 2, 3, 4, 5, 255, 8192} {
		b := make([]byte, n)
		for i := range b {
			b[i] = byte(rng.UintN(256))
		}
		got, err := audio.DecodeBase64(audio.EncodeBase64(b))
		if err != nil {
			t.Fatalf("n=%d: decode: %v", n, err)
		}
		if !bytes.Equal(got, b) {
			t.Errorf("n=%d: round trip mismatch", n)
		}
	}
}

func TestDecodeBase64_Malformed(t *testing.T) {
	for _, s := range []string{"!!!!", "abc", "ab=c"} {
		if _, err := audio.DecodeBase64(s); err == nil {
			t.Errorf("DecodeBase64(%q): expected error", s)
		}
	}
}
