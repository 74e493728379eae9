package wav_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/audio/wav"
)

var mono24k = audio.Format{SampleRate: 24000, Channels: 1}

func TestEncode_OneSecondMono24k(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 48000)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	got, err := wav.Encode(pcm, mono24k)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if len(got) != wav.HeaderSize+48000 {
		t.Fatalf("total size: got %d, want %d", len(got), wav.HeaderSize+48000)
	}

	checks := []struct {
		name   string
		offset int
		size   int
		want   uint32
	}{
		{name: "riff size", offset: 4, size: 4, want: 36 + 48000},
		{name: "fmt chunk size", offset: 16, size: 4, want: 16},
		{name: "format tag", offset: 20, size: 2, want: 1},
		{name: "channels", offset: 22, size: 2, want: 1},
		{name: "sample rate", offset: 24, size: 4, want: 24000},
		{name: "byte rate", offset: 28, size: 4, want: 48000},
		{name: "block align", offset: 32, size: 2, want: 2},
		{name: "bits per sample", offset: 34, size: 2, want: 16},
		{name: "data size", offset: 40, size: 4, want: 48000},
	}
	for _, c := range checks {
		var v uint32
		if c.size == 2 {
			v = uint32(binary.LittleEndian.Uint16(got[c.offset:]))
		} else {
			v = binary.LittleEndian.Uint32(got[c.offset:])
		}
		if v != c.want {
			t.Errorf("%s: got %d, want %d", c.name, v, c.want)
		}
	}

	for _, tag := range []struct {
		offset int
		want   string
	}{{0, "RIFF"}, {8, "WAVE"}, {12, "fmt "}, {36, "data"}} {
		if s := string(got[tag.offset : tag.offset+4]); s != tag.want {
			t.Errorf("tag at %d: got %q, want %q", tag.offset, s, tag.want)
		}
	}

	if !bytes.Equal(got[wav.HeaderSize:], pcm) {
		t.Error("payload differs from input PCM")
	}
}

func TestEncode_Stereo(t *testing.T) {
	t.Parallel()

	f := audio.Format{SampleRate: 48000, Channels: 2}
	got, err := wav.Encode(make([]byte, 400), f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if br := binary.LittleEndian.Uint32(got[28:]); br != 192000 {
		t.Errorf("byte rate: got %d, want 192000", br)
	}
	if ba := binary.LittleEndian.Uint16(got[32:]); ba != 4 {
		t.Errorf("block align: got %d, want 4", ba)
	}
}

func TestEncode_Empty(t *testing.T) {
	t.Parallel()

	got, err := wav.Encode(nil, mono24k)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(got) != wav.HeaderSize {
		t.Errorf("size: got %d, want %d", len(got), wav.HeaderSize)
	}
	if ds := binary.LittleEndian.Uint32(got[40:]); ds != 0 {
		t.Errorf("data size: got %d, want 0", ds)
	}
}

func TestEncode_InvalidInput(t *testing.T) {
	t.Parallel()

	if _, err := wav.Encode([]byte{1, 2, 3}, mono24k); !errors.Is(err, audio.ErrOddLength) {
		t.Errorf("odd length: expected ErrOddLength, got %v", err)
	}
	if _, err := wav.Encode(nil, audio.Format{}); err == nil {
		t.Error("zero format: expected error")
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	t.Parallel()

	samples := []float32{0, 0.25, -0.25, 1, -1, 0.5}
	pcm := audio.FloatToPCM16(samples)

	data, err := wav.Encode(pcm, mono24k)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	gotPCM, gotFormat, err := wav.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if gotFormat != mono24k {
		t.Errorf("format: got %v, want %v", gotFormat, mono24k)
	}
	if !bytes.Equal(gotPCM, pcm) {
		t.Errorf("payload mismatch: got % x, want % x", gotPCM, pcm)
	}
}

func TestDecode_Invalid(t *testing.T) {
	t.Parallel()

	_, _, err := wav.Decode([]byte("definitely not a wave file, just text"))
	if !errors.Is(err, wav.ErrInvalidFile) {
		t.Errorf("expected ErrInvalidFile, got %v", err)
	}
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.wav")
	pcm := make([]byte, 4800)
	if err := wav.WriteFile(path, pcm, mono24k); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) != wav.HeaderSize+len(pcm) {
		t.Errorf("file size: got %d, want %d", len(data), wav.HeaderSize+len(pcm))
	}
}
