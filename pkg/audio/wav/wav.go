// Package wav writes and reads the RIFF/WAVE container for PCM16 audio.
//
// The writer is single-shot: it takes one finished PCM payload and returns
// the complete file (a 44-byte header followed by the payload). It is used to
// export synthesized speech outside the streaming path.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"

	"github.com/MrWong99/voxbridge/pkg/audio"
)

// HeaderSize is the size of the canonical PCM WAVE header written by [Encode].
const HeaderSize = 44

const (
	bitDepth     = 16
	formatPCMTag = 1
)

// ErrInvalidFile is returned by [Decode] when the input is not a readable
// WAVE file.
var ErrInvalidFile = errors.New("wav: not a valid WAVE file")

// Encode wraps little-endian PCM16 data in a WAVE container. The header
// declares f's sample rate and channel count, a byte rate of
// rate*channels*2 and a block align of channels*2.
func Encode(pcm []byte, f audio.Format) ([]byte, error) {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return nil, fmt.Errorf("wav: invalid format %s", f)
	}
	if len(pcm)%(2*f.Channels) != 0 {
		return nil, fmt.Errorf("wav: encode: %w", audio.ErrOddLength)
	}

	ws := &memWriteSeeker{}
	enc := gowav.NewEncoder(ws, f.SampleRate, bitDepth, f.Channels, formatPCMTag)

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{SampleRate: f.SampleRate, NumChannels: f.Channels},
		Data:           make([]int, len(pcm)/2),
		SourceBitDepth: bitDepth,
	}
	for i := range buf.Data {
		buf.Data[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	// An empty buffer still emits the header and the data chunk marker.
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("wav: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("wav: finalize: %w", err)
	}
	return ws.Bytes(), nil
}

// WriteFile encodes pcm and writes the container to path with mode 0o644.
func WriteFile(path string, pcm []byte, f audio.Format) error {
	data, err := Encode(pcm, f)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("wav: write %q: %w", path, err)
	}
	return nil
}

// Decode parses a 16-bit PCM WAVE file and returns its little-endian payload
// together with the declared format.
func Decode(data []byte) ([]byte, audio.Format, error) {
	return DecodeReader(bytes.NewReader(data))
}

// DecodeReader is like [Decode] but reads from r.
func DecodeReader(r io.ReadSeeker) ([]byte, audio.Format, error) {
	dec := gowav.NewDecoder(r)
	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return nil, audio.Format{}, fmt.Errorf("%w: %w", ErrInvalidFile, err)
		}
		return nil, audio.Format{}, ErrInvalidFile
	}
	if dec.BitDepth != bitDepth {
		return nil, audio.Format{}, fmt.Errorf("wav: unsupported bit depth %d", dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("wav: read pcm: %w", err)
	}
	if buf == nil {
		return nil, audio.Format{}, fmt.Errorf("%w: missing data chunk", ErrInvalidFile)
	}

	pcm := make([]byte, len(buf.Data)*2)
	for i, v := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
	}
	f := audio.Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)}
	return pcm, f, nil
}

// memWriteSeeker is an in-memory io.WriteSeeker. The WAVE encoder seeks back
// to patch chunk sizes once the payload is written.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		if end > cap(m.buf) {
			grown := make([]byte, end, max(end, 2*cap(m.buf)))
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(m.pos) + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("wav: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("wav: negative seek position %d", abs)
	}
	m.pos = int(abs)
	return abs, nil
}

func (m *memWriteSeeker) Bytes() []byte {
	return m.buf
}
