// Package device defines the capture side of the local audio hardware.
// Implementations live in subpackages: miniaudio for real microphones and
// speakers, wavfile for reading capture audio from a file.
package device

import (
	"context"
	"errors"

	"github.com/MrWong99/voxbridge/pkg/audio"
)

// DefaultBlockSize is the number of frames per capture callback. At 16 kHz
// this is 256 ms of audio.
const DefaultBlockSize = 4096

// ErrAlreadyStarted is returned by Start on a source that is already running.
var ErrAlreadyStarted = errors.New("device: already started")

// CaptureSource delivers fixed-size blocks of mono float32 samples in [-1, 1]
// at the rate reported by Format.
//
// Implementations must be safe for concurrent use.
type CaptureSource interface {
	// Format returns the sample rate and channel count of delivered blocks.
	Format() audio.Format

	// Start opens the device and begins delivering blocks to onBlock. A
	// device that cannot be opened returns an error and holds no resources.
	// onBlock is called from a device goroutine, must not block and must not
	// retain the slice after it returns.
	Start(ctx context.Context, onBlock func(block []float32)) error

	// Stop halts delivery and releases the device. Stop on a stopped source
	// is a no-op.
	Stop() error
}

// Blocker slices a stream of samples into fixed-size blocks. Device
// callbacks deliver whatever period size the driver chose; Blocker regroups
// them into blocks of exactly Size samples.
//
// Not safe for concurrent use.
type Blocker struct {
	Size int
	buf  []float32
}

// Push appends samples and calls emit for every complete block. The slice
// passed to emit is reused on the next call.
func (b *Blocker) Push(samples []float32, emit func([]float32)) {
	if b.Size <= 0 {
		emit(samples)
		return
	}
	if b.buf == nil {
		b.buf = make([]float32, 0, b.Size)
	}
	for len(samples) > 0 {
		n := min(b.Size-len(b.buf), len(samples))
		b.buf = append(b.buf, samples[:n]...)
		samples = samples[n:]
		if len(b.buf) == b.Size {
			emit(b.buf)
			b.buf = b.buf[:0]
		}
	}
}

// Reset discards any partially filled block.
func (b *Blocker) Reset() {
	b.buf = b.buf[:0]
}
