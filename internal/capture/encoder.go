// Package capture bridges microphone blocks to the wire.
//
// The [Encoder] runs inside the capture device callback: it converts each
// block to PCM16, base64-encodes it and hands the frame to a non-blocking
// sink. While the encoder is inactive or muted it returns before doing any
// conversion work.
package capture

import (
	"log/slog"
	"sync/atomic"

	"github.com/MrWong99/voxbridge/pkg/audio"
)

// Sink accepts an encoded frame for sending. It must not block; it reports
// false when the frame was refused (for example because the outbound queue is
// full).
type Sink func(frame audio.EncodedFrame) bool

// Stats is a snapshot of encoder counters.
type Stats struct {
	Encoded uint64
	Dropped uint64
	Skipped uint64
}

// Encoder converts capture blocks into outbound frames.
//
// All methods are safe for concurrent use; HandleBlock is typically called
// from a device thread while SetMuted and SetActive come from control code.
type Encoder struct {
	format audio.Format
	mime   string
	sink   Sink

	active atomic.Bool
	muted  atomic.Bool

	encoded atomic.Uint64
	dropped atomic.Uint64
	skipped atomic.Uint64

	// dropping is set while consecutive frames are refused so a burst logs
	// once.
	dropping atomic.Bool
}

// NewEncoder creates an inactive Encoder for blocks in format f that delivers
// frames to sink.
func NewEncoder(f audio.Format, sink Sink) *Encoder {
	return &Encoder{
		format: f,
		mime:   audio.PCMMIMEType(f.SampleRate),
		sink:   sink,
	}
}

// HandleBlock encodes one capture block and hands it to the sink. Nothing is
// encoded while the encoder is inactive or muted. The block is not retained.
// It reports whether a frame was handed to the sink and accepted.
func (e *Encoder) HandleBlock(block []float32) bool {
	if !e.active.Load() || e.muted.Load() {
		e.skipped.Add(1)
		return false
	}
	if len(block) == 0 {
		return false
	}

	frame := audio.EncodedFrame{
		Data:       audio.EncodeBase64(audio.FloatToPCM16(block)),
		MIMEType:   e.mime,
		SampleRate: e.format.SampleRate,
		Channels:   e.format.Channels,
	}
	e.encoded.Add(1)

	if !e.sink(frame) {
		e.dropped.Add(1)
		if e.dropping.CompareAndSwap(false, true) {
			slog.Warn("capture: outbound queue full, dropping frames")
		}
		return false
	}
	e.dropping.Store(false)
	return true
}

// SetActive enables or disables encoding. A session activates the encoder
// once the transport is up and deactivates it first thing on teardown.
func (e *Encoder) SetActive(active bool) {
	e.active.Store(active)
}

// Active reports whether the encoder accepts blocks.
func (e *Encoder) Active() bool {
	return e.active.Load()
}

// SetMuted mutes or unmutes the microphone. It returns the previous state.
func (e *Encoder) SetMuted(muted bool) bool {
	return e.muted.Swap(muted)
}

// Muted reports whether the encoder is muted.
func (e *Encoder) Muted() bool {
	return e.muted.Load()
}

// Stats returns the encoder's counters.
func (e *Encoder) Stats() Stats {
	return Stats{
		Encoded: e.encoded.Load(),
		Dropped: e.dropped.Load(),
		Skipped: e.skipped.Load(),
	}
}
