// Package mock provides an in-memory [transport.Transport] and
// [transport.Dialer] for unit tests.
//
// All mocks are safe for concurrent use.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/transport"
)

// Compile-time interface assertions.
var (
	_ transport.Transport = (*Transport)(nil)
	_ transport.Dialer    = (*Dialer)(nil)
)

// Transport is a mock [transport.Transport]. Push inbound events with the
// Emit helpers; inspect outbound frames with [Transport.Sent].
type Transport struct {
	mu     sync.Mutex
	events chan transport.Event
	sent   []audio.EncodedFrame
	closed bool
	err    error

	// SendErr, when non-nil, is returned by Send.
	SendErr error

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewTransport returns an open Transport whose event channel holds up to
// buffer events.
func NewTransport(buffer int) *Transport {
	return &Transport{events: make(chan transport.Event, buffer)}
}

// Send implements [transport.Transport].
func (t *Transport) Send(_ context.Context, frame audio.EncodedFrame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return transport.ErrClosed
	}
	if t.SendErr != nil {
		return t.SendErr
	}
	t.sent = append(t.sent, frame)
	return nil
}

// Events implements [transport.Transport].
func (t *Transport) Events() <-chan transport.Event {
	return t.events
}

// Err implements [transport.Transport].
func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Close implements [transport.Transport].
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CallCountClose++
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.events)
	return nil
}

// CloseCount returns how many times Close was called.
func (t *Transport) CloseCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.CallCountClose
}

// Fail simulates a remote-side termination: Err reports err and the event
// channel closes.
func (t *Transport) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.err = err
	t.closed = true
	close(t.events)
}

// Emit pushes ev onto the event channel. It reports false if the transport
// is closed.
func (t *Transport) Emit(ev transport.Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.events <- ev
	return true
}

// EmitAudio pushes an audio event carrying base64 data at the given rate.
func (t *Transport) EmitAudio(data string, rate int) bool {
	return t.Emit(transport.Event{
		Kind: transport.EventAudio,
		Frame: audio.EncodedFrame{
			Data:       data,
			MIMEType:   audio.PCMMIMEType(rate),
			SampleRate: rate,
			Channels:   1,
		},
	})
}

// Sent returns a copy of all frames passed to Send.
func (t *Transport) Sent() []audio.EncodedFrame {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]audio.EncodedFrame, len(t.sent))
	copy(out, t.sent)
	return out
}

// Closed reports whether Close or Fail was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Dialer is a mock [transport.Dialer] that returns Result.
type Dialer struct {
	mu sync.Mutex

	// Result is returned by Dial.
	Result *Transport

	// DialErr, when non-nil, is returned by Dial.
	DialErr error

	// CallCountDial records how many times Dial was called.
	CallCountDial int

	// Configs holds the SessionConfig of every Dial call, in order.
	Configs []transport.SessionConfig
}

// Dial implements [transport.Dialer].
func (d *Dialer) Dial(_ context.Context, cfg transport.SessionConfig) (transport.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountDial++
	d.Configs = append(d.Configs, cfg)
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	return d.Result, nil
}

// DialCount returns how many times Dial was called.
func (d *Dialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.CallCountDial
}
