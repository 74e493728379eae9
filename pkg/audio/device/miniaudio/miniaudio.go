// Package miniaudio provides microphone capture and speaker playback backed
// by miniaudio through github.com/gen2brain/malgo.
//
// One [Context] is shared by every device of a process. It initialises the
// platform backend on first use and is released with [Context.Close] after
// all devices are closed.
//
// Both devices exchange signed 16-bit little-endian samples with the driver
// and convert with the codec in package audio, so the wire and the hardware
// see the same quantisation.
package miniaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/audio/device"
	"github.com/MrWong99/voxbridge/pkg/audio/playback"
)

// Compile-time interface assertions.
var (
	_ device.CaptureSource = (*Capture)(nil)
	_ playback.Output      = (*Playback)(nil)
)

// periodMillis is the driver period requested for both directions.
const periodMillis = 20

// ErrClosed is returned when a device is used after Close.
var ErrClosed = errors.New("miniaudio: closed")

// Context is the lazily initialised backend context.
type Context struct {
	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	closed bool
}

// NewContext returns a Context. The backend is not touched until the first
// device opens.
func NewContext() *Context {
	return &Context{}
}

func (c *Context) get() (malgo.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return malgo.Context{}, ErrClosed
	}
	if c.ctx == nil {
		cfg := malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}
		ctx, err := malgo.InitContext(nil, cfg, func(msg string) {
			slog.Debug("miniaudio", "msg", msg)
		})
		if err != nil {
			return malgo.Context{}, fmt.Errorf("miniaudio: init context: %w", err)
		}
		c.ctx = ctx
	}
	return c.ctx.Context, nil
}

// Close releases the backend. Devices must be closed first.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.ctx == nil {
		return nil
	}
	err := c.ctx.Uninit()
	c.ctx.Free()
	c.ctx = nil
	if err != nil {
		return fmt.Errorf("miniaudio: uninit context: %w", err)
	}
	return nil
}

// ─── Capture ─────────────────────────────────────────────────────────────────

// Capture is the default microphone. Each Start opens the device and each
// Stop releases it.
type Capture struct {
	ctx     *Context
	format  audio.Format
	blocker device.Blocker

	mu      sync.Mutex
	dev     *malgo.Device
	onBlock func([]float32)
}

// NewCapture returns a capture source delivering blocks of blockSize frames
// in format f. A blockSize of zero selects [device.DefaultBlockSize].
func NewCapture(ctx *Context, f audio.Format, blockSize int) *Capture {
	if blockSize <= 0 {
		blockSize = device.DefaultBlockSize
	}
	return &Capture{
		ctx:     ctx,
		format:  f,
		blocker: device.Blocker{Size: blockSize * f.Channels},
	}
}

// Format implements [device.CaptureSource].
func (c *Capture) Format() audio.Format {
	return c.format
}

// Start implements [device.CaptureSource].
func (c *Capture) Start(_ context.Context, onBlock func([]float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev != nil {
		return device.ErrAlreadyStarted
	}

	mctx, err := c.ctx.get()
	if err != nil {
		return err
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(c.format.Channels)
	cfg.SampleRate = uint32(c.format.SampleRate)
	cfg.PeriodSizeInMilliseconds = periodMillis

	c.blocker.Reset()
	c.onBlock = onBlock
	dev, err := malgo.InitDevice(mctx, cfg, malgo.DeviceCallbacks{Data: c.data})
	if err != nil {
		c.onBlock = nil
		return fmt.Errorf("miniaudio: open capture: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		c.onBlock = nil
		return fmt.Errorf("miniaudio: start capture: %w", err)
	}
	c.dev = dev
	slog.Info("capture device started", "format", c.format.String(), "block", c.blocker.Size)
	return nil
}

// data runs on the driver thread.
func (c *Capture) data(_, in []byte, _ uint32) {
	samples, err := audio.PCM16ToFloat(in)
	if err != nil || len(samples) == 0 {
		return
	}
	c.mu.Lock()
	fn := c.onBlock
	c.mu.Unlock()
	if fn == nil {
		return
	}
	c.blocker.Push(samples, fn)
}

// Stop implements [device.CaptureSource].
func (c *Capture) Stop() error {
	c.mu.Lock()
	dev := c.dev
	c.dev = nil
	c.onBlock = nil
	c.mu.Unlock()
	if dev == nil {
		return nil
	}
	err := dev.Stop()
	dev.Uninit()
	if err != nil {
		return fmt.Errorf("miniaudio: stop capture: %w", err)
	}
	return nil
}

// ─── Playback ────────────────────────────────────────────────────────────────

// Playback is the default speaker driven by a [playback.Timeline]. The device
// is opened on the first Resume and kept until Close; Pause stops the driver
// callback, which also freezes the clock.
type Playback struct {
	*playback.Timeline

	ctx *Context

	mu      sync.Mutex
	dev     *malgo.Device
	running bool
	closed  bool
	scratch []float32
}

// NewPlayback returns a speaker output in format f.
func NewPlayback(ctx *Context, f audio.Format) *Playback {
	return &Playback{
		Timeline: playback.NewTimeline(f),
		ctx:      ctx,
	}
}

// Open initialises the device without starting it. Resume opens it on demand,
// so calling Open is only needed to surface device errors early.
func (p *Playback) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openLocked()
}

func (p *Playback) openLocked() error {
	if p.closed {
		return ErrClosed
	}
	if p.dev != nil {
		return nil
	}
	mctx, err := p.ctx.get()
	if err != nil {
		return err
	}
	f := p.Format()
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(f.Channels)
	cfg.SampleRate = uint32(f.SampleRate)
	cfg.PeriodSizeInMilliseconds = periodMillis

	dev, err := malgo.InitDevice(mctx, cfg, malgo.DeviceCallbacks{Data: p.data})
	if err != nil {
		return fmt.Errorf("miniaudio: open playback: %w", err)
	}
	p.dev = dev
	return nil
}

// data runs on the driver thread. Only this goroutine touches scratch.
func (p *Playback) data(out, _ []byte, frames uint32) {
	n := int(frames) * p.Format().Channels
	if cap(p.scratch) < n {
		p.scratch = make([]float32, n)
	}
	buf := p.scratch[:n]
	p.Render(buf)
	copy(out, audio.FloatToPCM16(buf))
}

// Resume starts the driver, opening the device if needed.
func (p *Playback) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.openLocked(); err != nil {
		return err
	}
	if p.running {
		return nil
	}
	if err := p.dev.Start(); err != nil {
		return fmt.Errorf("miniaudio: start playback: %w", err)
	}
	p.running = true
	return nil
}

// Pause stops the driver. The device stays open.
func (p *Playback) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return nil
	}
	p.running = false
	if err := p.dev.Stop(); err != nil {
		return fmt.Errorf("miniaudio: pause playback: %w", err)
	}
	return nil
}

// Check reports whether the device can be opened. It is used as a readiness
// check.
func (p *Playback) Check(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openLocked()
}

// Close releases the device.
func (p *Playback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.dev == nil {
		return nil
	}
	var err error
	if p.running {
		err = p.dev.Stop()
		p.running = false
	}
	p.dev.Uninit()
	p.dev = nil
	if err != nil {
		return fmt.Errorf("miniaudio: close playback: %w", err)
	}
	return nil
}
