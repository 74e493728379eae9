// Package wavfile provides file-backed audio devices for headless runs: a
// [Source] that plays a WAV file into the capture path and an [Output] that
// renders scheduled playback in real time without a sound card, optionally
// recording the mix to a WAV file.
package wavfile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/audio/device"
	"github.com/MrWong99/voxbridge/pkg/audio/playback"
	"github.com/MrWong99/voxbridge/pkg/audio/wav"
)

// Compile-time interface assertions.
var (
	_ device.CaptureSource = (*Source)(nil)
	_ playback.Output      = (*Output)(nil)
)

// ─── Source ──────────────────────────────────────────────────────────────────

// Source delivers the samples of a WAV file as capture blocks. Blocks are
// paced at the rate they would arrive from a microphone. Once the file is
// exhausted Done is closed and the source keeps delivering silence until
// stopped, so the remote side can detect the end of speech.
type Source struct {
	format    audio.Format
	samples   []float32
	blockSize int
	paced     bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
	done    chan struct{}
}

// SourceOption configures a [Source].
type SourceOption func(*Source)

// WithBlockSize sets the frames per delivered block. Default
// [device.DefaultBlockSize].
func WithBlockSize(n int) SourceOption {
	return func(s *Source) {
		if n > 0 {
			s.blockSize = n
		}
	}
}

// WithoutPacing delivers the whole file as fast as possible and stops at the
// end instead of padding with silence.
func WithoutPacing() SourceOption {
	return func(s *Source) { s.paced = false }
}

// Open reads the WAV file at path and converts it to f.
func Open(path string, f audio.Format, opts ...SourceOption) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wavfile: %w", err)
	}
	pcm, src, err := wav.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("wavfile: %s: %w", path, err)
	}
	return NewSource(pcm, src, f, opts...)
}

// NewSource converts PCM16 audio in format src to f and returns a source
// delivering it.
func NewSource(pcm []byte, src, f audio.Format, opts ...SourceOption) (*Source, error) {
	samples, err := audio.PCM16ToFloat(pcm)
	if err != nil {
		return nil, fmt.Errorf("wavfile: %w", err)
	}
	conv := audio.FormatConverter{Target: f}
	s := &Source{
		format:    f,
		samples:   conv.Convert(samples, src),
		blockSize: device.DefaultBlockSize,
		paced:     true,
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Format implements [device.CaptureSource].
func (s *Source) Format() audio.Format {
	return s.format
}

// Duration returns the playing time of the file.
func (s *Source) Duration() time.Duration {
	return playback.FramesToDuration(int64(len(s.samples)/s.format.Channels), s.format.SampleRate)
}

// Done is closed after the last block of the file was delivered.
func (s *Source) Done() <-chan struct{} {
	return s.done
}

// Start implements [device.CaptureSource]. A source plays its file once;
// starting it again after the end delivers silence.
func (s *Source) Start(ctx context.Context, onBlock func([]float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return device.ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopped = make(chan struct{})
	go s.deliver(ctx, onBlock, s.stopped)
	return nil
}

func (s *Source) deliver(ctx context.Context, onBlock func([]float32), stopped chan struct{}) {
	defer close(stopped)

	n := s.blockSize * s.format.Channels
	block := make([]float32, n)
	interval := playback.FramesToDuration(int64(s.blockSize), s.format.SampleRate)

	var tick <-chan time.Time
	if s.paced {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		k := copy(block, s.samples)
		s.samples = s.samples[k:]
		eof := len(s.samples) == 0
		s.mu.Unlock()

		clear(block[k:])
		if k > 0 || s.paced {
			onBlock(block)
		}
		if eof {
			s.markDone()
			if !s.paced {
				return
			}
		}
	}
}

func (s *Source) markDone() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// Stop implements [device.CaptureSource]. It waits until the delivery
// goroutine returned, so onBlock is not called after Stop.
func (s *Source) Stop() error {
	s.mu.Lock()
	cancel, stopped := s.cancel, s.stopped
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-stopped
	return nil
}

// ─── Output ──────────────────────────────────────────────────────────────────

// defaultPeriod is how much audio the Output renders per tick.
const defaultPeriod = 20 * time.Millisecond

// Output is a headless [playback.Output]. While resumed it renders one period
// of its timeline per tick of the wall clock. Rendered audio is appended to
// the recording when one is configured and written out by Close.
type Output struct {
	*playback.Timeline

	period    time.Duration
	recordTo  string
	recording []float32

	mu      sync.Mutex
	scratch []float32
	cancel  context.CancelFunc
	stopped chan struct{}
}

// OutputOption configures an [Output].
type OutputOption func(*Output)

// WithPeriod sets the render period. Default 20 ms.
func WithPeriod(d time.Duration) OutputOption {
	return func(o *Output) {
		if d > 0 {
			o.period = d
		}
	}
}

// WithRecording makes Close write everything rendered to path as WAV.
func WithRecording(path string) OutputOption {
	return func(o *Output) { o.recordTo = path }
}

// NewOutput returns a paused headless output in format f.
func NewOutput(f audio.Format, opts ...OutputOption) *Output {
	o := &Output{
		Timeline: playback.NewTimeline(f),
		period:   defaultPeriod,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Advance renders d worth of audio immediately, moving the clock forward and
// firing completion callbacks on the calling goroutine.
func (o *Output) Advance(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.renderLocked(d)
}

func (o *Output) renderLocked(d time.Duration) {
	f := o.Format()
	n := int(playback.DurationToFrames(d, f.SampleRate)) * f.Channels
	if n == 0 {
		return
	}
	if cap(o.scratch) < n {
		o.scratch = make([]float32, n)
	}
	buf := o.scratch[:n]
	o.Render(buf)
	if o.recordTo != "" {
		o.recording = append(o.recording, buf...)
	}
}

// Resume starts real-time rendering.
func (o *Output) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.stopped = make(chan struct{})
	go o.tick(ctx, o.stopped)
	return nil
}

func (o *Output) tick(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)
	t := time.NewTicker(o.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			o.Advance(o.period)
		}
	}
}

// Pause stops real-time rendering; the clock stands still until Resume.
func (o *Output) Pause() error {
	o.mu.Lock()
	cancel, stopped := o.cancel, o.stopped
	o.cancel = nil
	o.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-stopped
	return nil
}

// Check implements the readiness check; a headless output is always ready.
func (o *Output) Check(context.Context) error {
	return nil
}

// Close pauses the output and writes the recording, if any.
func (o *Output) Close() error {
	_ = o.Pause()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.recordTo == "" || len(o.recording) == 0 {
		return nil
	}
	pcm := audio.FloatToPCM16(o.recording)
	o.recording = nil
	if err := wav.WriteFile(o.recordTo, pcm, o.Format()); err != nil {
		return fmt.Errorf("wavfile: write recording: %w", err)
	}
	slog.Info("playback recording written", "path", o.recordTo)
	return nil
}
