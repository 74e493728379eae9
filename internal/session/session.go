// Package session runs one live conversation: microphone blocks are encoded
// and streamed to the remote service while the service's speech is decoded
// and scheduled gaplessly on the local output.
//
// A [Session] is reusable. Each Start creates a fresh run with its own
// transport, scheduler and decoder; Stop (or the remote side closing) tears
// that run down and returns the session to idle.
//
// Inbound events are handled by a single loop goroutine per run, so model
// audio is decoded and scheduled strictly in arrival order. Capture blocks
// never touch the loop: the encoder hands frames to a bounded queue drained
// by a writer goroutine.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voxbridge/internal/decode"
	"github.com/MrWong99/voxbridge/internal/observe"
	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/audio/device"
	"github.com/MrWong99/voxbridge/pkg/audio/playback"
	"github.com/MrWong99/voxbridge/pkg/transport"
)

var (
	// ErrAlreadyActive is returned by Start while a run is in progress.
	ErrAlreadyActive = errors.New("session: already active")

	// ErrNotActive is reported by [Session.Check] while idle.
	ErrNotActive = errors.New("session: not active")

	// ErrRemoteClosed is passed to Handlers.OnEnded when the transport ended
	// without a local Stop.
	ErrRemoteClosed = errors.New("session: transport closed by remote")
)

// defaultOutboundQueue is used when Config.OutboundQueue is unset.
const defaultOutboundQueue = 64

// Output is the playback device a session schedules into. Resume and Pause
// bracket each run; the device itself outlives sessions.
type Output interface {
	playback.Output

	// Resume starts or continues rendering.
	Resume() error

	// Pause suspends rendering without releasing the device.
	Pause() error
}

// Handlers receive session events. All fields are optional. Handlers run on
// the session's goroutines and must not block or call Stop; OnEnded is the
// exception and may call Start again.
type Handlers struct {
	// OnBufferedAudioEmpty is called when the last scheduled model audio
	// finished playing or was flushed, including once during teardown if the
	// model was still audible.
	OnBufferedAudioEmpty func()

	// OnFrameDecodeError is called for every inbound frame that was dropped.
	// The error carries a [decode.Reason].
	OnFrameDecodeError func(err error)

	// OnTranscript is called with input or output transcription text.
	OnTranscript func(role, text string)

	// OnTurnComplete is called when the model finished its turn. path is the
	// recorded WAV file or "" when recording is disabled or the turn held no
	// audio.
	OnTurnComplete func(path string)

	// OnEnded is called once per run after teardown. err is nil after a local
	// Stop and wraps [ErrRemoteClosed] or a send failure otherwise.
	OnEnded func(err error)
}

// Config holds the dependencies of a [Session].
type Config struct {
	// Dialer opens the transport on each Start.
	Dialer transport.Dialer

	// Output is the shared playback device.
	Output Output

	// Transport is passed to Dialer on each Start.
	Transport transport.SessionConfig

	// Resampler converts inbound audio to the output's rate. Nil selects
	// linear interpolation.
	Resampler decode.Resampler

	// OutputFormat is the output device's format. Inbound audio is converted
	// to it.
	OutputFormat audio.Format

	// OutboundQueue bounds the encoded frames waiting for the transport.
	// Frames beyond it are dropped.
	OutboundQueue int

	// RecordingDir receives one WAV per completed model turn when set.
	RecordingDir string

	// Muted starts the microphone muted.
	Muted bool

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	Handlers Handlers
}

// Session owns the conversation state. All exported methods are safe for
// concurrent use.
type Session struct {
	cfg     Config
	metrics *observe.Metrics

	mu  sync.Mutex
	run *run
	// abortStart is set while Start acquires devices and dials. It cancels
	// that start-up.
	abortStart context.CancelFunc

	muted    atomic.Bool
	speaking atomic.Bool
}

// New creates an idle Session.
func New(cfg Config) *Session {
	if cfg.OutboundQueue <= 0 {
		cfg.OutboundQueue = defaultOutboundQueue
	}
	if cfg.Resampler == nil {
		cfg.Resampler = decode.Linear{}
	}
	if cfg.OutputFormat == (audio.Format{}) {
		cfg.OutputFormat = audio.Format{SampleRate: audio.OutputRate, Channels: 1}
	}
	s := &Session{cfg: cfg, metrics: cfg.Metrics}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.muted.Store(cfg.Muted)
	return s
}

// Start opens the output, starts src, dials the transport and activates the
// capture encoder, in that order. When any step fails everything acquired so
// far is released in reverse order, the session stays idle and the error is
// returned.
//
// ctx bounds only the start-up; the run lives until Stop or until the remote
// side closes. Start-up runs without holding the session lock, so the other
// methods stay responsive while the transport dials. A concurrent Start fails
// with [ErrAlreadyActive] and a concurrent Stop aborts the start-up.
func (s *Session) Start(ctx context.Context, src device.CaptureSource) (err error) {
	s.mu.Lock()
	switch {
	case s.run != nil:
		id := s.run.id
		s.mu.Unlock()
		return fmt.Errorf("%w (id=%s)", ErrAlreadyActive, id)
	case s.abortStart != nil:
		s.mu.Unlock()
		return fmt.Errorf("%w (starting)", ErrAlreadyActive)
	}
	ctx, abort := context.WithCancel(ctx)
	s.abortStart = abort
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.abortStart = nil
		s.mu.Unlock()
		abort()
	}()

	began := time.Now()
	id := uuid.NewString()
	ctx = observe.WithSessionID(ctx, id)
	ctx, span := observe.StartSpan(ctx, "session.start",
		trace.WithAttributes(attribute.String("session.id", id)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var release []func()
	fail := func(err error) error {
		for i := len(release) - 1; i >= 0; i-- {
			release[i]()
		}
		return err
	}

	out := s.cfg.Output
	if err := out.Resume(); err != nil {
		return fmt.Errorf("session: resume output: %w", err)
	}
	release = append(release, func() { _ = out.Pause() })

	r := s.newRun(id, src)

	if err := src.Start(r.ctx, r.onBlock); err != nil {
		r.cancel()
		return fail(fmt.Errorf("session: start capture: %w", err))
	}
	release = append(release, func() { _ = src.Stop() })

	t, err := s.cfg.Dialer.Dial(ctx, s.cfg.Transport)
	if err != nil {
		r.cancel()
		s.metrics.RecordTransportError(ctx, "dial")
		return fail(fmt.Errorf("session: dial: %w", err))
	}
	r.transport = t

	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		r.cancel()
		if err := t.Close(); err != nil {
			r.log.Warn("session: close transport", "err", err)
		}
		go audio.Drain(t.Events())
		return fail(fmt.Errorf("session: start aborted: %w", ctx.Err()))
	}
	s.run = r
	s.abortStart = nil
	// SetMuted may have run during start-up, before r was visible to it.
	r.encoder.SetMuted(s.muted.Load())
	s.metrics.ActiveSessions.Add(ctx, 1)
	s.metrics.SessionStartDuration.Record(ctx, time.Since(began).Seconds())

	r.start()
	r.encoder.SetActive(true)
	s.mu.Unlock()

	r.log.Info("session started",
		"capture_format", src.Format(),
		"output_format", r.adapter.Target(),
		"muted", r.encoder.Muted(),
	)
	return nil
}

// Stop tears down the active run and waits until teardown completed. Stop on
// an idle session is a no-op. During start-up it aborts the pending Start,
// which then releases what it acquired and returns an error.
func (s *Session) Stop() error {
	s.mu.Lock()
	r, abort := s.run, s.abortStart
	s.mu.Unlock()
	if r == nil {
		if abort != nil {
			abort()
		}
		return nil
	}
	r.stop()
	<-r.done
	return nil
}

// Interrupt flushes all scheduled model audio. It returns the number of
// buffers that were cut off; 0 when idle or when nothing was playing.
func (s *Session) Interrupt() int {
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	if r == nil {
		return 0
	}
	return r.interrupt(playback.UserRequest)
}

// SetMuted mutes or unmutes the microphone. The setting persists across runs.
// It returns the previous value.
func (s *Session) SetMuted(muted bool) bool {
	prev := s.muted.Swap(muted)
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	if r != nil {
		r.encoder.SetMuted(muted)
	}
	return prev
}

// Muted reports whether the microphone is muted.
func (s *Session) Muted() bool {
	return s.muted.Load()
}

// Speaking reports whether model audio is currently scheduled.
func (s *Session) Speaking() bool {
	return s.speaking.Load()
}

// Active reports whether a run is in progress.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != nil
}

// ID returns the current run's ID, or "" when idle.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return ""
	}
	return s.run.id
}

// Check is a readiness check: it fails while the session is idle.
func (s *Session) Check(context.Context) error {
	if !s.Active() {
		return ErrNotActive
	}
	return nil
}

// finish runs once per run after its goroutines exited.
func (s *Session) finish(r *run, err error) {
	r.teardown()

	s.mu.Lock()
	if s.run == r {
		s.run = nil
	}
	s.mu.Unlock()
	s.metrics.ActiveSessions.Add(context.Background(), -1)

	if r.stopRequested.Load() {
		err = nil
	}
	if err != nil {
		r.log.Warn("session ended", "err", err)
	} else {
		r.log.Info("session stopped")
	}
	close(r.done)

	if h := s.cfg.Handlers.OnEnded; h != nil {
		h(err)
	}
}
