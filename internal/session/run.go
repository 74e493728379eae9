package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxbridge/internal/capture"
	"github.com/MrWong99/voxbridge/internal/decode"
	"github.com/MrWong99/voxbridge/internal/observe"
	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/audio/device"
	"github.com/MrWong99/voxbridge/pkg/audio/playback"
	"github.com/MrWong99/voxbridge/pkg/transport"
)

// interruptRequest asks the loop to flush playback.
type interruptRequest struct {
	reason playback.InterruptReason
	reply  chan int
}

// run is one Start..Stop cycle. Fields below the loop marker are owned by
// the loop goroutine.
type run struct {
	s   *Session
	id  string
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	source    device.CaptureSource
	transport transport.Transport
	encoder   *capture.Encoder
	sched     *playback.Scheduler
	outbound  chan audio.EncodedFrame

	requests chan interruptRequest
	drained  chan struct{}

	stopRequested atomic.Bool
	teardownOnce  sync.Once
	loopDone      chan struct{}
	done          chan struct{}

	// loop-owned
	adapter  *decode.Adapter
	recorder *turnRecorder
}

func (s *Session) newRun(id string, src device.CaptureSource) *run {
	ctx, cancel := context.WithCancel(observe.WithSessionID(context.Background(), id))
	r := &run{
		s:        s,
		id:       id,
		log:      observe.Logger(ctx),
		ctx:      ctx,
		cancel:   cancel,
		source:   src,
		outbound: make(chan audio.EncodedFrame, s.cfg.OutboundQueue),
		requests: make(chan interruptRequest),
		drained:  make(chan struct{}, 1),
		loopDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
	r.sched = playback.New(s.cfg.Output,
		playback.WithOnEmpty(r.notifyDrained),
		playback.WithLogger(r.log),
	)
	r.adapter = decode.New(s.cfg.OutputFormat, decode.WithResampler(s.cfg.Resampler))
	r.encoder = capture.NewEncoder(src.Format(), r.enqueueOutbound)
	r.encoder.SetMuted(s.muted.Load())
	if s.cfg.RecordingDir != "" {
		r.recorder = newTurnRecorder(s.cfg.RecordingDir, id)
	}
	return r
}

// start launches the loop and the writer. When both have exited the session
// tears the run down.
func (r *run) start() {
	g, gctx := errgroup.WithContext(r.ctx)
	g.Go(func() error {
		defer close(r.loopDone)
		return r.loop(gctx)
	})
	g.Go(func() error {
		return r.writeLoop(gctx)
	})
	go func() {
		r.s.finish(r, g.Wait())
	}()
}

// stop begins a local teardown. Capture stops feeding the transport before
// the run's goroutines are cancelled.
func (r *run) stop() {
	r.stopRequested.Store(true)
	r.encoder.SetActive(false)
	r.cancel()
}

// onBlock is the capture callback.
func (r *run) onBlock(block []float32) {
	r.encoder.HandleBlock(block)
}

// enqueueOutbound is the encoder's sink. It never blocks.
func (r *run) enqueueOutbound(f audio.EncodedFrame) bool {
	select {
	case r.outbound <- f:
		return true
	default:
		r.s.metrics.FramesDropped.Add(r.ctx, 1)
		return false
	}
}

// notifyDrained is the scheduler's empty handler. It may run on a device
// thread or inside Interrupt, so it only posts a coalescing signal.
func (r *run) notifyDrained() {
	select {
	case r.drained <- struct{}{}:
	default:
	}
}

// interrupt asks the loop to flush playback and waits for the result.
func (r *run) interrupt(reason playback.InterruptReason) int {
	req := interruptRequest{reason: reason, reply: make(chan int, 1)}
	select {
	case r.requests <- req:
	case <-r.loopDone:
		return 0
	}
	select {
	case n := <-req.reply:
		return n
	case <-r.loopDone:
		return 0
	}
}

// writeLoop forwards encoded frames to the transport.
func (r *run) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-r.outbound:
			if err := r.transport.Send(ctx, f); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.s.metrics.RecordTransportError(ctx, "send")
				return fmt.Errorf("session: send: %w", err)
			}
			r.s.metrics.FramesSent.Add(ctx, 1)
		}
	}
}

// loop handles inbound events and control requests until the transport
// closes or the run is cancelled.
func (r *run) loop(ctx context.Context) error {
	defer r.encoder.SetActive(false)

	events := r.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				if err := r.transport.Err(); err != nil {
					r.s.metrics.RecordTransportError(ctx, "remote")
					return fmt.Errorf("%w: %w", ErrRemoteClosed, err)
				}
				return ErrRemoteClosed
			}
			r.handleEvent(ctx, ev)

		case req := <-r.requests:
			req.reply <- r.flush(ctx, req.reason)

		case <-r.drained:
			r.handleDrained(ctx)
		}
	}
}

func (r *run) handleEvent(ctx context.Context, ev transport.Event) {
	h := r.s.cfg.Handlers
	switch ev.Kind {
	case transport.EventAudio:
		r.handleAudio(ctx, ev.Frame)

	case transport.EventInterrupted:
		r.flush(ctx, playback.BargeIn)

	case transport.EventTurnComplete:
		path := r.finishTurn()
		if h.OnTurnComplete != nil {
			h.OnTurnComplete(path)
		}

	case transport.EventTranscript:
		r.log.Debug("transcript", "role", ev.Role, "text", ev.Text)
		if h.OnTranscript != nil {
			h.OnTranscript(ev.Role, ev.Text)
		}

	case transport.EventError:
		r.s.metrics.RecordTransportError(ctx, "server")
		r.log.Warn("session: service reported error", "err", ev.Err)
	}
}

// handleAudio decodes one frame and schedules it right behind the previous
// one. Bad frames are dropped and reported; the stream continues.
func (r *run) handleAudio(ctx context.Context, frame audio.EncodedFrame) {
	began := time.Now()
	buf, err := r.adapter.Decode(frame)
	if err != nil {
		reason := decode.ReasonOf(err)
		r.s.metrics.RecordDecodeError(ctx, string(reason))
		r.log.Debug("session: dropped inbound frame", "reason", reason, "err", err)
		if h := r.s.cfg.Handlers.OnFrameDecodeError; h != nil {
			h(err)
		}
		return
	}
	r.s.metrics.RecordDecoded(ctx, time.Since(began))

	sc, err := r.sched.Enqueue(buf)
	if err != nil {
		if !errors.Is(err, playback.ErrClosed) {
			r.log.Warn("session: schedule failed", "err", err)
		}
		return
	}
	r.s.speaking.Store(true)
	r.s.metrics.RecordScheduled(ctx, sc.Lookahead)
	if r.recorder != nil {
		r.recorder.add(buf)
	}
}

// flush cuts off all scheduled audio and resets decoder history. The partial
// turn is not recorded.
func (r *run) flush(ctx context.Context, reason playback.InterruptReason) int {
	n := r.sched.Interrupt(reason)
	r.adapter.Reset()
	if r.recorder != nil {
		r.recorder.discard()
	}
	if n > 0 {
		r.s.metrics.RecordInterruption(ctx, reason.String())
	}
	return n
}

// handleDrained fires the empty handler if the scheduler is still empty when
// the signal is processed; audio scheduled in between supersedes it.
func (r *run) handleDrained(ctx context.Context) {
	if r.sched.Active() > 0 || !r.s.speaking.Swap(false) {
		return
	}
	r.s.metrics.PlaybackDrained.Add(ctx, 1)
	if h := r.s.cfg.Handlers.OnBufferedAudioEmpty; h != nil {
		h()
	}
}

func (r *run) finishTurn() string {
	if r.recorder == nil {
		return ""
	}
	path, err := r.recorder.flush()
	if err != nil {
		r.log.Warn("session: record turn", "err", err)
		return ""
	}
	if path != "" {
		r.log.Info("session: recorded model turn", "path", path)
	}
	return path
}

// teardown releases the run's resources. Inbound handling has already
// stopped when it runs; it is safe to call more than once.
func (r *run) teardown() {
	r.teardownOnce.Do(func() {
		r.encoder.SetActive(false)
		r.cancel()

		if n := r.sched.Interrupt(playback.SessionEnd); n > 0 {
			r.s.metrics.RecordInterruption(context.Background(), playback.SessionEnd.String())
		}
		_ = r.sched.Close()
		if r.s.speaking.Swap(false) {
			if h := r.s.cfg.Handlers.OnBufferedAudioEmpty; h != nil {
				h()
			}
		}

		if err := r.source.Stop(); err != nil {
			r.log.Warn("session: stop capture", "err", err)
		}
		if err := r.transport.Close(); err != nil {
			r.log.Warn("session: close transport", "err", err)
		}
		go audio.Drain(r.transport.Events())

		if err := r.s.cfg.Output.Pause(); err != nil {
			r.log.Warn("session: pause output", "err", err)
		}
	})
}
