// Package studio exports speech to WAV files outside of a live session.
//
// Text is synthesised by a [Synthesizer] (Gemini text-to-speech in
// production) and wrapped in a WAV container. Payloads that are already raw
// PCM16, or base64 text of it, can be wrapped without any network access.
package studio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voxbridge/internal/observe"
	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/audio/wav"
)

// ErrEmptyText is returned when there is nothing to synthesise.
var ErrEmptyText = errors.New("studio: empty text")

// ErrNoAudio is returned when the service answered without audio.
var ErrNoAudio = errors.New("studio: response contains no audio")

// Synthesizer turns text into PCM16 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (pcm []byte, f audio.Format, err error)
}

// Exporter writes synthesised speech to WAV.
type Exporter struct {
	synth   Synthesizer
	metrics *observe.Metrics
}

// Option configures an [Exporter].
type Option func(*Exporter)

// WithMetrics overrides [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Exporter) { e.metrics = m }
}

// NewExporter returns an Exporter using s.
func NewExporter(s Synthesizer, opts ...Option) *Exporter {
	e := &Exporter{synth: s}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// Export synthesises text and returns it as a WAV file image.
func (e *Exporter) Export(ctx context.Context, text string) (_ []byte, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	ctx, span := observe.StartSpan(ctx, "studio.export",
		trace.WithAttributes(attribute.Int("text.length", len(text))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	began := time.Now()
	pcm, f, err := e.synth.Synthesize(ctx, text)
	status := "ok"
	if err != nil {
		status = "error"
	}
	e.metrics.SynthesisDuration.Record(ctx, time.Since(began).Seconds(),
		metric.WithAttributes(attribute.String("status", status)))
	if err != nil {
		return nil, fmt.Errorf("studio: synthesise: %w", err)
	}
	if len(pcm) == 0 {
		return nil, ErrNoAudio
	}

	out, err := wav.Encode(pcm, f)
	if err != nil {
		return nil, fmt.Errorf("studio: encode: %w", err)
	}
	observe.Logger(ctx).Info("speech synthesised",
		"format", f.String(),
		"pcm_bytes", len(pcm),
		"took", time.Since(began),
	)
	return out, nil
}

// ExportFile synthesises text into a WAV file at path.
func (e *Exporter) ExportFile(ctx context.Context, text, path string) error {
	data, err := e.Export(ctx, text)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("studio: %w", err)
	}
	slog.Info("wav exported", "path", path, "bytes", len(data))
	return nil
}

// WrapPCM wraps raw PCM16 little-endian audio in a WAV container.
func WrapPCM(pcm []byte, f audio.Format) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("studio: odd PCM16 length %d", len(pcm))
	}
	return wav.Encode(pcm, f)
}

// WrapBase64 decodes base64 PCM16 text and wraps it in a WAV container.
// Surrounding whitespace and line breaks are ignored.
func WrapBase64(b64 []byte, f audio.Format) ([]byte, error) {
	clean := bytes.Join(bytes.Fields(b64), nil)
	pcm, err := audio.DecodeBase64(string(clean))
	if err != nil {
		return nil, fmt.Errorf("studio: decode base64: %w", err)
	}
	return WrapPCM(pcm, f)
}
