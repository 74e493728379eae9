// Package observe provides application-wide observability primitives for
// voxbridge: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxbridge metrics.
const meterName = "github.com/MrWong99/voxbridge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Capture path ---

	// FramesSent counts capture frames handed to the transport.
	FramesSent metric.Int64Counter

	// FramesDropped counts capture frames refused by a full outbound queue.
	FramesDropped metric.Int64Counter

	// --- Playback path ---

	// FramesDecoded counts inbound frames turned into playable buffers.
	FramesDecoded metric.Int64Counter

	// DecodeErrors counts dropped inbound frames. Use with attribute:
	//   attribute.String("reason", ...)
	DecodeErrors metric.Int64Counter

	// DecodeDuration tracks the time to decode and resample one frame.
	DecodeDuration metric.Float64Histogram

	// ScheduleLookahead tracks how much audio was queued ahead of the device
	// clock when a buffer was scheduled.
	ScheduleLookahead metric.Float64Histogram

	// Interruptions counts playback flushes. Use with attribute:
	//   attribute.String("reason", ...)
	Interruptions metric.Int64Counter

	// PlaybackDrained counts transitions from speaking to silent.
	PlaybackDrained metric.Int64Counter

	// --- Sessions and transport ---

	// SessionStartDuration tracks how long Start took, devices and dial
	// included.
	SessionStartDuration metric.Float64Histogram

	// TransportErrors counts transport failures. Use with attribute:
	//   attribute.String("kind", ...)
	TransportErrors metric.Int64Counter

	// ActiveSessions tracks the number of live conversation sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- Studio ---

	// SynthesisDuration tracks text-to-speech export latency.
	SynthesisDuration metric.Float64Histogram

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// network-bound operations.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// decodeBuckets covers per-frame CPU work, which stays well under a
// millisecond for typical frames.
var decodeBuckets = []float64{
	0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01,
}

// lookaheadBuckets covers queued model speech, from near-starved to whole
// sentences buffered ahead.
var lookaheadBuckets = []float64{
	0.02, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Capture.
	if met.FramesSent, err = m.Int64Counter("voxbridge.capture.frames_sent",
		metric.WithDescription("Capture frames handed to the transport."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("voxbridge.capture.frames_dropped",
		metric.WithDescription("Capture frames dropped because the outbound queue was full."),
	); err != nil {
		return nil, err
	}

	// Playback.
	if met.FramesDecoded, err = m.Int64Counter("voxbridge.decode.frames",
		metric.WithDescription("Inbound frames decoded into playable buffers."),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("voxbridge.decode.errors",
		metric.WithDescription("Inbound frames dropped by reason."),
	); err != nil {
		return nil, err
	}
	if met.DecodeDuration, err = m.Float64Histogram("voxbridge.decode.duration",
		metric.WithDescription("Time to decode and resample one inbound frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(decodeBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ScheduleLookahead, err = m.Float64Histogram("voxbridge.playback.lookahead",
		metric.WithDescription("Audio queued ahead of the device clock at schedule time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(lookaheadBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("voxbridge.playback.interruptions",
		metric.WithDescription("Playback flushes by reason."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDrained, err = m.Int64Counter("voxbridge.playback.drained",
		metric.WithDescription("Times all scheduled model audio finished or was flushed."),
	); err != nil {
		return nil, err
	}

	// Sessions and transport.
	if met.SessionStartDuration, err = m.Float64Histogram("voxbridge.session.start.duration",
		metric.WithDescription("Latency of session start including device open and dial."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TransportErrors, err = m.Int64Counter("voxbridge.transport.errors",
		metric.WithDescription("Transport failures by kind."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxbridge.active_sessions",
		metric.WithDescription("Number of live conversation sessions."),
	); err != nil {
		return nil, err
	}

	// Studio.
	if met.SynthesisDuration, err = m.Float64Histogram("voxbridge.studio.synthesis.duration",
		metric.WithDescription("Latency of text-to-speech export."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxbridge.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordDecodeError records one dropped inbound frame.
func (m *Metrics) RecordDecodeError(ctx context.Context, reason string) {
	m.DecodeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordDecoded records one decoded frame and the time it took.
func (m *Metrics) RecordDecoded(ctx context.Context, took time.Duration) {
	m.FramesDecoded.Add(ctx, 1)
	m.DecodeDuration.Record(ctx, took.Seconds())
}

// RecordScheduled records the lookahead of a newly scheduled buffer.
func (m *Metrics) RecordScheduled(ctx context.Context, lookahead time.Duration) {
	m.ScheduleLookahead.Record(ctx, lookahead.Seconds())
}

// RecordInterruption records one playback flush.
func (m *Metrics) RecordInterruption(ctx context.Context, reason string) {
	m.Interruptions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordTransportError records one transport failure.
func (m *Metrics) RecordTransportError(ctx context.Context, kind string) {
	m.TransportErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
