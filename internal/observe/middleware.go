package observe

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// polledPath reports whether path is polled by orchestrators or scrapers.
// Successful polls log at debug level.
func polledPath(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return false
}

// codeWriter remembers the status code the wrapped handler wrote.
type codeWriter struct {
	http.ResponseWriter
	code int
}

func (w *codeWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Middleware instruments the admin HTTP handlers. Each request runs in a
// server span that continues an incoming W3C traceparent; the trace ID is
// returned as X-Correlation-ID, the latency is recorded in
// [Metrics.HTTPRequestDuration] and a completion line is logged.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	var tc propagation.TraceContext

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()

			ctx := tc.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			if cid := CorrelationID(ctx); cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}
			tc.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			cw := &codeWriter{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(cw, r.WithContext(ctx))

			span.SetAttributes(semconv.HTTPResponseStatusCode(cw.code))
			finishRequest(ctx, m, r, cw.code, time.Since(began))
		})
	}
}

func finishRequest(ctx context.Context, m *Metrics, r *http.Request, code int, took time.Duration) {
	m.HTTPRequestDuration.Record(ctx, took.Seconds(), metric.WithAttributes(
		attribute.String("method", r.Method),
		attribute.String("path", r.URL.Path),
	))

	level := slog.LevelInfo
	if polledPath(r.URL.Path) && code < http.StatusBadRequest {
		level = slog.LevelDebug
	}
	slog.LogAttrs(ctx, level, "http request",
		slog.String("trace_id", CorrelationID(ctx)),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", code),
		slog.Duration("took", took),
	)
}
