package observe

import (
	"bytes"
	"context"
	"encoding/hex"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// captureLogs routes the default slog logger into a buffer for the rest of
// the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestStartSpan_UsesGlobalProvider(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})

	seen := make(map[string]bool)
	for range 20 {
		ctx, span := StartSpan(context.Background(), "session.run")
		cid := CorrelationID(ctx)
		span.End()

		if b, err := hex.DecodeString(cid); err != nil || len(b) != 16 {
			t.Fatalf("correlation ID %q is not a 16-byte hex trace ID", cid)
		}
		if seen[cid] {
			t.Fatalf("trace ID %s reused", cid)
		}
		seen[cid] = true
	}

	spans := exp.GetSpans()
	if len(spans) != 20 || spans[0].Name != "session.run" {
		t.Fatalf("recorded %d spans, first %q", len(spans), spans[0].Name)
	}
}

func TestLogger_Fields(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	withSpan := func(ctx context.Context) context.Context {
		ctx, span := tp.Tracer("test").Start(ctx, "op")
		t.Cleanup(func() { span.End() })
		return ctx
	}

	tests := []struct {
		name    string
		ctx     context.Context
		want    []string
		notWant []string
	}{
		{
			name:    "bare context",
			ctx:     context.Background(),
			notWant: []string{"trace_id", "span_id", "session_id"},
		},
		{
			name:    "session only",
			ctx:     WithSessionID(context.Background(), "abc-123"),
			want:    []string{"session_id=abc-123"},
			notWant: []string{"trace_id"},
		},
		{
			name: "span and session",
			ctx:  withSpan(WithSessionID(context.Background(), "s1")),
			want: []string{"session_id=s1", "trace_id=", "span_id="},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogs(t)
			Logger(tt.ctx).Info("hello")
			out := buf.String()
			for _, s := range tt.want {
				if !strings.Contains(out, s) {
					t.Errorf("log %q lacks %q", out, s)
				}
			}
			for _, s := range tt.notWant {
				if strings.Contains(out, s) {
					t.Errorf("log %q contains %q", out, s)
				}
			}
		})
	}
}

func TestContextIDs_EmptyByDefault(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	if got := CorrelationID(ctx); got != "" {
		t.Errorf("CorrelationID = %q, want empty", got)
	}
	if got := SessionID(ctx); got != "" {
		t.Errorf("SessionID = %q, want empty", got)
	}
}
