package observe

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type mwFixture struct {
	handler http.Handler
	reader  *sdkmetric.ManualReader
	spans   *tracetest.InMemoryExporter
	cid     string // correlation ID seen by the last request
}

// newMWFixture wraps a handler answering status for every path with the
// middleware, recording into private providers. The global tracer provider is
// swapped for the duration of the test.
func newMWFixture(t *testing.T, status func(path string) int) *mwFixture {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})

	f := &mwFixture{reader: reader, spans: exp}
	f.handler = Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.cid = CorrelationID(r.Context())
		w.WriteHeader(status(r.URL.Path))
	}))
	return f
}

func (f *mwFixture) get(path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func always(code int) func(string) int { return func(string) int { return code } }

func TestMiddleware_CorrelationID(t *testing.T) {
	const upstream = "4bf92f3577b34da6a3ce929d0e0e4736"

	tests := []struct {
		name   string
		header map[string]string
		want   string // "" means any fresh 32-char ID
	}{
		{"generated", nil, ""},
		{"continued from traceparent", map[string]string{
			"traceparent": "00-" + upstream + "-00f067aa0ba902b7-01",
		}, upstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMWFixture(t, always(http.StatusOK))
			rec := f.get("/readyz", tt.header)

			if len(f.cid) != 32 {
				t.Fatalf("correlation ID %q is not a trace ID", f.cid)
			}
			if tt.want != "" && f.cid != tt.want {
				t.Errorf("correlation ID = %q, want %q", f.cid, tt.want)
			}
			if got := rec.Header().Get("X-Correlation-ID"); got != f.cid {
				t.Errorf("X-Correlation-ID = %q, want %q", got, f.cid)
			}
		})
	}
}

func TestMiddleware_SpanPerRequest(t *testing.T) {
	for _, code := range []int{http.StatusOK, http.StatusNotFound, http.StatusServiceUnavailable} {
		f := newMWFixture(t, always(code))
		if rec := f.get("/metrics", nil); rec.Code != code {
			t.Fatalf("status = %d, want %d", rec.Code, code)
		}

		spans := f.spans.GetSpans()
		if len(spans) != 1 {
			t.Fatalf("spans = %d, want 1", len(spans))
		}
		if spans[0].Name != "HTTP GET /metrics" {
			t.Errorf("span name = %q", spans[0].Name)
		}
		want := attribute.Int("http.response.status_code", code)
		found := false
		for _, a := range spans[0].Attributes {
			if a == want {
				found = true
			}
		}
		if !found {
			t.Errorf("span lacks %v: %v", want, spans[0].Attributes)
		}
	}
}

func TestMiddleware_RecordsDuration(t *testing.T) {
	f := newMWFixture(t, always(http.StatusOK))
	f.get("/healthz", nil)
	f.get("/healthz", nil)

	var rm metricdata.ResourceMetrics
	if err := f.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "voxbridge.http.request.duration")
	if met == nil {
		t.Fatal("request duration not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 {
		t.Fatalf("unexpected data %T with %d points", met.Data, len(hist.DataPoints))
	}
	dp := hist.DataPoints[0]
	if dp.Count != 2 {
		t.Errorf("count = %d, want 2", dp.Count)
	}
	for _, kv := range []attribute.KeyValue{attribute.String("method", "GET"), attribute.String("path", "/healthz")} {
		if v, ok := dp.Attributes.Value(kv.Key); !ok || v != kv.Value {
			t.Errorf("missing attribute %v in %v", kv, dp.Attributes.ToSlice())
		}
	}
}

func TestMiddleware_PolledPathsLogAtDebug(t *testing.T) {
	f := newMWFixture(t, func(path string) int {
		if path == "/readyz" {
			return http.StatusServiceUnavailable
		}
		return http.StatusOK
	})

	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(orig) })

	f.get("/healthz", nil)
	f.get("/metrics", nil)
	if buf.Len() != 0 {
		t.Errorf("healthy polls logged at info: %s", buf.String())
	}

	f.get("/readyz", nil)
	if !bytes.Contains(buf.Bytes(), []byte("path=/readyz")) {
		t.Errorf("failing poll not logged at info, got: %s", buf.String())
	}
}
