package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func pass(context.Context) error { return nil }

func failWith(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

// get serves path through a mux with h registered and decodes the body.
func get(t *testing.T, h *Handler, ctx context.Context, path string) (int, result) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil).WithContext(ctx))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return rec.Code, body
}

func TestHealthz_IgnoresCheckers(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "session", Check: failWith("down")})

	code, body := get(t, h, context.Background(), "/healthz")
	if code != http.StatusOK || body.Status != "ok" || body.Checks != nil {
		t.Errorf("healthz = %d %+v", code, body)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{},
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "session", Check: pass},
				{Name: "devices", Check: pass},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"session": "ok", "devices": "ok"},
		},
		{
			name: "session not started",
			checkers: []Checker{
				{Name: "session", Check: failWith("not started")},
				{Name: "devices", Check: pass},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"session": "fail: not started", "devices": "ok"},
		},
		{
			name: "everything down",
			checkers: []Checker{
				{Name: "session", Check: failWith("timeout")},
				{Name: "devices", Check: failWith("no playback device")},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"session": "fail: timeout", "devices": "fail: no playback device"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, body := get(t, New(tt.checkers...), context.Background(), "/readyz")
			if code != tt.wantCode || body.Status != tt.wantStatus {
				t.Errorf("readyz = %d %q, want %d %q", code, body.Status, tt.wantCode, tt.wantStatus)
			}
			if len(body.Checks) != len(tt.wantChecks) {
				t.Errorf("checks = %v, want %v", body.Checks, tt.wantChecks)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %s = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_CancelledRequest(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "session", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if code, body := get(t, h, ctx, "/readyz"); code != http.StatusServiceUnavailable {
		t.Errorf("readyz = %d %+v, want 503", code, body)
	}
}

func TestAdd_ReplacesByName(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "session", Check: failWith("idle")})
	h.Add(Checker{Name: "session", Check: pass})
	h.Add(Checker{Name: "devices", Check: pass})

	code, body := get(t, h, context.Background(), "/readyz")
	if code != http.StatusOK || len(body.Checks) != 2 {
		t.Errorf("readyz = %d %v", code, body.Checks)
	}
}

func TestReadyz_ChecksOverlap(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	entered := make(chan string, 2)
	gate := func(name string) func(context.Context) error {
		return func(context.Context) error {
			entered <- name
			<-release
			return nil
		}
	}
	h := New(Checker{Name: "session", Check: gate("session")}, Checker{Name: "devices", Check: gate("devices")})

	done := make(chan int, 1)
	go func() {
		rec := httptest.NewRecorder()
		h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		done <- rec.Code
	}()

	// Neither check returns before both have entered.
	<-entered
	<-entered
	close(release)
	if code := <-done; code != http.StatusOK {
		t.Errorf("readyz = %d, want 200", code)
	}
}
