package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/audio/wav"
)

func TestRun_WrapPCM(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "in.raw")
	out := filepath.Join(dir, "out.wav")
	pcm := audio.FloatToPCM16([]float32{0.1, 0.2, -0.3, 0})
	if err := os.WriteFile(in, pcm, 0o644); err != nil {
		t.Fatal(err)
	}

	if code := run([]string{"-pcm", in, "-rate", "16000", "-out", out}, strings.NewReader("")); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	got, f, err := wav.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.SampleRate != 16000 || f.Channels != 1 || string(got) != string(pcm) {
		t.Errorf("decoded %d bytes as %s", len(got), f)
	}
}

func TestRun_WrapBase64(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "in.b64")
	out := filepath.Join(dir, "out.wav")
	pcm := []byte{1, 0, 2, 0}
	if err := os.WriteFile(in, []byte(audio.EncodeBase64(pcm)+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if code := run([]string{"-b64", in, "-out", out}, strings.NewReader("")); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if _, f, err := wav.Decode(data); err != nil || f.SampleRate != audio.OutputRate {
		t.Errorf("Decode: format=%s err=%v", f, err)
	}
}

func TestRun_UsageErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"nothing to do", []string{"-config", filepath.Join(t.TempDir(), "none.yaml")}, 2},
		{"both payloads", []string{"-pcm", "a", "-b64", "b"}, 2},
		{"missing pcm file", []string{"-pcm", filepath.Join(t.TempDir(), "none.raw")}, 1},
		{"bad flag", []string{"-bogus"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := run(tt.args, strings.NewReader("")); got != tt.want {
				t.Errorf("exit code = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRun_SynthesisUsesStudioEndpoint(t *testing.T) {
	t.Parallel()

	pcm := audio.FloatToPCM16([]float32{0.25, -0.25})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{
					"role": "model",
					"parts": []any{map[string]any{
						"inlineData": map[string]any{
							"mimeType": "audio/L16;codec=pcm;rate=24000",
							"data":     audio.EncodeBase64(pcm),
						},
					}},
				},
			}},
		})
	}))
	t.Cleanup(srv.Close)

	// provider.base_url addresses the Live WebSocket and must not be used
	// for synthesis.
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "voxbridge.yaml")
	cfg := "provider:\n  api_key: test-key\n  base_url: wss://live.invalid/ws\nstudio:\n  base_url: " + srv.URL + "\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "hello.wav")

	if code := run([]string{"-config", cfgPath, "-text", "hello", "-out", out}, strings.NewReader("")); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	got, f, err := wav.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.SampleRate != 24000 || string(got) != string(pcm) {
		t.Errorf("decoded %d bytes as %s", len(got), f)
	}
}
