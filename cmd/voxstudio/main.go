// Command voxstudio exports speech to a WAV file. It either synthesises text
// with Gemini text-to-speech or wraps an existing raw or base64 PCM16 payload
// without touching the network.
//
// Usage:
//
//	voxstudio -text "Hello there" -out hello.wav
//	voxstudio -text - -out hello.wav < script.txt
//	voxstudio -pcm reply.raw -out reply.wav
//	voxstudio -b64 reply.b64 -rate 24000 -out reply.wav
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/voxbridge/internal/config"
	"github.com/MrWong99/voxbridge/internal/observe"
	"github.com/MrWong99/voxbridge/internal/studio"
	"github.com/MrWong99/voxbridge/pkg/audio"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin))
}

func run(args []string, stdin io.Reader) int {
	fs := flag.NewFlagSet("voxstudio", flag.ContinueOnError)
	configPath := fs.String("config", "voxbridge.yaml", "path to the YAML configuration file")
	text := fs.String("text", "", `text to synthesise; "-" reads it from stdin`)
	pcmPath := fs.String("pcm", "", "wrap this raw PCM16 little-endian file instead of synthesising")
	b64Path := fs.String("b64", "", "wrap this base64 PCM16 file instead of synthesising")
	rate := fs.Int("rate", audio.OutputRate, "sample rate of -pcm / -b64 input")
	channels := fs.Int("channels", 1, "channel count of -pcm / -b64 input")
	out := fs.String("out", "studio.wav", "output WAV path")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	f := audio.Format{SampleRate: *rate, Channels: *channels}
	switch {
	case *pcmPath != "" && *b64Path != "":
		fmt.Fprintln(os.Stderr, "voxstudio: -pcm and -b64 are mutually exclusive")
		return 2
	case *pcmPath != "":
		return wrapFile(*pcmPath, *out, f, studio.WrapPCM)
	case *b64Path != "":
		return wrapFile(*b64Path, *out, f, studio.WrapBase64)
	}

	input := *text
	if input == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "voxstudio: read stdin: %v\n", err)
			return 1
		}
		input = string(b)
	}
	if input == "" {
		fmt.Fprintln(os.Stderr, "voxstudio: nothing to do, pass -text, -pcm or -b64")
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxstudio: %v\n", err)
		return 1
	}
	if cfg.Provider.APIKey == "" {
		fmt.Fprintln(os.Stderr, "voxstudio: no API key, set provider.api_key or GEMINI_API_KEY")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	opts := []studio.GeminiOption{
		studio.WithModel(cfg.Studio.Model),
		studio.WithVoice(cfg.Studio.Voice),
	}
	if cfg.Studio.BaseURL != "" {
		opts = append(opts, studio.WithBaseURL(cfg.Studio.BaseURL))
	}
	synth, err := studio.NewGemini(ctx, cfg.Provider.APIKey, opts...)
	if err != nil {
		slog.Error("failed to create synthesizer", "err", err)
		return 1
	}

	if err := studio.NewExporter(synth, studio.WithMetrics(observe.DefaultMetrics())).ExportFile(ctx, input, *out); err != nil {
		slog.Error("export failed", "err", err)
		return 1
	}
	return 0
}

// wrapFile converts the payload at in and writes the WAV to out.
func wrapFile(in, out string, f audio.Format, wrap func([]byte, audio.Format) ([]byte, error)) int {
	payload, err := os.ReadFile(in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxstudio: %v\n", err)
		return 1
	}
	data, err := wrap(payload, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxstudio: %v\n", err)
		return 1
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "voxstudio: %v\n", err)
		return 1
	}
	slog.Info("wav exported", "path", out, "format", f.String(), "bytes", len(data))
	return 0
}
