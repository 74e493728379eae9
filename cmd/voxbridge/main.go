// Command voxbridge runs a live voice conversation with a remote streaming
// model: the microphone is streamed to the service and its speech is played
// back gaplessly, with barge-in support.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxbridge/internal/config"
	"github.com/MrWong99/voxbridge/internal/decode"
	"github.com/MrWong99/voxbridge/internal/health"
	"github.com/MrWong99/voxbridge/internal/observe"
	"github.com/MrWong99/voxbridge/internal/session"
	"github.com/MrWong99/voxbridge/pkg/transport"
	"github.com/MrWong99/voxbridge/pkg/transport/gemini"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "voxbridge.yaml", "path to the YAML configuration file")
	inputFile := flag.String("input", "", "WAV file to stream instead of the microphone")
	outputFile := flag.String("output", "", "play back headlessly and record the result to this WAV file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, watchable, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxbridge: %v\n", err)
		return 1
	}
	if *inputFile != "" {
		cfg.Audio.InputFile = *inputFile
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("voxbridge starting",
		"version", version,
		"config", *configPath,
		"provider", cfg.Provider.Name,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, quit := context.WithCancel(sigCtx)
	defer quit()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Transport ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinTransports(reg)
	dialer, err := reg.CreateDialer(cfg.Provider)
	if err != nil {
		slog.Error("failed to create transport", "err", err, "registered", reg.Names())
		return 1
	}

	resampler, err := decode.NewResampler(cfg.Audio.Resampler)
	if err != nil {
		slog.Error("invalid resampler", "err", err)
		return 1
	}

	// ── Devices ───────────────────────────────────────────────────────────────
	devs, err := openDevices(cfg, *outputFile)
	if err != nil {
		slog.Error("failed to open audio devices", "err", err)
		return 1
	}
	defer devs.Close()

	// ── Session ───────────────────────────────────────────────────────────────
	ended := make(chan error, 1)
	sess := session.New(session.Config{
		Dialer: dialer,
		Output: devs.output,
		Transport: transport.SessionConfig{
			Model:        cfg.Provider.Model,
			Voice:        cfg.Provider.Voice,
			Instructions: cfg.Provider.Instructions,
		},
		Resampler:     resampler,
		OutputFormat:  devs.output.Format(),
		OutboundQueue: cfg.Audio.OutboundQueue,
		RecordingDir:  cfg.Recording.Dir,
		Muted:         cfg.Audio.Muted,
		Metrics:       metrics,
		Handlers:      sessionHandlers(ended),
	})

	// ── Config hot reload ─────────────────────────────────────────────────────
	if watchable {
		w, err := config.NewWatcher(*configPath, func(old, cur *config.Config) {
			applyReload(config.Diff(old, cur), &level, sess)
		})
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	printStartupSummary(cfg, devs)

	g, gctx := errgroup.WithContext(ctx)

	// ── Admin listener ────────────────────────────────────────────────────────
	if addr := cfg.Server.ListenAddr; addr != "-" {
		checks := health.New(
			health.Checker{Name: "session", Check: sess.Check},
			health.Checker{Name: "devices", Check: devs.output.Check},
		)
		mux := http.NewServeMux()
		checks.Register(mux)
		mux.Handle("GET /metrics", promhttp.Handler())

		srv := &http.Server{
			Addr:              addr,
			Handler:           observe.Middleware(metrics)(mux),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("admin listener started", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	// ── Conversation ──────────────────────────────────────────────────────────
	if err := sess.Start(ctx, devs.source); err != nil {
		slog.Error("failed to start session", "err", err)
		quit()
		_ = g.Wait()
		return 1
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-ended:
			return err
		}
	})
	if devs.inputDone != nil {
		go func() {
			select {
			case <-devs.inputDone:
				slog.Info("input file finished, streaming silence; press q or Ctrl+C to quit")
			case <-ctx.Done():
			}
		}()
	}
	go readControls(os.Stdin, sess, quit)

	slog.Info("conversation live: m = mute, i = interrupt, q = quit")

	runErr := g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutting down…")
	if err := sess.Stop(); err != nil {
		slog.Warn("session stop error", "err", err)
	}
	if runErr != nil {
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Configuration ─────────────────────────────────────────────────────────────

// loadConfig loads path. A missing file at the default location falls back
// to the built-in defaults; watchable reports whether the file exists and can
// be hot-reloaded.
func loadConfig(path string) (cfg *config.Config, watchable bool, err error) {
	cfg, err = config.Load(path)
	switch {
	case err == nil:
		return cfg, true, nil
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintf(os.Stderr, "voxbridge: config file %q not found, using defaults\n", path)
		return config.Default(), false, nil
	default:
		return nil, false, err
	}
}

// applyReload applies the hot-reloadable part of a config change.
func applyReload(d config.ConfigDiff, level *slog.LevelVar, sess *session.Session) {
	if d.LogLevelChanged {
		level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.MutedChanged {
		sess.SetMuted(d.NewMuted)
		slog.Info("microphone mute changed", "muted", d.NewMuted)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes take effect after restart", "fields", d.RestartRequired)
	}
}

// ── Transport wiring ──────────────────────────────────────────────────────────

// registerBuiltinTransports wires the transports that ship with voxbridge
// into reg.
func registerBuiltinTransports(reg *config.Registry) {
	reg.Register("gemini", func(p config.ProviderConfig) (transport.Dialer, error) {
		if p.APIKey == "" {
			return nil, errors.New("gemini: api key required (provider.api_key or GEMINI_API_KEY)")
		}
		opts := []gemini.Option{gemini.WithTranscription(p.Transcription)}
		if p.Model != "" {
			opts = append(opts, gemini.WithModel(p.Model))
		}
		if p.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(p.BaseURL))
		}
		return gemini.New(p.APIKey, opts...), nil
	})

	for _, name := range reg.Names() {
		slog.Debug("registered transport", "name", name)
	}
}

// sessionHandlers logs session events and forwards the end of a run to ended.
func sessionHandlers(ended chan<- error) session.Handlers {
	return session.Handlers{
		OnBufferedAudioEmpty: func() {
			slog.Debug("model finished speaking")
		},
		OnFrameDecodeError: func(err error) {
			slog.Warn("dropped model audio frame", "reason", decode.ReasonOf(err))
		},
		OnTranscript: func(role, text string) {
			fmt.Printf("%-5s │ %s\n", role, text)
		},
		OnTurnComplete: func(path string) {
			if path != "" {
				slog.Info("model turn recorded", "path", path)
			}
		},
		OnEnded: func(err error) {
			select {
			case ended <- err:
			default:
			}
		},
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, devs *devices) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       voxbridge - startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Provider", cfg.Provider.Name)
	printRow("Voice", cfg.Provider.Voice)
	printRow("Capture", devs.captureName)
	printRow("Playback", devs.outputName)
	printRow("Resampler", string(cfg.Audio.Resampler))
	printRow("Recording", cfg.Recording.Dir)
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(disabled)"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, truncate(value, 19))
}

// truncate shortens s to at most width runes, marking the cut with an
// ellipsis.
func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	r := []rune(s)
	return string(r[:width-1]) + "…"
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
