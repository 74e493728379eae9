package config_test

import (
	"testing"

	"github.com/MrWong99/voxbridge/internal/config"
)

func TestApplyDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	cfg := config.Default()

	checks := []struct {
		name      string
		got, want any
	}{
		{"server.listen_addr", cfg.Server.ListenAddr, config.DefaultListenAddr},
		{"server.log_level", cfg.Server.LogLevel, config.LogInfo},
		{"audio.capture_rate", cfg.Audio.CaptureRate, 16000},
		{"audio.block_size", cfg.Audio.BlockSize, 4096},
		{"audio.output_rate", cfg.Audio.OutputRate, 24000},
		{"audio.output_channels", cfg.Audio.OutputChannels, 1},
		{"audio.outbound_queue", cfg.Audio.OutboundQueue, config.DefaultOutboundQueue},
		{"provider.name", cfg.Provider.Name, "gemini"},
		{"provider.model", cfg.Provider.Model, config.DefaultLiveModel},
		{"provider.voice", cfg.Provider.Voice, "Kore"},
		{"studio.model", cfg.Studio.Model, config.DefaultStudioModel},
		{"studio.voice", cfg.Studio.Voice, "Kore"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-env")

	cfg := &config.Config{}
	cfg.Audio.BlockSize = 1024
	cfg.Provider.APIKey = "explicit"
	cfg.Provider.Voice = "Puck"
	config.ApplyDefaults(cfg)

	if cfg.Audio.BlockSize != 1024 {
		t.Errorf("block_size overwritten: %d", cfg.Audio.BlockSize)
	}
	if cfg.Provider.APIKey != "explicit" {
		t.Errorf("api_key overwritten: %q", cfg.Provider.APIKey)
	}
	if cfg.Studio.Voice != "Puck" {
		t.Errorf("studio.voice should follow provider.voice, got %q", cfg.Studio.Voice)
	}
}

func TestApplyDefaults_APIKeyFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-env")

	cfg := config.Default()
	if cfg.Provider.APIKey != "from-env" {
		t.Errorf("api_key: got %q, want from-env", cfg.Provider.APIKey)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()

	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q reported invalid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error("trace reported valid")
	}
}
