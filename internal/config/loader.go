package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// KnownProviders lists the transport names shipped with voxbridge. [Validate]
// warns about others, which may still be registered by an embedding program.
var KnownProviders = []string{"gemini"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset fields of cfg in place.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	a := &cfg.Audio
	if a.CaptureRate == 0 {
		a.CaptureRate = DefaultCaptureRate
	}
	if a.BlockSize == 0 {
		a.BlockSize = DefaultBlockSize
	}
	if a.OutputRate == 0 {
		a.OutputRate = DefaultOutputRate
	}
	if a.OutputChannels == 0 {
		a.OutputChannels = DefaultOutputChannels
	}
	if a.OutboundQueue == 0 {
		a.OutboundQueue = DefaultOutboundQueue
	}

	p := &cfg.Provider
	if p.Name == "" {
		p.Name = DefaultProvider
	}
	if p.Model == "" {
		p.Model = DefaultLiveModel
	}
	if p.Voice == "" {
		p.Voice = DefaultVoice
	}
	if p.APIKey == "" {
		p.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	if cfg.Studio.Model == "" {
		cfg.Studio.Model = DefaultStudioModel
	}
	if cfg.Studio.Voice == "" {
		cfg.Studio.Voice = p.Voice
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	a := cfg.Audio
	if a.CaptureRate < 8000 || a.CaptureRate > 192000 {
		errs = append(errs, fmt.Errorf("audio.capture_rate %d is out of range [8000, 192000]", a.CaptureRate))
	}
	if a.BlockSize <= 0 || a.BlockSize > 1<<16 {
		errs = append(errs, fmt.Errorf("audio.block_size %d is out of range [1, 65536]", a.BlockSize))
	}
	if a.OutputRate < 8000 || a.OutputRate > 384000 {
		errs = append(errs, fmt.Errorf("audio.output_rate %d is out of range [8000, 384000]", a.OutputRate))
	}
	if a.OutputChannels < 1 || a.OutputChannels > 8 {
		errs = append(errs, fmt.Errorf("audio.output_channels %d is out of range [1, 8]", a.OutputChannels))
	}
	if a.Resampler != "" && !a.Resampler.IsValid() {
		errs = append(errs, fmt.Errorf("audio.resampler %q is invalid; valid values: linear, sinc", a.Resampler))
	}
	if a.OutboundQueue < 1 {
		errs = append(errs, fmt.Errorf("audio.outbound_queue %d must be positive", a.OutboundQueue))
	}
	if a.BlockSize > 0 && a.CaptureRate > 0 && a.BlockSize > a.CaptureRate {
		slog.Warn("audio.block_size exceeds one second of capture; barge-in will feel sluggish",
			"block_size", a.BlockSize,
			"capture_rate", a.CaptureRate,
		)
	}

	if cfg.Provider.Name == "" {
		errs = append(errs, errors.New("provider.name is required"))
	} else if !slices.Contains(KnownProviders, cfg.Provider.Name) {
		slog.Warn("unknown provider name; it must be registered before use",
			"name", cfg.Provider.Name,
			"known", KnownProviders,
		)
	}
	if cfg.Provider.APIKey == "" {
		slog.Warn("provider.api_key is empty and GEMINI_API_KEY is unset; connecting will fail")
	}

	return errors.Join(errs...)
}
