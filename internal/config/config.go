// Package config provides the configuration schema, loader, hot-reload watcher
// and transport registry for voxbridge.
package config

import "github.com/MrWong99/voxbridge/internal/decode"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults] to unset fields.
const (
	DefaultListenAddr     = ":9464"
	DefaultCaptureRate    = 16000
	DefaultBlockSize      = 4096
	DefaultOutputRate     = 24000
	DefaultOutputChannels = 1
	DefaultOutboundQueue  = 64
	DefaultProvider       = "gemini"
	DefaultLiveModel      = "gemini-2.5-flash-native-audio-preview-12-2025"
	DefaultVoice          = "Kore"
	DefaultStudioModel    = "gemini-2.5-flash-preview-tts"
)

// Config is the root configuration structure for voxbridge.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Provider  ProviderConfig  `yaml:"provider"`
	Recording RecordingConfig `yaml:"recording"`
	Studio    StudioConfig    `yaml:"studio"`
}

// ServerConfig holds the admin listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address serving /healthz, /readyz and /metrics.
	// Set to "-" to disable the listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig describes the local capture and playback devices.
type AudioConfig struct {
	// CaptureRate is the microphone sample rate in Hz sent on the wire.
	CaptureRate int `yaml:"capture_rate"`

	// BlockSize is the number of samples per capture block; one block
	// becomes one outbound frame.
	BlockSize int `yaml:"block_size"`

	// OutputRate and OutputChannels describe the playback device. Inbound
	// audio is resampled to this format.
	OutputRate     int `yaml:"output_rate"`
	OutputChannels int `yaml:"output_channels"`

	// Resampler selects the inbound resampler ("linear" or "sinc").
	Resampler decode.Quality `yaml:"resampler"`

	// OutboundQueue is the number of encoded frames buffered between the
	// capture callback and the transport writer. Frames beyond it are
	// dropped.
	OutboundQueue int `yaml:"outbound_queue"`

	// Muted starts the microphone muted. Hot-reloadable.
	Muted bool `yaml:"muted"`

	// InputFile replaces the microphone with a WAV file. The file is
	// streamed in real time and the session stops at its end.
	InputFile string `yaml:"input_file"`
}

// ProviderConfig selects and configures the conversational transport.
// Name is used to look up the dialer factory in the [Registry].
type ProviderConfig struct {
	// Name selects the registered transport (e.g. "gemini").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider. When empty the
	// GEMINI_API_KEY environment variable is used.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects the live model.
	Model string `yaml:"model"`

	// Voice is the prebuilt voice the model speaks with.
	Voice string `yaml:"voice"`

	// Instructions is the system instruction sent at setup.
	Instructions string `yaml:"instructions"`

	// Transcription enables input and output transcripts.
	Transcription bool `yaml:"transcription"`
}

// RecordingConfig controls export of completed model turns.
type RecordingConfig struct {
	// Dir receives one WAV file per completed model turn. Empty disables
	// recording.
	Dir string `yaml:"dir"`
}

// StudioConfig configures the offline text-to-speech export.
type StudioConfig struct {
	Model string `yaml:"model"`
	Voice string `yaml:"voice"`

	// BaseURL overrides the Gemini REST endpoint used for synthesis. It is
	// separate from provider.base_url, which points at the Live WebSocket.
	BaseURL string `yaml:"base_url"`
}
