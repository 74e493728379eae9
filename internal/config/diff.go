package config

// ConfigDiff describes what changed between two configs. Hot-reloadable
// settings are reported individually; everything else only marks the running
// session as stale.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	MutedChanged bool
	NewMuted     bool

	// RestartRequired lists the dotted names of changed settings that only
	// take effect for the next session, e.g. "provider.voice".
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.MutedChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Audio.Muted != new.Audio.Muted {
		d.MutedChanged = true
		d.NewMuted = new.Audio.Muted
	}

	restart := func(name string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, name)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)

	oa, na := old.Audio, new.Audio
	restart("audio.capture_rate", oa.CaptureRate != na.CaptureRate)
	restart("audio.block_size", oa.BlockSize != na.BlockSize)
	restart("audio.output_rate", oa.OutputRate != na.OutputRate)
	restart("audio.output_channels", oa.OutputChannels != na.OutputChannels)
	restart("audio.resampler", oa.Resampler != na.Resampler)
	restart("audio.outbound_queue", oa.OutboundQueue != na.OutboundQueue)
	restart("audio.input_file", oa.InputFile != na.InputFile)

	op, np := old.Provider, new.Provider
	restart("provider.name", op.Name != np.Name)
	restart("provider.api_key", op.APIKey != np.APIKey)
	restart("provider.base_url", op.BaseURL != np.BaseURL)
	restart("provider.model", op.Model != np.Model)
	restart("provider.voice", op.Voice != np.Voice)
	restart("provider.instructions", op.Instructions != np.Instructions)
	restart("provider.transcription", op.Transcription != np.Transcription)

	restart("recording.dir", old.Recording.Dir != new.Recording.Dir)

	return d
}
