package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/voxbridge/internal/config"
	"github.com/MrWong99/voxbridge/internal/session"
	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/audio/device"
	"github.com/MrWong99/voxbridge/pkg/audio/device/miniaudio"
	"github.com/MrWong99/voxbridge/pkg/audio/device/wavfile"
)

// output is a session output that can be checked and released.
type output interface {
	session.Output
	Format() audio.Format
	Check(ctx context.Context) error
	Close() error
}

// devices holds the local audio endpoints of the process. The output outlives
// sessions; the capture source is started and stopped by each session.
type devices struct {
	source      device.CaptureSource
	output      output
	inputDone   <-chan struct{}
	captureName string
	outputName  string

	closers []func() error
}

// openDevices selects the capture source and playback output from cfg. A
// configured input file replaces the microphone; a non-empty record path
// replaces the speaker with a headless output recorded to that file.
func openDevices(cfg *config.Config, record string) (*devices, error) {
	capFmt := audio.Format{SampleRate: cfg.Audio.CaptureRate, Channels: 1}
	outFmt := audio.Format{SampleRate: cfg.Audio.OutputRate, Channels: cfg.Audio.OutputChannels}

	d := &devices{}
	var mctx *miniaudio.Context
	backend := func() *miniaudio.Context {
		if mctx == nil {
			mctx = miniaudio.NewContext()
		}
		return mctx
	}

	if path := cfg.Audio.InputFile; path != "" {
		src, err := wavfile.Open(path, capFmt, wavfile.WithBlockSize(cfg.Audio.BlockSize))
		if err != nil {
			return nil, err
		}
		slog.Info("streaming input file", "path", path, "duration", src.Duration())
		d.source, d.inputDone, d.captureName = src, src.Done(), "file"
	} else {
		d.source = miniaudio.NewCapture(backend(), capFmt, cfg.Audio.BlockSize)
		d.captureName = "microphone"
	}

	if record != "" {
		d.output = wavfile.NewOutput(outFmt, wavfile.WithRecording(record))
		d.outputName = "headless"
	} else {
		pb := miniaudio.NewPlayback(backend(), outFmt)
		if err := pb.Open(); err != nil {
			_ = backend().Close()
			return nil, fmt.Errorf("open speaker: %w", err)
		}
		d.output = pb
		d.outputName = "speaker"
	}
	d.closers = append(d.closers, d.output.Close)
	if mctx != nil {
		d.closers = append(d.closers, mctx.Close)
	}
	return d, nil
}

// Close releases the output and the backend, in that order.
func (d *devices) Close() error {
	var errs []error
	for _, c := range d.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("device close error", "err", err)
		return err
	}
	return nil
}
