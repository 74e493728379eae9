package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats its file.
const DefaultWatchInterval = 2 * time.Second

// revision identifies one version of the config file on disk.
type revision struct {
	mtime time.Time
	sum   [sha256.Size]byte
}

// Watcher polls a config file and hands every valid edit to a callback. An
// edit that fails to parse or validate is logged and skipped; the previous
// config stays current until a valid edit replaces it. Rewriting the file
// with identical bytes is not an edit.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, cur *Config)

	mu      sync.Mutex
	current *Config
	seen    revision

	quit     chan struct{}
	exited   chan struct{}
	quitOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval overrides [DefaultWatchInterval]. Non-positive values are
// ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and polls it until [Watcher.Stop]. It fails when the
// initial load fails. onChange may be nil.
func NewWatcher(path string, onChange func(old, cur *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		quit:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, rev, err := loadRevision(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.seen = cfg, rev

	go w.run()
	return w, nil
}

// Current returns the config of the last valid revision.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling and returns once the polling goroutine has exited.
// Repeated calls return immediately.
func (w *Watcher) Stop() {
	w.quitOnce.Do(func() { close(w.quit) })
	<-w.exited
}

func (w *Watcher) run() {
	defer close(w.exited)
	tick := time.NewTicker(w.interval)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			w.poll()
		case <-w.quit:
			return
		}
	}
}

// poll reloads the file when its mtime moved. An invalid revision leaves
// seen untouched so the file is re-read on every tick until it is fixed.
func (w *Watcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: stat watched file", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	moved := !info.ModTime().Equal(w.seen.mtime)
	w.mu.Unlock()
	if !moved {
		return
	}

	cfg, rev, err := loadRevision(w.path)
	if err != nil {
		slog.Warn("config: ignoring invalid edit", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	sameBytes := rev.sum == w.seen.sum
	w.seen = rev
	old := w.current
	if !sameBytes {
		w.current = cfg
	}
	w.mu.Unlock()

	if sameBytes {
		return
	}
	slog.Info("config: reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// loadRevision reads, parses and validates path.
func loadRevision(path string) (*Config, revision, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, revision{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, revision{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, revision{}, err
	}
	return cfg, revision{mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
