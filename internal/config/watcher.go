package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"
)

const defaultPollInterval = 5 * time.Second

// fileVersion identifies one revision of the config file. The modification
// time is checked first so an untouched file is never read.
type fileVersion struct {
	modTime time.Time
	sum     [sha256.Size]byte
}

// Watcher keeps the most recent valid config from a file. It re-reads the
// file on a poll interval and, optionally, when the process receives one of
// the configured signals (typically SIGHUP). Edits that fail to parse or
// validate are logged and ignored.
type Watcher struct {
	path     string
	interval time.Duration
	signals  []os.Signal
	onChange func(old, new *Config)

	mu      sync.Mutex
	current *Config
	version fileVersion
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default: 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithReloadSignals makes [Watcher.Run] force a reload whenever the process
// receives one of sigs, regardless of the file's modification time.
func WithReloadSignals(sigs ...os.Signal) WatcherOption {
	return func(w *Watcher) { w.signals = append(w.signals, sigs...) }
}

// NewWatcher loads the config at path. onChange, if non-nil, is called after
// each successful reload that changed the file content. Polling starts with
// [Watcher.Run].
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: defaultPollInterval, onChange: onChange}
	for _, opt := range opts {
		opt(w)
	}

	cfg, v, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.version = cfg, v
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is cancelled and always returns nil, so it can be run
// as an application worker.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var sig chan os.Signal
	if len(w.signals) > 0 {
		sig = make(chan os.Signal, 1)
		signal.Notify(sig, w.signals...)
		defer signal.Stop(sig)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if w.modified() {
				w.logReload(w.Reload())
			}
		case s := <-sig:
			slog.Info("config watcher: reload requested", "signal", s.String())
			w.logReload(w.Reload())
		}
	}
}

// Reload re-reads the file now. It reports whether the content changed. On
// error the current config is kept.
func (w *Watcher) Reload() (bool, error) {
	cfg, v, err := w.read()
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	if v.sum == w.version.sum {
		w.version.modTime = v.modTime
		w.mu.Unlock()
		return false, nil
	}
	old := w.current
	w.current, w.version = cfg, v
	w.mu.Unlock()

	// Outside the lock so the callback may call Current.
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return true, nil
}

func (w *Watcher) logReload(changed bool, err error) {
	switch {
	case err != nil:
		slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
	case changed:
		slog.Info("config watcher: configuration reloaded", "path", w.path)
	}
}

func (w *Watcher) modified() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return !info.ModTime().Equal(w.version.modTime)
}

func (w *Watcher) read() (*Config, fileVersion, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileVersion{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileVersion{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileVersion{}, err
	}
	return cfg, fileVersion{modTime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}

// LogChanges returns an onChange callback that passes a log level change to
// apply and reports every other change as requiring a restart.
func LogChanges(apply func(LogLevel)) func(old, new *Config) {
	return func(old, new *Config) {
		d := Diff(old, new)
		if d.LogLevelChanged && apply != nil {
			apply(d.NewLogLevel)
			slog.Info("config watcher: log level changed", "level", d.NewLogLevel)
		}
		if len(d.RestartRequired) > 0 {
			slog.Warn("config watcher: changes require a restart to take effect", "sections", d.RestartRequired)
		}
	}
}
