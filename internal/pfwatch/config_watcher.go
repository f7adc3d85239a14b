package pfwatch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher monitors the config file via fsnotify and delivers
// re-validated configs on Updates. File-sourced values never override
// settings pinned by explicitly set flags.
type ConfigWatcher struct {
	path    string
	base    Config
	changed map[string]bool
	updates chan Config

	mu       sync.Mutex
	debounce *time.Timer
}

// NewConfigWatcher watches path. base is the config as resolved at
// startup (defaults plus env plus flags, before file values); changed is
// the explicitly-set flag map.
func NewConfigWatcher(path string, base Config, changed map[string]bool) *ConfigWatcher {
	return &ConfigWatcher{
		path:    path,
		base:    base,
		changed: changed,
		updates: make(chan Config, 1),
	}
}

// Updates delivers each successfully reloaded config.
func (w *ConfigWatcher) Updates() <-chan Config { return w.updates }

// Run watches the config file's directory until the context is
// canceled. Editors replace files on save, so both Write and Create on
// the config filename trigger a debounced reload.
func (w *ConfigWatcher) Run(ctx context.Context) {
	if w.path == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error().Err(err).Msg("config watcher: create failed")
		return
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		logger.Error().Err(err).Str("path", w.path).Msg("config watcher: watch failed")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.debounceReload(100 * time.Millisecond)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Msg("config watcher: error")
		}
	}
}

func (w *ConfigWatcher) debounceReload(delay time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(delay, w.reload)
}

func (w *ConfigWatcher) reload() {
	fc, err := LoadFileConfig(w.path)
	if err != nil {
		logger.Warn().Err(err).Str("path", w.path).Msg("config reload failed")
		return
	}
	cfg := w.base
	if err := ApplyFileConfig(&cfg, fc, w.changed); err != nil {
		logger.Warn().Err(err).Msg("config reload rejected")
		return
	}
	// Env still beats file after a reload.
	if err := ApplyEnvConfig(&cfg, w.changed); err != nil {
		logger.Warn().Err(err).Msg("config reload rejected")
		return
	}
	if err := cfg.Validate(); err != nil {
		logger.Warn().Err(err).Msg("config reload rejected")
		return
	}
	// Keep only the newest pending update.
	select {
	case <-w.updates:
	default:
	}
	w.updates <- cfg
	logger.Info().Str("path", w.path).Msg("configuration reloaded")
}
