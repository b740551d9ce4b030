package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the configuration file when it changes and hands the new
// configuration to a callback.
type Watcher struct {
	path         string
	onReload     func(*Config) error
	observe      func(error)
	logger       *slog.Logger
	debounceTime time.Duration
}

// NewWatcher creates a watcher for the file at path.
func NewWatcher(path string, onReload func(*Config) error, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:         path,
		onReload:     onReload,
		logger:       logger,
		debounceTime: 250 * time.Millisecond,
	}
}

// ObserveReloads registers fn to receive the outcome of every reload attempt.
// err is nil when the file loaded, validated and was accepted by the callback.
func (cw *Watcher) ObserveReloads(fn func(err error)) *Watcher {
	cw.observe = fn
	return cw
}

// Name identifies the watcher in a service group.
func (cw *Watcher) Name() string { return "config-watcher" }

// Run watches until ctx is cancelled. Editors often replace files instead of
// writing them in place, so the parent directory is watched and events are
// filtered by name. Bursts of events are debounced into a single reload.
func (cw *Watcher) Run(ctx context.Context) error {
	configPath, err := filepath.Abs(cw.path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}

	cw.logger.Info("Config watcher started", "config_path", configPath)

	debounce := time.NewTimer(cw.debounceTime)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isEventFor(event, configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cw.logger.Debug("Config file event detected", "event", event.Op.String(), "file", event.Name)
			debounce.Reset(cw.debounceTime)

		case <-debounce.C:
			cw.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			cw.logger.Error("Config watcher error", "error", err)

		case <-ctx.Done():
			cw.logger.Info("Config watcher stopped")
			return nil
		}
	}
}

func (cw *Watcher) reload() {
	start := time.Now()

	cfg, err := Load(cw.path)
	if err == nil {
		err = cw.onReload(cfg)
	}
	if cw.observe != nil {
		cw.observe(err)
	}
	if err != nil {
		cw.logger.Error("Config reload failed", "error", err, "duration", time.Since(start))
		return
	}
	cw.logger.Info("Config reload completed successfully", "duration", time.Since(start))
}

func isEventFor(event fsnotify.Event, configPath string) bool {
	eventPath, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return eventPath == configPath
}
