package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of events an editor or atomicWrite
// produces for one save.
var watchDebounce = 200 * time.Millisecond

// Watch calls onChange with the reloaded config each time the file at path
// changes, until ctx is done. The containing directory is watched so that
// rename-based saves are observed. Reload failures are logged and skipped.
func Watch(ctx context.Context, path string, onChange func(Config)) error {
	if onChange == nil {
		return errors.New("onChange callback is required")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch config: resolve path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("watch config: add %s: %w", filepath.Dir(absPath), err)
	}
	slog.Debug("[DEBUG-CONFIG] watching config file", "path", absPath)

	var debounce *time.Timer
	var fire <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(watchDebounce)
			} else {
				debounce.Reset(watchDebounce)
			}
			fire = debounce.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("[WARN-CONFIG] config watcher error", "error", err)
		case <-fire:
			fire = nil
			cfg, err := Load(absPath)
			if err != nil {
				slog.Warn("[WARN-CONFIG] config reload failed, keeping previous settings", "path", absPath, "error", err)
				continue
			}
			slog.Info("[config] config reloaded", "path", absPath)
			onChange(cfg)
		}
	}
}
