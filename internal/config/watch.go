package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config file on change and invokes onReload with the fresh
// config. Used to pick up new team seeds without a restart. Editors often
// replace files (rename+create), so the parent directory is watched and
// events are debounced.
func Watch(ctx context.Context, path string, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		var timer *time.Timer
		reload := func() {
			cfg, err := Load(path)
			if err != nil {
				slog.Warn("config reload failed", "path", path, "error", err)
				return
			}
			slog.Info("config reloaded", "path", path)
			onReload(cfg)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(250*time.Millisecond, reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "error", err)
			}
		}
	}()

	return nil
}
