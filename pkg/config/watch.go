package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"ussdpilot/pkg/logging"
)

// DebounceDelay is how long writes must settle before a reload.
var DebounceDelay = 300 * time.Millisecond

// Watch reloads path whenever it changes and passes the new config to fn.
// It watches the parent directory so editors that save by rename are seen.
// Invalid files are logged and skipped. Watch returns once ctx is done.
func Watch(ctx context.Context, path string, fn func(*Config)) error {
	if path == "" {
		path = DefaultPath()
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}
	logging.Info("config").Str("path", path).Msg("Watching config file")

	go func() {
		defer watcher.Close()

		var debounce *time.Timer
		reload := func() {
			cfg, err := Load(path)
			if err != nil {
				logging.Warn("config").Err(err).Msg("Config reload failed, keeping previous settings")
				return
			}
			logging.Info("config").Str("path", path).Msg("Config reloaded")
			fn(cfg)
		}

		for {
			select {
			case <-ctx.Done():
				if debounce != nil {
					debounce.Stop()
				}
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
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(DebounceDelay, reload)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Error("config").Err(err).Msg("Watcher error")
			}
		}
	}()
	return nil
}
