package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// watchAPIKey re-reads file whenever it is written and hands a changed
// relay.api_key to apply. Flag and environment values still take precedence
// over the file. It returns when ctx is done or the watcher fails.
//
// v must not be used by anyone else while the watcher runs.
func watchAPIKey(ctx context.Context, v *viper.Viper, file string, apply func(string), log *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file instead of writing it.
	if err := watcher.Add(filepath.Dir(file)); err != nil {
		return fmt.Errorf("watching config dir: %w", err)
	}

	file = filepath.Clean(file)
	current := v.GetString("relay.api_key")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != file {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if err := v.ReadInConfig(); err != nil {
				log.Warn("could not reload config", "file", file, "error", err)
				continue
			}

			key := v.GetString("relay.api_key")
			if key == current {
				continue
			}
			current = key
			apply(key)
			log.Info("relay api key reloaded", "file", file)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("config watcher error: %w", err)
		}
	}
}
