package compdata

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the store whenever either CSV file changes. Events are
// debounced because editors fire several write events per save. Blocks until
// ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the parent directories; watching the files directly breaks on
	// atomic rename-over saves.
	dirs := map[string]struct{}{
		filepath.Dir(s.compPath):   {},
		filepath.Dir(s.rosterPath): {},
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return err
		}
	}

	targets := map[string]struct{}{
		filepath.Clean(s.compPath):   {},
		filepath.Clean(s.rosterPath): {},
	}

	var debounce *time.Timer
	reload := func() {
		if err := s.Reload(); err != nil {
			s.logger.Error("data reload failed", zap.Error(err))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if _, watched := targets[filepath.Clean(ev.Name)]; !watched {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("data watcher error", zap.Error(err))
		}
	}
}
