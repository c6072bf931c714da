package reloader

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the snapshot file whenever it changes, until ctx is done.
// The parent directory is watched because writers replace the file by
// renaming a temp file over it. Bursts of events within debounce collapse
// into one reload.
func (r *Reloader) Watch(ctx context.Context, debounce time.Duration) error {
	if r.path == "" {
		return fmt.Errorf("watch: no snapshot path configured")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	target := filepath.Clean(r.path)
	r.logger.Info("watching snapshot file", "path", target, "debounce", debounce)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(ev, target) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			pending = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("file watcher error", "error", err)
		case <-pending:
			pending = nil
			if _, err := r.ReloadFromFile(ctx); err != nil {
				r.logger.Error("reload after file change failed, keeping current snapshot",
					"path", target, "error", err)
			}
		}
	}
}

func relevant(ev fsnotify.Event, target string) bool {
	if filepath.Clean(ev.Name) != target {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename)
}
