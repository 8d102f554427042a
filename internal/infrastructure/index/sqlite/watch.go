package sqlite

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchCurrentPointer follows the CURRENT file and reloads the catalog when
// another process swaps the active version. The root directory is watched
// rather than the file itself because the swap replaces the file by rename.
// Blocks until the context is cancelled.
func WatchCurrentPointer(ctx context.Context, catalog *Catalog) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(catalog.Root()); err != nil {
		return err
	}

	// Rename-based swaps arrive as create+rename bursts; a short settle
	// window collapses them into one reload.
	var pending *time.Timer
	reload := make(chan struct{}, 1)
	schedule := func() {
		if pending != nil {
			pending.Stop()
		}
		pending = time.AfterFunc(200*time.Millisecond, func() {
			select {
			case reload <- struct{}{}:
			default:
			}
		})
	}
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != currentPointerFile {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			schedule()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("index_watch_error", "error", err)
		case <-reload:
			if err := catalog.Reload(); err != nil {
				slog.Warn("index_reload_failed", "error", err)
			}
		}
	}
}
