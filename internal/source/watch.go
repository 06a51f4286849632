package source

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "evcal/internal/log"
)

// debounce window for editors that fire several write events per save.
const watchDebounce = 500 * time.Millisecond

// Watch re-runs a full refresh whenever the local listings file is written,
// so edits show up without waiting for the next cron tick. Blocks until ctx
// is canceled; callers run it in its own goroutine.
func (l *Loader) Watch(ctx context.Context, store *Store) error {
	if l.EventsFile == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(l.EventsFile); err != nil {
		return err
	}

	appLog.Info("watching local listings", "path", l.EventsFile)

	var lastReload time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if time.Since(lastReload) < watchDebounce {
				continue
			}
			lastReload = time.Now()
			if err := l.Refresh(ctx, store); err != nil {
				appLog.Error("reload after file change failed", err, "path", l.EventsFile)
			}

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			appLog.Error("listings watcher error", werr, "path", l.EventsFile)
		}
	}
}
