package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Debounce is the time Watch waits after the last change in the extension
// directory before refreshing.
const Debounce = time.Second

// Watch refreshes store whenever the extension directory dir or any of its
// immediate subdirectories changes. It blocks until ctx is canceled or the
// watcher fails.
func Watch(ctx context.Context, log *slog.Logger, dir string, store *Store) error {
	if log == nil {
		log = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("couldn't start extension watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("couldn't watch %s: %w", dir, err)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("couldn't list extensions: %w", err)
	}
	for _, e := range ents {
		if e.IsDir() {
			p := filepath.Join(dir, e.Name())
			if err := w.Add(p); err != nil {
				log.WarnContext(ctx, "couldn't watch extension", slog.String("path", p), slog.Any("err", err))
			}
		}
	}
	t := time.NewTimer(Debounce)
	t.Stop()
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					w.Add(ev.Name)
				}
			}
			t.Reset(Debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.ErrorContext(ctx, "extension watcher", slog.Any("err", err))
		case <-t.C:
			if err := store.Refresh(ctx); err != nil {
				log.ErrorContext(ctx, "couldn't refresh themes", slog.Any("err", err))
				continue
			}
			log.InfoContext(ctx, "refreshed themes", slog.Int("count", len(store.Items())))
		}
	}
}
