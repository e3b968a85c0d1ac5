package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchConfig reloads the [themer] table whenever the configuration file
// changes. Other settings need a restart.
func (robo *Robot) watchConfig(ctx context.Context) error {
	if robo.config == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("couldn't start config watcher: %w", err)
	}
	defer w.Close()
	// Editors often replace files rather than write them, so watch the
	// directory and filter by name.
	name := filepath.Clean(robo.config)
	if err := w.Add(filepath.Dir(name)); err != nil {
		return fmt.Errorf("couldn't watch config: %w", err)
	}
	t := time.NewTimer(time.Second)
	t.Stop()
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			t.Reset(time.Second)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "config watcher error", slog.Any("err", err))
		case <-t.C:
			robo.reloadConfig(ctx)
		}
	}
}

// reloadConfig applies the [themer] table of the configuration file.
// A config that fails to load leaves the current one in place.
func (robo *Robot) reloadConfig(ctx context.Context) {
	cfg, _, err := loadFile(ctx, robo.config)
	if err != nil {
		slog.ErrorContext(ctx, "couldn't reload config", slog.Any("err", err))
		return
	}
	robo.engine.SetConfig(cfg.Themer)
	slog.InfoContext(ctx, "reloaded config",
		slog.String("access", cfg.Themer.Act.String()),
		slog.String("install", cfg.Themer.Install.String()),
		slog.Bool("auto_install", cfg.Themer.AutoInstall),
	)
}
