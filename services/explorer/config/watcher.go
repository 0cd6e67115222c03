// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce coalesces the burst of filesystem events most
// editors emit for one save.
const DefaultReloadDebounce = 250 * time.Millisecond

// Watcher reloads the config file on change and hands the parsed
// result to a callback.
//
// # Description
//
// Watches the config file's directory (editors typically replace the
// file via rename, which drops a watch placed on the file itself) and
// debounces the event burst of a single save into one reload. A reload
// that fails to parse or validate is logged and skipped; the previous
// configuration stays in effect. Consumers should apply only tunable
// limits from a reload - structural settings (ports, storage backend)
// take effect on restart.
//
// # Thread Safety
//
// Safe for concurrent use. Start should only be called once.
type Watcher struct {
	path     string
	onReload func(*Config)
	logger   *slog.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for the given config file.
//
// Inputs:
//
//	path - Config file to watch. Must be non-empty.
//	onReload - Receives each successfully reloaded config.
//	logger - Diagnostics sink. Defaults to slog.Default() when nil.
func NewWatcher(path string, onReload func(*Config), logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		path:     path,
		onReload: onReload,
		logger:   logger,
		debounce: DefaultReloadDebounce,
		watcher:  fw,
	}, nil
}

// Start begins watching. Blocks until the context is cancelled; run it
// in a goroutine.
func (w *Watcher) Start(ctx context.Context) {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Warn("failed to watch config directory", "dir", dir, "error", err)
		return
	}
	w.logger.Debug("watching config file", "path", w.path)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)

		case <-ctx.Done():
			w.logger.Debug("config watcher stopping")
			w.cancelPending()
			return
		}
	}
}

// handleEvent schedules a debounced reload for events touching the
// config file.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != filepath.Base(w.path) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

// reload parses the file and delivers it; a failed parse keeps the
// previous configuration in effect.
func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous configuration",
			"path", w.path,
			"error", err,
		)
		return
	}

	w.logger.Info("config reloaded", "path", w.path)
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Stop stops watching and releases resources. Safe to call multiple
// times.
func (w *Watcher) Stop() error {
	w.cancelPending()
	return w.watcher.Close()
}
