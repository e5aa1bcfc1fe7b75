// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces bursts of filesystem events (editors typically
// emit several per save) into one reload.
const watchDebounce = 250 * time.Millisecond

// Watch reloads the registry whenever a .hcl file in the funcs directory
// changes. It blocks until ctx is cancelled. The admin reload endpoint
// remains authoritative; this is a convenience for instructors editing
// function files on a live server.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return err
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, ".hcl") {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				timerC = timer.C
			} else {
				timer.Reset(watchDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("funcs watcher error", "dir", s.dir, "error", err)
		case <-timerC:
			count, err := s.Reload()
			if err != nil {
				slog.Error("funcs auto-reload failed, keeping previous registry", "dir", s.dir, "error", err)
				continue
			}
			slog.Info("funcs auto-reloaded", "dir", s.dir, "functions", count)
		}
	}
}
