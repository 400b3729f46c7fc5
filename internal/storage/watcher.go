// Copyright (c) 2025 Alex Walker
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// debounceWindow batches bursts of filesystem events (a temp-file write plus
// a rename per save) into a single refresh notification.
const debounceWindow = 250 * time.Millisecond

// Watcher reports changes to the session directory so the UI can refresh the
// chat list when files appear or disappear behind its back, for example when
// a second deepterm instance saves a session.
type Watcher struct {
	fsw    *fsnotify.Watcher
	events chan struct{}
	done   chan struct{}
}

// Watch starts watching the store's base directory. Callers must Close the
// returned watcher when done.
func (s *Store) Watch() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &StoreError{Message: "failed to create directory watcher", Err: err}
	}
	if err := fsw.Add(s.BaseDir); err != nil {
		fsw.Close()
		return nil, &StoreError{Message: "failed to watch session directory", Err: err}
	}

	w := &Watcher{
		fsw:    fsw,
		events: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go w.run(s.logger.With("component", "watcher"))
	return w, nil
}

// Events returns a channel that receives one value per debounced batch of
// directory changes. The channel is buffered; a slow reader coalesces
// notifications instead of blocking the watcher.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Close stops the watcher and releases its OS resources.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) run(logger *log.Logger) {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(ev.Name, ".json") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-fire:
					default:
					}
				}
				timer.Reset(debounceWindow)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher error", "err", err)
		case <-fire:
			timer = nil
			fire = nil
			select {
			case w.events <- struct{}{}:
			default:
			}
		}
	}
}
