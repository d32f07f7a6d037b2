// Copyright 2026 Davwatch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// DefaultReloadDebounce coalesces the burst of events an editor produces
// when saving the settings file.
const DefaultReloadDebounce = 200 * time.Millisecond

// SettingsWatcher reports edits to the settings file. It watches the parent
// directory so that atomic rename-on-save is seen as well.
type SettingsWatcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// WatchSettings starts watching path.
func WatchSettings(path string, debounce time.Duration) (*SettingsWatcher, error) {
	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	path = filepath.Clean(path)
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	return &SettingsWatcher{path: path, debounce: debounce, watcher: w}, nil
}

// Run calls onChange once per burst of writes to the settings file until ctx
// is cancelled or the watcher is closed.
func (sw *SettingsWatcher) Run(ctx context.Context, onChange func()) {
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != sw.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(sw.debounce)
			} else {
				timer.Reset(sw.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			onChange()
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("daemon: settings watcher error")
		}
	}
}

// Close stops watching.
func (sw *SettingsWatcher) Close() error {
	return sw.watcher.Close()
}
