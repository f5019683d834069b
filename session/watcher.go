/*
 * This file is part of Artiswarm.
 *
 * Artiswarm is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * Artiswarm is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with Artiswarm.  If not, see <http://www.gnu.org/licenses/>.
 */

package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"artiswarm/log"

	"github.com/fsnotify/fsnotify"
)

// Watcher triggers a callback once removals or renames in the watched directories have settled.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	debounce  time.Duration
	trigger   func()
	logger    *slog.Logger
}

func NewWatcher(dirs []string, debounce time.Duration, trigger func(), logger *slog.Logger) (*Watcher, error) {
	logger = log.OrDefault(logger)

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	for _, dir := range dirs {
		if err = fsWatcher.Add(dir); err != nil {
			_ = fsWatcher.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		debounce:  debounce,
		trigger:   trigger,
		logger:    logger.With("component", "watcher"),
	}, nil
}

// Run processes events until ctx is done and closes the underlying watcher on return.
func (w *Watcher) Run(ctx context.Context) {
	defer func() {
		if err := w.fsWatcher.Close(); err != nil {
			w.logger.Warn("failed to close watcher", "err", err)
		}
	}()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			w.logger.Debug("watched file went away", "file", event.Name, "op", event.Op.String())

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}

			fire = timer.C
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}

			w.logger.Warn("watcher error", "err", err)
		case <-fire:
			fire = nil

			w.trigger()
		}
	}
}
