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

// Package registry keeps the bounded, persistent record of which source files are shared as torrents.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"artiswarm/collectors"
	"artiswarm/log"
	"artiswarm/util"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	ReasonCapacity     = "capacity"
	ReasonUnregistered = "unregistered"
	ReasonBroken       = "broken"
)

var ErrInvalidCapacity = errors.New("registry capacity must be positive")

type Entry struct {
	Source  string `json:"source"`
	Torrent string `json:"torrent"`
}

// RemoveListener is invoked exactly once for every entry that leaves the registry,
// after the registry lock has been released.
type RemoveListener func(source, torrent string)

type Registry struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[string, string]
	capacity int
	dirty    bool
	reason   string
	pending  []Entry

	// Serializes journal writes; held without mu while writing
	flushMu sync.Mutex

	path     string
	onRemove RemoveListener
	logger   *slog.Logger
}

// New creates a registry backed by the journal at path and loads any existing entries.
func New(path string, capacity int, onRemove RemoveListener, logger *slog.Logger) (*Registry, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}

	logger = log.OrDefault(logger)

	r := &Registry{
		capacity: capacity,
		path:     path,
		onRemove: onRemove,
		logger:   logger.With("component", "registry"),
	}

	lru, err := simplelru.NewLRU[string, string](capacity, r.evicted)
	if err != nil {
		return nil, err
	}

	r.lru = lru

	if err = r.load(); err != nil {
		return nil, err
	}

	return r, nil
}

// evicted runs under mu from within simplelru
func (r *Registry) evicted(source, torrent string) {
	r.pending = append(r.pending, Entry{Source: source, Torrent: torrent})
	r.dirty = true
}

func (r *Registry) takePending() (removed []Entry, reason string) {
	removed, reason = r.pending, r.reason
	r.pending = nil

	return removed, reason
}

func (r *Registry) notify(removed []Entry, reason string) {
	if len(removed) == 0 {
		return
	}

	collectors.IncrementRemoved(reason, len(removed))

	for _, e := range removed {
		r.logger.Debug("entry removed", "source", e.Source, "torrent", e.Torrent, "reason", reason)

		if r.onRemove != nil {
			r.onRemove(e.Source, e.Torrent)
		}
	}
}

func (r *Registry) load() error {
	start := time.Now()

	entries, skipped, err := readJournalFile(r.path)
	if err != nil {
		return fmt.Errorf("reading registry journal %s: %w", r.path, err)
	}

	if skipped > 0 {
		r.logger.Warn("skipped malformed journal lines", "journal", r.path, "skipped", skipped)
	}

	r.mu.Lock()
	r.reason = ReasonCapacity

	// Journal is ordered oldest to newest, so replaying it restores recency
	for _, e := range entries {
		r.lru.Add(e.Source, e.Torrent)
	}

	removed, reason := r.takePending()
	r.dirty = len(removed) > 0
	r.mu.Unlock()

	r.notify(removed, reason)

	r.logger.Info("loaded registry journal", "journal", r.path, "entries", len(entries),
		"elapsed", time.Since(start))

	return nil
}

// Register adds or updates the entry for source and marks it most recently used.
func (r *Registry) Register(source, torrent string) {
	r.mu.Lock()
	r.reason = ReasonCapacity
	r.lru.Add(source, torrent)
	r.dirty = true
	removed, reason := r.takePending()
	r.mu.Unlock()

	r.notify(removed, reason)
}

// Remove unregisters source, returning whether it was present.
func (r *Registry) Remove(source string) bool {
	r.mu.Lock()
	r.reason = ReasonUnregistered
	present := r.lru.Remove(source)
	removed, reason := r.takePending()
	r.mu.Unlock()

	r.notify(removed, reason)

	return present
}

// Lookup returns the torrent registered for source and refreshes its recency.
func (r *Registry) Lookup(source string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	torrent, ok := r.lru.Get(source)
	if ok {
		r.dirty = true
	}

	return torrent, ok
}

func (r *Registry) Snapshot() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make(map[string]string, r.lru.Len())

	for _, source := range r.lru.Keys() {
		if torrent, ok := r.lru.Peek(source); ok {
			snapshot[source] = torrent
		}
	}

	return snapshot
}

// Entries returns all entries ordered from least to most recently used.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.entriesLocked()
}

func (r *Registry) entriesLocked() []Entry {
	keys := r.lru.Keys()
	entries := make([]Entry, 0, len(keys))

	for _, source := range keys {
		if torrent, ok := r.lru.Peek(source); ok {
			entries = append(entries, Entry{Source: source, Torrent: torrent})
		}
	}

	return entries
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lru.Len()
}

func (r *Registry) Capacity() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.capacity
}

// SetCapacity changes the maximum number of entries, evicting least recently used ones when shrinking.
func (r *Registry) SetCapacity(capacity int) error {
	if capacity < 1 {
		return ErrInvalidCapacity
	}

	r.mu.Lock()
	r.reason = ReasonCapacity
	r.lru.Resize(capacity)
	r.capacity = capacity
	removed, reason := r.takePending()
	r.mu.Unlock()

	r.notify(removed, reason)

	return nil
}

// CleanupBrokenFiles removes every entry whose source or torrent file no longer exists and
// returns the torrent paths of the removed entries.
func (r *Registry) CleanupBrokenFiles() []string {
	start := time.Now()
	snapshot := r.Entries()

	var broken []Entry

	for _, e := range snapshot {
		if !util.FileExists(e.Source) || !util.FileExists(e.Torrent) {
			broken = append(broken, e)
		}
	}

	if len(broken) == 0 {
		collectors.UpdateSweepTime("registry", time.Since(start))
		return nil
	}

	r.mu.Lock()
	r.reason = ReasonBroken

	for _, e := range broken {
		// Entry may have been re-registered with a fresh torrent since the snapshot
		if current, ok := r.lru.Peek(e.Source); ok && current == e.Torrent {
			r.lru.Remove(e.Source)
		}
	}

	removed, reason := r.takePending()
	r.mu.Unlock()

	r.notify(removed, reason)

	torrents := make([]string, 0, len(removed))
	for _, e := range removed {
		torrents = append(torrents, e.Torrent)
	}

	collectors.UpdateSweepTime("registry", time.Since(start))
	r.logger.Info("removed broken registry entries", "count", len(torrents))

	return torrents
}

// Flush writes the registry to its journal if anything changed since the previous flush.
// The write happens outside the registry lock; changes made meanwhile are picked up by the next flush.
func (r *Registry) Flush() error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	if !r.dirty {
		r.mu.Unlock()
		return nil
	}

	entries := r.entriesLocked()
	r.dirty = false
	r.mu.Unlock()

	start := time.Now()

	if err := writeJournalFile(r.path, entries); err != nil {
		r.mu.Lock()
		r.dirty = true
		r.mu.Unlock()

		return fmt.Errorf("writing registry journal %s: %w", r.path, err)
	}

	elapsedTime := time.Since(start)
	collectors.UpdateFlushTime(elapsedTime)
	r.logger.Debug("flushed registry", "entries", len(entries), "elapsed", elapsedTime)

	return nil
}

func (r *Registry) Dirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.dirty
}
