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

// Package session manages the lifetime of shared torrents: it records them in the registry, keeps the
// engine seeding them and runs the periodic sweep and flush maintenance.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"artiswarm/collectors"
	"artiswarm/engine"
	"artiswarm/log"
	"artiswarm/registry"
	"artiswarm/util"
)

var ErrDisposed = errors.New("session manager is disposed")

type Manager struct {
	cfg      Config
	eng      engine.Engine
	pool     *util.WorkPool
	registry *registry.Registry
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	running    bool
	scheduled  bool
	disposed   bool
	trackerURI string
}

// New creates a manager and loads the registry journal. Nothing is seeded until Start.
func New(cfg Config, eng engine.Engine, pool *util.WorkPool, logger *slog.Logger) (*Manager, error) {
	logger = log.OrDefault(logger)

	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 300 * time.Second
	}

	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 60 * time.Second
	}

	m := &Manager{
		cfg:    cfg,
		eng:    eng,
		pool:   pool,
		logger: logger.With("component", "session"),
	}

	reg, err := registry.New(cfg.JournalPath, cfg.Capacity, m.onEntryRemoved, logger)
	if err != nil {
		return nil, fmt.Errorf("opening registry: %w", err)
	}

	m.registry = reg
	m.ctx, m.cancel = context.WithCancel(context.Background())

	return m, nil
}

// Start starts the engine, seeds every registered pair in the background and schedules maintenance.
// Calling Start on a running manager does nothing.
func (m *Manager) Start(localAddresses []string, trackerURI string, announceInterval time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disposed {
		return ErrDisposed
	}

	if m.running {
		return nil
	}

	if err := m.eng.Start(localAddresses, trackerURI, announceInterval); err != nil {
		var cfgErr *engine.ConfigurationError
		if errors.As(err, &cfgErr) {
			m.logger.Error("invalid engine configuration, session stays stopped", "field", cfgErr.Field,
				"value", cfgErr.Value, "err", cfgErr.Err)
		} else {
			m.logger.Error("failed to start engine", "err", err)
		}

		return err
	}

	m.running = true
	m.trackerURI = trackerURI

	m.wg.Add(1)

	go func() {
		defer m.wg.Done()

		util.Guarded(m.logger, "initial seed", m.seedRegistered)()
	}()

	if !m.scheduled {
		m.scheduled = true
		m.schedule()
	}

	m.logger.Info("session started", "tracker", trackerURI, "registered", m.registry.Len())

	return nil
}

func (m *Manager) schedule() {
	m.wg.Add(2)

	go func() {
		defer m.wg.Done()

		util.ContextTick(m.ctx, m.cfg.SweepInterval, util.Guarded(m.logger, "sweep", m.sweep))
	}()

	go func() {
		defer m.wg.Done()

		util.ContextTick(m.ctx, m.cfg.FlushInterval, util.Guarded(m.logger, "flush", m.flush))
	}()

	if !m.cfg.Watch {
		return
	}

	watcher, err := m.newWatcher()
	if err != nil {
		m.logger.Warn("torrent directory watcher disabled", "err", err)
		return
	}

	m.wg.Add(1)

	go func() {
		defer m.wg.Done()

		watcher.Run(m.ctx)
	}()
}

func (m *Manager) newWatcher() (*Watcher, error) {
	if err := os.MkdirAll(m.cfg.TorrentDir, 0755); err != nil {
		return nil, err
	}

	return NewWatcher([]string{m.cfg.TorrentDir}, time.Second, func() {
		util.Guarded(m.logger, "watch sweep", m.sweep)()
	}, m.logger)
}

// seedRegistered drops broken entries and then seeds everything left in the registry.
func (m *Manager) seedRegistered() error {
	m.removeBroken()

	entries := m.registry.Entries()

	failed := 0

	for _, e := range entries {
		if !m.Running() {
			return nil
		}

		if !m.seed(e.Source, e.Torrent) {
			failed++
		}
	}

	m.logger.Info("seeded registered torrents", "total", len(entries), "failed", failed)
	m.updateMetrics()

	return nil
}

// sweep drops broken entries and, while running, retries seeding entries the engine is not sharing.
func (m *Manager) sweep() error {
	m.removeBroken()

	if m.Running() {
		m.reseedMissing()
	}

	m.updateMetrics()

	return nil
}

func (m *Manager) removeBroken() {
	removed := m.registry.CleanupBrokenFiles()
	if len(removed) > 0 {
		m.logger.Info("removed broken registry entries", "count", len(removed))
	}
}

func (m *Manager) reseedMissing() {
	reseeded := 0

	for _, e := range m.registry.Entries() {
		if !m.Running() {
			return
		}

		if m.eng.IsSeeding(e.Torrent) {
			continue
		}

		if m.seed(e.Source, e.Torrent) {
			reseeded++
		}
	}

	if reseeded > 0 {
		m.logger.Info("reseeded registered torrents", "count", reseeded)
	}
}

func (m *Manager) flush() error {
	m.updateMetrics()

	return m.registry.Flush()
}

func (m *Manager) updateMetrics() {
	collectors.UpdateRegistry(m.registry.Len(), m.registry.Capacity())
	collectors.UpdateSeeding(m.SeedingCount())
	collectors.UpdatePoolPending(m.pool.Pending())
}

// seed shares torrent, restarting any existing session for it. Failures are logged and reported as false.
func (m *Manager) seed(source, torrent string) bool {
	if m.eng.IsSeeding(torrent) {
		if err := m.eng.StopSeeding(torrent); err != nil && !errors.Is(err, engine.ErrNotSeeding) {
			m.logger.Warn("failed to stop previous seeding session", "torrent", torrent, "err", err)
		}
	}

	if err := m.eng.Seed(torrent, filepath.Dir(source)); err != nil {
		m.logger.Warn("failed to seed, will retry on next sweep", "source", source, "torrent", torrent, "err", err)
		return false
	}

	return true
}

// Stop stops the engine and writes the registry journal. Stopping a stopped manager only flushes.
func (m *Manager) Stop() error {
	m.mu.Lock()
	wasRunning := m.running
	m.running = false
	m.mu.Unlock()

	var errs []error

	if wasRunning {
		if err := m.eng.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping engine: %w", err))
		}

		m.logger.Info("session stopped")
	}

	if err := m.registry.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flushing registry: %w", err))
	}

	return errors.Join(errs...)
}

// Dispose stops the manager, cancels maintenance and shuts down the work pool.
func (m *Manager) Dispose() error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil
	}

	m.disposed = true
	m.mu.Unlock()

	err := m.Stop()

	m.cancel()
	m.wg.Wait()

	if poolErr := m.pool.Shutdown(m.cfg.ShutdownGrace); poolErr != nil {
		err = errors.Join(err, poolErr)
	}

	return err
}

func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.running
}

// RegisterSrcAndTorrentFile records that torrent describes source. With startSeedingNow a running manager
// also seeds it, replacing an existing session for the same torrent. Seeding errors are logged only;
// the entry is kept and seeded again by the next sweep. A torrent previously registered for source
// stops seeding.
func (m *Manager) RegisterSrcAndTorrentFile(source, torrent string, startSeedingNow bool) {
	if previous, exists := m.registry.Lookup(source); exists && previous != torrent {
		m.stopSeeding(previous)
	}

	m.registry.Register(source, torrent)

	if !startSeedingNow {
		return
	}

	if !m.Running() {
		m.logger.Debug("session not running, seeding deferred", "source", source)
		return
	}

	m.seed(source, torrent)
}

func (m *Manager) UnregisterSrcFile(source string) {
	if !m.registry.Remove(source) {
		m.logger.Debug("unregistering unknown source", "source", source)
	}
}

func (m *Manager) stopSeeding(torrent string) {
	if !m.eng.IsSeeding(torrent) {
		return
	}

	if err := m.eng.StopSeeding(torrent); err != nil && !errors.Is(err, engine.ErrNotSeeding) {
		m.logger.Warn("failed to stop seeding", "torrent", torrent, "err", err)
	}
}

func (m *Manager) onEntryRemoved(source, torrent string) {
	m.stopSeeding(torrent)

	if !m.cfg.DeleteEvictedTorrents {
		return
	}

	if err := os.Remove(torrent); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("failed to delete torrent of removed entry", "torrent", torrent, "err", err)
	}
}

// SeedingCount returns how many registered torrents the engine is currently seeding.
func (m *Manager) SeedingCount() (n int) {
	for _, torrent := range m.registry.Snapshot() {
		if m.eng.IsSeeding(torrent) {
			n++
		}
	}

	return n
}

func (m *Manager) RegisteredCount() int {
	return m.registry.Len()
}

// SetCapacity changes the registry capacity, evicting least recently used entries when shrinking.
func (m *Manager) SetCapacity(capacity int) error {
	return m.registry.SetCapacity(capacity)
}
