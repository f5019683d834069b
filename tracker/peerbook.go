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

// Package tracker keeps the swarms announced to the embedded tracker.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"artiswarm/collectors"
	"artiswarm/log"
	tt "artiswarm/tracker/types"
	"artiswarm/util"
)

type swarm struct {
	mu sync.Mutex

	peers     map[tt.PeerID]*tt.Peer
	completed int

	// Set once the swarm was unlinked by a sweep; announces holding a stale pointer retry
	dead bool
}

func (s *swarm) statsLocked() (stats tt.SwarmStats) {
	for _, p := range s.peers {
		if p.Seeding() {
			stats.Seeders++
		} else {
			stats.Leechers++
		}
	}

	stats.Completed = s.completed

	return stats
}

type PeerBook struct {
	mu     sync.RWMutex
	swarms map[tt.TorrentHash]*swarm

	now    func() time.Time
	logger *slog.Logger
}

func NewPeerBook(logger *slog.Logger) *PeerBook {
	logger = log.OrDefault(logger)

	return &PeerBook{
		swarms: make(map[tt.TorrentHash]*swarm),
		now:    time.Now,
		logger: logger.With("component", "peerbook"),
	}
}

func (b *PeerBook) lookup(hash tt.TorrentHash) *swarm {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.swarms[hash]
}

func (b *PeerBook) lookupOrCreate(hash tt.TorrentHash) *swarm {
	if s := b.lookup(hash); s != nil {
		return s
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	s, exists := b.swarms[hash]
	if !exists {
		s = &swarm{peers: make(map[tt.PeerID]*tt.Peer)}
		b.swarms[hash] = s
	}

	return s
}

// Announce records peer state for hash and returns the swarm statistics after the update.
// A stopped event removes the peer immediately; a completed event is counted once per peer.
func (b *PeerBook) Announce(hash tt.TorrentHash, peer tt.Peer, event tt.Event) tt.SwarmStats {
	now := b.now().Unix()

	for {
		var s *swarm

		if event == tt.EventStopped {
			if s = b.lookup(hash); s == nil {
				return tt.SwarmStats{}
			}
		} else {
			s = b.lookupOrCreate(hash)
		}

		s.mu.Lock()

		if s.dead {
			s.mu.Unlock()
			continue
		}

		if event == tt.EventStopped {
			delete(s.peers, peer.ID)
		} else {
			existing, exists := s.peers[peer.ID]
			if !exists {
				existing = &tt.Peer{ID: peer.ID, StartTime: now}
				s.peers[peer.ID] = existing
			}

			existing.Addr = peer.Addr
			existing.Uploaded = peer.Uploaded
			existing.Downloaded = peer.Downloaded
			existing.Left = peer.Left
			existing.LastAnnounce = now

			if event == tt.EventCompleted && !existing.Completed {
				existing.Completed = true
				s.completed++
			}
		}

		stats := s.statsLocked()
		s.mu.Unlock()

		return stats
	}
}

// Peers returns copies of up to numWant peers of hash other than exclude.
// Seeders asking for peers only receive leechers.
func (b *PeerBook) Peers(hash tt.TorrentHash, exclude tt.PeerID, numWant int) []tt.Peer {
	s := b.lookup(hash)
	if s == nil || numWant <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seeding := false
	if self, exists := s.peers[exclude]; exists {
		seeding = self.Seeding()
	}

	result := make([]tt.Peer, 0, min(numWant, len(s.peers)))

	// Map iteration order is already randomized
	for id, p := range s.peers {
		if len(result) >= numWant {
			break
		}

		if id == exclude || (seeding && p.Seeding()) {
			continue
		}

		result = append(result, *p)
	}

	return result
}

func (b *PeerBook) Stats(hash tt.TorrentHash) (tt.SwarmStats, bool) {
	s := b.lookup(hash)
	if s == nil {
		return tt.SwarmStats{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.statsLocked(), true
}

// Sweep removes peers that did not announce within expiry and drops swarms left empty.
func (b *PeerBook) Sweep(expiry time.Duration) (peers, swarms int) {
	start := time.Now()
	cutoff := b.now().Add(-expiry).Unix()

	b.mu.Lock()
	defer b.mu.Unlock()

	for hash, s := range b.swarms {
		s.mu.Lock()

		for id, p := range s.peers {
			if p.LastAnnounce < cutoff {
				delete(s.peers, id)
				peers++
			}
		}

		if len(s.peers) == 0 {
			s.dead = true
			delete(b.swarms, hash)
			swarms++
		}

		s.mu.Unlock()
	}

	collectors.UpdateSweepTime("tracker", time.Since(start))

	if peers > 0 || swarms > 0 {
		b.logger.Info("swept stale peers", "peers", peers, "swarms", swarms)
	}

	return peers, swarms
}

// ConnectedPeerCount returns the number of distinct peer addresses across all swarms.
func (b *PeerBook) ConnectedPeerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	addresses := make(map[tt.PeerAddress]struct{})

	for _, s := range b.swarms {
		s.mu.Lock()

		for _, p := range s.peers {
			addresses[p.Addr] = struct{}{}
		}

		s.mu.Unlock()
	}

	return len(addresses)
}

func (b *PeerBook) TorrentCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.swarms)
}

func (b *PeerBook) PeerCount() (peers int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.swarms {
		s.mu.Lock()
		peers += len(s.peers)
		s.mu.Unlock()
	}

	return peers
}

// Hashes returns the info hashes of all tracked swarms.
func (b *PeerBook) Hashes() []tt.TorrentHash {
	b.mu.RLock()
	defer b.mu.RUnlock()

	hashes := make([]tt.TorrentHash, 0, len(b.swarms))
	for hash := range b.swarms {
		hashes = append(hashes, hash)
	}

	return hashes
}

// Start sweeps stale peers every interval until ctx is done.
func (b *PeerBook) Start(ctx context.Context, interval, expiry time.Duration) {
	util.ContextTick(ctx, interval, util.Guarded(b.logger, "tracker sweep", func() error {
		b.Sweep(expiry)
		return nil
	}))
}
