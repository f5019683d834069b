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
	"time"

	"artiswarm/config"
)

type Config struct {
	JournalPath           string
	Capacity              int
	DeleteEvictedTorrents bool

	SweepInterval time.Duration
	FlushInterval time.Duration

	TorrentDir  string
	MinSizeMB   int
	PieceLength int64
	Watch       bool

	// TrackerURI is announced in published torrents while the session is not started
	TrackerURI string

	ShutdownGrace time.Duration
}

// ConfigFromFile reads the registry, intervals, artifacts, engine and pool sections.
func ConfigFromFile() Config {
	registry := config.Section("registry")
	intervals := config.Section("intervals")
	artifacts := config.Section("artifacts")
	pool := config.Section("pool")
	engine := config.Section("engine")

	var cfg Config

	cfg.JournalPath, _ = registry.Get("journal", "registry.journal")
	cfg.Capacity, _ = registry.GetInt("capacity", 10000)
	cfg.DeleteEvictedTorrents, _ = registry.GetBool("delete_evicted_torrents", false)

	cfg.SweepInterval, _ = intervals.GetDuration("sweep", 300*time.Second)
	cfg.FlushInterval, _ = intervals.GetDuration("flush", 60*time.Second)

	cfg.TorrentDir, _ = artifacts.Get("torrent_dir", "torrents")
	cfg.MinSizeMB, _ = artifacts.GetInt("min_size_mb", 1)
	pieceLength, _ := artifacts.GetInt("piece_length", 4<<20)
	cfg.PieceLength = int64(pieceLength)
	cfg.Watch, _ = artifacts.GetBool("watch", true)

	cfg.TrackerURI, _ = engine.Get("tracker", "http://127.0.0.1:34000/announce")

	cfg.ShutdownGrace, _ = pool.GetDuration("shutdown_grace", 5*time.Second)

	return cfg
}
