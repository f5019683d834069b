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

// Package engine is the boundary to the BitTorrent implementation used for seeding and downloading.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/anacrolix/torrent/metainfo"
)

var (
	ErrNotStarted = errors.New("engine is not started")
	ErrNotSeeding = errors.New("torrent is not being seeded")
)

type Engine interface {
	Start(localAddresses []string, trackerURI string, announceInterval time.Duration) error
	Stop() error
	Seed(torrentFile, sourceParentDir string) error
	StopSeeding(torrentFileOrHash string) error
	IsSeeding(torrentFileOrHash string) bool
	Download(ctx context.Context, mi *metainfo.MetaInfo, destFile, destDir string, sink EventSink) (Job, error)
}

// EventSink receives progress of a single download. Calls are made from one goroutine per download.
type EventSink interface {
	OnPeerConnected()
	OnPeerDisconnected()
	// OnPieceReceived reports data for a piece has arrived but is not validated yet
	OnPieceReceived(index int)
	// OnPieceDownloaded reports a piece passed hash validation
	OnPieceDownloaded(index int, bytes int64)
	OnDownloadComplete()
	OnDownloadFailed(cause error)
}

// Job is a running download.
type Job interface {
	// Detach stops the transfer and releases engine resources without removing written data
	Detach()
}
