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

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"artiswarm/collectors"
	"artiswarm/log"
	"artiswarm/util"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"
)

const defaultPollInterval = 500 * time.Millisecond

var (
	errTorrentClosed = errors.New("torrent closed before download completed")
	errAlreadyActive = errors.New("torrent is already active in this engine")
)

// drop removes t from its client unless it was already closed.
func drop(t *torrent.Torrent) {
	select {
	case <-t.Closed():
		return
	default:
	}

	t.Drop()
}

type Options struct {
	// DataDir holds engine state that is not tied to a seeded file
	DataDir string

	// PollInterval controls how often download progress is translated into sink events
	PollInterval time.Duration

	// InfoTimeout bounds the wait for torrent info after a torrent was added
	InfoTimeout time.Duration
}

type seedingTorrent struct {
	t           *torrent.Torrent
	torrentFile string
}

// Client implements Engine on top of anacrolix/torrent.
type Client struct {
	opts   Options
	pool   *util.WorkPool
	logger *slog.Logger

	mu               sync.Mutex
	cl               *torrent.Client
	completion       storage.PieceCompletion
	tracker          string
	announceInterval time.Duration

	seeding map[string]*seedingTorrent // keyed by info hash hex
	files   map[string]string          // torrent file path to info hash hex
}

func NewClient(opts Options, pool *util.WorkPool, logger *slog.Logger) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	if opts.InfoTimeout <= 0 {
		opts.InfoTimeout = 30 * time.Second
	}

	logger = log.OrDefault(logger)

	return &Client{
		opts:    opts,
		pool:    pool,
		logger:  logger.With("component", "engine"),
		seeding: make(map[string]*seedingTorrent),
		files:   make(map[string]string),
	}
}

func (c *Client) Start(localAddresses []string, trackerURI string, announceInterval time.Duration) error {
	if err := ValidateStart(localAddresses, trackerURI); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cl != nil {
		return nil
	}

	cfg := torrent.NewDefaultClientConfig()
	cfg.Seed = true
	cfg.NoDHT = true
	cfg.DataDir = c.opts.DataDir
	cfg.NoDefaultPortForwarding = true

	if len(localAddresses) > 0 {
		cfg.SetListenAddr(localAddresses[0])
		restrictFamilies(cfg, localAddresses[0])

		if len(localAddresses) > 1 {
			c.logger.Warn("only the first local address is used for listening", "addresses", localAddresses)
		}
	}

	if c.opts.DataDir != "" {
		if err := os.MkdirAll(c.opts.DataDir, 0755); err != nil {
			return fmt.Errorf("creating engine data dir: %w", err)
		}
	}

	cl, err := torrent.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("starting torrent client: %w", err)
	}

	c.cl = cl
	c.completion = storage.NewMapPieceCompletion()
	c.tracker = trackerURI
	c.announceInterval = announceInterval

	c.logger.Info("engine started", "listen", localAddresses, "tracker", trackerURI,
		"announce_interval", announceInterval)

	return nil
}

// restrictFamilies disables the address family a literal listen host cannot bind.
func restrictFamilies(cfg *torrent.ClientConfig, listenAddr string) {
	host, _, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return
	}

	ip := net.ParseIP(host)

	switch {
	case ip == nil:
	case ip.To4() != nil:
		cfg.DisableIPv6 = true
	default:
		cfg.DisableIPv4 = true
	}
}

func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cl == nil {
		return nil
	}

	for hash, s := range c.seeding {
		drop(s.t)
		delete(c.seeding, hash)
	}

	c.files = make(map[string]string)

	c.cl.Close()
	c.cl = nil

	if err := c.completion.Close(); err != nil {
		c.logger.Warn("failed to close piece completion store", "err", err)
	}

	c.logger.Info("engine stopped")

	return nil
}

func (c *Client) client() (*torrent.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cl == nil {
		return nil, ErrNotStarted
	}

	return c.cl, nil
}

func (c *Client) waitInfo(ctx context.Context, t *torrent.Torrent) error {
	timer := time.NewTimer(c.opts.InfoTimeout)
	defer timer.Stop()

	select {
	case <-t.GotInfo():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("no torrent info after %s", c.opts.InfoTimeout)
	}
}

// Seed shares the data described by torrentFile, which must already be present under sourceParentDir.
// Local pieces are verified on the work pool before the torrent is announced as seeding.
func (c *Client) Seed(torrentFile, sourceParentDir string) error {
	cl, err := c.client()
	if err != nil {
		return err
	}

	mi, err := metainfo.LoadFromFile(torrentFile)
	if err != nil {
		return fmt.Errorf("loading %s: %w", torrentFile, err)
	}

	hash := mi.HashInfoBytes().HexString()

	// Reseeding replaces any stale session for the same hash
	_ = c.StopSeeding(hash)

	spec, err := torrent.TorrentSpecFromMetaInfoErr(mi)
	if err != nil {
		return fmt.Errorf("reading torrent spec from %s: %w", torrentFile, err)
	}

	c.mu.Lock()
	spec.Trackers = [][]string{{c.tracker}}
	spec.Storage = storage.NewFileWithCompletion(sourceParentDir, c.completion)
	c.mu.Unlock()

	t, _, err := cl.AddTorrentSpec(spec)
	if err != nil {
		return fmt.Errorf("adding torrent %s: %w", torrentFile, err)
	}

	ctx := context.Background()

	if err = c.waitInfo(ctx, t); err != nil {
		drop(t)
		return err
	}

	err = c.pool.Submit(ctx, func(context.Context) error {
		start := time.Now()

		t.VerifyData()

		collectors.UpdateVerifyTime(time.Since(start))

		if completed, total := t.BytesCompleted(), t.Info().TotalLength(); completed != total {
			return fmt.Errorf("local data incomplete: %d of %d bytes verified", completed, total)
		}

		return nil
	})
	if err != nil {
		drop(t)
		return fmt.Errorf("verifying %s: %w", torrentFile, err)
	}

	c.mu.Lock()
	c.seeding[hash] = &seedingTorrent{t: t, torrentFile: torrentFile}
	c.files[torrentFile] = hash
	c.mu.Unlock()

	c.logger.Info("seeding", "torrent", torrentFile, "hash", hash)

	return nil
}

// resolveLocked maps a torrent file path or info hash to the info hash of an active seed.
func (c *Client) resolveLocked(torrentFileOrHash string) (string, bool) {
	if _, exists := c.seeding[torrentFileOrHash]; exists {
		return torrentFileOrHash, true
	}

	hash, exists := c.files[torrentFileOrHash]

	return hash, exists
}

func (c *Client) StopSeeding(torrentFileOrHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash, exists := c.resolveLocked(torrentFileOrHash)
	if !exists {
		return ErrNotSeeding
	}

	s := c.seeding[hash]
	drop(s.t)

	delete(c.seeding, hash)
	delete(c.files, s.torrentFile)

	c.logger.Info("stopped seeding", "torrent", s.torrentFile, "hash", hash)

	return nil
}

func (c *Client) IsSeeding(torrentFileOrHash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, exists := c.resolveLocked(torrentFileOrHash)

	return exists
}

// SeedingCount returns the number of torrents currently seeded.
func (c *Client) SeedingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.seeding)
}

// Download fetches mi into destDir and moves the result to destFile. Progress is reported to sink
// until the download completes, fails, ctx is done or the returned job is detached.
func (c *Client) Download(ctx context.Context, mi *metainfo.MetaInfo, destFile, destDir string,
	sink EventSink) (Job, error) {
	cl, err := c.client()
	if err != nil {
		return nil, err
	}

	spec, err := torrent.TorrentSpecFromMetaInfoErr(mi)
	if err != nil {
		return nil, fmt.Errorf("reading torrent spec: %w", err)
	}

	if err = os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("creating download dir: %w", err)
	}

	c.mu.Lock()
	spec.Trackers = [][]string{{c.tracker}}
	spec.Storage = storage.NewFileWithCompletion(destDir, c.completion)
	c.mu.Unlock()

	t, isNew, err := cl.AddTorrentSpec(spec)
	if err != nil {
		return nil, fmt.Errorf("adding torrent: %w", err)
	}

	if !isNew {
		return nil, errAlreadyActive
	}

	if err = c.waitInfo(ctx, t); err != nil {
		drop(t)
		return nil, err
	}

	t.DownloadAll()

	monitorCtx, cancel := context.WithCancel(ctx)

	go c.monitor(monitorCtx, t, filepath.Join(destDir, t.Info().Name), destFile, sink)

	return downloadJob(cancel), nil
}

// downloadJob detaches by cancelling the monitor, which drops the torrent on exit.
type downloadJob context.CancelFunc

func (j downloadJob) Detach() {
	j()
}

func (c *Client) monitor(ctx context.Context, t *torrent.Torrent, downloadedFile, destFile string, sink EventSink) {
	defer drop(t)

	numPieces := t.NumPieces()
	received := make([]bool, numPieces)
	validated := make([]bool, numPieces)
	remaining := numPieces
	peers := 0

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		active := t.Stats().ActivePeers
		for ; peers < active; peers++ {
			sink.OnPeerConnected()
		}

		for ; peers > active; peers-- {
			sink.OnPeerDisconnected()
		}

		for i := 0; i < numPieces; i++ {
			if validated[i] {
				continue
			}

			state := t.PieceState(i)

			if (state.Partial || state.Complete) && !received[i] {
				received[i] = true
				sink.OnPieceReceived(i)
			}

			if state.Complete {
				validated[i] = true
				remaining--
				sink.OnPieceDownloaded(i, t.Piece(i).Info().Length())
			}
		}

		if remaining == 0 {
			drop(t)

			if destFile != "" && destFile != downloadedFile {
				if err := os.Rename(downloadedFile, destFile); err != nil {
					sink.OnDownloadFailed(fmt.Errorf("moving download into place: %w", err))
					return
				}
			}

			sink.OnDownloadComplete()

			return
		}

		select {
		case <-ctx.Done():
			return
		case <-t.Closed():
			sink.OnDownloadFailed(errTorrentClosed)
			return
		case <-ticker.C:
		}
	}
}

var _ Engine = (*Client)(nil)
