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
	"crypto/sha1" //nolint:gosec
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"artiswarm/util"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
)

var ErrBelowThreshold = errors.New("artifact is below the sharing size threshold")

// PublishArtifact creates a torrent for source in the torrent directory, registers the pair and seeds it.
// Piece hashing runs on the work pool. Files smaller than the configured megabyte threshold are not shared.
func (m *Manager) PublishArtifact(ctx context.Context, source string) (string, error) {
	info, err := os.Stat(source)
	if err != nil {
		return "", err
	}

	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", source)
	}

	if !util.AtLeastMegabytes(info.Size(), m.cfg.MinSizeMB) {
		return "", ErrBelowThreshold
	}

	if err = os.MkdirAll(m.cfg.TorrentDir, 0755); err != nil {
		return "", err
	}

	torrent, err := torrentPath(m.cfg.TorrentDir, source)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	trackerURI := m.trackerURI
	m.mu.Unlock()

	if trackerURI == "" {
		trackerURI = m.cfg.TrackerURI
	}

	start := time.Now()

	err = m.pool.Submit(ctx, func(context.Context) error {
		return writeTorrent(source, torrent, m.cfg.PieceLength, trackerURI)
	})
	if err != nil {
		return "", fmt.Errorf("creating torrent for %s: %w", source, err)
	}

	m.logger.Info("published artifact", "source", source, "torrent", torrent, "size", info.Size(),
		"took", time.Since(start))

	m.RegisterSrcAndTorrentFile(source, torrent, true)

	return torrent, nil
}

// torrentPath names the torrent of source after its base name and a digest of its absolute path,
// so artifacts sharing a base name in different directories never share a torrent file.
func torrentPath(torrentDir, source string) (string, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return "", err
	}

	digest := sha1.Sum([]byte(abs)) //nolint:gosec
	name := fmt.Sprintf("%s-%s.torrent", filepath.Base(source), hex.EncodeToString(digest[:4]))

	return filepath.Join(torrentDir, name), nil
}

func writeTorrent(source, torrent string, pieceLength int64, trackerURI string) error {
	if pieceLength <= 0 {
		pieceLength = 4 << 20
	}

	info := metainfo.Info{PieceLength: pieceLength}
	if err := info.BuildFromFilePath(source); err != nil {
		return err
	}

	infoBytes, err := bencode.Marshal(info)
	if err != nil {
		return err
	}

	mi := metainfo.MetaInfo{
		InfoBytes:    infoBytes,
		Announce:     trackerURI,
		CreatedBy:    "artiswarm",
		CreationDate: time.Now().Unix(),
	}

	tmp := torrent + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if err = mi.Write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)

		return err
	}

	if err = f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, torrent)
}
