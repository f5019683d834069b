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

package download

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"artiswarm/engine"
	"artiswarm/engine/enginetest"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
)

const pieceLength = 16 * 1024

func makeTorrent(t *testing.T, dir, name string, data []byte) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create %s: %v", dir, err)
	}

	src := filepath.Join(dir, name)
	if err := os.WriteFile(src, data, 0644); err != nil {
		t.Fatalf("Failed to write source: %v", err)
	}

	info := metainfo.Info{PieceLength: pieceLength}
	if err := info.BuildFromFilePath(src); err != nil {
		t.Fatalf("Failed to build info: %v", err)
	}

	infoBytes, err := bencode.Marshal(info)
	if err != nil {
		t.Fatalf("Failed to encode info: %v", err)
	}

	mi := metainfo.MetaInfo{InfoBytes: infoBytes}

	torrentPath := src + ".torrent"

	f, err := os.Create(torrentPath)
	if err != nil {
		t.Fatalf("Failed to create torrent file: %v", err)
	}

	defer f.Close()

	if err = mi.Write(f); err != nil {
		t.Fatalf("Failed to write torrent file: %v", err)
	}

	return torrentPath
}

func startedFake(t *testing.T) *enginetest.Fake {
	t.Helper()

	fake := enginetest.New()
	if err := fake.Start([]string{"127.0.0.1:0"}, "http://127.0.0.1:34000/announce", time.Minute); err != nil {
		t.Fatalf("Failed to start fake engine: %v", err)
	}

	return fake
}

func TestFetch(t *testing.T) {
	data := bytes.Repeat([]byte("artifact"), 5000)
	torrentPath := makeTorrent(t, filepath.Join(tempPath, "fetch-src"), "artifact.bin", data)
	destDir := filepath.Join(tempPath, "fetch-dest")

	fake := startedFake(t)
	fake.OnDownload = func(_ context.Context, mi *metainfo.MetaInfo, destFile, dir string,
		sink engine.EventSink) (engine.Job, error) {
		info, err := mi.UnmarshalInfo()
		if err != nil {
			return nil, err
		}

		if dir != destDir {
			t.Errorf("Expected download into %s, got %s", destDir, dir)
		}

		go func() {
			sink.OnPeerConnected()

			if err := os.MkdirAll(dir, 0755); err != nil {
				sink.OnDownloadFailed(err)
				return
			}

			if err := os.WriteFile(destFile, data, 0644); err != nil {
				sink.OnDownloadFailed(err)
				return
			}

			for i := 0; i < info.NumPieces(); i++ {
				sink.OnPieceReceived(i)
				sink.OnPieceDownloaded(i, info.Piece(i).Length())
			}

			sink.OnDownloadComplete()
		}()

		return &enginetest.Job{}, nil
	}

	f := &Fetcher{Engine: fake}

	result, err := f.Fetch(context.Background(), torrentPath, destDir, Options{
		MinPeers:             1,
		PeerDiscoveryTimeout: time.Second,
		IdleTimeout:          time.Second,
	})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if expected := filepath.Join(destDir, "artifact.bin"); result.File != expected {
		t.Fatalf("Expected result file %s, got %s", expected, result.File)
	}

	if result.Bytes != int64(len(data)) {
		t.Fatalf("Expected %d bytes transferred, got %d", len(data), result.Bytes)
	}

	if result.JobID == "" {
		t.Fatalf("Expected a job id")
	}

	got, err := os.ReadFile(result.File)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("Downloaded file content differs (err: %v)", err)
	}
}

func TestFetchRemovesPartialFileOnStall(t *testing.T) {
	data := bytes.Repeat([]byte("partial!"), 5000)
	torrentPath := makeTorrent(t, filepath.Join(tempPath, "stall-src"), "partial.bin", data)
	destDir := filepath.Join(tempPath, "stall-dest")

	job := &enginetest.Job{}

	fake := startedFake(t)
	fake.OnDownload = func(_ context.Context, _ *metainfo.MetaInfo, destFile, dir string,
		sink engine.EventSink) (engine.Job, error) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}

		if err := os.WriteFile(destFile, data[:100], 0644); err != nil {
			return nil, err
		}

		sink.OnPeerConnected()

		return job, nil
	}

	f := &Fetcher{Engine: fake}

	result, err := f.Fetch(context.Background(), torrentPath, destDir, Options{
		MinPeers:             1,
		PeerDiscoveryTimeout: 10 * time.Millisecond,
		IdleTimeout:          50 * time.Millisecond,
	})
	if !errors.Is(err, ErrStalledTransfer) {
		t.Fatalf("Expected ErrStalledTransfer, got %v", err)
	}

	if _, statErr := os.Stat(result.File); !os.IsNotExist(statErr) {
		t.Fatalf("Expected partial file to be removed, stat returned %v", statErr)
	}

	if !job.Detached() {
		t.Fatalf("Expected stalled job to be detached")
	}
}

func TestFetchEngineNotStarted(t *testing.T) {
	torrentPath := makeTorrent(t, filepath.Join(tempPath, "idle-src"), "idle.bin", []byte("idle"))

	f := &Fetcher{Engine: enginetest.New()}

	if _, err := f.Fetch(context.Background(), torrentPath, tempPath, Options{}); !errors.Is(err, engine.ErrNotStarted) {
		t.Fatalf("Expected ErrNotStarted, got %v", err)
	}
}

func TestFetchMissingTorrent(t *testing.T) {
	f := &Fetcher{Engine: startedFake(t)}

	if _, err := f.Fetch(context.Background(), filepath.Join(tempPath, "absent.torrent"), tempPath, Options{}); err == nil {
		t.Fatalf("Expected an error for a missing torrent file")
	}
}
