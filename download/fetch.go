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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"artiswarm/collectors"
	"artiswarm/engine"
	"artiswarm/log"
	"artiswarm/record"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/google/uuid"
)

type Result struct {
	JobID    string
	File     string
	Bytes    int64
	Duration time.Duration
}

// Fetcher downloads torrents through an engine under supervision.
type Fetcher struct {
	Engine   engine.Engine
	Recorder *record.Recorder
	Logger   *slog.Logger
}

// Outcome maps a Fetch error to the label used for metrics and records.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "succeeded"
	case errors.Is(err, ErrInsufficientPeers):
		return "insufficient_peers"
	case errors.Is(err, ErrStalledTransfer):
		return "stalled"
	case errors.Is(err, ErrInterrupted):
		return "interrupted"
	case errors.Is(err, ErrSizeMismatch):
		return "size_mismatch"
	}

	return "failed"
}

// Fetch downloads the torrent at torrentPath into destDir. The target file is removed when the
// download does not succeed so callers can fall back to another transport.
// TotalPieces, TargetFile and ExpectedSize in opts are derived from the torrent when unset.
func (f *Fetcher) Fetch(ctx context.Context, torrentPath, destDir string, opts Options) (Result, error) {
	logger := log.OrDefault(f.Logger)

	result := Result{JobID: uuid.NewString()}
	logger = logger.With("job", result.JobID, "torrent", torrentPath)

	mi, err := metainfo.LoadFromFile(torrentPath)
	if err != nil {
		return result, fmt.Errorf("loading %s: %w", torrentPath, err)
	}

	info, err := mi.UnmarshalInfo()
	if err != nil {
		return result, fmt.Errorf("reading info from %s: %w", torrentPath, err)
	}

	if opts.TotalPieces == 0 {
		opts.TotalPieces = info.NumPieces()
	}

	if opts.TargetFile == "" {
		opts.TargetFile = filepath.Join(destDir, info.Name)
	}

	if opts.ExpectedSize == 0 {
		opts.ExpectedSize = info.TotalLength()
	}

	var transferred atomic.Int64

	progress := opts.Progress
	opts.Progress = func(bytes int64) {
		transferred.Add(bytes)

		if progress != nil {
			progress(bytes)
		}
	}

	result.File = opts.TargetFile
	start := time.Now()

	logger.Info("starting download", "dest", opts.TargetFile, "pieces", opts.TotalPieces, "size", opts.ExpectedSize)

	err = f.supervise(ctx, mi, destDir, opts)

	result.Bytes = transferred.Load()
	result.Duration = time.Since(start)

	outcome := Outcome(err)
	collectors.IncrementDownloads(outcome)

	if err != nil {
		if rmErr := os.Remove(opts.TargetFile); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn("failed to remove partial download", "file", opts.TargetFile, "err", rmErr)
		}

		logger.Warn("download failed", "outcome", outcome, "err", err, "duration", result.Duration)
	} else {
		logger.Info("download finished", "bytes", result.Bytes, "duration", result.Duration)
	}

	if recErr := f.Recorder.Record(record.Outcome{
		JobID:    result.JobID,
		Torrent:  torrentPath,
		InfoHash: mi.HashInfoBytes().HexString(),
		Result:   outcome,
		Bytes:    result.Bytes,
		Duration: result.Duration,
	}); recErr != nil {
		logger.Warn("failed to record download outcome", "err", recErr)
	}

	return result, err
}

func (f *Fetcher) supervise(ctx context.Context, mi *metainfo.MetaInfo, destDir string, opts Options) error {
	supervisor := NewSupervisor(opts)

	job, err := f.Engine.Download(ctx, mi, opts.TargetFile, destDir, supervisor)
	if err != nil {
		return fmt.Errorf("starting download: %w", err)
	}

	supervisor.Attach(job)

	if err = supervisor.AwaitCompletion(ctx); err != nil && !errors.Is(err, ErrInterrupted) {
		job.Detach()
	}

	return err
}
