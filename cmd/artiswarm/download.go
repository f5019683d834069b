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


package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"artiswarm/config"
	"artiswarm/download"
	"artiswarm/record"

	"github.com/spf13/cobra"
)

var downloadListen []string

var downloadCmd = &cobra.Command{
	Use:   "download <torrent> <dest-dir>",
	Short: "Fetch an artifact from the swarm",
	Long: "Downloads the file described by a torrent into dest-dir under supervision.\n" +
		"Exits non-zero when peers are missing, the transfer stalls or the result has the wrong size,\n" +
		"so the caller can fall back to another transport.",
	Args: cobra.ExactArgs(2),
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().StringSliceVarP(&downloadListen, "listen", "l", nil,
		"Local listen addresses (defaults to engine.listen)")
	rootCmd.AddCommand(downloadCmd)
}

func downloadOptionsFromFile() download.Options {
	section := config.Section("download")

	var opts download.Options

	opts.MinPeers, _ = section.GetInt("min_peers", 1)
	opts.PeerDiscoveryTimeout, _ = section.GetDuration("peer_discovery_timeout", 30*time.Second)
	opts.IdleTimeout, _ = section.GetDuration("idle_timeout", 120*time.Second)

	return opts
}

func openRecorder(logger *slog.Logger) *record.Recorder {
	section := config.Section("record")

	if enabled, _ := section.GetBool("enabled", false); !enabled {
		return nil
	}

	dir, _ := section.Get("dir", "events")

	recorder, err := record.Open(dir, logger)
	if err != nil {
		logger.Warn("download outcomes will not be recorded", "dir", dir, "err", err)
		return nil
	}

	return recorder
}

func runDownload(cmd *cobra.Command, args []string) (err error) {
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engineCfg := engineConfigFromFile()
	if len(downloadListen) > 0 {
		engineCfg.Listen = downloadListen
	}

	pool := newWorkPool(logger)
	eng := newEngine(engineCfg, pool, logger)

	if err = eng.Start(engineCfg.Listen, engineCfg.Tracker, engineCfg.AnnounceInterval); err != nil {
		return errors.Join(err, pool.Shutdown(time.Second))
	}

	recorder := openRecorder(logger)

	defer func() {
		err = errors.Join(err, eng.Stop(), recorder.Close(), pool.Shutdown(5*time.Second))
	}()

	fetcher := &download.Fetcher{Engine: eng, Recorder: recorder, Logger: logger}

	result, err := fetcher.Fetch(ctx, args[0], args[1], downloadOptionsFromFile())
	if err != nil {
		return fmt.Errorf("%s: %w", download.Outcome(err), err)
	}

	fmt.Printf("%s\t%d bytes\t%s\n", result.File, result.Bytes, result.Duration.Round(time.Millisecond))

	return nil
}
