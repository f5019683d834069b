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

	"artiswarm/session"

	"github.com/spf13/cobra"
)

var publishSeed bool

var publishCmd = &cobra.Command{
	Use:   "publish <file>...",
	Short: "Create torrents for artifacts and register them for seeding",
	Long: "Hashes each file into a torrent in artifacts.torrent_dir and records the pair in the\n" +
		"registry journal. Without --seed the pairs are seeded by the next serve run.\n" +
		"Do not publish into a journal that a running serve owns.",
	Args: cobra.MinimumNArgs(1),
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().BoolVarP(&publishSeed, "seed", "s", false, "Keep seeding the published files until interrupted")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engineCfg := engineConfigFromFile()
	pool := newWorkPool(logger)

	manager, err := session.New(session.ConfigFromFile(), newEngine(engineCfg, pool, logger), pool, logger)
	if err != nil {
		return errors.Join(err, pool.Shutdown(time.Second))
	}

	if publishSeed {
		if err = manager.Start(engineCfg.Listen, engineCfg.Tracker, engineCfg.AnnounceInterval); err != nil {
			return errors.Join(err, manager.Dispose())
		}
	}

	var errs []error

	for _, source := range args {
		torrent, err := manager.PublishArtifact(ctx, source)
		if errors.Is(err, session.ErrBelowThreshold) {
			logger.Warn("skipping small artifact", "source", source)
			continue
		} else if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", source, err))
			continue
		}

		fmt.Println(torrent)
	}

	if publishSeed && ctx.Err() == nil {
		logger.Info("seeding, press ctrl+c to stop", "count", manager.RegisteredCount())
		<-ctx.Done()
	}

	return errors.Join(append(errs, manager.Dispose())...)
}
