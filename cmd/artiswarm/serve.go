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
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"artiswarm/config"
	"artiswarm/server"
	"artiswarm/session"
	"artiswarm/tracker"

	"github.com/spf13/cobra"
)

var serveNoTracker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Seed registered artifacts until interrupted",
	Long: "Starts the seeding session from the registry journal and, unless disabled,\n" +
		"the embedded tracker. Runs until SIGINT or SIGTERM.",
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoTracker, "no-tracker", false, "Do not run the embedded tracker")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *server.Server

	trackerEnabled, _ := config.Section("tracker").GetBool("enabled", true)
	if trackerEnabled && !serveNoTracker {
		srv = startTracker(ctx, stop, logger)
	}

	engineCfg := engineConfigFromFile()
	pool := newWorkPool(logger)

	manager, err := session.New(session.ConfigFromFile(), newEngine(engineCfg, pool, logger), pool, logger)
	if err != nil {
		shutdownTracker(srv, logger)
		_ = pool.Shutdown(time.Second)

		return err
	}

	if err = manager.Start(engineCfg.Listen, engineCfg.Tracker, engineCfg.AnnounceInterval); err != nil {
		shutdownTracker(srv, logger)

		return errors.Join(err, manager.Dispose())
	}

	<-ctx.Done()

	logger.Info("caught interrupt, shutting down...")

	shutdownTracker(srv, logger)

	return manager.Dispose()
}

func startTracker(ctx context.Context, stop context.CancelFunc, logger *slog.Logger) *server.Server {
	intervals := config.Section("intervals")

	sweep, _ := intervals.GetDuration("tracker_sweep", 120*time.Second)
	expiry, _ := intervals.GetDuration("peer_expiry", 3900*time.Second)

	book := tracker.NewPeerBook(logger)
	go book.Start(ctx, sweep, expiry)

	srv := server.New(server.ConfigFromFile(), book, logger)

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Error("tracker stopped", "err", err)
			stop()
		}
	}()

	return srv
}

func shutdownTracker(srv *server.Server, logger *slog.Logger) {
	if srv == nil {
		return
	}

	if err := srv.Shutdown(); err != nil {
		logger.Warn("tracker shutdown failed", "err", err)
	}
}
