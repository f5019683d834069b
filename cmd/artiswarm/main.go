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
	"fmt"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec
	"os"
	"runtime"

	"artiswarm/config"
	"artiswarm/log"

	"github.com/spf13/cobra"
)

var (
	configFile string
	pprof      string
)

// Provided at compile-time
var (
	BuildDate    = "0000-00-00T00:00:00+0000"
	BuildVersion = "development"
)

var rootCmd = &cobra.Command{
	Use:   "artiswarm",
	Short: "Peer-to-peer distribution of build artifacts",
	Long: "artiswarm seeds locally produced build artifacts over BitTorrent, fetches artifacts\n" +
		"published by other machines and optionally runs an embedded tracker.",
	SilenceUsage: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		if len(configFile) > 0 {
			config.SetFile(configFile)
		}

		// Reconfigure logger
		slog.SetDefault(log.FromConfig())

		if len(pprof) > 0 {
			startPprof(pprof)
		}
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"Path to the JSON config file (defaults to $"+config.EnvConfigFile+" or config.json)")
	rootCmd.PersistentFlags().StringVarP(&pprof, "pprof", "P", "", "Starts special pprof debug server on specified addr")
}

func startPprof(addr string) {
	// Both are disabled by default; sample 1% of events
	runtime.SetMutexProfileFraction(100)
	runtime.SetBlockProfileRate(100)

	go func() {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			slog.Error("failed to start special pprof debug server", "err", err)
			return
		}

		//nolint:gosec
		s := &http.Server{
			Handler: http.DefaultServeMux,
		}

		slog.Warn("started special pprof debug server", "addr", l.Addr())

		_ = s.Serve(l)
	}()
}

func main() {
	fmt.Fprintf(os.Stderr, "artiswarm, ver=%s date=%s runtime=%s, cpus=%d\n\n",
		BuildVersion, BuildDate, runtime.Version(), runtime.GOMAXPROCS(0))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
