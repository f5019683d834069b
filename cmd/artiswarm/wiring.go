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
	"log/slog"
	"time"

	"artiswarm/config"
	"artiswarm/engine"
	"artiswarm/util"
)

type engineConfig struct {
	DataDir          string
	Listen           []string
	Tracker          string
	AnnounceInterval time.Duration
}

func engineConfigFromFile() engineConfig {
	engineSection := config.Section("engine")

	var cfg engineConfig

	cfg.DataDir, _ = engineSection.Get("data_dir", "data")
	cfg.Listen, _ = engineSection.GetStrings("listen", []string{"0.0.0.0:6881"})
	cfg.Tracker, _ = engineSection.Get("tracker", "http://127.0.0.1:34000/announce")
	cfg.AnnounceInterval, _ = config.Section("intervals").GetDuration("announce", 1800*time.Second)

	return cfg
}

func newWorkPool(logger *slog.Logger) *util.WorkPool {
	poolSection := config.Section("pool")

	workers, _ := poolSection.GetInt("workers", 4)
	queue, _ := poolSection.GetInt("queue", 256)
	idle, _ := poolSection.GetDuration("idle_timeout", 60*time.Second)

	return util.NewWorkPool(workers, queue, idle, logger)
}

func newEngine(cfg engineConfig, pool *util.WorkPool, logger *slog.Logger) *engine.Client {
	return engine.NewClient(engine.Options{DataDir: cfg.DataDir}, pool, logger)
}
