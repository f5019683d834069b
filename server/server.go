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

// Package server is the embedded HTTP tracker that build agents announce to.
package server

import (
	"bytes"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"artiswarm/collectors"
	"artiswarm/config"
	"artiswarm/log"
	"artiswarm/tracker"
	"artiswarm/util"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
)

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	AnnounceInterval    time.Duration
	MinAnnounceInterval time.Duration
	AnnounceDrift       time.Duration

	NumWant    int
	MaxNumWant int

	AdminToken string
}

// ConfigFromFile reads the tracker and intervals sections.
func ConfigFromFile() Config {
	trackerConfig := config.Section("tracker")
	intervalsConfig := config.Section("intervals")

	var cfg Config

	cfg.Addr, _ = trackerConfig.Get("addr", ":34000")
	cfg.ReadTimeout, _ = trackerConfig.GetDuration("read_timeout", 2*time.Second)
	cfg.WriteTimeout, _ = trackerConfig.GetDuration("write_timeout", 2*time.Second)
	cfg.NumWant, _ = trackerConfig.GetInt("numwant", 25)
	cfg.MaxNumWant, _ = trackerConfig.GetInt("max_numwant", 50)
	cfg.AdminToken, _ = trackerConfig.Get("admin_token", "")

	cfg.AnnounceInterval, _ = intervalsConfig.GetDuration("announce", 1800*time.Second)
	cfg.MinAnnounceInterval, _ = intervalsConfig.GetDuration("min_announce", 900*time.Second)
	cfg.AnnounceDrift, _ = intervalsConfig.GetDuration("announce_drift", 300*time.Second)

	return cfg
}

type Server struct {
	cfg    Config
	book   *tracker.PeerBook
	logger *slog.Logger

	// Internal stats
	requests atomic.Uint64

	bufferPool       *util.BufferPool
	normalRegisterer *prometheus.Registry

	server    *fasthttp.Server
	startTime time.Time
}

func New(cfg Config, book *tracker.PeerBook, logger *slog.Logger) *Server {
	logger = log.OrDefault(logger)

	s := &Server{
		cfg:              cfg,
		book:             book,
		logger:           logger.With("component", "server"),
		bufferPool:       util.NewBufferPool(512, 64*1024),
		normalRegisterer: prometheus.NewRegistry(),
		startTime:        time.Now(),
	}

	s.normalRegisterer.MustRegister(collectors.NewNormalCollector())
	registerAdminCollector()

	s.server = &fasthttp.Server{
		Handler:      s.handle,
		Name:         "artiswarm",
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Logger:       fasthttpLogger{s.logger},
	}

	return s
}

// registerAdminCollector adds the admin metrics to the default registry once per process.
func registerAdminCollector() {
	if err := prometheus.Register(collectors.NewAdminCollector()); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			panic(err)
		}
	}
}

type fasthttpLogger struct {
	logger *slog.Logger
}

func (l fasthttpLogger) Printf(format string, args ...interface{}) {
	l.logger.Debug("fasthttp", "msg", format, "args", args)
}

func (s *Server) route(ctx *fasthttp.RequestCtx, buf *bytes.Buffer) int {
	switch string(ctx.Path()) {
	case "/announce":
		return s.announce(ctx, buf)
	case "/scrape":
		return s.scrape(ctx, buf)
	case "/alive":
		return s.alive(ctx, buf)
	case "/metrics":
		return s.metrics(ctx, buf)
	}

	return fasthttp.StatusNotFound
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	buf := s.bufferPool.Take()
	defer s.bufferPool.Give(buf)

	defer func() {
		if err := recover(); err != nil {
			s.logger.Error("request handler panicked", "err", err, "uri", ctx.RequestURI())
			log.WriteStack()

			ctx.ResetBody()
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)

			collectors.IncrementErroredRequests()
		}
	}()

	status := s.route(ctx, buf)

	ctx.SetStatusCode(status)
	ctx.SetContentType("text/plain")
	ctx.SetBody(buf.Bytes())

	if status == fasthttp.StatusOK {
		s.requests.Add(1)
	}
}

// Serve accepts tracker requests on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("ready and accepting new connections", "addr", ln.Addr().String())

	return s.server.Serve(ln)
}

func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	return s.Serve(ln)
}

// Shutdown stops accepting connections and waits for active requests to finish.
func (s *Server) Shutdown() error {
	err := s.server.Shutdown()

	s.logger.Info("now closed and not accepting any new connections")

	return err
}
