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

package server

import (
	"bytes"
	"time"

	"artiswarm/collectors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/valyala/fasthttp"
)

var bearerPrefix = "Bearer "

func writeMetrics(gatherer prometheus.Gatherer, buf *bytes.Buffer) {
	mfs, err := gatherer.Gather()
	if err != nil {
		panic(err)
	}

	for _, mf := range mfs {
		if _, err = expfmt.MetricFamilyToText(buf, mf); err != nil {
			panic(err)
		}
	}
}

func (s *Server) metrics(ctx *fasthttp.RequestCtx, buf *bytes.Buffer) int {
	collectors.UpdateUptime(time.Since(s.startTime).Seconds())
	collectors.UpdateSwarms(s.book.TorrentCount())
	collectors.UpdatePeers(s.book.PeerCount(), s.book.ConnectedPeerCount())
	collectors.UpdateRequests(s.requests.Load())

	writeMetrics(s.normalRegisterer, buf)

	auth := string(ctx.Request.Header.Peek(fasthttp.HeaderAuthorization))

	n := len(bearerPrefix)
	if s.cfg.AdminToken != "" && len(auth) > n && auth[:n] == bearerPrefix && auth[n:] == s.cfg.AdminToken {
		writeMetrics(prometheus.DefaultGatherer, buf)
	}

	return fasthttp.StatusOK
}
