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
	"fmt"
	"time"

	"artiswarm/server/params"
	tt "artiswarm/tracker/types"
	"artiswarm/util"

	"github.com/valyala/fasthttp"
)

func (s *Server) scrape(ctx *fasthttp.RequestCtx, buf *bytes.Buffer) int {
	qp, err := params.ParseQuery(ctx.QueryArgs())
	if err != nil {
		failure(fmt.Sprintf("Malformed request - %s", err), buf, 1*time.Hour)
		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	hashes := qp.Params.InfoHashes
	if len(hashes) == 0 {
		failure("Scrape without info_hash is not supported", buf, 1*time.Hour)
		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	// Bencoded dictionary keys must be sorted
	hashes = append([]tt.TorrentHash(nil), hashes...)
	util.BencodeSortTorrentHashKeys(hashes)

	util.BencodeScrapeHeader(buf)

	var last tt.TorrentHash

	for i, hash := range hashes {
		if i > 0 && hash == last {
			continue
		}

		last = hash

		if stats, exists := s.book.Stats(hash); exists {
			util.BencodeScrapeTorrent(buf, hash, stats)
		}
	}

	util.BencodeScrapeFooter(buf, s.cfg.MinAnnounceInterval)

	return fasthttp.StatusOK
}
