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
	"net/netip"
	"time"

	"artiswarm/server/params"
	tt "artiswarm/tracker/types"
	"artiswarm/util"

	"github.com/valyala/fasthttp"
)

func (s *Server) announce(ctx *fasthttp.RequestCtx, buf *bytes.Buffer) int {
	qp, err := params.ParseQuery(ctx.QueryArgs())
	if err != nil {
		failure(fmt.Sprintf("Malformed request - %s", err), buf, 1*time.Hour)
		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	if len(qp.Params.InfoHashes) == 0 {
		failure("Malformed request - missing info_hash", buf, 1*time.Hour)
		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	} else if len(qp.Params.InfoHashes) > 1 {
		failure("Malformed request - can only announce singular info_hash", buf, 1*time.Hour)
		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	if len(qp.Params.PeerID) == 0 {
		failure("Malformed request - missing peer_id", buf, 1*time.Hour)
		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	if len(qp.Params.PeerID) != tt.PeerIDSize {
		failure("Malformed request - invalid peer_id", buf, 1*time.Hour)
		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	if !qp.Exists.Port || qp.Params.Port == 0 {
		failure("Malformed request - missing port", buf, 1*time.Hour)
		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	if !qp.Exists.Uploaded {
		failure("Malformed request - missing uploaded", buf, 1*time.Hour)
		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	if !qp.Exists.Downloaded {
		failure("Malformed request - missing downloaded", buf, 1*time.Hour)
		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	if !qp.Exists.Left {
		failure("Malformed request - missing left", buf, 1*time.Hour)
		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	// Build agents share private networks, so a client supplied address is trusted as is
	var addr netip.Addr
	if qp.Exists.IP {
		addr, _ = netip.ParseAddr(qp.Params.IP)
	} else {
		addr = getIPAddressFromRequest(ctx)
	}

	if addr = addr.Unmap(); !addr.Is4() {
		failure(fmt.Sprintf("Failed to parse IP address (ip: %s)", addr), buf, 1*time.Hour)
		return fasthttp.StatusOK // Required by torrent clients to interpret failure response
	}

	numWant := s.cfg.NumWant
	if qp.Exists.NumWant {
		numWant = min(int(qp.Params.NumWant), s.cfg.MaxNumWant)
	}

	var (
		hash  = qp.Params.InfoHashes[0]
		event = tt.ParseEvent(qp.Params.Event)
		peer  = tt.Peer{
			ID:         tt.PeerIDFromRawString(qp.Params.PeerID),
			Addr:       tt.NewPeerAddressFromAddrPort(addr, qp.Params.Port),
			Uploaded:   qp.Params.Uploaded,
			Downloaded: qp.Params.Downloaded,
			Left:       qp.Params.Left,
		}
	)

	stats := s.book.Announce(hash, peer, event)

	/* We ask clients to announce each interval seconds. In order to spread the load on tracker,
	we will vary the interval given to client by random number of seconds between 0 and value
	specified in config */
	announceDrift := time.Duration(util.UnsafeRand(0, int(s.cfg.AnnounceDrift/time.Second))) * time.Second

	util.BencodeAnnounceHeader(buf, stats, s.cfg.AnnounceInterval+announceDrift, s.cfg.MinAnnounceInterval)

	var peers []tt.Peer
	if event != tt.EventStopped {
		peers = s.book.Peers(hash, peer.ID, numWant)
	}

	compact := !qp.Exists.Compact || qp.Params.Compact
	noPeerID := qp.Exists.NoPeerID && qp.Params.NoPeerID

	util.BencodeAnnouncePeersIP4(buf, peers, compact, !noPeerID)
	util.BencodeAnnounceFooter(buf)

	s.logger.Debug("announce", "hash", hash, "peer", peer.Addr.AddrPort(), "event", event, "left", peer.Left,
		"seeders", stats.Seeders, "leechers", stats.Leechers)

	return fasthttp.StatusOK
}
