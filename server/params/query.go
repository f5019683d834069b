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

// Package params is based on https://github.com/chihaya/chihaya/blob/e6e7269/bittorrent/params.go
package params

import (
	"errors"
	"strconv"
	"strings"

	tt "artiswarm/tracker/types"

	"github.com/valyala/fasthttp"
)

var ErrInvalidInfoHash = errors.New("invalid info_hash")

type QueryParam struct {
	Params struct {
		InfoHashes []tt.TorrentHash
		PeerID     string
		IP         string
		Event      string

		Port       uint16
		NumWant    uint16
		Uploaded   uint64
		Downloaded uint64
		Left       uint64

		Compact  bool
		NoPeerID bool
	}
	Exists struct {
		InfoHashes bool
		PeerID     bool
		IP         bool
		Event      bool

		Port       bool
		NumWant    bool
		Uploaded   bool
		Downloaded bool
		Left       bool

		Compact  bool
		NoPeerID bool
	}
}

// ParseQuery reads announce and scrape parameters. Keys are case-insensitive; numeric and boolean
// values that fail to parse are reported as missing.
func ParseQuery(queryArgs *fasthttp.Args) (qp QueryParam, err error) {
	queryArgs.VisitAll(func(key, value []byte) {
		if err != nil {
			return
		}

		switch strings.ToLower(string(key)) {
		case "info_hash":
			if len(value) != tt.TorrentHashSize {
				err = ErrInvalidInfoHash
				return
			}

			qp.Params.InfoHashes = append(qp.Params.InfoHashes, tt.TorrentHashFromBytes(value))
			qp.Exists.InfoHashes = true
		case "peer_id":
			qp.Params.PeerID, qp.Exists.PeerID = string(value), true
		case "ip":
			qp.Params.IP, qp.Exists.IP = string(value), true
		case "event":
			qp.Params.Event, qp.Exists.Event = string(value), true
		case "port":
			qp.Params.Port, qp.Exists.Port = parseUint16(value)
		case "numwant":
			qp.Params.NumWant, qp.Exists.NumWant = parseUint16(value)
		case "uploaded":
			qp.Params.Uploaded, qp.Exists.Uploaded = parseUint64(value)
		case "downloaded":
			qp.Params.Downloaded, qp.Exists.Downloaded = parseUint64(value)
		case "left":
			qp.Params.Left, qp.Exists.Left = parseUint64(value)
		case "compact":
			qp.Params.Compact, qp.Exists.Compact = parseBool(value)
		case "no_peer_id":
			qp.Params.NoPeerID, qp.Exists.NoPeerID = parseBool(value)
		}
	})

	return qp, err
}

func parseUint64(value []byte) (uint64, bool) {
	ret, err := strconv.ParseUint(string(value), 10, 64)
	if err != nil {
		return 0, false
	}

	return ret, true
}

func parseUint16(value []byte) (uint16, bool) {
	ret, err := strconv.ParseUint(string(value), 10, 16)
	if err != nil {
		return 0, false
	}

	return uint16(ret), true
}

func parseBool(value []byte) (bool, bool) {
	ret, err := strconv.ParseBool(string(value))
	if err != nil {
		return false, false
	}

	return ret, true
}
