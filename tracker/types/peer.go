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

package types

import (
	"errors"
	"strings"
)

const PeerIDSize = 20

// PeerID Sent in tracker requests with client information
// https://www.bittorrent.org/beps/bep_0020.html
type PeerID [PeerIDSize]byte

var errWrongPeerIDSize = errors.New("wrong peer id size")

func PeerIDFromRawString(buf string) (id PeerID) {
	if len(buf) != PeerIDSize {
		return
	}

	copy(id[:], buf)

	return id
}

//goland:noinspection GoMixedReceiverTypes
func (id PeerID) MarshalText() ([]byte, error) {
	return id[:], nil
}

//goland:noinspection GoMixedReceiverTypes
func (id *PeerID) UnmarshalText(b []byte) error {
	if len(b) != PeerIDSize {
		return errWrongPeerIDSize
	}

	copy(id[:], b)

	return nil
}

type Peer struct {
	ID   PeerID
	Addr PeerAddress

	Uploaded   uint64
	Downloaded uint64
	Left       uint64

	StartTime    int64 // unix time
	LastAnnounce int64

	// Completed is set once the peer reported the completed event in this swarm
	Completed bool
}

func (p *Peer) Seeding() bool {
	return p.Left == 0
}

type Event uint8

const (
	EventNone Event = iota
	EventStarted
	EventStopped
	EventCompleted
)

func ParseEvent(s string) Event {
	switch strings.ToLower(s) {
	case "started":
		return EventStarted
	case "stopped":
		return EventStopped
	case "completed":
		return EventCompleted
	default:
		return EventNone
	}
}

func (e Event) String() string {
	switch e {
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventCompleted:
		return "completed"
	default:
		return ""
	}
}

type SwarmStats struct {
	Seeders   int
	Leechers  int
	Completed int
}
