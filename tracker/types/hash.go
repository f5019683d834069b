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
	"encoding/hex"
	"errors"
)

const TorrentHashSize = 20

// TorrentHash SHA-1 info hash of a torrent
type TorrentHash [TorrentHashSize]byte

var errWrongTorrentHashSize = errors.New("wrong torrent hash size")

func TorrentHashFromBytes(buf []byte) (h TorrentHash) {
	copy(h[:], buf)
	return h
}

func TorrentHashFromHexString(s string) (h TorrentHash, err error) {
	if len(s) != TorrentHashSize*2 {
		return h, errWrongTorrentHashSize
	}

	_, err = hex.Decode(h[:], []byte(s))

	return h, err
}

//goland:noinspection GoMixedReceiverTypes
func (h TorrentHash) String() string {
	return hex.EncodeToString(h[:])
}

//goland:noinspection GoMixedReceiverTypes
func (h TorrentHash) MarshalText() ([]byte, error) {
	var buf [TorrentHashSize * 2]byte

	hex.Encode(buf[:], h[:])

	return buf[:], nil
}

//goland:noinspection GoMixedReceiverTypes
func (h *TorrentHash) UnmarshalText(b []byte) error {
	if len(b) != TorrentHashSize*2 {
		return errWrongTorrentHashSize
	}

	_, err := hex.Decode(h[:], b)

	return err
}
