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
	"bytes"
	"encoding/binary"
	"errors"
	"net"
	"net/netip"
	"strconv"
)

const PeerAddressSize = 6

// PeerAddress IPv4 address followed by big endian port, as used in compact peer lists
type PeerAddress [PeerAddressSize]byte

var errInvalidPeerAddress = errors.New("invalid peer address")

func NewPeerAddressFromAddrPort(addr netip.Addr, port uint16) (a PeerAddress) {
	ip := addr.As4()

	copy(a[:4], ip[:])
	binary.BigEndian.PutUint16(a[4:], port)

	return a
}

func NewPeerAddressFromIPPort(ip net.IP, port uint16) (a PeerAddress) {
	copy(a[:4], ip.To4())
	binary.BigEndian.PutUint16(a[4:], port)

	return a
}

//goland:noinspection GoMixedReceiverTypes
func (a PeerAddress) IP() net.IP {
	return net.IPv4(a[0], a[1], a[2], a[3]).To4()
}

//goland:noinspection GoMixedReceiverTypes
func (a PeerAddress) IPNumeric() uint32 {
	return binary.BigEndian.Uint32(a[:4])
}

//goland:noinspection GoMixedReceiverTypes
func (a PeerAddress) IPString() string {
	return netip.AddrFrom4([4]byte(a[:4])).String()
}

//goland:noinspection GoMixedReceiverTypes
func (a PeerAddress) IPStringLen() int {
	l := 3

	for _, octet := range a[:4] {
		switch {
		case octet >= 100:
			l += 3
		case octet >= 10:
			l += 2
		default:
			l++
		}
	}

	return l
}

// AppendIPString writes dotted IPv4 notation without allocating
//
//goland:noinspection GoMixedReceiverTypes
func (a PeerAddress) AppendIPString(buf *bytes.Buffer) {
	var scratch [3]byte

	for i, octet := range a[:4] {
		if i > 0 {
			buf.WriteByte('.')
		}

		buf.Write(strconv.AppendUint(scratch[:0], uint64(octet), 10))
	}
}

//goland:noinspection GoMixedReceiverTypes
func (a PeerAddress) Port() uint16 {
	return binary.BigEndian.Uint16(a[4:])
}

//goland:noinspection GoMixedReceiverTypes
func (a PeerAddress) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom4([4]byte(a[:4])), a.Port())
}

//goland:noinspection GoMixedReceiverTypes
func (a PeerAddress) MarshalText() ([]byte, error) {
	return []byte(a.AddrPort().String()), nil
}

//goland:noinspection GoMixedReceiverTypes
func (a *PeerAddress) UnmarshalText(b []byte) error {
	addrPort, err := netip.ParseAddrPort(string(b))
	if err != nil {
		return err
	}

	if !addrPort.Addr().Is4() {
		return errInvalidPeerAddress
	}

	*a = NewPeerAddressFromAddrPort(addrPort.Addr(), addrPort.Port())

	return nil
}
