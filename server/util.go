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
	"net"
	"net/netip"
	"time"

	"artiswarm/util"

	"github.com/valyala/fasthttp"
)

func failure(err string, buf *bytes.Buffer, interval time.Duration) {
	// Reset buffer to prevent reuse of any written bytes
	buf.Reset()
	util.BencodeFailure(buf, err, interval)
}

func isPrivateIPAddress(address netip.Addr) bool {
	return !address.IsGlobalUnicast() || address.IsPrivate()
}

func getIPAddressFromRequest(ctx *fasthttp.RequestCtx) netip.Addr {
	xRealIP := ctx.Request.Header.Peek("X-Real-Ip")
	xForwardedFor := ctx.Request.Header.Peek("X-Forwarded-For")

	// Try to use value from X-Real-Ip header if exists
	if len(xRealIP) > 0 {
		if addr, err := netip.ParseAddr(string(bytes.TrimSpace(xRealIP))); err == nil {
			return addr.Unmap()
		}
	}

	// Check list of IPs in X-Forwarded-For and try to return the first public address
	for _, remoteBytes := range bytes.Split(xForwardedFor, []byte(",")) {
		if remoteIP, err := netip.ParseAddr(string(bytes.TrimSpace(remoteBytes))); err == nil {
			if !isPrivateIPAddress(remoteIP) {
				return remoteIP.Unmap()
			}
		}
	}

	// Try to use socket address directly
	if addr, ok := ctx.RemoteAddr().(*net.TCPAddr); ok {
		return addr.AddrPort().Addr().Unmap()
	}

	// Parse address from context (fallback)
	if addrPort, err := netip.ParseAddrPort(ctx.RemoteAddr().String()); err == nil {
		return addrPort.Addr().Unmap()
	}

	return netip.Addr{}
}
