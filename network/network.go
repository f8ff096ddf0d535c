// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package network resolves the address a client should be advertised
// under. The teacher's Network interface abstracted over plain, I2P, and
// Lokinet transports; this tracker only ever serves plain TCP/UDP, so the
// interface narrows to the one thing every transport layer still needs:
// recovering a client's real address from behind a reverse proxy.
package network

import (
	"net"
	"net/http"
	"strings"

	"github.com/opentracker/chihaya/bittorrent"
)

// Resolver recovers the address that should be credited to an incoming
// request, the way the teacher's Network.GetPublicPrivateAddrs did for
// its I2P/Lokinet transports.
type Resolver struct {
	// OnReverseProxy, when true, trusts ForwardedHeader instead of the
	// connection's own remote address.
	OnReverseProxy bool

	// ForwardedHeader is the header consulted when OnReverseProxy is
	// set, e.g. "X-Forwarded-For".
	ForwardedHeader string
}

// NewResolver constructs a Resolver.
func NewResolver(onReverseProxy bool, header string) *Resolver {
	if header == "" {
		header = "X-Forwarded-For"
	}
	return &Resolver{OnReverseProxy: onReverseProxy, ForwardedHeader: header}
}

// ResolveHTTP returns the socket address to credit an http.Request to.
// When behind a reverse proxy it reads the first address in the
// forwarded-for header; absence of that header is reported as
// bittorrent.ErrAddressNotFound, per the specification.
func (r *Resolver) ResolveHTTP(req *http.Request) (net.IP, error) {
	if r.OnReverseProxy {
		raw := req.Header.Get(r.ForwardedHeader)
		if raw == "" {
			return nil, bittorrent.ErrAddressNotFound
		}
		first := strings.TrimSpace(strings.Split(raw, ",")[0])
		ip := net.ParseIP(first)
		if ip == nil {
			return nil, bittorrent.ErrAddressNotFound
		}
		return ip, nil
	}

	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return nil, bittorrent.ErrAddressNotFound
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, bittorrent.ErrAddressNotFound
	}
	return ip, nil
}

// ResolveUDP returns the socket address to credit a UDP datagram to.
// requestIP is the IP field from the announce request body (nil/zero if
// unset); it is honored only when trustRequestIP is set, mirroring the
// HTTP path's reverse-proxy trust boundary.
func (r *Resolver) ResolveUDP(source net.IP, requestIP net.IP, trustRequestIP bool) net.IP {
	if trustRequestIP && requestIP != nil && !requestIP.IsUnspecified() {
		return requestIP
	}
	return source
}
