// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package udp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"net"
	"time"

	"github.com/opentracker/chihaya/internal/clock"
)

// ConnectionIDTTL is how long a minted connection id remains valid, per
// §3 of the specification.
const ConnectionIDTTL = 120 * time.Second

// connIDMinter mints and verifies the 64-bit connection ids BEP 15 uses
// to mitigate source-address spoofing, without keeping any per-connection
// state: the id is HMAC(server_secret, source_ip || issued_time_bucket),
// so verification only needs to recompute the same MAC.
type connIDMinter struct {
	secret []byte
	clock  clock.Clock
}

func newConnIDMinter(secret []byte, c clock.Clock) *connIDMinter {
	return &connIDMinter{secret: secret, clock: c}
}

func (m *connIDMinter) bucket(t time.Time) uint64 {
	return uint64(t.Unix()) / uint64(ConnectionIDTTL/time.Second)
}

func (m *connIDMinter) mac(ip net.IP, bucket uint64) uint64 {
	h := hmac.New(sha256.New, m.secret)
	h.Write(ip.To16())
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], bucket)
	h.Write(buf[:])
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

// Mint issues a connection id bound to ip, valid for the current time
// bucket.
func (m *connIDMinter) Mint(ip net.IP) int64 {
	return int64(m.mac(ip, m.bucket(m.clock.Now())))
}

// Verify reports whether id was minted for ip within the last two time
// buckets, so an id issued just before a bucket rolls over still survives
// its full TTL.
func (m *connIDMinter) Verify(id int64, ip net.IP) bool {
	now := m.bucket(m.clock.Now())
	want := uint64(id)
	if m.mac(ip, now) == want {
		return true
	}
	if now > 0 && m.mac(ip, now-1) == want {
		return true
	}
	return false
}
