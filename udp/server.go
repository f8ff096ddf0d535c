// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package udp

import (
	"net"
	"sync"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/pushrax/bufferpool"

	"github.com/opentracker/chihaya/bittorrent"
	"github.com/opentracker/chihaya/internal/clock"
	"github.com/opentracker/chihaya/network"
	"github.com/opentracker/chihaya/stats"
	"github.com/opentracker/chihaya/tracker"
)

// Config configures the UDP server.
type Config struct {
	ListenAddr     string
	TrustRequestIP bool // honor a non-zero IP field in the announce request
}

// Server serves UdpProtocol. Unlike http.Server it has no per-request
// suspension beyond the repository guard already hidden inside
// tracker.Tracker; each datagram is handled by its own goroutine with no
// shared mutable state besides the minter and the tracker itself.
type Server struct {
	cfg      Config
	tracker  *tracker.Tracker
	resolver *network.Resolver
	minter   *connIDMinter
	pool     *bufferpool.Pool

	conn     *net.UDPConn
	closing  chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewServer constructs a Server. secret is the process-wide server secret
// (internal/xrand.ServerSecret) the connection-id minter HMACs with.
// resolver resolves the address to credit an announce to, the same way
// http.Server does for HTTP requests.
func NewServer(cfg Config, tkr *tracker.Tracker, resolver *network.Resolver, secret []byte, c clock.Clock) *Server {
	return &Server{
		cfg:      cfg,
		tracker:  tkr,
		resolver: resolver,
		minter:   newConnIDMinter(secret, c),
		pool:     bufferpool.New(maxDatagramSize, maxDatagramSize),
		closing:  make(chan struct{}),
	}
}

// Setup is a no-op; the UDP server has no external dependency to
// initialize before Serve.
func (s *Server) Setup() error { return nil }

// Serve runs the UDP server, blocking until Stop is called or the socket
// errors out.
func (s *Server) Serve() {
	addr, err := net.ResolveUDPAddr("udp", s.cfg.ListenAddr)
	if err != nil {
		glog.Errorf("udp: resolve %s: %s", s.cfg.ListenAddr, err)
		return
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		glog.Errorf("udp: listen: %s", err)
		return
	}
	s.conn = conn
	glog.Infof("udp: serving on %s", conn.LocalAddr())

	for {
		buf := s.pool.Take()
		n, remote, err := conn.ReadFromUDP(buf[:cap(buf)])
		if err != nil {
			s.pool.Give(buf)
			select {
			case <-s.closing:
				return
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				continue
			}
			glog.Errorf("udp: read: %s", err)
			return
		}

		s.wg.Add(1)
		go func(buf []byte, n int, remote *net.UDPAddr) {
			defer s.wg.Done()
			defer s.pool.Give(buf)

			resp := s.handleDatagram(buf[:n], remote)
			if resp == nil {
				return
			}
			if _, err := conn.WriteToUDP(resp, remote); err != nil {
				glog.V(2).Infof("udp: write to %s: %s", remote, err)
			}
		}(buf, n, remote)
	}
}

// Stop closes the listening socket and waits for in-flight datagrams to
// finish. Per §5, UDP has no per-request timeout, so Stop only bounds how
// long new datagrams can arrive, not how long the already-accepted ones
// take to finish (they are already past their only suspension point, the
// repository guard, by the time Stop is called in practice).
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.closing)
		if s.conn != nil {
			s.conn.Close()
		}
	})
	s.wg.Wait()
}

// handleDatagram is the per-packet state machine: parse, dispatch by
// action, respond or drop. It never panics on malformed input -- every
// parse failure falls through to either an Error response (when a
// transaction id survived parsing) or a silent drop.
func (s *Server) handleDatagram(data []byte, remote *net.UDPAddr) []byte {
	if len(data) > maxDatagramSize || len(data) < headerLen {
		return nil
	}

	first8, action, txn := parseHeader(data)
	ipv := ipVersionOf(remote.IP)
	txID := uuid.NewString()

	switch action {
	case actionConnect:
		return s.handleConnect(data, remote, first8, txn, txID, ipv)
	case actionAnnounce:
		return s.handleAnnounce(data, remote, txn, txID, ipv)
	case actionScrape:
		return s.handleScrape(data, remote, txn, txID, ipv)
	default:
		glog.V(2).Infof("udp[%s]: unknown action %d from %s", txID, action, remote)
		return writeError(txn, "unknown action")
	}
}

func (s *Server) handleConnect(data []byte, remote *net.UDPAddr, magic int64, txn int32, txID string, ipv stats.IPVersion) []byte {
	if len(data) != connectRequestLen {
		return writeError(txn, "malformed connect request")
	}
	if magic != protocolMagic {
		// Per §4.6, a protocol-id mismatch is a silent drop, not an
		// Error response: it usually means the datagram isn't ours.
		glog.V(3).Infof("udp[%s]: protocol id mismatch from %s", txID, remote)
		return nil
	}

	connID := s.minter.Mint(remote.IP)
	s.tracker.Stats.Record(stats.Event{Protocol: stats.UDP, IPVersion: ipv, Kind: stats.ConnectionsHandled})
	s.tracker.Stats.Record(stats.Event{Protocol: stats.UDP, IPVersion: ipv, Kind: stats.UDPConnectHandled})
	return writeConnectResponse(txn, connID)
}

func (s *Server) handleAnnounce(data []byte, remote *net.UDPAddr, txn int32, txID string, ipv stats.IPVersion) []byte {
	body, ok := parseAnnounce(data)
	if !ok {
		return writeError(txn, "malformed announce request")
	}
	if !s.minter.Verify(body.connID, remote.IP) {
		return writeError(txn, "Connection ID mismatch")
	}

	effectiveIP := s.resolver.ResolveUDP(remote.IP, body.ip, s.cfg.TrustRequestIP)

	req := tracker.AnnounceRequest{
		InfoHash:   body.infoHash,
		PeerID:     body.peerID,
		Socket:     bittorrent.Socket{IP: effectiveIP, Port: body.port},
		Uploaded:   body.uploaded,
		Downloaded: body.downloaded,
		Left:       body.left,
		Event:      body.event,
		NumWant:    int(body.numWant),
	}

	resp, err := s.tracker.Announce(req)
	if err != nil {
		if bittorrent.IsPublicError(err) {
			return writeError(txn, err.Error())
		}
		glog.Errorf("udp[%s]: announce: %s", txID, err)
		return writeError(txn, "internal server error")
	}

	s.tracker.Stats.Record(stats.Event{Protocol: stats.UDP, IPVersion: ipv, Kind: stats.AnnouncesHandled})
	return writeAnnounceResponse(txn, resp, bittorrent.Socket{IP: remote.IP}.Family())
}

func (s *Server) handleScrape(data []byte, remote *net.UDPAddr, txn int32, txID string, ipv stats.IPVersion) []byte {
	connID, hashes, ok := parseScrape(data)
	if !ok {
		return writeError(txn, "malformed scrape request")
	}
	if !s.minter.Verify(connID, remote.IP) {
		return writeError(txn, "Connection ID mismatch")
	}

	results := s.tracker.Scrape(hashes, "")
	s.tracker.Stats.Record(stats.Event{Protocol: stats.UDP, IPVersion: ipv, Kind: stats.ScrapesHandled})
	return writeScrapeResponse(txn, results)
}

func ipVersionOf(ip net.IP) stats.IPVersion {
	if ip.To4() != nil {
		return stats.IPv4
	}
	return stats.IPv6
}
