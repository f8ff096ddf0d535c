// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package udp implements UdpProtocol: the BitTorrent UDP tracker protocol
// (BEP 15), with the IPv6 peers6 extension. It is new in this repository
// -- the teacher never spoke UDP -- built in the teacher's idiom from
// http's query/writer split: protocol.go plays the role of http/tracker.go
// and http/writer.go combined, server.go plays the role of http/http.go.
package udp

import (
	"bytes"
	"encoding/binary"
	"net"
	"time"

	"github.com/opentracker/chihaya/bittorrent"
	"github.com/opentracker/chihaya/tracker"
)

const (
	protocolMagic int64 = 0x41727101980

	actionConnect  uint32 = 0
	actionAnnounce uint32 = 1
	actionScrape   uint32 = 2
	actionError    uint32 = 3
)

const (
	headerLen           = 16 // connection_id/magic(8) + action(4) + transaction_id(4)
	connectRequestLen   = 16
	announceRequestLen  = 98
	scrapeHashLen       = bittorrent.InfoHashLen
	maxScrapeHashes     = 74
	maxDatagramSize     = 1496
	ipv4PeerRecordLen   = 6
	ipv6PeerRecordLen   = 18
)

// eventFromCode maps the BEP 15 event codes onto bittorrent.Event. 0 is
// "none" on the wire, unlike the HTTP protocol's absent-key convention,
// but resolves to the same bittorrent.EventNone value.
func eventFromCode(code uint32) (bittorrent.Event, bool) {
	switch code {
	case 0:
		return bittorrent.EventNone, true
	case 1:
		return bittorrent.EventCompleted, true
	case 2:
		return bittorrent.EventStarted, true
	case 3:
		return bittorrent.EventStopped, true
	default:
		return bittorrent.EventNone, false
	}
}

// parseHeader reads the fields common to every request and response
// frame: the first 8 bytes (protocol magic for connect, connection id for
// everything else), the action, and the transaction id. Both frame shapes
// put the transaction id at the same offset, so this is safe to call
// before the action is known.
func parseHeader(data []byte) (first8 int64, action uint32, txn int32) {
	first8 = int64(binary.BigEndian.Uint64(data[0:8]))
	action = binary.BigEndian.Uint32(data[8:12])
	txn = int32(binary.BigEndian.Uint32(data[12:16]))
	return
}

type announceBody struct {
	connID     int64
	infoHash   bittorrent.InfoHash
	peerID     bittorrent.PeerID
	downloaded uint64
	left       uint64
	uploaded   uint64
	event      bittorrent.Event
	ip         net.IP // nil when the request field was 0 ("use source")
	numWant    int32
	port       uint16
}

func parseAnnounce(data []byte) (announceBody, bool) {
	if len(data) < announceRequestLen {
		return announceBody{}, false
	}

	var body announceBody
	body.connID = int64(binary.BigEndian.Uint64(data[0:8]))
	copy(body.infoHash[:], data[16:36])
	copy(body.peerID[:], data[36:56])
	body.downloaded = binary.BigEndian.Uint64(data[56:64])
	body.left = binary.BigEndian.Uint64(data[64:72])
	body.uploaded = binary.BigEndian.Uint64(data[72:80])

	event, ok := eventFromCode(binary.BigEndian.Uint32(data[80:84]))
	if !ok {
		return announceBody{}, false
	}
	body.event = event

	if ipField := binary.BigEndian.Uint32(data[84:88]); ipField != 0 {
		raw := make([]byte, 4)
		binary.BigEndian.PutUint32(raw, ipField)
		body.ip = net.IP(raw)
	}

	body.numWant = int32(binary.BigEndian.Uint32(data[92:96]))
	body.port = binary.BigEndian.Uint16(data[96:98])
	return body, true
}

// parseScrape reads the connection id and the list of info-hashes out of
// a scrape request. It reports ok=false when the hash count is zero or
// exceeds maxScrapeHashes, per §4.6.
func parseScrape(data []byte) (connID int64, hashes []bittorrent.InfoHash, ok bool) {
	if len(data) < headerLen || (len(data)-headerLen)%scrapeHashLen != 0 {
		return 0, nil, false
	}

	n := (len(data) - headerLen) / scrapeHashLen
	if n < 1 || n > maxScrapeHashes {
		return 0, nil, false
	}

	connID = int64(binary.BigEndian.Uint64(data[0:8]))
	hashes = make([]bittorrent.InfoHash, n)
	for i := 0; i < n; i++ {
		offset := headerLen + i*scrapeHashLen
		copy(hashes[i][:], data[offset:offset+scrapeHashLen])
	}
	return connID, hashes, true
}

func writeConnectResponse(txn int32, connID int64) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf[0:4], actionConnect)
	binary.BigEndian.PutUint32(buf[4:8], uint32(txn))
	binary.BigEndian.PutUint64(buf[8:16], uint64(connID))
	return buf
}

func writeError(txn int32, msg string) []byte {
	buf := make([]byte, 8+len(msg))
	binary.BigEndian.PutUint32(buf[0:4], actionError)
	binary.BigEndian.PutUint32(buf[4:8], uint32(txn))
	copy(buf[8:], msg)
	return buf
}

// writeAnnounceResponse encodes resp's peers compact, restricted to
// family: the specification's resolved open question is "respond in the
// requester's family only", so a peer whose socket does not match family
// is simply skipped rather than carried in a second peers6 field.
func writeAnnounceResponse(txn int32, resp tracker.AnnounceResponse, family bittorrent.AddressFamily) []byte {
	var body bytes.Buffer
	for _, p := range resp.Peers {
		if p.Socket.Family() != family {
			continue
		}

		var portBuf [2]byte
		binary.BigEndian.PutUint16(portBuf[:], p.Socket.Port)

		if family == bittorrent.IPv4 {
			ip4 := p.Socket.IP.To4()
			if ip4 == nil {
				continue
			}
			body.Write(ip4)
		} else {
			ip6 := p.Socket.IP.To16()
			if ip6 == nil {
				continue
			}
			body.Write(ip6)
		}
		body.Write(portBuf[:])
	}

	header := make([]byte, 20)
	binary.BigEndian.PutUint32(header[0:4], actionAnnounce)
	binary.BigEndian.PutUint32(header[4:8], uint32(txn))
	binary.BigEndian.PutUint32(header[8:12], uint32(resp.Interval/time.Second))
	binary.BigEndian.PutUint32(header[12:16], uint32(resp.Incomplete))
	binary.BigEndian.PutUint32(header[16:20], uint32(resp.Complete))

	return append(header, body.Bytes()...)
}

func writeScrapeResponse(txn int32, results []tracker.ScrapeResult) []byte {
	buf := make([]byte, 8, 8+len(results)*12)
	binary.BigEndian.PutUint32(buf[0:4], actionScrape)
	binary.BigEndian.PutUint32(buf[4:8], uint32(txn))

	for _, r := range results {
		var rec [12]byte
		binary.BigEndian.PutUint32(rec[0:4], uint32(r.Stats.Seeders))
		binary.BigEndian.PutUint32(rec[4:8], uint32(r.Stats.Completed))
		binary.BigEndian.PutUint32(rec[8:12], uint32(r.Stats.Leechers))
		buf = append(buf, rec[:]...)
	}
	return buf
}
