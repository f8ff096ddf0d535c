// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package http

import (
	"bytes"
	"encoding/binary"
	"net/http"

	"github.com/chihaya/bencode"

	"github.com/opentracker/chihaya/bittorrent"
	"github.com/opentracker/chihaya/tracker"
)

// Writer implements bencoded tracker responses over an http.ResponseWriter.
type Writer struct {
	http.ResponseWriter
}

// WriteError writes a bencode dict with a failure reason. HTTP status is
// always 200 here; 4xx is reserved for malformed HTTP requests that never
// reach protocol-level handling.
func (w *Writer) WriteError(err error) error {
	w.Header().Set("Content-Type", "text/plain")
	return bencode.NewEncoder(w).Encode(bencode.Dict{
		"failure reason": err.Error(),
	})
}

// WriteAnnounce writes a bencode dict representation of an
// AnnounceResponse. compact selects the wire encoding; non-compact
// responses list every peer as its own dict per BEP 3.
func (w *Writer) WriteAnnounce(res tracker.AnnounceResponse, compact bool) error {
	dict := bencode.Dict{
		"interval":     int(res.Interval.Seconds()),
		"min interval": int(res.MinInterval.Seconds()),
		"complete":     res.Complete,
		"incomplete":   res.Incomplete,
	}

	if compact {
		v4, v6 := compactPeers(res.Peers)
		dict["peers"] = v4
		if len(v6) > 0 {
			dict["peers6"] = v6
		}
	} else {
		dict["peers"] = dictPeers(res.Peers)
	}

	w.Header().Set("Content-Type", "text/plain")
	return bencode.NewEncoder(w).Encode(dict)
}

// WriteScrape writes a bencode dict representation of scrape results, one
// entry per result it is given. serveScrape passes only the hashes
// PolicyGate accepts, so rejected hashes do not appear in the response.
func (w *Writer) WriteScrape(results []tracker.ScrapeResult) error {
	files := bencode.NewDict()
	for _, r := range results {
		files[string(r.InfoHash[:])] = bencode.Dict{
			"complete":   int(r.Stats.Seeders),
			"incomplete": int(r.Stats.Leechers),
			"downloaded": int(r.Stats.Completed),
		}
	}

	w.Header().Set("Content-Type", "text/plain")
	return bencode.NewEncoder(w).Encode(bencode.Dict{"files": files})
}

// compactPeers renders peers into the two compact byte strings BEP 3/7
// expect: 6-byte IPv4 records and 18-byte IPv6 records.
func compactPeers(peers []bittorrent.Peer) (v4, v6 []byte) {
	var bufV4, bufV6 bytes.Buffer
	for _, p := range peers {
		var portBuf [2]byte
		binary.BigEndian.PutUint16(portBuf[:], p.Socket.Port)

		if ip4 := p.Socket.IP.To4(); ip4 != nil {
			bufV4.Write(ip4)
			bufV4.Write(portBuf[:])
		} else if ip6 := p.Socket.IP.To16(); ip6 != nil {
			bufV6.Write(ip6)
			bufV6.Write(portBuf[:])
		}
	}
	return bufV4.Bytes(), bufV6.Bytes()
}

// dictPeers renders peers as the BEP 3 long-form peer list.
func dictPeers(peers []bittorrent.Peer) []bencode.Dict {
	out := make([]bencode.Dict, 0, len(peers))
	for _, p := range peers {
		out = append(out, bencode.Dict{
			"peer id": string(p.ID[:]),
			"ip":      p.Socket.IP.String(),
			"port":    int(p.Socket.Port),
		})
	}
	return out
}
