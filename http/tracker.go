// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package http

import (
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"github.com/opentracker/chihaya/bittorrent"
	"github.com/opentracker/chihaya/http/query"
	"github.com/opentracker/chihaya/tracker"
)

// newAnnounce parses an HTTP request into a tracker.AnnounceRequest plus
// whether the client asked for the compact peer encoding.
func (s *Server) newAnnounce(r *http.Request, p httprouter.Params) (tracker.AnnounceRequest, bool, error) {
	q, err := query.New(r.URL.RawQuery)
	if err != nil {
		return tracker.AnnounceRequest{}, false, err
	}

	if len(q.Infohashes) > 1 {
		return tracker.AnnounceRequest{}, false, bittorrent.ErrMalformedRequest
	}

	infohash, exists := q.Params["info_hash"]
	if !exists {
		return tracker.AnnounceRequest{}, false, bittorrent.ErrMalformedRequest
	}
	ih, err := bittorrent.NewInfoHash([]byte(infohash))
	if err != nil {
		return tracker.AnnounceRequest{}, false, err
	}

	peerIDRaw, exists := q.Params["peer_id"]
	if !exists {
		return tracker.AnnounceRequest{}, false, bittorrent.ErrMalformedRequest
	}
	peerID, err := bittorrent.NewPeerID([]byte(peerIDRaw))
	if err != nil {
		return tracker.AnnounceRequest{}, false, err
	}

	port, err := q.Uint64("port")
	if err != nil {
		return tracker.AnnounceRequest{}, false, bittorrent.ErrMalformedRequest
	}

	left, err := q.Uint64("left")
	if err != nil {
		return tracker.AnnounceRequest{}, false, bittorrent.ErrMalformedRequest
	}

	downloaded, err := q.Uint64("downloaded")
	if err != nil {
		return tracker.AnnounceRequest{}, false, bittorrent.ErrMalformedRequest
	}

	uploaded, err := q.Uint64("uploaded")
	if err != nil {
		return tracker.AnnounceRequest{}, false, bittorrent.ErrMalformedRequest
	}

	event, err := bittorrent.ParseEvent(q.Params["event"])
	if err != nil {
		return tracker.AnnounceRequest{}, false, err
	}

	compact := true
	if raw, ok := q.Params["compact"]; ok {
		compact = raw != "0"
	}

	ip, err := s.resolver.ResolveHTTP(r)
	if err != nil {
		return tracker.AnnounceRequest{}, false, err
	}

	req := tracker.AnnounceRequest{
		InfoHash:   ih,
		PeerID:     peerID,
		Socket:     bittorrent.Socket{IP: ip, Port: uint16(port)},
		Uploaded:   uploaded,
		Downloaded: downloaded,
		Left:       left,
		Event:      event,
		NumWant:    requestedPeerCount(q, 0),
		Key:        p.ByName("key"),
	}
	return req, compact, nil
}

// newScrape parses an HTTP request into the set of info-hashes to scrape,
// skipping any value that does not decode to a valid 20-byte hash.
func (s *Server) newScrape(r *http.Request, p httprouter.Params) ([]bittorrent.InfoHash, string, error) {
	q, err := query.New(r.URL.RawQuery)
	if err != nil {
		return nil, "", err
	}
	if len(q.Infohashes) == 0 {
		return nil, "", bittorrent.ErrMalformedRequest
	}

	out := make([]bittorrent.InfoHash, 0, len(q.Infohashes))
	for _, raw := range q.Infohashes {
		if ih, err := bittorrent.NewInfoHash([]byte(raw)); err == nil {
			out = append(out, ih)
		}
	}
	return out, p.ByName("key"), nil
}

// requestedPeerCount returns the client's numwant, or fallback when it is
// absent or malformed; -1 is not special-cased here, Tracker.Announce
// treats any non-positive value as "use bittorrent.DefaultNumWant".
func requestedPeerCount(q *query.Query, fallback int) int {
	raw, exists := q.Params["numwant"]
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
