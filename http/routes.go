// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package http

import (
	"fmt"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/opentracker/chihaya/bittorrent"
	"github.com/opentracker/chihaya/stats"
)

func handleProtocolError(err error, w *Writer) (int, error) {
	if err == nil {
		return http.StatusOK, nil
	}
	if bittorrent.IsPublicError(err) {
		w.WriteError(err)
		return http.StatusOK, nil
	}
	return http.StatusInternalServerError, err
}

func (s *Server) serveAnnounce(w http.ResponseWriter, r *http.Request, p httprouter.Params) (int, error) {
	writer := &Writer{w}

	req, compact, err := s.newAnnounce(r, p)
	if err != nil {
		return handleProtocolError(err, writer)
	}

	resp, err := s.tracker.Announce(req)
	if err != nil {
		return handleProtocolError(err, writer)
	}

	ipv := stats.IPv4
	if req.Socket.IP.To4() == nil {
		ipv = stats.IPv6
	}
	s.tracker.Stats.Record(stats.Event{Protocol: stats.TCP, IPVersion: ipv, Kind: stats.AnnouncesHandled})

	return http.StatusOK, writer.WriteAnnounce(resp, compact)
}

func (s *Server) serveScrape(w http.ResponseWriter, r *http.Request, p httprouter.Params) (int, error) {
	writer := &Writer{w}

	infoHashes, key, err := s.newScrape(r, p)
	if err != nil {
		return handleProtocolError(err, writer)
	}

	results := s.tracker.Scrape(infoHashes, key)
	s.tracker.Stats.Record(stats.Event{Protocol: stats.TCP, IPVersion: stats.IPv4, Kind: stats.ScrapesHandled})

	// Hashes PolicyGate rejects are left out of the HTTP response.
	accepted := results[:0]
	for _, res := range results {
		if s.tracker.Gate.Check(res.InfoHash, key) == nil {
			accepted = append(accepted, res)
		}
	}

	return http.StatusOK, writer.WriteScrape(accepted)
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request, p httprouter.Params) (int, error) {
	addr := s.ServerAddr()
	if _, err := io.WriteString(w, fmt.Sprintf("bittorrent open tracker announce url http://%s/announce\n", addr)); err != nil {
		return http.StatusInternalServerError, err
	}
	_, err := io.WriteString(w, fmt.Sprintf("to use:\n\nmktorrent -a http://%s/announce somedirectory\n", addr))
	return http.StatusOK, err
}
