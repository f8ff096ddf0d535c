// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package tracker wires TorrentRepository, AuthService, PolicyGate, and
// StatsAggregator into the two operations every transport calls:
// Announce and Scrape. It replaces the teacher's tracker
// package, which dispatched to a pluggable tracker.Driver/Conn pair;
// here there is a single concrete repository (store.TorrentRepository)
// and the pluggable surface moves one level down, to backend.Repository.
package tracker

import (
	"net"
	"time"

	"github.com/opentracker/chihaya/auth"
	"github.com/opentracker/chihaya/backend"
	"github.com/opentracker/chihaya/bittorrent"
	"github.com/opentracker/chihaya/internal/clock"
	"github.com/opentracker/chihaya/internal/xrand"
	"github.com/opentracker/chihaya/policy"
	"github.com/opentracker/chihaya/stats"
	"github.com/opentracker/chihaya/store"
)

// Config carries the subset of the global configuration the tracker core
// needs, decoupled from the config package to avoid an import cycle
// between tracker and config.
type Config struct {
	AnnounceInterval    time.Duration
	AnnounceIntervalMin time.Duration
	MaxNumWant          int
	OnReverseProxy      bool
	ExternalIP          net.IP
}

// AnnounceRequest is the transport-agnostic announce request both the
// HTTP and UDP protocol layers build and hand to the Tracker.
type AnnounceRequest struct {
	InfoHash   bittorrent.InfoHash
	PeerID     bittorrent.PeerID
	Socket     bittorrent.Socket
	Uploaded   uint64
	Downloaded uint64
	Left       uint64
	Event      bittorrent.Event
	NumWant    int
	Key        string // auth key, path- or query-supplied depending on transport
}

// AnnounceResponse is the transport-agnostic result of an announce,
// rendered into bencode or the UDP compact wire format by the caller.
type AnnounceResponse struct {
	Interval    time.Duration
	MinInterval time.Duration
	Complete    int
	Incomplete  int
	Peers       []bittorrent.Peer
}

// ScrapeResult is a single info-hash's stats from a scrape, pre-policy.
type ScrapeResult struct {
	InfoHash bittorrent.InfoHash
	Stats    bittorrent.TorrentStats
}

// Tracker is the orchestrator gluing C1-C5 together. Both http and udp
// packages call its exported methods rather than touching store/auth/
// policy/stats directly.
type Tracker struct {
	Repo  *store.TorrentRepository
	Auth  *auth.Service
	Gate  *policy.Gate
	Stats *stats.Aggregator
	Clock clock.Clock
	Rng   *xrand.Source

	cfg Config
}

// New constructs a Tracker from its already-built components.
func New(repo *store.TorrentRepository, authSvc *auth.Service, gate *policy.Gate, statsAgg *stats.Aggregator, c clock.Clock, rng *xrand.Source, cfg Config) *Tracker {
	return &Tracker{
		Repo:  repo,
		Auth:  authSvc,
		Gate:  gate,
		Stats: statsAgg,
		Clock: c,
		Rng:   rng,
		cfg:   cfg,
	}
}

// Announce applies req to the repository and returns the peers to hand
// back to the client. PolicyGate is checked first; a rejection short
// circuits with no repository mutation.
func (t *Tracker) Announce(req AnnounceRequest) (AnnounceResponse, error) {
	if err := t.Gate.Check(req.InfoHash, req.Key); err != nil {
		return AnnounceResponse{}, err
	}

	numWant := req.NumWant
	if numWant < 0 {
		numWant = bittorrent.DefaultNumWant
	}
	if numWant == 0 {
		numWant = bittorrent.DefaultNumWant
	}
	if numWant > t.cfg.MaxNumWant {
		numWant = t.cfg.MaxNumWant
	}

	peer := bittorrent.Peer{
		ID:        req.PeerID,
		Socket:    req.Socket,
		Uploaded:  req.Uploaded,
		Downloaded: req.Downloaded,
		Left:      req.Left,
		Event:     req.Event,
		UpdatedAt: t.Clock.Now(),
	}

	stats_, _ := t.Repo.UpdateWithPeer(req.InfoHash, peer)

	var entropy uint64
	for _, b := range req.PeerID[:8] {
		entropy = entropy<<8 | uint64(b)
	}
	rng := t.Rng.For(entropy)

	peers := t.Repo.GetPeers(req.InfoHash, req.Socket, numWant, rng)

	interval := t.cfg.AnnounceInterval
	if interval == 0 {
		interval = 120 * time.Second
	}

	return AnnounceResponse{
		Interval:    interval,
		MinInterval: t.cfg.AnnounceIntervalMin,
		Complete:    int(stats_.Seeders),
		Incomplete:  int(stats_.Leechers),
		Peers:       peers,
	}, nil
}

// Scrape returns one ScrapeResult per hash in infoHashes, in order. A hash
// the policy gate rejects is kept with zero stats; a caller that leaves
// rejected hashes out (the HTTP scrape handler) filters them itself.
func (t *Tracker) Scrape(infoHashes []bittorrent.InfoHash, key string) []ScrapeResult {
	out := make([]ScrapeResult, 0, len(infoHashes))
	for _, ih := range infoHashes {
		if err := t.Gate.Check(ih, key); err != nil {
			out = append(out, ScrapeResult{InfoHash: ih})
			continue
		}
		out = append(out, ScrapeResult{InfoHash: ih, Stats: t.Repo.GetStats(ih)})
	}
	return out
}

// RemoveInactive delegates to the repository's janitor sweep; it exists
// on Tracker so the janitor package depends only on tracker, not store.
func (t *Tracker) RemoveInactive(threshold time.Duration) (peersRemoved, torrentsRemoved int) {
	return t.Repo.RemoveInactive(t.Clock.Now(), threshold)
}

// Ping exercises the durable backend. The api package's /check endpoint
// pings its backend directly and does not call this method.
func (t *Tracker) Ping(repo backend.Repository) error {
	return repo.Ping()
}
