// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package bittorrent

import (
	"math/rand"
	"time"
)

// DefaultNumWant is the historical default peer-list size: small enough
// to fit comfortably in a single UDP datagram.
const DefaultNumWant = 74

// TorrentStats are the counters derived from a SwarmEntry.
type TorrentStats struct {
	Seeders   uint32
	Leechers  uint32
	Completed uint64
}

// SwarmEntry is the set of peers currently exchanging one info-hash, plus
// its monotonically increasing completed counter. A SwarmEntry carries no
// lock of its own: callers (the sharded TorrentRepository) serialize
// access to it under the owning shard's RWMutex.
type SwarmEntry struct {
	peers     map[PeerID]Peer
	completed uint64
}

// NewSwarmEntry returns an empty swarm, optionally seeded with a
// persisted completed counter (see persistent_torrents in SPEC_FULL.md).
func NewSwarmEntry(completed uint64) *SwarmEntry {
	return &SwarmEntry{
		peers:     make(map[PeerID]Peer),
		completed: completed,
	}
}

// Upsert applies an accepted announce to the swarm. A stopped event
// removes the peer; any other event inserts or replaces it. completedDelta
// is 1 only when this announce is the transition into the completed state
// of a peer already in the swarm; a peer whose first announce is
// completed is not counted.
func (s *SwarmEntry) Upsert(p Peer) (stats TorrentStats, completedDelta uint64) {
	if p.Event == EventStopped {
		delete(s.peers, p.ID)
		return s.Stats(), 0
	}

	if existing, ok := s.peers[p.ID]; ok {
		if existing.Event != EventCompleted && p.Event == EventCompleted {
			s.completed++
			completedDelta = 1
		}
	}

	s.peers[p.ID] = p
	return s.Stats(), completedDelta
}

// PeersExcept returns up to limit peers, excluding any peer whose socket
// equals except. Selection is a random sample without replacement, using
// rng so that the result is deterministic for a given rng but varies
// between requests (callers pass a per-request source, see
// internal/xrand).
func (s *SwarmEntry) PeersExcept(except Socket, limit int, rng *rand.Rand) []Peer {
	if limit <= 0 {
		return nil
	}

	candidates := make([]Peer, 0, len(s.peers))
	for _, p := range s.peers {
		if p.Socket.Equal(except) {
			continue
		}
		candidates = append(candidates, p)
	}

	if len(candidates) <= limit {
		rng.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
		return candidates
	}

	// Partial Fisher-Yates: only the first `limit` slots need to be
	// randomized to get a uniform sample without replacement.
	for i := 0; i < limit; i++ {
		j := i + rng.Intn(len(candidates)-i)
		candidates[i], candidates[j] = candidates[j], candidates[i]
	}
	return candidates[:limit]
}

// Stats returns the current derived counters.
func (s *SwarmEntry) Stats() TorrentStats {
	var seeders, leechers uint32
	for _, p := range s.peers {
		if p.Seeder() {
			seeders++
		} else {
			leechers++
		}
	}
	return TorrentStats{Seeders: seeders, Leechers: leechers, Completed: s.completed}
}

// Len reports the number of live peers, seeders and leechers combined.
func (s *SwarmEntry) Len() int { return len(s.peers) }

// RemoveInactive drops every peer last seen before cutoff and reports how
// many were removed.
func (s *SwarmEntry) RemoveInactive(cutoff time.Time) (removed int) {
	for id, p := range s.peers {
		if p.UpdatedAt.Before(cutoff) {
			delete(s.peers, id)
			removed++
		}
	}
	return removed
}
