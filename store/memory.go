// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package store implements TorrentRepository: the sharded, concurrent
// mapping from info-hash to swarm that backs every announce and scrape.
// The sharding scheme mirrors the pack's chihaya storage/memory peer
// store (one RWMutex per shard, shard selected by hashing the info-hash),
// narrowed to the single-map-per-shard semantics the specification asks
// for.
package store

import (
	"encoding/binary"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/opentracker/chihaya/bittorrent"
	"github.com/opentracker/chihaya/internal/clock"
)

// DefaultShardCount is the number of shards the repository uses absent an
// explicit configuration; it must be a power of two.
const DefaultShardCount = 128

type shard struct {
	sync.RWMutex
	swarms map[bittorrent.InfoHash]*bittorrent.SwarmEntry
}

// TorrentRepository is the sharded concurrent mapping from InfoHash to
// SwarmEntry. The zero value is not usable; construct with New.
type TorrentRepository struct {
	shards []shard
	mask   uint32

	clock clock.Clock

	// persistentTorrents keeps an emptied SwarmEntry's slot (and its
	// completed counter) alive instead of deleting it, per the
	// persistent_torrents configuration knob.
	persistentTorrents bool
}

// Option configures a TorrentRepository at construction time.
type Option func(*TorrentRepository)

// WithShardCount overrides DefaultShardCount. n is rounded up to the next
// power of two.
func WithShardCount(n int) Option {
	return func(r *TorrentRepository) {
		count := 1
		for count < n {
			count <<= 1
		}
		r.shards = make([]shard, count)
		r.mask = uint32(count - 1)
	}
}

// WithPersistentTorrents retains an emptied torrent's SwarmEntry (and its
// completed counter) instead of dropping it from the map.
func WithPersistentTorrents(persist bool) Option {
	return func(r *TorrentRepository) { r.persistentTorrents = persist }
}

// WithClock overrides the default wall clock.Clock.
func WithClock(c clock.Clock) Option {
	return func(r *TorrentRepository) { r.clock = c }
}

// New constructs a TorrentRepository ready for concurrent use.
func New(opts ...Option) *TorrentRepository {
	r := &TorrentRepository{clock: clock.System{}}
	for _, opt := range opts {
		opt(r)
	}
	if r.shards == nil {
		r.shards = make([]shard, DefaultShardCount)
		r.mask = uint32(DefaultShardCount - 1)
	}
	for i := range r.shards {
		r.shards[i].swarms = make(map[bittorrent.InfoHash]*bittorrent.SwarmEntry)
	}
	return r
}

func (r *TorrentRepository) shardFor(ih bittorrent.InfoHash) *shard {
	idx := binary.BigEndian.Uint32(ih[:4]) & r.mask
	return &r.shards[idx]
}

// UpdateWithPeer looks up or creates the SwarmEntry for infoHash, applies
// p, and returns the resulting stats and whether this announce completed
// the download.
func (r *TorrentRepository) UpdateWithPeer(ih bittorrent.InfoHash, p bittorrent.Peer) (bittorrent.TorrentStats, uint64) {
	s := r.shardFor(ih)
	s.Lock()
	defer s.Unlock()

	swarm, ok := s.swarms[ih]
	if !ok {
		if p.Event == bittorrent.EventStopped {
			// A stopped announce on an unknown torrent is a no-op:
			// don't create a swarm just to immediately consider
			// deleting it.
			return bittorrent.TorrentStats{}, 0
		}
		swarm = bittorrent.NewSwarmEntry(0)
		s.swarms[ih] = swarm
	}

	stats, delta := swarm.Upsert(p)

	if swarm.Len() == 0 && !r.persistentTorrents {
		delete(s.swarms, ih)
	}

	return stats, delta
}

// GetPeers returns up to limit peers from infoHash's swarm, excluding the
// requester's own socket. rng controls the sampling; see
// bittorrent.SwarmEntry.PeersExcept.
func (r *TorrentRepository) GetPeers(ih bittorrent.InfoHash, requester bittorrent.Socket, limit int, rng *rand.Rand) []bittorrent.Peer {
	s := r.shardFor(ih)
	s.RLock()
	defer s.RUnlock()

	swarm, ok := s.swarms[ih]
	if !ok {
		return nil
	}
	return swarm.PeersExcept(requester, limit, rng)
}

// GetStats returns infoHash's current stats, or the zero value if the
// torrent is unknown.
func (r *TorrentRepository) GetStats(ih bittorrent.InfoHash) bittorrent.TorrentStats {
	s := r.shardFor(ih)
	s.RLock()
	defer s.RUnlock()

	swarm, ok := s.swarms[ih]
	if !ok {
		return bittorrent.TorrentStats{}
	}
	return swarm.Stats()
}

// SnapshotForScrape returns the current stats for each requested info
// hash, taking at most one shard's read lock at a time (never two shard
// locks held simultaneously, per the concurrency contract).
func (r *TorrentRepository) SnapshotForScrape(ihs []bittorrent.InfoHash) map[bittorrent.InfoHash]bittorrent.TorrentStats {
	out := make(map[bittorrent.InfoHash]bittorrent.TorrentStats, len(ihs))
	for _, ih := range ihs {
		out[ih] = r.GetStats(ih)
	}
	return out
}

// RemoveInactive drops every peer last seen before now-threshold across
// every shard, removing emptied torrents unless persistent_torrents is
// configured. It sweeps one shard at a time so no single lock is held for
// the whole scan, yielding the scheduler between shards.
func (r *TorrentRepository) RemoveInactive(now time.Time, threshold time.Duration) (peersRemoved, torrentsRemoved int) {
	cutoff := now.Add(-threshold)

	for i := range r.shards {
		s := &r.shards[i]
		s.Lock()
		for ih, swarm := range s.swarms {
			peersRemoved += swarm.RemoveInactive(cutoff)
			if swarm.Len() == 0 && !r.persistentTorrents {
				delete(s.swarms, ih)
				torrentsRemoved++
			}
		}
		s.Unlock()
		runtime.Gosched()
	}

	return peersRemoved, torrentsRemoved
}

// ShardCount reports the number of shards in use, mainly for tests and
// diagnostics.
func (r *TorrentRepository) ShardCount() int { return len(r.shards) }
