// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package store

import (
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opentracker/chihaya/bittorrent"
)

func mustInfoHash(t *testing.T, b byte) bittorrent.InfoHash {
	var raw [20]byte
	raw[0] = b
	ih, err := bittorrent.NewInfoHash(raw[:])
	require.NoError(t, err)
	return ih
}

func peer(id byte, ip string, port uint16, left uint64, ev bittorrent.Event, at time.Time) bittorrent.Peer {
	var pid bittorrent.PeerID
	pid[0] = id
	return bittorrent.Peer{
		ID:        pid,
		Socket:    bittorrent.Socket{IP: net.ParseIP(ip), Port: port},
		Left:      left,
		Event:     ev,
		UpdatedAt: at,
	}
}

func TestUpdateWithPeer_SeedersAndLeechers(t *testing.T) {
	repo := New(WithShardCount(8))
	h := mustInfoHash(t, 1)
	now := time.Now()

	stats, delta := repo.UpdateWithPeer(h, peer(1, "10.0.0.1", 6881, 100, bittorrent.EventStarted, now))
	require.Zero(t, delta)
	require.EqualValues(t, 0, stats.Seeders)
	require.EqualValues(t, 1, stats.Leechers)

	stats, _ = repo.UpdateWithPeer(h, peer(2, "10.0.0.2", 6882, 0, bittorrent.EventStarted, now))
	require.EqualValues(t, 1, stats.Seeders)
	require.EqualValues(t, 1, stats.Leechers)
	require.EqualValues(t, stats.Seeders+stats.Leechers, 2)
}

func TestUpdateWithPeer_DuplicateAnnounceNoDuplicatePeer(t *testing.T) {
	repo := New()
	h := mustInfoHash(t, 2)
	now := time.Now()

	repo.UpdateWithPeer(h, peer(1, "10.0.0.1", 6881, 100, bittorrent.EventStarted, now))
	stats, _ := repo.UpdateWithPeer(h, peer(1, "10.0.0.1", 6881, 50, bittorrent.EventNone, now.Add(time.Second)))
	require.EqualValues(t, 1, stats.Leechers)
	require.EqualValues(t, 0, stats.Seeders)
}

func TestUpdateWithPeer_CompletedCounterMonotonic(t *testing.T) {
	repo := New()
	h := mustInfoHash(t, 3)
	now := time.Now()

	repo.UpdateWithPeer(h, peer(1, "10.0.0.1", 6881, 100, bittorrent.EventStarted, now))
	stats, delta := repo.UpdateWithPeer(h, peer(1, "10.0.0.1", 6881, 0, bittorrent.EventCompleted, now))
	require.EqualValues(t, 1, delta)
	require.EqualValues(t, 1, stats.Completed)

	// Repeating the same completed announce must not double-count.
	stats, delta = repo.UpdateWithPeer(h, peer(1, "10.0.0.1", 6881, 0, bittorrent.EventCompleted, now))
	require.Zero(t, delta)
	require.EqualValues(t, 1, stats.Completed)
}

func TestUpdateWithPeer_StoppedRemovesPeer(t *testing.T) {
	repo := New()
	h := mustInfoHash(t, 4)
	now := time.Now()

	repo.UpdateWithPeer(h, peer(1, "10.0.0.1", 6881, 100, bittorrent.EventStarted, now))
	repo.UpdateWithPeer(h, peer(1, "10.0.0.1", 6881, 100, bittorrent.EventStopped, now))

	stats := repo.GetStats(h)
	require.Zero(t, stats.Seeders+stats.Leechers)

	peers := repo.GetPeers(h, bittorrent.Socket{}, 74, rand.New(rand.NewSource(1)))
	require.Empty(t, peers)
}

func TestUpdateWithPeer_StoppedUnknownTorrentIsNoop(t *testing.T) {
	repo := New()
	h := mustInfoHash(t, 5)

	stats, delta := repo.UpdateWithPeer(h, peer(1, "10.0.0.1", 6881, 0, bittorrent.EventStopped, time.Now()))
	require.Zero(t, delta)
	require.Equal(t, bittorrent.TorrentStats{}, stats)
}

func TestGetPeers_ExcludesRequester(t *testing.T) {
	repo := New()
	h := mustInfoHash(t, 6)
	now := time.Now()

	p1 := peer(1, "10.0.0.1", 6881, 100, bittorrent.EventStarted, now)
	repo.UpdateWithPeer(h, p1)
	repo.UpdateWithPeer(h, peer(2, "10.0.0.2", 6882, 100, bittorrent.EventStarted, now))

	rng := rand.New(rand.NewSource(42))
	peers := repo.GetPeers(h, p1.Socket, 74, rng)
	require.Len(t, peers, 1)
	require.False(t, peers[0].Socket.Equal(p1.Socket))
}

func TestRemoveInactive(t *testing.T) {
	repo := New(WithShardCount(4))
	h := mustInfoHash(t, 7)
	start := time.Now()

	repo.UpdateWithPeer(h, peer(1, "10.0.0.1", 6881, 100, bittorrent.EventStarted, start))
	repo.UpdateWithPeer(h, peer(1, "10.0.0.1", 6881, 0, bittorrent.EventCompleted, start))

	removedPeers, removedTorrents := repo.RemoveInactive(start.Add(90*time.Second), 60*time.Second)
	require.Equal(t, 1, removedPeers)
	require.Equal(t, 1, removedTorrents)

	stats := repo.GetStats(h)
	require.Equal(t, bittorrent.TorrentStats{}, stats, "completed counter drops with the torrent when not persistent")
}

func TestRemoveInactive_PersistentTorrentsKeepsCompletedCounter(t *testing.T) {
	repo := New(WithPersistentTorrents(true))
	h := mustInfoHash(t, 8)
	start := time.Now()

	repo.UpdateWithPeer(h, peer(1, "10.0.0.1", 6881, 100, bittorrent.EventStarted, start))
	repo.UpdateWithPeer(h, peer(1, "10.0.0.1", 6881, 0, bittorrent.EventCompleted, start))

	repo.RemoveInactive(start.Add(90*time.Second), 60*time.Second)

	stats := repo.GetStats(h)
	require.EqualValues(t, 1, stats.Completed)
	require.Zero(t, stats.Seeders+stats.Leechers)
}

func TestSnapshotForScrape(t *testing.T) {
	repo := New()
	h1 := mustInfoHash(t, 9)
	h2 := mustInfoHash(t, 10)
	now := time.Now()

	repo.UpdateWithPeer(h1, peer(1, "10.0.0.1", 6881, 0, bittorrent.EventStarted, now))

	snap := repo.SnapshotForScrape([]bittorrent.InfoHash{h1, h2})
	require.EqualValues(t, 1, snap[h1].Seeders)
	require.Equal(t, bittorrent.TorrentStats{}, snap[h2])
}
