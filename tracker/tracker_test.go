// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opentracker/chihaya/auth"
	"github.com/opentracker/chihaya/backend/memory"
	"github.com/opentracker/chihaya/bittorrent"
	"github.com/opentracker/chihaya/internal/clock"
	"github.com/opentracker/chihaya/internal/xrand"
	"github.com/opentracker/chihaya/policy"
	"github.com/opentracker/chihaya/stats"
	"github.com/opentracker/chihaya/store"
)

func newTestTracker(t *testing.T, mode policy.Mode, maxNumWant int) *Tracker {
	t.Helper()

	frozen := clock.NewFrozen(time.Now())
	authSvc, err := auth.New(memory.New(), frozen)
	require.NoError(t, err)

	gate := policy.New(mode, authSvc)
	repo := store.New(store.WithClock(frozen))

	return New(repo, authSvc, gate, stats.New(), frozen, xrand.NewSource(), Config{
		AnnounceInterval: 120 * time.Second,
		MaxNumWant:       maxNumWant,
	})
}

func fillSwarm(t *testing.T, tkr *Tracker, ih bittorrent.InfoHash, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		var pid bittorrent.PeerID
		pid[0] = byte(i)
		pid[1] = byte(i >> 8)
		_, err := tkr.Announce(AnnounceRequest{
			InfoHash: ih,
			PeerID:   pid,
			Socket:   bittorrent.Socket{IP: []byte{10, 0, byte(i >> 8), byte(i)}, Port: 6881},
			Left:     1,
		})
		require.NoError(t, err)
	}
}

func TestAnnounce_NumWant_NegativeUsesDefaultThenCaps(t *testing.T) {
	tkr := newTestTracker(t, policy.Public, 10)
	ih := bittorrent.InfoHash{1}
	fillSwarm(t, tkr, ih, bittorrent.DefaultNumWant)

	resp, err := tkr.Announce(AnnounceRequest{
		InfoHash: ih,
		PeerID:   bittorrent.PeerID{0xff},
		Socket:   bittorrent.Socket{IP: []byte{10, 1, 0, 1}, Port: 6881},
		NumWant:  -1,
	})
	require.NoError(t, err)
	// Default (74) would apply first, but MaxNumWant=10 caps it.
	require.Len(t, resp.Peers, 10)
}

func TestAnnounce_NumWant_ZeroUsesDefaultThenCaps(t *testing.T) {
	tkr := newTestTracker(t, policy.Public, 10)
	ih := bittorrent.InfoHash{2}
	fillSwarm(t, tkr, ih, bittorrent.DefaultNumWant)

	resp, err := tkr.Announce(AnnounceRequest{
		InfoHash: ih,
		PeerID:   bittorrent.PeerID{0xff},
		Socket:   bittorrent.Socket{IP: []byte{10, 1, 0, 2}, Port: 6881},
		NumWant:  0,
	})
	require.NoError(t, err)
	require.Len(t, resp.Peers, 10)
}

func TestAnnounce_NumWant_NegativeWithGenerousMaxStaysAtDefault(t *testing.T) {
	tkr := newTestTracker(t, policy.Public, 200)
	ih := bittorrent.InfoHash{3}
	fillSwarm(t, tkr, ih, bittorrent.DefaultNumWant+50)

	resp, err := tkr.Announce(AnnounceRequest{
		InfoHash: ih,
		PeerID:   bittorrent.PeerID{0xff},
		Socket:   bittorrent.Socket{IP: []byte{10, 2, 0, 1}, Port: 6881},
		NumWant:  -1,
	})
	require.NoError(t, err)
	// MaxNumWant (200) is above the default (74); -1 means "use the
	// default", not "use MaxNumWant".
	require.Len(t, resp.Peers, bittorrent.DefaultNumWant)
}

func TestAnnounce_NumWant_PositiveUnderCapIsHonored(t *testing.T) {
	tkr := newTestTracker(t, policy.Public, 200)
	ih := bittorrent.InfoHash{4}
	fillSwarm(t, tkr, ih, 20)

	resp, err := tkr.Announce(AnnounceRequest{
		InfoHash: ih,
		PeerID:   bittorrent.PeerID{0xff},
		Socket:   bittorrent.Socket{IP: []byte{10, 3, 0, 1}, Port: 6881},
		NumWant:  5,
	})
	require.NoError(t, err)
	require.Len(t, resp.Peers, 5)
}

func TestAnnounce_NumWant_PositiveOverCapIsClamped(t *testing.T) {
	tkr := newTestTracker(t, policy.Public, 10)
	ih := bittorrent.InfoHash{5}
	fillSwarm(t, tkr, ih, 20)

	resp, err := tkr.Announce(AnnounceRequest{
		InfoHash: ih,
		PeerID:   bittorrent.PeerID{0xff},
		Socket:   bittorrent.Socket{IP: []byte{10, 4, 0, 1}, Port: 6881},
		NumWant:  1000,
	})
	require.NoError(t, err)
	require.Len(t, resp.Peers, 10)
}

func TestAnnounce_PolicyRejectionShortCircuitsBeforeMutation(t *testing.T) {
	tkr := newTestTracker(t, policy.Listed, 74)
	ih := bittorrent.InfoHash{6}

	_, err := tkr.Announce(AnnounceRequest{
		InfoHash: ih,
		PeerID:   bittorrent.PeerID{0xff},
		Socket:   bittorrent.Socket{IP: []byte{10, 5, 0, 1}, Port: 6881},
	})
	require.Error(t, err)

	stats := tkr.Repo.GetStats(ih)
	require.Zero(t, stats.Seeders)
	require.Zero(t, stats.Leechers)
}

func TestScrape_ZeroesRejectedHashButKeepsAcceptedStats(t *testing.T) {
	tkr := newTestTracker(t, policy.Listed, 74)

	allowed := bittorrent.InfoHash{7}
	rejected := bittorrent.InfoHash{8}
	require.NoError(t, tkr.Auth.AddToWhitelist(allowed))

	_, err := tkr.Announce(AnnounceRequest{
		InfoHash: allowed,
		PeerID:   bittorrent.PeerID{0xff},
		Socket:   bittorrent.Socket{IP: []byte{10, 6, 0, 1}, Port: 6881},
		Left:     1,
	})
	require.NoError(t, err)

	results := tkr.Scrape([]bittorrent.InfoHash{allowed, rejected}, "")
	require.Len(t, results, 2)

	require.Equal(t, allowed, results[0].InfoHash)
	require.Equal(t, uint32(1), results[0].Stats.Leechers)

	require.Equal(t, rejected, results[1].InfoHash)
	require.Zero(t, results[1].Stats.Leechers)
	require.Zero(t, results[1].Stats.Seeders)
}

func TestRemoveInactive_SweepsPastThreshold(t *testing.T) {
	frozen := clock.NewFrozen(time.Now())
	authSvc, err := auth.New(memory.New(), frozen)
	require.NoError(t, err)
	gate := policy.New(policy.Public, authSvc)
	repo := store.New(store.WithClock(frozen), store.WithPersistentTorrents(true))
	tkr := New(repo, authSvc, gate, stats.New(), frozen, xrand.NewSource(), Config{
		AnnounceInterval: 120 * time.Second,
		MaxNumWant:       74,
	})

	ih := bittorrent.InfoHash{9}
	_, err = tkr.Announce(AnnounceRequest{
		InfoHash: ih,
		PeerID:   bittorrent.PeerID{0xff},
		Socket:   bittorrent.Socket{IP: []byte{10, 7, 0, 1}, Port: 6881},
		Left:     1,
	})
	require.NoError(t, err)

	frozen.Advance(90 * time.Second)
	peersRemoved, torrentsRemoved := tkr.RemoveInactive(60 * time.Second)
	require.Equal(t, 1, peersRemoved)
	require.Zero(t, torrentsRemoved)
}
