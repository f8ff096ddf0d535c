// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package http

import (
	"bytes"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	zbencode "github.com/zeebo/bencode"

	"github.com/opentracker/chihaya/bittorrent"
	"github.com/opentracker/chihaya/tracker"
)

// announceWire and scrapeWire mirror the BEP 3 response shape for
// decoding with an independent bencode implementation, so these tests
// check the wire format itself rather than our own encoder's self
// consistency.
type announceWire struct {
	Interval    int    `bencode:"interval"`
	MinInterval int    `bencode:"min interval"`
	Complete    int    `bencode:"complete"`
	Incomplete  int    `bencode:"incomplete"`
	Peers       string `bencode:"peers"`
	Peers6      string `bencode:"peers6"`
}

type announceDictPeer struct {
	ID   string `bencode:"peer id"`
	IP   string `bencode:"ip"`
	Port int    `bencode:"port"`
}

type announceWireDict struct {
	Peers []announceDictPeer `bencode:"peers"`
}

type scrapeFile struct {
	Complete   int `bencode:"complete"`
	Incomplete int `bencode:"incomplete"`
	Downloaded int `bencode:"downloaded"`
}

type scrapeWire struct {
	Files map[string]scrapeFile `bencode:"files"`
}

type errorWire struct {
	Reason string `bencode:"failure reason"`
}

func decode(t *testing.T, body []byte, v interface{}) {
	t.Helper()
	require.NoError(t, zbencode.NewDecoder(bytes.NewReader(body)).Decode(v))
}

func TestWriteAnnounce_CompactV4(t *testing.T) {
	w := httptest.NewRecorder()
	writer := &Writer{w}

	resp := tracker.AnnounceResponse{
		Interval:    120 * time.Second,
		MinInterval: 60 * time.Second,
		Complete:    1,
		Incomplete:  2,
		Peers: []bittorrent.Peer{
			{Socket: bittorrent.Socket{IP: net.ParseIP("1.2.3.4"), Port: 6881}},
		},
	}
	require.NoError(t, writer.WriteAnnounce(resp, true))

	var wire announceWire
	decode(t, w.Body.Bytes(), &wire)

	require.Equal(t, 120, wire.Interval)
	require.Equal(t, 60, wire.MinInterval)
	require.Equal(t, 1, wire.Complete)
	require.Equal(t, 2, wire.Incomplete)
	require.Equal(t, []byte{1, 2, 3, 4, 0x1a, 0xe1}, []byte(wire.Peers))
	require.Empty(t, wire.Peers6)
}

func TestWriteAnnounce_NonCompactDictPeers(t *testing.T) {
	w := httptest.NewRecorder()
	writer := &Writer{w}

	var pid bittorrent.PeerID
	copy(pid[:], "-TR2940-abcdefghijkl")

	resp := tracker.AnnounceResponse{
		Peers: []bittorrent.Peer{
			{ID: pid, Socket: bittorrent.Socket{IP: net.ParseIP("1.2.3.4"), Port: 6881}},
		},
	}
	require.NoError(t, writer.WriteAnnounce(resp, false))

	var wire announceWireDict
	decode(t, w.Body.Bytes(), &wire)

	require.Len(t, wire.Peers, 1)
	require.Equal(t, "1.2.3.4", wire.Peers[0].IP)
	require.Equal(t, 6881, wire.Peers[0].Port)
}

func TestWriteAnnounce_MixedFamiliesUsesPeers6(t *testing.T) {
	w := httptest.NewRecorder()
	writer := &Writer{w}

	resp := tracker.AnnounceResponse{
		Peers: []bittorrent.Peer{
			{Socket: bittorrent.Socket{IP: net.ParseIP("1.2.3.4"), Port: 1}},
			{Socket: bittorrent.Socket{IP: net.ParseIP("::1"), Port: 2}},
		},
	}
	require.NoError(t, writer.WriteAnnounce(resp, true))

	var wire announceWire
	decode(t, w.Body.Bytes(), &wire)

	require.Len(t, wire.Peers, 6)
	require.Len(t, wire.Peers6, 18)
}

func TestWriteScrape_ReportsPerHashStats(t *testing.T) {
	w := httptest.NewRecorder()
	writer := &Writer{w}

	var ih bittorrent.InfoHash
	ih[0] = 9

	results := []tracker.ScrapeResult{
		{InfoHash: ih, Stats: bittorrent.TorrentStats{Seeders: 3, Leechers: 1, Completed: 5}},
	}
	require.NoError(t, writer.WriteScrape(results))

	var wire scrapeWire
	decode(t, w.Body.Bytes(), &wire)

	entry, ok := wire.Files[string(ih[:])]
	require.True(t, ok)
	require.Equal(t, 3, entry.Complete)
	require.Equal(t, 1, entry.Incomplete)
	require.Equal(t, 5, entry.Downloaded)
}

func TestWriteError_RendersFailureReason(t *testing.T) {
	w := httptest.NewRecorder()
	writer := &Writer{w}

	require.NoError(t, writer.WriteError(bittorrent.ErrTorrentNotWhitelisted))

	var wire errorWire
	decode(t, w.Body.Bytes(), &wire)
	require.Equal(t, bittorrent.ErrTorrentNotWhitelisted.Error(), wire.Reason)
}
