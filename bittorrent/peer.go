// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package bittorrent

import "time"

// Peer represents a single participant in a swarm, as it is stored inside
// a SwarmEntry.
type Peer struct {
	ID     PeerID
	Socket Socket

	Uploaded   uint64
	Downloaded uint64
	Left       uint64

	Event Event

	// UpdatedAt is the last time this peer announced, per the injected
	// Clock, not wall-clock time.Now().
	UpdatedAt time.Time
}

// Seeder reports whether the peer has nothing left to download.
func (p Peer) Seeder() bool { return p.Left == 0 }
