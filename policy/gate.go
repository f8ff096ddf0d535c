// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package policy implements PolicyGate: the single accept/reject decision
// point combining tracker mode, whitelist membership, and auth-key state,
// modeled after the teacher's private-tracker gating in http/tracker.go
// but generalized to the four-mode table the specification defines.
package policy

import (
	"github.com/opentracker/chihaya/auth"
	"github.com/opentracker/chihaya/bittorrent"
)

// Mode is one of the four tracker operating modes.
type Mode int

const (
	Public Mode = iota
	Listed
	Private
	PrivateListed
)

func (m Mode) checksWhitelist() bool {
	return m == Listed || m == PrivateListed
}

func (m Mode) requiresAuthKey() bool {
	return m == Private || m == PrivateListed
}

// ParseMode maps a configuration string onto a Mode.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "public":
		return Public, true
	case "listed":
		return Listed, true
	case "private":
		return Private, true
	case "private_listed":
		return PrivateListed, true
	default:
		return Public, false
	}
}

func (m Mode) String() string {
	switch m {
	case Listed:
		return "listed"
	case Private:
		return "private"
	case PrivateListed:
		return "private_listed"
	default:
		return "public"
	}
}

// Gate is PolicyGate: it decides whether an announce/scrape request for
// infoHash, optionally carrying an auth key, is admitted under mode.
type Gate struct {
	mode Mode
	auth *auth.Service
}

// New constructs a Gate. authSvc may be nil only when mode never requires
// a whitelist check or an auth key (i.e. mode == Public).
func New(mode Mode, authSvc *auth.Service) *Gate {
	return &Gate{mode: mode, auth: authSvc}
}

// Mode reports the gate's configured tracker mode.
func (g *Gate) Mode() Mode { return g.mode }

// Check applies the decision table in §4.4: whitelist is checked before
// the auth key, so a valid key against a non-whitelisted torrent still
// reports ErrTorrentNotWhitelisted.
func (g *Gate) Check(ih bittorrent.InfoHash, key string) error {
	if g.mode.checksWhitelist() {
		if !g.auth.IsWhitelisted(ih) {
			return bittorrent.ErrTorrentNotWhitelisted
		}
	}

	if g.mode.requiresAuthKey() {
		if key == "" {
			return bittorrent.ErrPeerNotAuthenticated
		}
		if g.auth.VerifyKey(key) != auth.Accept {
			return bittorrent.ErrPeerKeyNotValid
		}
	}

	return nil
}
