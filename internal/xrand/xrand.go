// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package xrand is the Rng capability injected into the tracker core at
// boot (see DESIGN NOTES in SPEC_FULL.md): a per-process seed plus a
// per-request source for the deterministic-but-varied peer sampling
// peers_for requires, instead of a package-level math/rand global.
package xrand

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
)

// Source hands out per-request *math/rand.Rand instances seeded from a
// process-wide seed mixed with caller-provided entropy (e.g. a peer id or
// transaction id), so two different requests shuffle differently but a
// single request's sampling is reproducible if replayed in a test.
type Source struct {
	seed int64
}

// NewSource reads a fresh seed from crypto/rand. Called once at boot.
func NewSource() *Source {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing means the platform's entropy source is
		// broken; fall back to a fixed seed rather than crashing boot.
		return &Source{seed: 0x5bd1e995}
	}
	return &Source{seed: int64(binary.BigEndian.Uint64(buf[:]))}
}

// For returns a *math/rand.Rand scoped to a single request, mixing the
// process seed with caller-supplied entropy.
func (s *Source) For(entropy uint64) *mrand.Rand {
	return mrand.New(mrand.NewSource(s.seed ^ int64(entropy)))
}

// ServerSecret returns 32 bytes of process-wide secret material, used by
// the UDP connection-id minter. Generated once at boot, never persisted.
func ServerSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("xrand: failed to read server secret: " + err.Error())
	}
	return buf
}

// Token32 returns a cryptographically random 32-char lowercase base32-ish
// alphanumeric token for AuthKey ids.
func Token32() (string, error) {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	out := make([]byte, 32)
	for i, b := range raw {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}
