// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package auth implements AuthService: the issuance, verification, and
// revocation of time-bounded peer auth keys, plus the torrent whitelist.
// State is durable through a backend.Repository handle; runtime reads are
// served from an in-memory cache kept coherent by write-through, the same
// shape the teacher's tracker package used for its in-memory Clients set
// guarded by a single sync.RWMutex.
package auth

import (
	"sync"
	"time"

	"github.com/opentracker/chihaya/backend"
	"github.com/opentracker/chihaya/bittorrent"
	"github.com/opentracker/chihaya/internal/clock"
)

// VerifyResult is the outcome of VerifyKey.
type VerifyResult int

const (
	Accept VerifyResult = iota
	Expired
	Unknown
	Malformed
)

func (r VerifyResult) String() string {
	switch r {
	case Accept:
		return "accept"
	case Expired:
		return "expired"
	case Unknown:
		return "unknown"
	default:
		return "malformed"
	}
}

const keyLength = 32

// Service is AuthService: it owns the whitelist and the set of live auth
// keys, backed durably by a backend.Repository.
type Service struct {
	repo  backend.Repository
	clock clock.Clock

	mu        sync.RWMutex
	keys      map[string]time.Time // id -> valid_until; zero time means never expires
	whitelist map[bittorrent.InfoHash]struct{}
}

// New constructs a Service and loads existing whitelist/auth-key state
// from repo.
func New(repo backend.Repository, c clock.Clock) (*Service, error) {
	s := &Service{
		repo:      repo,
		clock:     c,
		keys:      make(map[string]time.Time),
		whitelist: make(map[bittorrent.InfoHash]struct{}),
	}

	keys, err := repo.LoadAuthKeys()
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		s.keys[k.ID] = k.ValidUntil
	}

	whitelist, err := repo.LoadWhitelist()
	if err != nil {
		return nil, err
	}
	for _, ih := range whitelist {
		s.whitelist[ih] = struct{}{}
	}

	return s, nil
}

// GenerateKey mints a new AuthKey valid for lifetime (zero means never
// expires), persists it, and returns its id.
func (s *Service) GenerateKey(lifetime time.Duration) (string, error) {
	var validUntil time.Time
	if lifetime > 0 {
		validUntil = s.clock.Now().Add(lifetime)
	}

	for attempt := 0; attempt < 5; attempt++ {
		id, err := randomToken()
		if err != nil {
			return "", err
		}

		s.mu.Lock()
		_, collision := s.keys[id]
		if !collision {
			s.keys[id] = validUntil
		}
		s.mu.Unlock()

		if collision {
			continue
		}

		if err := s.repo.PutAuthKey(backend.AuthKeyRecord{ID: id, ValidUntil: validUntil}); err != nil {
			s.mu.Lock()
			delete(s.keys, id)
			s.mu.Unlock()
			return "", err
		}
		return id, nil
	}
	return "", errTooManyCollisions
}

// RemoveKey revokes id. It is idempotent.
func (s *Service) RemoveKey(id string) error {
	s.mu.Lock()
	delete(s.keys, id)
	s.mu.Unlock()
	return s.repo.DeleteAuthKey(id)
}

// VerifyKey reports whether idString names a live, unexpired auth key.
// The comparison against the stored id is constant-time in the length of
// idString to avoid leaking key material through timing.
func (s *Service) VerifyKey(idString string) VerifyResult {
	if !isValidKeyFormat(idString) {
		return Malformed
	}

	s.mu.RLock()
	validUntil, ok := lookupConstantTime(s.keys, idString)
	s.mu.RUnlock()

	if !ok {
		return Unknown
	}
	if !validUntil.IsZero() && s.clock.Now().After(validUntil) {
		return Expired
	}
	return Accept
}

func isValidKeyFormat(s string) bool {
	if len(s) != keyLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

// AddToWhitelist admits infoHash under listed tracker modes.
func (s *Service) AddToWhitelist(ih bittorrent.InfoHash) error {
	s.mu.Lock()
	s.whitelist[ih] = struct{}{}
	s.mu.Unlock()
	return s.repo.AddWhitelist(ih)
}

// RemoveFromWhitelist revokes infoHash's admission. Idempotent.
func (s *Service) RemoveFromWhitelist(ih bittorrent.InfoHash) error {
	s.mu.Lock()
	delete(s.whitelist, ih)
	s.mu.Unlock()
	return s.repo.RemoveWhitelist(ih)
}

// IsWhitelisted reports whether infoHash is currently admitted.
func (s *Service) IsWhitelisted(ih bittorrent.InfoHash) bool {
	s.mu.RLock()
	_, ok := s.whitelist[ih]
	s.mu.RUnlock()
	return ok
}
