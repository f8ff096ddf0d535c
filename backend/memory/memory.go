// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package memory implements backend.Repository entirely in process. It is
// the default driver (named "memory" in config, mirroring the teacher's
// "noop" default DriverConfig), useful for development and for tests that
// don't want a real database.
package memory

import (
	"sync"

	"github.com/opentracker/chihaya/backend"
	"github.com/opentracker/chihaya/bittorrent"
)

const Name = "memory"

type driver struct{}

func (driver) New(_ string) (backend.Repository, error) {
	return New(), nil
}

func init() {
	backend.Register(Name, driver{})
}

// Repository is an in-process, non-durable backend.Repository. State does
// not survive a restart, which is exactly what "memory" promises.
type Repository struct {
	mu        sync.Mutex
	whitelist map[bittorrent.InfoHash]struct{}
	authKeys  map[string]backend.AuthKeyRecord
	completed map[bittorrent.InfoHash]uint64
}

// New returns an empty in-process Repository.
func New() *Repository {
	return &Repository{
		whitelist: make(map[bittorrent.InfoHash]struct{}),
		authKeys:  make(map[string]backend.AuthKeyRecord),
		completed: make(map[bittorrent.InfoHash]uint64),
	}
}

func (r *Repository) AddWhitelist(ih bittorrent.InfoHash) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.whitelist[ih] = struct{}{}
	return nil
}

func (r *Repository) RemoveWhitelist(ih bittorrent.InfoHash) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.whitelist, ih)
	return nil
}

func (r *Repository) LoadWhitelist() ([]bittorrent.InfoHash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bittorrent.InfoHash, 0, len(r.whitelist))
	for ih := range r.whitelist {
		out = append(out, ih)
	}
	return out, nil
}

func (r *Repository) PutAuthKey(rec backend.AuthKeyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authKeys[rec.ID] = rec
	return nil
}

func (r *Repository) DeleteAuthKey(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.authKeys, id)
	return nil
}

func (r *Repository) LoadAuthKeys() ([]backend.AuthKeyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]backend.AuthKeyRecord, 0, len(r.authKeys))
	for _, rec := range r.authKeys {
		out = append(out, rec)
	}
	return out, nil
}

func (r *Repository) PutCompleted(ih bittorrent.InfoHash, completed uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed[ih] = completed
	return nil
}

func (r *Repository) LoadCompleted() (map[bittorrent.InfoHash]uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[bittorrent.InfoHash]uint64, len(r.completed))
	for ih, c := range r.completed {
		out[ih] = c
	}
	return out, nil
}

func (r *Repository) Close() error { return nil }

func (r *Repository) Ping() error { return nil }

var _ backend.Repository = (*Repository)(nil)
