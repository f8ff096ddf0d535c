// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package backend pins the narrow durable-state interface AuthService is
// built against, plus the driver-registration pattern the teacher's backend/uguu package
// used for its Postgres driver.
package backend

import (
	"fmt"
	"sync"
	"time"

	"github.com/opentracker/chihaya/bittorrent"
)

// AuthKeyRecord is the durable representation of an AuthKey.
type AuthKeyRecord struct {
	ID string
	// ValidUntil is the zero time.Time for a key that never expires.
	ValidUntil time.Time
}

// Repository is the durable state store consumed by AuthService.
// store.TorrentRepository does not use it. It is intentionally narrow: a
// key/value-ish surface, not a relational schema.
type Repository interface {
	// Whitelist.
	AddWhitelist(ih bittorrent.InfoHash) error
	RemoveWhitelist(ih bittorrent.InfoHash) error
	LoadWhitelist() ([]bittorrent.InfoHash, error)

	// Auth keys.
	PutAuthKey(rec AuthKeyRecord) error
	DeleteAuthKey(id string) error
	LoadAuthKeys() ([]AuthKeyRecord, error)

	// Persistent torrent completed-counters. Every driver implements
	// them, but the tracker core does not call them: with
	// persistent_torrent_completed_stat enabled, completed counters are
	// kept in memory only and do not survive a restart.
	PutCompleted(ih bittorrent.InfoHash, completed uint64) error
	LoadCompleted() (map[bittorrent.InfoHash]uint64, error)

	Close() error
	Ping() error
}

// Driver constructs a Repository from a driver-specific connection string.
type Driver interface {
	New(dsn string) (Repository, error)
}

var (
	driversMu sync.Mutex
	drivers   = make(map[string]Driver)
)

// Register makes a Driver available under name, the way the teacher's
// backend/uguu package registers itself with backend.Register("uguu", ...)
// from an init() function.
func Register(name string, driver Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()

	if driver == nil {
		panic("backend: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("backend: Register called twice for driver " + name)
	}
	drivers[name] = driver
}

// Open constructs a Repository using the driver registered under name.
func Open(name, dsn string) (Repository, error) {
	driversMu.Lock()
	driver, ok := drivers[name]
	driversMu.Unlock()

	if !ok {
		return nil, fmt.Errorf("backend: unknown driver %q (forgotten import?)", name)
	}
	return driver.New(dsn)
}
