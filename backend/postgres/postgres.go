// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package postgres implements backend.Repository over Postgres. It is
// adapted from the teacher's backend/uguu driver: the same
// Version/InitTables/UpgradeToNext migration shape, narrowed from uguu's
// full torrent-index schema down to the three tables the tracker core
// actually needs (whitelist, auth_keys, persistent_torrents), and built on
// sqlx instead of raw database/sql the way the pack's modasi-mika
// store/mysql package does.
package postgres

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/opentracker/chihaya/backend"
	"github.com/opentracker/chihaya/bittorrent"
)

const Name = "postgres"

const configVersionKey = "chihaya.version"

type driver struct{}

func (driver) New(dsn string) (backend.Repository, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: connect")
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "postgres: migrate")
	}
	return repo, nil
}

func init() {
	backend.Register(Name, driver{})
}

// Repository is the Postgres-backed backend.Repository.
type Repository struct {
	db *sqlx.DB
}

func (r *Repository) version() (string, error) {
	var version string
	err := r.db.Get(&version, `SELECT val FROM chihaya_config WHERE key = $1`, configVersionKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return version, err
}

func (r *Repository) setVersion(version string) error {
	_, err := r.db.Exec(`DELETE FROM chihaya_config WHERE key = $1`, configVersionKey)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(`INSERT INTO chihaya_config(key, val) VALUES ($1, $2)`, configVersionKey, version)
	return err
}

// migrate creates the schema on a fresh database. Unlike the teacher's
// uguu driver (which walks several numbered versions), this repository
// only ever had one schema, so migrate is idempotent rather than
// incremental.
func (r *Repository) migrate() error {
	_, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS chihaya_config (
		key VARCHAR(255) PRIMARY KEY,
		val VARCHAR(255) NOT NULL
	)`)
	if err != nil {
		return errors.Wrap(err, "create chihaya_config")
	}

	_, err = r.db.Exec(`CREATE TABLE IF NOT EXISTS whitelist (
		info_hash CHAR(40) PRIMARY KEY
	)`)
	if err != nil {
		return errors.Wrap(err, "create whitelist")
	}

	_, err = r.db.Exec(`CREATE TABLE IF NOT EXISTS auth_keys (
		id CHAR(32) PRIMARY KEY,
		valid_until BIGINT
	)`)
	if err != nil {
		return errors.Wrap(err, "create auth_keys")
	}

	_, err = r.db.Exec(`CREATE TABLE IF NOT EXISTS persistent_torrents (
		info_hash CHAR(40) PRIMARY KEY,
		completed BIGINT NOT NULL DEFAULT 0
	)`)
	if err != nil {
		return errors.Wrap(err, "create persistent_torrents")
	}

	version, err := r.version()
	if err != nil {
		return errors.Wrap(err, "read version")
	}
	if version == "" {
		return r.setVersion("1")
	}
	return nil
}

func (r *Repository) AddWhitelist(ih bittorrent.InfoHash) error {
	_, err := r.db.Exec(`INSERT INTO whitelist(info_hash) VALUES ($1) ON CONFLICT DO NOTHING`, ih.String())
	return errors.Wrap(err, "postgres: add whitelist")
}

func (r *Repository) RemoveWhitelist(ih bittorrent.InfoHash) error {
	_, err := r.db.Exec(`DELETE FROM whitelist WHERE info_hash = $1`, ih.String())
	return errors.Wrap(err, "postgres: remove whitelist")
}

func (r *Repository) LoadWhitelist() ([]bittorrent.InfoHash, error) {
	var hexes []string
	if err := r.db.Select(&hexes, `SELECT info_hash FROM whitelist`); err != nil {
		return nil, errors.Wrap(err, "postgres: load whitelist")
	}
	return decodeInfoHashes(hexes)
}

func (r *Repository) PutAuthKey(rec backend.AuthKeyRecord) error {
	var validUntil sql.NullInt64
	if !rec.ValidUntil.IsZero() {
		validUntil = sql.NullInt64{Int64: rec.ValidUntil.Unix(), Valid: true}
	}
	_, err := r.db.Exec(`
		INSERT INTO auth_keys(id, valid_until) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET valid_until = EXCLUDED.valid_until`,
		rec.ID, validUntil)
	return errors.Wrap(err, "postgres: put auth key")
}

func (r *Repository) DeleteAuthKey(id string) error {
	_, err := r.db.Exec(`DELETE FROM auth_keys WHERE id = $1`, id)
	return errors.Wrap(err, "postgres: delete auth key")
}

type authKeyRow struct {
	ID         string        `db:"id"`
	ValidUntil sql.NullInt64 `db:"valid_until"`
}

func (r *Repository) LoadAuthKeys() ([]backend.AuthKeyRecord, error) {
	var rows []authKeyRow
	if err := r.db.Select(&rows, `SELECT id, valid_until FROM auth_keys`); err != nil {
		return nil, errors.Wrap(err, "postgres: load auth keys")
	}

	out := make([]backend.AuthKeyRecord, 0, len(rows))
	for _, row := range rows {
		rec := backend.AuthKeyRecord{ID: row.ID}
		if row.ValidUntil.Valid {
			rec.ValidUntil = unixTime(row.ValidUntil.Int64)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *Repository) PutCompleted(ih bittorrent.InfoHash, completed uint64) error {
	_, err := r.db.Exec(`
		INSERT INTO persistent_torrents(info_hash, completed) VALUES ($1, $2)
		ON CONFLICT (info_hash) DO UPDATE SET completed = EXCLUDED.completed`,
		ih.String(), completed)
	return errors.Wrap(err, "postgres: put completed")
}

type completedRow struct {
	InfoHash  string `db:"info_hash"`
	Completed uint64 `db:"completed"`
}

func (r *Repository) LoadCompleted() (map[bittorrent.InfoHash]uint64, error) {
	var rows []completedRow
	if err := r.db.Select(&rows, `SELECT info_hash, completed FROM persistent_torrents`); err != nil {
		return nil, errors.Wrap(err, "postgres: load completed")
	}

	out := make(map[bittorrent.InfoHash]uint64, len(rows))
	for _, row := range rows {
		ih, err := decodeInfoHash(row.InfoHash)
		if err != nil {
			continue
		}
		out[ih] = row.Completed
	}
	return out, nil
}

func (r *Repository) Close() error { return r.db.Close() }

func (r *Repository) Ping() error { return r.db.Ping() }

var _ backend.Repository = (*Repository)(nil)
