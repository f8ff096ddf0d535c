// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package redis implements backend.Repository over go-redis, mirroring the
// pack's modasi-mika store/redis package: one hash per record, keyed by a
// short prefix plus the record's natural id, with Keys-based prefix scans
// where a set is needed.
package redis

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v7"
	"github.com/pkg/errors"

	"github.com/opentracker/chihaya/backend"
	"github.com/opentracker/chihaya/bittorrent"
)

const Name = "redis"

const clientName = "chihaya"

type driver struct{}

func (driver) New(addr string) (backend.Repository, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		OnConnect: func(conn *redis.Conn) error {
			return conn.ClientSetName(clientName).Err()
		},
	})
	if err := client.Ping().Err(); err != nil {
		return nil, errors.Wrap(err, "redis: ping")
	}
	return &Repository{client: client}, nil
}

func init() {
	backend.Register(Name, driver{})
}

// Repository is the Redis-backed backend.Repository.
type Repository struct {
	client *redis.Client
}

func whitelistKey(ih bittorrent.InfoHash) string { return fmt.Sprintf("wl:%s", ih.String()) }
func whitelistPrefix() string                    { return "wl:*" }

func authKeyKey(id string) string { return fmt.Sprintf("ak:%s", id) }
func authKeyPrefix() string       { return "ak:*" }

func completedKey(ih bittorrent.InfoHash) string { return fmt.Sprintf("pt:%s", ih.String()) }
func completedPrefix() string                    { return "pt:*" }

func (r *Repository) AddWhitelist(ih bittorrent.InfoHash) error {
	err := r.client.HSet(whitelistKey(ih), "info_hash", ih.String()).Err()
	return errors.Wrap(err, "redis: add whitelist")
}

func (r *Repository) RemoveWhitelist(ih bittorrent.InfoHash) error {
	err := r.client.Del(whitelistKey(ih)).Err()
	return errors.Wrap(err, "redis: remove whitelist")
}

func (r *Repository) LoadWhitelist() ([]bittorrent.InfoHash, error) {
	keys, err := r.client.Keys(whitelistPrefix()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis: scan whitelist")
	}

	out := make([]bittorrent.InfoHash, 0, len(keys))
	for _, key := range keys {
		hex, err := r.client.HGet(key, "info_hash").Result()
		if err != nil {
			continue
		}
		ih, err := bittorrent.InfoHashFromHex(hex)
		if err != nil {
			continue
		}
		out = append(out, ih)
	}
	return out, nil
}

func (r *Repository) PutAuthKey(rec backend.AuthKeyRecord) error {
	fields := map[string]interface{}{"id": rec.ID}
	if !rec.ValidUntil.IsZero() {
		fields["valid_until"] = rec.ValidUntil.Unix()
	}
	err := r.client.HSet(authKeyKey(rec.ID), fields).Err()
	return errors.Wrap(err, "redis: put auth key")
}

func (r *Repository) DeleteAuthKey(id string) error {
	err := r.client.Del(authKeyKey(id)).Err()
	return errors.Wrap(err, "redis: delete auth key")
}

func (r *Repository) LoadAuthKeys() ([]backend.AuthKeyRecord, error) {
	keys, err := r.client.Keys(authKeyPrefix()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis: scan auth keys")
	}

	out := make([]backend.AuthKeyRecord, 0, len(keys))
	for _, key := range keys {
		v, err := r.client.HGetAll(key).Result()
		if err != nil || v["id"] == "" {
			continue
		}
		rec := backend.AuthKeyRecord{ID: v["id"]}
		if raw, ok := v["valid_until"]; ok && raw != "" {
			sec, err := strconv.ParseInt(raw, 10, 64)
			if err == nil {
				rec.ValidUntil = time.Unix(sec, 0).UTC()
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *Repository) PutCompleted(ih bittorrent.InfoHash, completed uint64) error {
	err := r.client.HSet(completedKey(ih), map[string]interface{}{
		"info_hash": ih.String(),
		"completed": completed,
	}).Err()
	return errors.Wrap(err, "redis: put completed")
}

func (r *Repository) LoadCompleted() (map[bittorrent.InfoHash]uint64, error) {
	keys, err := r.client.Keys(completedPrefix()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis: scan completed")
	}

	out := make(map[bittorrent.InfoHash]uint64, len(keys))
	for _, key := range keys {
		v, err := r.client.HGetAll(key).Result()
		if err != nil {
			continue
		}
		ih, err := bittorrent.InfoHashFromHex(v["info_hash"])
		if err != nil {
			continue
		}
		completed, _ := strconv.ParseUint(v["completed"], 10, 64)
		out[ih] = completed
	}
	return out, nil
}

func (r *Repository) Close() error { return r.client.Close() }

func (r *Repository) Ping() error { return r.client.Ping().Err() }

var _ backend.Repository = (*Repository)(nil)
