// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package query parses a BitTorrent tracker's raw query string without
// going through net/url's form decoder: info_hash and peer_id are raw
// byte strings that happen to be percent-encoded, and url.ParseQuery
// rejects some byte sequences trackers are expected to accept (notably
// standalone '+' is not a space here). Values are kept in their decoded,
// raw form; numeric fields are parsed on demand via Uint64.
package query

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/opentracker/chihaya/bittorrent"
)

// Query is a parsed query string. Params holds the last value seen for
// each key (matching the teacher's single-value lookup convention);
// Infohashes additionally collects every info_hash value in order, since
// scrape requests may repeat the key.
type Query struct {
	Params     map[string]string
	Infohashes []string
}

// New parses rawQuery (without the leading '?') into a Query.
func New(rawQuery string) (*Query, error) {
	q := &Query{Params: make(map[string]string)}

	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}

		key := pair
		value := ""
		if idx := strings.IndexByte(pair, '='); idx >= 0 {
			key = pair[:idx]
			value = pair[idx+1:]
		}

		key, err := unescape(key)
		if err != nil {
			return nil, bittorrent.ErrMalformedRequest
		}
		value, err = unescape(value)
		if err != nil {
			return nil, bittorrent.ErrMalformedRequest
		}

		q.Params[key] = value
		if key == "info_hash" {
			q.Infohashes = append(q.Infohashes, value)
		}
	}

	return q, nil
}

// unescape decodes percent-encoding the way a tracker client does: '+'
// is a literal plus, not a space, so QueryUnescape's form-encoding
// behavior is avoided by pre-escaping '+' before delegating to it.
func unescape(s string) (string, error) {
	return url.QueryUnescape(strings.ReplaceAll(s, "+", "%2B"))
}

// Uint64 parses the named parameter as an unsigned integer.
func (q *Query) Uint64(key string) (uint64, error) {
	v, ok := q.Params[key]
	if !ok {
		return 0, bittorrent.ErrMalformedRequest
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, bittorrent.ErrMalformedRequest
	}
	return n, nil
}
