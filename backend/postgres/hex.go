// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package postgres

import (
	"time"

	"github.com/pkg/errors"

	"github.com/opentracker/chihaya/bittorrent"
)

func decodeInfoHash(hex string) (bittorrent.InfoHash, error) {
	ih, err := bittorrent.InfoHashFromHex(hex)
	if err != nil {
		return bittorrent.InfoHash{}, errors.Wrapf(err, "postgres: decode info hash %q", hex)
	}
	return ih, nil
}

func decodeInfoHashes(hexes []string) ([]bittorrent.InfoHash, error) {
	out := make([]bittorrent.InfoHash, 0, len(hexes))
	for _, h := range hexes {
		ih, err := decodeInfoHash(h)
		if err != nil {
			return nil, err
		}
		out = append(out, ih)
	}
	return out, nil
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
