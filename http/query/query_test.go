// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package query

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_ParsesParams(t *testing.T) {
	q, err := New("info_hash=%01%02%03&peer_id=abc&port=6881&left=0")
	require.NoError(t, err)
	require.Equal(t, "\x01\x02\x03", q.Params["info_hash"])
	require.Equal(t, "abc", q.Params["peer_id"])
	require.Equal(t, "6881", q.Params["port"])
	require.Equal(t, []string{"\x01\x02\x03"}, q.Infohashes)
}

func TestNew_PlusIsLiteralNotSpace(t *testing.T) {
	q, err := New("peer_id=a+b")
	require.NoError(t, err)
	require.Equal(t, "a+b", q.Params["peer_id"])
}

func TestNew_RepeatedInfoHashCollectsAll(t *testing.T) {
	q, err := New("info_hash=aaaa&info_hash=bbbb")
	require.NoError(t, err)
	require.Equal(t, []string{"aaaa", "bbbb"}, q.Infohashes)
}

func TestNew_MalformedPercentEncoding(t *testing.T) {
	_, err := New("peer_id=%zz")
	require.Error(t, err)
}

func TestNew_EmptyQuery(t *testing.T) {
	q, err := New("")
	require.NoError(t, err)
	require.Empty(t, q.Params)
}

func TestUint64_MissingKey(t *testing.T) {
	q, err := New("left=100")
	require.NoError(t, err)

	_, err = q.Uint64("uploaded")
	require.Error(t, err)

	v, err := q.Uint64("left")
	require.NoError(t, err)
	require.EqualValues(t, 100, v)
}

func TestUint64_NonNumeric(t *testing.T) {
	q, err := New("left=notanumber")
	require.NoError(t, err)
	_, err = q.Uint64("left")
	require.Error(t, err)
}
