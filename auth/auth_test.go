// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opentracker/chihaya/backend"
	"github.com/opentracker/chihaya/backend/memory"
	"github.com/opentracker/chihaya/bittorrent"
	"github.com/opentracker/chihaya/internal/clock"
)

func TestGenerateAndVerifyKey(t *testing.T) {
	svc, err := New(memory.New(), clock.NewFrozen(time.Now()))
	require.NoError(t, err)

	id, err := svc.GenerateKey(time.Hour)
	require.NoError(t, err)
	require.Len(t, id, keyLength)

	require.Equal(t, Accept, svc.VerifyKey(id))
}

func TestVerifyKey_Malformed(t *testing.T) {
	svc, err := New(memory.New(), clock.NewFrozen(time.Now()))
	require.NoError(t, err)

	require.Equal(t, Malformed, svc.VerifyKey("too-short"))
	require.Equal(t, Malformed, svc.VerifyKey("not-alphanumeric-------------!!"))
}

func TestVerifyKey_Unknown(t *testing.T) {
	svc, err := New(memory.New(), clock.NewFrozen(time.Now()))
	require.NoError(t, err)

	require.Equal(t, Unknown, svc.VerifyKey("abcdefghijklmnopqrstuvwxyz012345"))
}

func TestVerifyKey_Expired(t *testing.T) {
	now := time.Now()
	frozen := clock.NewFrozen(now)
	svc, err := New(memory.New(), frozen)
	require.NoError(t, err)

	id, err := svc.GenerateKey(time.Minute)
	require.NoError(t, err)
	require.Equal(t, Accept, svc.VerifyKey(id))

	frozen.Advance(2 * time.Minute)
	require.Equal(t, Expired, svc.VerifyKey(id))
}

func TestGenerateKey_NeverExpires(t *testing.T) {
	now := time.Now()
	frozen := clock.NewFrozen(now)
	svc, err := New(memory.New(), frozen)
	require.NoError(t, err)

	id, err := svc.GenerateKey(0)
	require.NoError(t, err)

	frozen.Advance(365 * 24 * time.Hour)
	require.Equal(t, Accept, svc.VerifyKey(id))
}

func TestRemoveKey_Idempotent(t *testing.T) {
	svc, err := New(memory.New(), clock.NewFrozen(time.Now()))
	require.NoError(t, err)

	id, err := svc.GenerateKey(time.Hour)
	require.NoError(t, err)

	require.NoError(t, svc.RemoveKey(id))
	require.Equal(t, Unknown, svc.VerifyKey(id))
	require.NoError(t, svc.RemoveKey(id))
}

func TestWhitelist(t *testing.T) {
	svc, err := New(memory.New(), clock.NewFrozen(time.Now()))
	require.NoError(t, err)

	var raw [20]byte
	raw[0] = 1
	ih, err := bittorrent.NewInfoHash(raw[:])
	require.NoError(t, err)

	require.False(t, svc.IsWhitelisted(ih))
	require.NoError(t, svc.AddToWhitelist(ih))
	require.True(t, svc.IsWhitelisted(ih))
	require.NoError(t, svc.RemoveFromWhitelist(ih))
	require.False(t, svc.IsWhitelisted(ih))
}

func TestNew_LoadsExistingState(t *testing.T) {
	repo := memory.New()
	require.NoError(t, repo.PutAuthKey(backend.AuthKeyRecord{ID: "preexisting00000000000000000000a"}))

	var raw [20]byte
	raw[1] = 9
	ih, err := bittorrent.NewInfoHash(raw[:])
	require.NoError(t, err)
	require.NoError(t, repo.AddWhitelist(ih))

	svc, err := New(repo, clock.NewFrozen(time.Now()))
	require.NoError(t, err)

	require.Equal(t, Accept, svc.VerifyKey("preexisting00000000000000000000a"))
	require.True(t, svc.IsWhitelisted(ih))
}
