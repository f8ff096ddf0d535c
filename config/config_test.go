// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecode_OverridesDefaults(t *testing.T) {
	r := strings.NewReader(`{
		"mode": "private_listed",
		"announce": "5m",
		"maxNumWant": 30,
		"httpListenAddr": "0.0.0.0:7000",
		"driver": "postgres",
		"params": {"dsn": "postgres://localhost/chihaya"}
	}`)

	conf, err := Decode(r)
	require.NoError(t, err)
	require.Equal(t, "private_listed", conf.Mode)
	require.Equal(t, 5*time.Minute, conf.Announce.Duration)
	require.Equal(t, 30, conf.MaxNumWant)
	require.Equal(t, "0.0.0.0:7000", conf.HTTPConfig.ListenAddr)
	require.Equal(t, "postgres", conf.DriverConfig.Name)
	require.Equal(t, "postgres://localhost/chihaya", conf.Params["dsn"])

	// Fields absent from the JSON retain DefaultConfig's values.
	require.Equal(t, DefaultConfig.UDPConfig.ListenAddr, conf.UDPConfig.ListenAddr)
	require.Equal(t, DefaultConfig.PersistentTorrentCompleted, conf.PersistentTorrentCompleted)
}

func TestOpen_EmptyPathReturnsDefault(t *testing.T) {
	conf, err := Open("")
	require.NoError(t, err)
	require.Equal(t, &DefaultConfig, conf)
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open("/nonexistent/path/chihaya.json")
	require.Error(t, err)
}

func TestDuration_RoundTrip(t *testing.T) {
	d := Duration{90 * time.Second}
	b, err := d.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `"1m30s"`, string(b))

	var back Duration
	require.NoError(t, back.UnmarshalJSON(b))
	require.Equal(t, d.Duration, back.Duration)
}

func TestIP_EmptyStringUnmarshalsToNil(t *testing.T) {
	var ip IP
	require.NoError(t, ip.UnmarshalJSON([]byte(`""`)))
	require.Nil(t, ip.IP)

	require.NoError(t, ip.UnmarshalJSON([]byte(`"203.0.113.9"`)))
	require.Equal(t, "203.0.113.9", ip.String())
}
