// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package config implements the configuration for a BitTorrent tracker.
package config

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// ErrMissingRequiredParam is used by drivers to indicate that an entry required
// to be within the DriverConfig.Params map is not present.
var ErrMissingRequiredParam = errors.New("a parameter required by a driver is not present")

// Duration wraps a time.Duration and adds JSON marshalling.
type Duration struct{ time.Duration }

// MarshalJSON transforms a duration into JSON.
func (d *Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON transform JSON into a Duration.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var str string
	err := json.Unmarshal(b, &str)
	d.Duration, err = time.ParseDuration(str)
	return err
}

// IP wraps a net.IP and adds JSON marshalling as a plain dotted/hex string,
// so the field can be left out of the config file entirely (external_ip is
// optional per the tracker mode's reliance on RemoteAddr).
type IP struct{ net.IP }

// MarshalJSON transforms an IP into JSON.
func (ip IP) MarshalJSON() ([]byte, error) {
	if ip.IP == nil {
		return json.Marshal("")
	}
	return json.Marshal(ip.String())
}

// UnmarshalJSON transforms JSON into an IP. An empty string unmarshals to
// a nil net.IP, matching "not configured".
func (ip *IP) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	if str == "" {
		ip.IP = nil
		return nil
	}
	ip.IP = net.ParseIP(str)
	return nil
}

// DriverConfig is the configuration used to connect to a backend.Driver.
type DriverConfig struct {
	Name   string            `json:"driver"`
	Params map[string]string `json:"params,omitempty"`
}

// NetConfig is the configuration used to tune networking behaviour shared
// by both transports.
type NetConfig struct {
	OnReverseProxy bool   `json:"onReverseProxy"`
	RealIPHeader   string `json:"realIPHeader"`
	ExternalIP     IP     `json:"externalIP,omitempty"`
}

// StatsConfig is the configuration used to record runtime statistics.
type StatsConfig struct {
	Enabled           bool     `json:"trackerUsageStatistics"`
	BufferSize        int      `json:"statsBufferSize"`
	IncludeMem        bool     `json:"includeMemStats"`
	VerboseMem        bool     `json:"verboseMemStats"`
	MemUpdateInterval Duration `json:"memStatsInterval"`
}

// TrackerConfig is the configuration for tracker functionality.
type TrackerConfig struct {
	Mode                        string   `json:"mode"` // "public", "listed", "private", "private_listed"
	Announce                    Duration `json:"announce"`
	MinAnnounce                 Duration `json:"minAnnounce"`
	MaxNumWant                  int      `json:"maxNumWant"`
	InactivePeerCleanupInterval Duration `json:"inactivePeerCleanupInterval"`
	MaxPeerTimeout              Duration `json:"maxPeerTimeout"`
	PersistentTorrentCompleted  bool     `json:"persistentTorrentCompletedStat"`
	TorrentMapShards            int      `json:"torrentMapShards"`

	NetConfig
}

// APIConfig is the configuration for the ambient HTTP JSON /check and
// /stats API server.
type APIConfig struct {
	ListenAddr   string   `json:"apiListenAddr"`
	ReadTimeout  Duration `json:"apiReadTimeout"`
	WriteTimeout Duration `json:"apiWriteTimeout"`
	ListenLimit  int      `json:"apiListenLimit"`
}

// HTTPConfig is the configuration for the HTTP protocol.
type HTTPConfig struct {
	ListenAddr   string   `json:"httpListenAddr"`
	ReadTimeout  Duration `json:"httpReadTimeout"`
	WriteTimeout Duration `json:"httpWriteTimeout"`
	ListenLimit  int      `json:"httpListenLimit"`
}

// UDPConfig is the configuration for the UDP protocol.
type UDPConfig struct {
	ListenAddr     string `json:"udpListenAddr"`
	TrustRequestIP bool   `json:"udpTrustRequestIP"`
}

// Config is the global configuration for an instance of the tracker.
type Config struct {
	TrackerConfig
	APIConfig
	HTTPConfig
	UDPConfig
	DriverConfig
	StatsConfig
}

// DefaultConfig is a configuration that can be used as a fallback value.
var DefaultConfig = Config{
	TrackerConfig: TrackerConfig{
		Mode:                        "public",
		Announce:                    Duration{120 * time.Second},
		MinAnnounce:                 Duration{60 * time.Second},
		MaxNumWant:                  74,
		InactivePeerCleanupInterval: Duration{120 * time.Second},
		MaxPeerTimeout:              Duration{270 * time.Second}, // 2*announce + 30s grace
		PersistentTorrentCompleted:  true,
		TorrentMapShards:            128,

		NetConfig: NetConfig{
			OnReverseProxy: false,
			RealIPHeader:   "X-Forwarded-For",
		},
	},

	APIConfig: APIConfig{
		ListenAddr:   "localhost:6880",
		ReadTimeout:  Duration{10 * time.Second},
		WriteTimeout: Duration{10 * time.Second},
	},

	HTTPConfig: HTTPConfig{
		ListenAddr:   "localhost:6881",
		ReadTimeout:  Duration{10 * time.Second},
		WriteTimeout: Duration{10 * time.Second},
	},

	UDPConfig: UDPConfig{
		ListenAddr: "localhost:6882",
	},

	DriverConfig: DriverConfig{
		Name: "memory",
	},

	StatsConfig: StatsConfig{
		Enabled:           true,
		BufferSize:        4096,
		IncludeMem:        true,
		MemUpdateInterval: Duration{5 * time.Second},
	},
}

// Open is a shortcut to open a file, read it, and generate a Config.
// It supports relative and absolute paths. Given "", it returns DefaultConfig.
func Open(path string) (*Config, error) {
	if path == "" {
		return &DefaultConfig, nil
	}

	f, err := os.Open(os.ExpandEnv(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	conf, err := Decode(f)
	if err != nil {
		return nil, err
	}
	return conf, nil
}

// Decode casts an io.Reader into a JSONDecoder and decodes it into a *Config.
func Decode(r io.Reader) (*Config, error) {
	conf := DefaultConfig
	err := json.NewDecoder(r).Decode(&conf)
	return &conf, err
}
