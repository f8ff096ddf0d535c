// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package stats implements StatsAggregator: a set of per-protocol request
// counters updated asynchronously from the request path. The request
// path never touches the counters directly; it sends an Event onto a
// channel and a single goroutine applies it, the same
// channel-plus-single-consumer shape this package used before, so a hot
// announce/scrape path never contends a counter lock. Response-time
// percentiles continue to use pushrax/faststats, and the flattened JSON
// view for /stats continues to use pushrax/flatjson.
package stats

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/pushrax/faststats"
	"github.com/pushrax/flatjson"
)

// Protocol distinguishes the transport a counted event arrived on.
type Protocol int

const (
	TCP Protocol = iota
	UDP
)

// IPVersion distinguishes the address family of the peer that triggered
// the event.
type IPVersion int

const (
	IPv4 IPVersion = iota
	IPv6
)

// Kind is the category of request the event reports.
type Kind int

const (
	ConnectionsHandled Kind = iota
	AnnouncesHandled
	ScrapesHandled
	UDPConnectHandled
)

// Event is a single counted occurrence, enqueued from the request path.
type Event struct {
	Protocol  Protocol
	IPVersion IPVersion
	Kind      Kind
}

// counterKey addresses one of the twelve {tcp4,tcp6,udp4,udp6} x
// {connections,announces,scrapes} counters, plus udp_connect_handled,
// which only exists for UDP.
type counterKey struct {
	Protocol  Protocol
	IPVersion IPVersion
	Kind      Kind
}

const bufferSize = 4096

// Aggregator is StatsAggregator. The zero value is not usable; construct
// with New.
type Aggregator struct {
	Started time.Time

	ResponseTime struct {
		P50 *faststats.Percentile
		P90 *faststats.Percentile
		P95 *faststats.Percentile
	}

	events             chan Event
	responseTimeEvents chan time.Duration
	snapshot           chan chan Snapshot

	drops    atomic.Uint64
	counters map[counterKey]uint64

	flattened flatjson.Map
}

// Snapshot is a point-in-time, read-only copy of the aggregator's
// counters, safe to serialize from any goroutine.
type Snapshot struct {
	Uptime     time.Duration
	Drops      uint64
	Counters   map[string]uint64
	GoRoutines int
}

// New constructs an Aggregator and starts its single consumer goroutine.
func New() *Aggregator {
	a := &Aggregator{
		Started:            time.Now(),
		events:             make(chan Event, bufferSize),
		responseTimeEvents: make(chan time.Duration, bufferSize),
		snapshot:           make(chan chan Snapshot),
		counters:           make(map[counterKey]uint64),
	}
	a.ResponseTime.P50 = faststats.NewPercentile(0.5)
	a.ResponseTime.P90 = faststats.NewPercentile(0.9)
	a.ResponseTime.P95 = faststats.NewPercentile(0.95)

	a.flattened = flatjson.Flatten(a)

	go a.run()
	return a
}

// Record enqueues ev for counting. On a full buffer the event is dropped
// and stats_drops is incremented instead of blocking the request path.
func (a *Aggregator) Record(ev Event) {
	select {
	case a.events <- ev:
	default:
		a.drops.Add(1)
	}
}

// RecordResponseTime feeds d into the response-time percentile estimators.
func (a *Aggregator) RecordResponseTime(d time.Duration) {
	select {
	case a.responseTimeEvents <- d:
	default:
	}
}

func (a *Aggregator) run() {
	for {
		select {
		case ev := <-a.events:
			a.counters[counterKey{ev.Protocol, ev.IPVersion, ev.Kind}]++

		case d := <-a.responseTimeEvents:
			ms := float64(d) / float64(time.Millisecond)
			a.ResponseTime.P50.AddSample(ms)
			a.ResponseTime.P90.AddSample(ms)
			a.ResponseTime.P95.AddSample(ms)

		case reply := <-a.snapshot:
			reply <- a.buildSnapshot()
		}
	}
}

func (a *Aggregator) buildSnapshot() Snapshot {
	out := make(map[string]uint64, len(a.counters))
	for k, v := range a.counters {
		out[counterName(k)] = v
	}
	return Snapshot{
		Uptime:     time.Since(a.Started),
		Drops:      a.drops.Load(),
		Counters:   out,
		GoRoutines: runtime.NumGoroutine(),
	}
}

// Snapshot returns the current counter values. It round-trips through the
// consumer goroutine so it never races the counters being mutated.
func (a *Aggregator) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	a.snapshot <- reply
	return <-reply
}

// Flattened exposes the aggregator's exported fields as a flat key/value
// map for the /stats endpoint.
func (a *Aggregator) Flattened() flatjson.Map {
	return a.flattened
}

func counterName(k counterKey) string {
	proto := "tcp"
	if k.Protocol == UDP {
		proto = "udp"
	}
	ipv := "4"
	if k.IPVersion == IPv6 {
		ipv = "6"
	}

	var kind string
	switch k.Kind {
	case ConnectionsHandled:
		kind = "connections_handled"
	case AnnouncesHandled:
		kind = "announces_handled"
	case ScrapesHandled:
		kind = "scrapes_handled"
	case UDPConnectHandled:
		kind = "udp_connect_handled"
	}

	return proto + ipv + "_" + kind
}
