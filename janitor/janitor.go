// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package janitor runs the periodic sweep that evicts inactive peers (and
// the torrents they leave empty) from a tracker.Tracker's repository. It
// has no teacher precedent -- the teacher's tracker.Driver never aged out
// peers -- so its goroutine/select shutdown shape is grounded on the
// upstream chihaya-chihaya memory peer store's garbage collection loop
// instead, rewritten around this repository's injected Clock and the
// teacher's glog logging idiom.
package janitor

import (
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/opentracker/chihaya/internal/clock"
	"github.com/opentracker/chihaya/tracker"
)

// Config configures the Janitor.
type Config struct {
	// Interval is how often the sweep runs. Defaults to 120s.
	Interval time.Duration
	// Threshold is how long a peer may go without announcing before it
	// is considered inactive. Defaults to 2*announce_interval+30s by
	// whoever constructs the Janitor; this package has no opinion on
	// announce intervals.
	Threshold time.Duration
}

func (c Config) interval() time.Duration {
	if c.Interval <= 0 {
		return 120 * time.Second
	}
	return c.Interval
}

// Janitor periodically removes inactive peers and the torrents they leave
// empty from a tracker's repository.
type Janitor struct {
	cfg     Config
	tracker *tracker.Tracker
	clock   clock.Clock

	closing  chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New constructs a Janitor. It does not start running until Run is
// called.
func New(cfg Config, tkr *tracker.Tracker, c clock.Clock) *Janitor {
	return &Janitor{
		cfg:     cfg,
		tracker: tkr,
		clock:   c,
		closing: make(chan struct{}),
	}
}

// Run blocks, sweeping the repository every Interval until Stop is
// called. Callers typically invoke it in its own goroutine.
func (j *Janitor) Run() {
	j.wg.Add(1)
	defer j.wg.Done()

	interval := j.cfg.interval()
	glog.Infof("janitor: starting, interval=%s threshold=%s", interval, j.cfg.Threshold)

	for {
		select {
		case <-j.closing:
			glog.Info("janitor: stopped")
			return
		case <-time.After(interval):
			j.sweep()
		}
	}
}

func (j *Janitor) sweep() {
	start := j.clock.Now()
	peersRemoved, torrentsRemoved := j.tracker.RemoveInactive(j.cfg.Threshold)
	if peersRemoved > 0 || torrentsRemoved > 0 {
		glog.Infof("janitor: swept in %s, removed %d peers and %d empty torrents",
			j.clock.Now().Sub(start), peersRemoved, torrentsRemoved)
	} else {
		glog.V(2).Infof("janitor: swept in %s, nothing to remove", j.clock.Now().Sub(start))
	}
}

// Stop signals Run to return and waits for it to do so. Calling Stop
// before Run has started is safe: Run will observe the close and return
// immediately.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() {
		close(j.closing)
	})
	j.wg.Wait()
}
