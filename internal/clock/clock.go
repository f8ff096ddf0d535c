// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package clock provides the single time source injected into the tracker
// core at boot, instead of scattering calls to time.Now across it.
package clock

import "time"

// Clock supplies the current time. Production code uses System; tests
// substitute a Frozen clock to advance time deterministically.
type Clock interface {
	Now() time.Time
}

// System is the wall-clock Clock used outside of tests.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time { return time.Now() }

// Frozen is a Clock that only moves when told to, for deterministic tests
// of janitor sweeps and auth-key expiry.
type Frozen struct {
	now time.Time
}

// NewFrozen returns a Frozen clock starting at t.
func NewFrozen(t time.Time) *Frozen {
	return &Frozen{now: t}
}

// Now returns the frozen instant.
func (f *Frozen) Now() time.Time { return f.now }

// Advance moves the frozen clock forward by d.
func (f *Frozen) Advance(d time.Duration) { f.now = f.now.Add(d) }
