// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package gps handles absolute position fixes in the local world frame (m).
//
// A fix channel is a *float64: nil means the receiver reported nothing, so
// the zero value of any struct carrying channels has no fix. X and Y are
// independent; a receiver may report one without the other.
package gps

import "math"

// DefaultSentinel is the value written to sensor logs for an absent fix,
// and DefaultMinValid the lowest log value still read back as a real fix.
const (
	DefaultSentinel = -100.0
	DefaultMinValid = -90.0
)

// Predicate decides whether a fix channel value is a real reading.
type Predicate func(v float64) bool

// Valid accepts any finite value. NaN and ±Inf are rejected.
func Valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// AtLeast returns a predicate accepting finite values >= min, the
// plausibility-bound convention used by recorded skidpad logs.
func AtLeast(min float64) Predicate {
	return func(v float64) bool {
		return Valid(v) && v >= min
	}
}

// Value returns a channel holding v.
func Value(v float64) *float64 {
	return &v
}

// Read returns a channel holding v, or nil when p rejects it. A nil p
// means Valid.
func Read(v float64, p Predicate) *float64 {
	if p == nil {
		p = Valid
	}
	if !p(v) {
		return nil
	}
	return &v
}

// Accepted reports whether c carries a reading that p accepts.
func Accepted(c *float64, p Predicate) bool {
	if p == nil {
		p = Valid
	}
	return c != nil && p(*c)
}

// Encode returns the on-disk value of a channel: its value, or sentinel
// when the channel is absent or not finite.
func Encode(c *float64, sentinel float64) float64 {
	if c == nil || !Valid(*c) {
		return sentinel
	}
	return *c
}
