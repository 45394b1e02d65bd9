// Package reckon integrates timestamped accelerometer and gyroscope samples,
// optionally corrected by intermittent position fixes, into a 2-D trajectory.
package reckon

import (
	"math"

	"github.com/relabs-tech/dead_reckoning/internal/gps"
	"github.com/relabs-tech/dead_reckoning/internal/imu"
)

// Point is the estimated world-frame position for one input sample.
type Point struct {
	T         float64 `json:"t"`       // s
	X         float64 `json:"x"`       // m
	Y         float64 `json:"y"`       // m
	Heading   float64 `json:"heading"` // rad, unwrapped
	Corrected bool    `json:"corrected"`
}

// State is carried from one step to the next. The zero value is the start
// of a run: heading, velocity and position all zero.
//
// Theta is never wrapped to [0, 2π); sin and cos stay accurate in float64
// far beyond any realistic run length.
type State struct {
	Theta float64 // heading, rad
	U, V  float64 // world-frame velocity, m/s
	X, Y  float64 // world-frame position, m
}

// Step advances s by one sample of duration dt and returns the new point.
// Each fix channel accepted by valid replaces the carried position before
// the velocity is integrated; x and y are corrected independently.
func (s *State) Step(smp imu.Sample, dt float64, valid gps.Predicate) Point {
	s.Theta += smp.OmegaZ * dt

	corrected := false
	if gps.Accepted(smp.FixX, valid) {
		s.X = *smp.FixX
		corrected = true
	}
	if gps.Accepted(smp.FixY, valid) {
		s.Y = *smp.FixY
		corrected = true
	}

	sin, cos := math.Sin(s.Theta), math.Cos(s.Theta)
	s.U += -(smp.AccX*sin + smp.AccY*cos) * dt
	s.V += -(smp.AccX*cos + smp.AccY*sin) * dt

	s.X = s.X + s.U*dt
	s.Y = s.Y + s.V*dt

	return Point{
		T:         smp.T,
		X:         s.X,
		Y:         s.Y,
		Heading:   s.Theta,
		Corrected: corrected,
	}
}
