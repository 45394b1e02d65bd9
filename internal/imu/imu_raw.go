package imu

import "math"

// StandardGravity in m/s².
const StandardGravity = 9.80665

// IMURaw represents a single raw IMU sample in device counts.
type IMURaw struct {
	Source string `json:"source"`

	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`
}

type IMURawSource interface {
	NextRaw() (IMURaw, error)
}

// Scale converts MPU9250-class counts to physical units.
//
//	AccelRange: 0=±2g, 1=±4g, 2=±8g, 3=±16g
//	GyroRange:  0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
type Scale struct {
	AccelRange byte
	GyroRange  byte
}

// AccelPerCount returns m/s² per LSB.
func (s Scale) AccelPerCount() float64 {
	lsbPerG := 16384.0 / float64(int(1)<<(s.AccelRange&0x3))
	return StandardGravity / lsbPerG
}

// GyroPerCount returns rad/s per LSB.
func (s Scale) GyroPerCount() float64 {
	lsbPerDeg := 131.0 / float64(int(1)<<(s.GyroRange&0x3))
	return (math.Pi / 180.0) / lsbPerDeg
}

// ToSample converts a raw reading taken at time t into a Sample with no fix.
func (s Scale) ToSample(raw IMURaw, t float64) Sample {
	a := s.AccelPerCount()
	g := s.GyroPerCount()
	return Sample{
		T:      t,
		AccX:   float64(raw.Ax) * a,
		AccY:   float64(raw.Ay) * a,
		AccZ:   float64(raw.Az) * a,
		OmegaX: float64(raw.Gx) * g,
		OmegaY: float64(raw.Gy) * g,
		OmegaZ: float64(raw.Gz) * g,
	}
}
