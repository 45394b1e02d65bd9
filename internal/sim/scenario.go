package sim

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

const g = 9.80665 // m/s²

var ErrInvalidScenario = errors.New("sim: invalid scenario")

// NoiseConfig holds the standard deviations of the simulated sensor errors.
type NoiseConfig struct {
	Enabled    bool    `yaml:"enabled"`
	AccelSigma float64 `yaml:"accel_sigma"` // m/s²
	GyroSigma  float64 `yaml:"gyro_sigma"`  // rad/s
	GPSSigma   float64 `yaml:"gps_sigma"`   // m
}

// Scenario describes a skidpad run: a straight run-up from rest, Laps
// circles of Radius (the first half turning one way, the second half the
// other) at constant speed, then a straight coast.
type Scenario struct {
	SpeedKmh float64 `yaml:"speed_kmh"`
	Radius   float64 `yaml:"radius_m"`
	Laps     float64 `yaml:"laps"`
	RunUp    float64 `yaml:"run_up_s"`
	Coast    float64 `yaml:"coast_s"`

	IMUHz float64 `yaml:"imu_hz"`
	GPSHz float64 `yaml:"gps_hz"`

	Noise NoiseConfig `yaml:"noise"`

	// Seed for the noise generator; 0 picks one from the clock.
	Seed uint64 `yaml:"seed"`
}

// DefaultScenario is the standard skidpad exercise: 40 km/h on a 7.625 m
// circle, two laps each way, IMU at 100 Hz and GNSS at 2 Hz.
func DefaultScenario() Scenario {
	return Scenario{
		SpeedKmh: 40,
		Radius:   7.625,
		Laps:     4,
		RunUp:    2,
		Coast:    1,
		IMUHz:    100,
		GPSHz:    2,
		Noise: NoiseConfig{
			Enabled:    true,
			AccelSigma: 2 * g * 0.010,
			GyroSigma:  2 * math.Pi * 0.010,
			GPSSigma:   0.01,
		},
	}
}

// LoadScenario reads a YAML scenario. Keys missing from the file keep
// their DefaultScenario values.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	sc := DefaultScenario()
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks that the scenario describes a drivable run.
func (s Scenario) Validate() error {
	switch {
	case s.SpeedKmh <= 0:
		return fmt.Errorf("%w: speed_kmh must be positive, got %v", ErrInvalidScenario, s.SpeedKmh)
	case s.Radius <= 0:
		return fmt.Errorf("%w: radius_m must be positive, got %v", ErrInvalidScenario, s.Radius)
	case s.Laps <= 0:
		return fmt.Errorf("%w: laps must be positive, got %v", ErrInvalidScenario, s.Laps)
	case s.RunUp <= 0:
		return fmt.Errorf("%w: run_up_s must be positive, got %v", ErrInvalidScenario, s.RunUp)
	case s.Coast < 0:
		return fmt.Errorf("%w: coast_s must not be negative, got %v", ErrInvalidScenario, s.Coast)
	case s.IMUHz <= 0:
		return fmt.Errorf("%w: imu_hz must be positive, got %v", ErrInvalidScenario, s.IMUHz)
	case s.GPSHz <= 0 || s.GPSHz > s.IMUHz:
		return fmt.Errorf("%w: gps_hz must be in (0, imu_hz], got %v", ErrInvalidScenario, s.GPSHz)
	case s.Noise.Enabled && (s.Noise.AccelSigma < 0 || s.Noise.GyroSigma < 0 || s.Noise.GPSSigma < 0):
		return fmt.Errorf("%w: noise sigmas must not be negative", ErrInvalidScenario)
	}
	return nil
}

// Speed returns the cruising speed in m/s.
func (s Scenario) Speed() float64 { return s.SpeedKmh * 1000 / 3600 }

// YawRate returns the skidpad angular rate in rad/s.
func (s Scenario) YawRate() float64 { return s.Speed() / s.Radius }

// RunUpAccel returns the constant acceleration of the run-up, m/s².
func (s Scenario) RunUpAccel() float64 { return s.Speed() / s.RunUp }

// RunUpDistance returns the length of the run-up, m.
func (s Scenario) RunUpDistance() float64 {
	a := s.RunUpAccel()
	return 0.5 * a * s.RunUp * s.RunUp
}

// Phases returns the times at which the skidpad starts, ends, and the run
// finishes.
func (s Scenario) Phases() (skidpadStart, skidpadEnd, finish float64) {
	circuit := 2 * math.Pi * s.Radius * s.Laps
	skidpadStart = s.RunUp
	skidpadEnd = skidpadStart + circuit/s.Speed()
	finish = skidpadEnd + s.Coast
	return
}

// SampleCount returns the number of IMU samples in the run.
func (s Scenario) SampleCount() int {
	_, _, finish := s.Phases()
	return int(finish * s.IMUHz)
}

// FixInterval returns the number of IMU samples between GNSS fixes.
func (s Scenario) FixInterval() int {
	n := int(s.IMUHz / s.GPSHz)
	if n < 1 {
		n = 1
	}
	return n
}
