// Package sim synthesizes the ground truth and the noisy inertial and GNSS
// measurements of a skidpad run.
package sim

import (
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/relabs-tech/dead_reckoning/internal/gps"
	"github.com/relabs-tech/dead_reckoning/internal/imu"
	"github.com/relabs-tech/dead_reckoning/internal/reckon"
)

// Result is one simulated run. Truth and Samples are index aligned.
type Result struct {
	Truth   []reckon.Point
	Samples []imu.Sample
	Seed    uint64 // seed actually used for the noise
}

// Run simulates sc.
func Run(sc Scenario) (*Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	seed := sc.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	n := sc.SampleCount()
	res := &Result{
		Truth:   make([]reckon.Point, n),
		Samples: make([]imu.Sample, n),
		Seed:    seed,
	}

	t1, t2, t3 := sc.Phases()
	hz := sc.IMUHz
	for i := 0; i < int(t1*hz); i++ {
		res.set(i, runUp(sc, float64(i)/hz))
	}
	for i := int(t1 * hz); i < int(t2*hz); i++ {
		res.set(i, skidpad(sc, float64(i)/hz))
	}
	for i := int(t2 * hz); i < int(t3*hz) && i < n; i++ {
		res.set(i, coast(sc, float64(i)/hz))
	}

	interval := sc.FixInterval()
	for i := range res.Samples {
		if i%interval == 0 {
			res.Samples[i].FixX = gps.Value(res.Truth[i].X)
			res.Samples[i].FixY = gps.Value(res.Truth[i].Y)
		}
	}

	if sc.Noise.Enabled {
		addNoise(res.Samples, sc.Noise, seed)
	}
	return res, nil
}

// motion is the true state and the ideal sensor reading at one instant.
type motion struct {
	t, x, y, heading   float64
	accX, accY, omegaZ float64
}

func (r *Result) set(i int, m motion) {
	r.Truth[i] = reckon.Point{T: m.t, X: m.x, Y: m.y, Heading: m.heading}
	r.Samples[i] = imu.Sample{T: m.t, AccX: m.accX, AccY: m.accY, OmegaZ: m.omegaZ}
}

func runUp(sc Scenario, t float64) motion {
	a := sc.RunUpAccel()
	return motion{t: t, y: 0.5 * a * t * t, accX: -a}
}

func skidpad(sc Scenario, t float64) motion {
	t1, _, _ := sc.Phases()
	w := sc.YawRate()
	r := sc.Radius
	theta := w * (t - t1)
	turn := math.Pi * sc.Laps // angle after which the direction reverses

	m := motion{t: t, y: r*math.Sin(theta) + sc.RunUpDistance()}
	if theta <= turn {
		m.x = -r*math.Cos(theta) + r
		m.heading = -theta
		m.accY = -r * w * w
		m.omegaZ = -w
	} else {
		m.x = r*math.Cos(theta) - r
		m.heading = theta - 2*turn
		m.accY = r * w * w
		m.omegaZ = w
	}
	return m
}

func coast(sc Scenario, t float64) motion {
	_, t2, _ := sc.Phases()
	return motion{t: t, y: sc.Speed()*(t-t2) + sc.RunUpDistance()}
}

func addNoise(samples []imu.Sample, cfg NoiseConfig, seed uint64) {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	unit := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	for i := range samples {
		s := &samples[i]
		s.AccX += cfg.AccelSigma * unit.Rand()
		s.AccY += cfg.AccelSigma * unit.Rand()
		s.OmegaZ += cfg.GyroSigma * unit.Rand()
		if s.FixX != nil {
			s.FixX = gps.Value(*s.FixX + cfg.GPSSigma*unit.Rand())
		}
		if s.FixY != nil {
			s.FixY = gps.Value(*s.FixY + cfg.GPSSigma*unit.Rand())
		}
	}
}
