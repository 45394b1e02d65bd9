package reckon

import (
	"github.com/relabs-tech/dead_reckoning/internal/gps"
	"github.com/relabs-tech/dead_reckoning/internal/imu"
)

// Integrator is the incremental form of Integrate, for samples that arrive
// one at a time. It is not safe for concurrent use.
type Integrator struct {
	dt    float64
	valid gps.Predicate
	state State
	count int
}

// NewIntegrator returns an Integrator at the start of a run.
func NewIntegrator(opts Options) (*Integrator, error) {
	dt, err := opts.Dt()
	if err != nil {
		return nil, err
	}
	return &Integrator{dt: dt, valid: opts.FixValid}, nil
}

// Push integrates one sample.
func (it *Integrator) Push(s imu.Sample) Point {
	it.count++
	return it.state.Step(s, it.dt, it.valid)
}

// State returns a copy of the current integration state.
func (it *Integrator) State() State { return it.state }

// Count returns the number of samples pushed since the last reset.
func (it *Integrator) Count() int { return it.count }

// Reset starts a new run.
func (it *Integrator) Reset() {
	it.state = State{}
	it.count = 0
}
