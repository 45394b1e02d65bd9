package reckon

import (
	"errors"
	"fmt"
	"math"

	"github.com/relabs-tech/dead_reckoning/internal/filter"
	"github.com/relabs-tech/dead_reckoning/internal/gps"
	"github.com/relabs-tech/dead_reckoning/internal/imu"
)

var (
	ErrEmptyInput  = errors.New("reckon: empty sample sequence")
	ErrInvalidRate = errors.New("reckon: sample rate must be positive and finite")
)

// Options configures one integration run.
type Options struct {
	Hz       float64       // inertial sample rate; dt = 1/Hz
	FixValid gps.Predicate // nil accepts any finite fix value
}

// Dt returns the sampling interval for o, or an error if Hz is unusable.
func (o Options) Dt() (float64, error) {
	if o.Hz <= 0 || math.IsNaN(o.Hz) || math.IsInf(o.Hz, 0) {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidRate, o.Hz)
	}
	return 1.0 / o.Hz, nil
}

// Integrate runs a fresh State over samples and returns one point per
// sample. Only an empty sequence or an unusable rate is an error; NaN or
// Inf in the samples propagate into the trajectory unchanged.
func Integrate(samples []imu.Sample, opts Options) ([]Point, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyInput
	}
	dt, err := opts.Dt()
	if err != nil {
		return nil, err
	}

	var st State
	points := make([]Point, len(samples))
	for i := range samples {
		points[i] = st.Step(samples[i], dt, opts.FixValid)
	}
	return points, nil
}

// RunOptions adds the optional pre-filter stage in front of Integrate.
type RunOptions struct {
	Options
	Smoothing *filter.Options // nil disables smoothing
}

// Run smooths (when configured) and integrates samples.
func Run(samples []imu.Sample, opts RunOptions) ([]Point, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyInput
	}
	if opts.Smoothing != nil {
		smoothed, err := filter.SmoothSamples(samples, *opts.Smoothing)
		if err != nil {
			return nil, fmt.Errorf("pre-filter: %w", err)
		}
		samples = smoothed
	}
	return Integrate(samples, opts.Options)
}
