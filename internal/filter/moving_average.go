// Package filter holds the smoothing stages applied to raw inertial channels
// before integration.
package filter

import (
	"errors"
	"fmt"

	"github.com/relabs-tech/dead_reckoning/internal/imu"
)

// DefaultWindow is the window used by every recorded skidpad run.
const DefaultWindow = 5

// LegacyOffset reproduces the constant added to every smoothed value by the
// first skidpad estimator (mean/n + 1). Use 0 for a plain mean.
const LegacyOffset = 1.0

var ErrInvalidWindow = errors.New("filter: window must be a positive odd number")

// MovingAverage returns a centered moving average of data over an odd
// window n. The n/2 values at each end are copied through unchanged: no
// padding, no shrinking window. Every mean is taken over the original
// input, never over already smoothed values. offset is added to each
// smoothed (interior) value.
func MovingAverage(data []float64, n int, offset float64) ([]float64, error) {
	if n < 1 || n%2 == 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWindow, n)
	}

	out := make([]float64, len(data))
	copy(out, data)

	half := n / 2
	for i := half; i < len(data)-half; i++ {
		var sum float64
		for j := i - half; j <= i+half; j++ {
			sum += data[j]
		}
		out[i] = sum/float64(n) + offset
	}
	return out, nil
}

// Channel selects a Sample field to smooth.
type Channel int

const (
	AccX Channel = iota
	AccY
	OmegaZ
)

func (c Channel) String() string {
	switch c {
	case AccX:
		return "acc_x"
	case AccY:
		return "acc_y"
	case OmegaZ:
		return "omega_z"
	}
	return "unknown"
}

// Options configures SmoothSamples.
type Options struct {
	Window   int
	Offset   float64
	Channels []Channel // nil means AccX and AccY
}

// DefaultOptions smooths both horizontal accelerometer channels over five
// samples, without the legacy offset.
func DefaultOptions() Options {
	return Options{Window: DefaultWindow, Channels: []Channel{AccX, AccY}}
}

// SmoothSamples applies MovingAverage to the selected channels and returns
// new samples; the input is left untouched.
func SmoothSamples(samples []imu.Sample, opts Options) ([]imu.Sample, error) {
	channels := opts.Channels
	if channels == nil {
		channels = []Channel{AccX, AccY}
	}

	out := make([]imu.Sample, len(samples))
	copy(out, samples)

	col := make([]float64, len(samples))
	for _, ch := range channels {
		field, err := channelField(ch)
		if err != nil {
			return nil, err
		}
		for i := range samples {
			col[i] = *field(&out[i])
		}
		smoothed, err := MovingAverage(col, opts.Window, opts.Offset)
		if err != nil {
			return nil, fmt.Errorf("smooth %s: %w", ch, err)
		}
		for i := range out {
			*field(&out[i]) = smoothed[i]
		}
	}
	return out, nil
}

func channelField(ch Channel) (func(*imu.Sample) *float64, error) {
	switch ch {
	case AccX:
		return func(s *imu.Sample) *float64 { return &s.AccX }, nil
	case AccY:
		return func(s *imu.Sample) *float64 { return &s.AccY }, nil
	case OmegaZ:
		return func(s *imu.Sample) *float64 { return &s.OmegaZ }, nil
	}
	return nil, fmt.Errorf("filter: unknown channel %d", int(ch))
}

// ParseChannel maps a config name ("acc_x", "acc_y", "omega_z") to a Channel.
func ParseChannel(name string) (Channel, error) {
	for _, c := range []Channel{AccX, AccY, OmegaZ} {
		if c.String() == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("filter: unknown channel %q", name)
}
