package reckon

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/dead_reckoning/internal/filter"
	"github.com/relabs-tech/dead_reckoning/internal/gps"
	"github.com/relabs-tech/dead_reckoning/internal/imu"
)

const hz = 100.0

// constSamples returns n samples without fixes, every one with the given
// body-frame acceleration and yaw rate.
func constSamples(n int, ax, ay, wz float64) []imu.Sample {
	out := make([]imu.Sample, n)
	for i := range out {
		out[i] = imu.Sample{T: float64(i) / hz, AccX: ax, AccY: ay, OmegaZ: wz}
	}
	return out
}

func TestIntegrateLengthPreserved(t *testing.T) {
	for _, n := range []int{1, 2, 5, 100, 1234} {
		points, err := Integrate(constSamples(n, 0.3, -0.2, 0.1), Options{Hz: hz})
		require.NoError(t, err)
		assert.Len(t, points, n)
	}
}

func TestIntegrateZeroMotion(t *testing.T) {
	points, err := Integrate(constSamples(50, 0, 0, 0), Options{Hz: hz})
	require.NoError(t, err)

	for i, p := range points {
		assert.Equal(t, 0.0, p.X, "x[%d]", i)
		assert.Equal(t, 0.0, p.Y, "y[%d]", i)
		assert.False(t, p.Corrected)
	}
}

func TestIntegratePureRotation(t *testing.T) {
	const w = 0.7
	samples := constSamples(200, 0, 0, w)

	var st State
	for i, s := range samples {
		p := st.Step(s, 1/hz, nil)
		assert.InDelta(t, w*float64(i+1)/hz, st.Theta, 1e-12)
		assert.Equal(t, st.Theta, p.Heading)
		assert.Equal(t, 0.0, p.X)
		assert.Equal(t, 0.0, p.Y)
	}
	assert.Equal(t, 0.0, st.U)
	assert.Equal(t, 0.0, st.V)
}

func TestIntegrateStraightLine(t *testing.T) {
	const a = 2.0
	const dt = 1 / hz
	const n = 300

	t.Run("acc_y maps onto world x", func(t *testing.T) {
		points, err := Integrate(constSamples(n, 0, a, 0), Options{Hz: hz})
		require.NoError(t, err)

		for k, p := range points {
			steps := float64(k + 1)
			tk := steps * dt
			// semi-implicit Euler sum of a constant acceleration
			assert.InDelta(t, -a*dt*dt*steps*(steps+1)/2, p.X, 1e-9)
			// converges on the closed-form double integral
			assert.InDelta(t, -0.5*a*tk*tk, p.X, a*dt*tk/2+1e-9)
			assert.Equal(t, 0.0, p.Y)
		}
	})

	t.Run("acc_x maps onto world y", func(t *testing.T) {
		points, err := Integrate(constSamples(n, a, 0, 0), Options{Hz: hz})
		require.NoError(t, err)

		last := points[n-1]
		tn := float64(n) * dt
		assert.Equal(t, 0.0, last.X)
		assert.InDelta(t, -0.5*a*tn*tn, last.Y, a*dt*tn/2+1e-9)
	})
}

// Regression fixture: five samples at 100 Hz, acc_x = 1, nothing else.
func TestIntegrateRegressionFixture(t *testing.T) {
	samples := constSamples(5, 1.0, 0, 0)

	var st State
	points := make([]Point, len(samples))
	for i, s := range samples {
		points[i] = st.Step(s, 0.01, nil)
	}

	assert.Equal(t, 0.0, st.U)
	assert.InDelta(t, -0.05, st.V, 1e-15)

	wantY := []float64{-0.0001, -0.0003, -0.0006, -0.0010, -0.0015}
	for i, p := range points {
		assert.Equal(t, 0.0, p.X)
		assert.InDelta(t, wantY[i], p.Y, 1e-15, "y[%d]", i)
	}

	batch, err := Integrate(samples, Options{Hz: 100})
	require.NoError(t, err)
	assert.Equal(t, points, batch)
}

func TestIntegrateFixSnapping(t *testing.T) {
	t.Run("zero motion snaps exactly", func(t *testing.T) {
		samples := constSamples(8, 0, 0, 0)
		samples[3].FixX, samples[3].FixY = gps.Value(5), gps.Value(-2)

		points, err := Integrate(samples, Options{Hz: hz})
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			assert.Equal(t, 0.0, points[i].X)
			assert.Equal(t, 0.0, points[i].Y)
			assert.False(t, points[i].Corrected)
		}
		assert.Equal(t, 5.0, points[3].X)
		assert.Equal(t, -2.0, points[3].Y)
		assert.True(t, points[3].Corrected)
		assert.Equal(t, 5.0, points[7].X)
		assert.False(t, points[7].Corrected)
	})

	t.Run("moving vehicle keeps earlier points and adds one velocity step", func(t *testing.T) {
		free := constSamples(20, 0.4, 0.9, 0.3)
		fixed := constSamples(20, 0.4, 0.9, 0.3)
		const j = 12
		fixed[j].FixX, fixed[j].FixY = gps.Value(3.5), gps.Value(7.25)

		want, err := Integrate(free, Options{Hz: hz})
		require.NoError(t, err)
		got, err := Integrate(fixed, Options{Hz: hz})
		require.NoError(t, err)

		assert.Equal(t, want[:j], got[:j])
		assert.InDelta(t, 3.5+(want[j].X-want[j-1].X), got[j].X, 1e-12)
		assert.InDelta(t, 7.25+(want[j].Y-want[j-1].Y), got[j].Y, 1e-12)
		assert.Equal(t, want[j].Heading, got[j].Heading)
	})

	t.Run("channels corrected independently", func(t *testing.T) {
		samples := constSamples(4, 0, 0, 0)
		samples[1].FixX = gps.Value(9)

		points, err := Integrate(samples, Options{Hz: hz})
		require.NoError(t, err)
		assert.Equal(t, 9.0, points[1].X)
		assert.Equal(t, 0.0, points[1].Y)
		assert.True(t, points[1].Corrected)
	})

	t.Run("zero valued fix is a real reading", func(t *testing.T) {
		samples := constSamples(3, 1, 1, 0)
		samples[1].FixX, samples[1].FixY = gps.Value(0), gps.Value(0)

		points, err := Integrate(samples, Options{Hz: hz})
		require.NoError(t, err)
		assert.True(t, points[1].Corrected)
		assert.False(t, points[2].Corrected)
	})

	t.Run("predicate rejects sentinel values", func(t *testing.T) {
		samples := constSamples(4, 0, 0, 0)
		samples[2].FixX, samples[2].FixY = gps.Value(gps.DefaultSentinel), gps.Value(gps.DefaultSentinel)

		points, err := Integrate(samples, Options{Hz: hz, FixValid: gps.AtLeast(gps.DefaultMinValid)})
		require.NoError(t, err)
		assert.Equal(t, 0.0, points[2].X)
		assert.False(t, points[2].Corrected)

		// the default predicate takes any finite number at face value
		points, err = Integrate(samples, Options{Hz: hz})
		require.NoError(t, err)
		assert.Equal(t, gps.DefaultSentinel, points[2].X)
	})
}

func TestIntegrateLiteralSamplesCarryNoFix(t *testing.T) {
	const n = 300
	samples := make([]imu.Sample, n)
	for i := range samples {
		samples[i] = imu.Sample{T: float64(i) / hz, AccY: 2}
	}

	points, err := Integrate(samples, Options{Hz: hz})
	require.NoError(t, err)

	for i, p := range points {
		require.False(t, p.Corrected, "point %d", i)
	}
	dt := 1 / hz
	assert.InDelta(t, -2*dt*dt*n*(n+1)/2, points[n-1].X, 1e-9)
	assert.InDelta(t, -9.03, points[n-1].X, 1e-9)

	var st State
	p := st.Step(imu.Sample{AccX: 1}, dt, gps.Valid)
	assert.False(t, p.Corrected)
	assert.NotEqual(t, 0.0, p.Y)
}

func TestIntegrateNaNPropagates(t *testing.T) {
	samples := constSamples(6, 1, 1, 0)
	samples[2].AccX = math.NaN()

	points, err := Integrate(samples, Options{Hz: hz})
	require.NoError(t, err)
	require.Len(t, points, 6)

	assert.False(t, math.IsNaN(points[1].Y))
	for _, p := range points[2:] {
		assert.True(t, math.IsNaN(p.X))
		assert.True(t, math.IsNaN(p.Y))
	}
}

func TestIntegrateRejectsMalformedInput(t *testing.T) {
	_, err := Integrate(nil, Options{Hz: hz})
	assert.ErrorIs(t, err, ErrEmptyInput)

	for _, rate := range []float64{0, -100, math.NaN(), math.Inf(1)} {
		_, err := Integrate(constSamples(3, 0, 0, 0), Options{Hz: rate})
		assert.ErrorIs(t, err, ErrInvalidRate, "hz=%v", rate)
	}
}

func TestIntegrator(t *testing.T) {
	samples := constSamples(50, 0.2, -0.5, 0.4)
	samples[20].FixX, samples[20].FixY = gps.Value(1), gps.Value(1)

	want, err := Integrate(samples, Options{Hz: hz})
	require.NoError(t, err)

	it, err := NewIntegrator(Options{Hz: hz})
	require.NoError(t, err)
	for i, s := range samples {
		assert.Equal(t, want[i], it.Push(s))
	}
	assert.Equal(t, 50, it.Count())
	assert.Equal(t, want[49].X, it.State().X)

	it.Reset()
	assert.Equal(t, 0, it.Count())
	assert.Equal(t, State{}, it.State())
	assert.Equal(t, want[0], it.Push(samples[0]))

	_, err = NewIntegrator(Options{Hz: 0})
	assert.ErrorIs(t, err, ErrInvalidRate)
}

func TestRunWithSmoothing(t *testing.T) {
	samples := constSamples(30, 0, 0, 0.2)
	for i := range samples {
		samples[i].AccX = float64(i%3) - 1
		samples[i].AccY = float64(i%4) * 0.5
	}
	opts := filter.DefaultOptions()

	smoothed, err := filter.SmoothSamples(samples, opts)
	require.NoError(t, err)
	want, err := Integrate(smoothed, Options{Hz: hz})
	require.NoError(t, err)

	got, err := Run(samples, RunOptions{Options: Options{Hz: hz}, Smoothing: &opts})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	plain, err := Run(samples, RunOptions{Options: Options{Hz: hz}})
	require.NoError(t, err)
	assert.NotEqual(t, want, plain)

	bad := filter.Options{Window: 2}
	_, err = Run(samples, RunOptions{Options: Options{Hz: hz}, Smoothing: &bad})
	assert.ErrorIs(t, err, filter.ErrInvalidWindow)
}

func TestIntegrateBatch(t *testing.T) {
	t.Parallel()

	a := constSamples(40, 1, 0, 0)
	b := constSamples(60, 0, 1, 0.5)

	t.Run("results in input order", func(t *testing.T) {
		t.Parallel()
		res, err := IntegrateBatch(context.Background(), []Batch{
			{Name: "a", Samples: a, Options: RunOptions{Options: Options{Hz: hz}}},
			{Name: "b", Samples: b, Options: RunOptions{Options: Options{Hz: hz}}},
		}, 1)
		require.NoError(t, err)
		require.Len(t, res, 2)

		wantA, _ := Integrate(a, Options{Hz: hz})
		wantB, _ := Integrate(b, Options{Hz: hz})
		assert.Equal(t, wantA, res[0])
		assert.Equal(t, wantB, res[1])
	})

	t.Run("failure names the run", func(t *testing.T) {
		t.Parallel()
		_, err := IntegrateBatch(context.Background(), []Batch{
			{Name: "good", Samples: a, Options: RunOptions{Options: Options{Hz: hz}}},
			{Name: "empty", Options: RunOptions{Options: Options{Hz: hz}}},
		}, 0)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEmptyInput)
		assert.Contains(t, err.Error(), `"empty"`)
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := IntegrateBatch(ctx, []Batch{{Name: "a", Samples: a, Options: RunOptions{Options: Options{Hz: hz}}}}, 0)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
