package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/dead_reckoning/internal/export"
	"github.com/relabs-tech/dead_reckoning/internal/gps"
	"github.com/relabs-tech/dead_reckoning/internal/imu"
	"github.com/relabs-tech/dead_reckoning/internal/reckon"
	"github.com/relabs-tech/dead_reckoning/internal/sensorlog"
	"github.com/relabs-tech/dead_reckoning/internal/sensors"
	"github.com/relabs-tech/dead_reckoning/internal/sim"
)

type recordingPublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(topic string, v any) error {
	if p.err != nil {
		return p.err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, data)
	return nil
}

func straightRun(n int) []imu.Sample {
	samples := make([]imu.Sample, n)
	for i := range samples {
		samples[i] = imu.Sample{T: float64(i) / 100, AccX: -1}
	}
	return samples
}

func TestPump(t *testing.T) {
	samples := straightRun(5)
	samples[2].FixX = gps.Value(1.5)

	pub := &recordingPublisher{}
	var logBuf bytes.Buffer
	enc := sensorlog.NewEncoder(&logBuf, gps.DefaultSentinel)

	n, err := pump(context.Background(), imu.NewReplaySource(samples, false), pub, "samples", nil, enc)
	require.NoError(t, err)
	require.NoError(t, enc.Flush())
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, enc.Rows())
	require.Len(t, pub.payloads, 5)
	assert.Equal(t, "samples", pub.topics[0])

	var got imu.Sample
	require.NoError(t, json.Unmarshal(pub.payloads[2], &got))
	assert.Equal(t, gps.Value(1.5), got.FixX)
	assert.Nil(t, got.FixY)

	back, err := sensorlog.Parse(&logBuf, sensorlog.Options{})
	require.NoError(t, err)
	assert.Len(t, back, 5)
}

func TestPumpTicks(t *testing.T) {
	tick := make(chan time.Time, 2)
	tick <- time.Now()
	tick <- time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	pub := &recordingPublisher{}
	done := make(chan int)
	go func() {
		n, _ := pump(ctx, imu.NewReplaySource(straightRun(10), true), pub, "samples", tick, nil)
		done <- n
	}()

	require.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.payloads) == 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.Equal(t, 2, <-done)
}

func TestPumpStopsOnQuietStream(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	src := sensors.NewLineSource(pr, sensorlog.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	release := closeOnDone(ctx, pr)
	defer release()

	pub := &recordingPublisher{}
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := pump(ctx, src, pub, "samples", nil, nil)
		done <- result{n, err}
	}()

	go pw.Write([]byte("0 0 0 0 0 0 0 -100 -100\n"))
	require.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.payloads) == 1
	}, time.Second, 5*time.Millisecond)

	// nothing more arrives; the reader is parked until ctx ends
	cancel()
	select {
	case r := <-done:
		assert.NoError(t, r.err)
		assert.Equal(t, 1, r.n)
	case <-time.After(2 * time.Second):
		t.Fatal("pump still blocked after cancel")
	}
}

type countingCloser struct{ n atomic.Int32 }

func (c *countingCloser) Close() error {
	c.n.Add(1)
	return nil
}

func TestCloseOnDone(t *testing.T) {
	t.Run("cancel closes once", func(t *testing.T) {
		c := &countingCloser{}
		ctx, cancel := context.WithCancel(context.Background())
		release := closeOnDone(ctx, c)
		cancel()
		require.Eventually(t, func() bool { return c.n.Load() == 1 }, time.Second, 5*time.Millisecond)
		release()
		assert.Equal(t, int32(1), c.n.Load())
	})

	t.Run("release closes without cancel", func(t *testing.T) {
		c := &countingCloser{}
		release := closeOnDone(context.Background(), c)
		release()
		assert.Equal(t, int32(1), c.n.Load())
	})
}

type failingSource struct{ calls int }

func (f *failingSource) Next() (imu.Sample, error) {
	f.calls++
	return imu.Sample{}, errors.New("bus error")
}

func TestPumpGivesUpOnRepeatedErrors(t *testing.T) {
	src := &failingSource{}
	n, err := pump(context.Background(), src, &recordingPublisher{}, "samples", nil, nil)
	assert.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, maxReadErrors, src.calls)
}

func TestPumpSkipsPublishErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker gone")}
	n, err := pump(context.Background(), imu.NewReplaySource(straightRun(3), false), pub, "samples", nil, nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestLiveReckoner(t *testing.T) {
	it, err := reckon.NewIntegrator(reckon.Options{Hz: 100})
	require.NoError(t, err)
	pub := &recordingPublisher{}
	l := &liveReckoner{it: it, pub: pub, topic: "trajectory"}

	for _, s := range straightRun(3) {
		payload, err := json.Marshal(s)
		require.NoError(t, err)
		l.handleSample(payload)
	}
	l.handleSample([]byte("not json"))

	require.Len(t, pub.payloads, 3)
	var p reckon.Point
	require.NoError(t, json.Unmarshal(pub.payloads[2], &p))
	assert.Equal(t, 0.02, p.T)
	assert.Greater(t, p.Y, 0.0)
	assert.Equal(t, 3, it.Count())

	l.handleControl([]byte("pause"))
	assert.Equal(t, 3, it.Count())
	l.handleControl([]byte(" reset\n"))
	assert.Equal(t, 0, it.Count())
	assert.Equal(t, reckon.State{}, it.State())
}

func TestFormatting(t *testing.T) {
	s := imu.Sample{T: 1.25, AccX: 0.5, OmegaZ: -0.1}
	s.FixX = gps.Value(3)
	line := formatSample(s)
	assert.Contains(t, line, "t=   1.250")
	assert.Contains(t, line, "fix=(   3.00,   ----)")

	p := formatPoint(reckon.Point{T: 2, X: 1, Y: -1, Heading: 3.14159265358979, Corrected: true})
	assert.Contains(t, p, "hdg=  180.0°*")
	assert.NotContains(t, formatPoint(reckon.Point{}), "*")
}

func TestThrottle(t *testing.T) {
	th := &throttle{interval: 100 * time.Millisecond}
	t0 := time.Unix(0, 0)
	assert.True(t, th.allow(t0))
	assert.False(t, th.allow(t0.Add(50*time.Millisecond)))
	assert.True(t, th.allow(t0.Add(100*time.Millisecond)))
}

func TestDisplayLines(t *testing.T) {
	d := &displayData{}
	assert.Equal(t, "Waiting...", d.lines()[2])

	d.handlePoint([]byte(`{"t":1.5,"x":2,"y":-3,"heading":0,"corrected":true}`))
	d.handlePoint([]byte(`{"t":1.51,"x":2.1,"y":-3,"heading":0,"corrected":false}`))
	lines := d.lines()
	assert.Equal(t, "x:    2.10m", lines[1])
	assert.Equal(t, "fixes: 1", lines[4])
	assert.NotContains(t, lines[0], "FIX")

	img := renderLines(lines)
	assert.Equal(t, 128, img.Bounds().Dx())

	d.handleControl([]byte("reset"))
	assert.Equal(t, "Waiting...", d.lines()[2])
}

func TestRunNames(t *testing.T) {
	assert.Equal(t,
		[]string{"lap", "lap-2", "other"},
		runNames([]string{"a/lap.dat", "b/lap.txt", "other"}))

	// a literal "a-2" input must not share a directory with the second "a"
	assert.Equal(t,
		[]string{"a", "a-2", "a-3", "a-2-2"},
		runNames([]string{"x/a.dat", "y/a-2.dat", "z/a.dat", "w/a-2.txt"}))
}

func TestRunReckon(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "in", "first.dat")
	second := filepath.Join(dir, "in", "second.dat")

	run := straightRun(20)
	run[10].FixX, run[10].FixY = gps.Value(0), gps.Value(5)
	require.NoError(t, sensorlog.WriteFile(first, run, gps.DefaultSentinel))
	require.NoError(t, sensorlog.WriteFile(second, straightRun(8), gps.DefaultSentinel))

	out := filepath.Join(dir, "out")
	summaries, err := RunReckon(context.Background(), ReckonJob{
		Inputs:      []string{first, second},
		Options:     reckon.RunOptions{Options: reckon.Options{Hz: 100}},
		OutputDir:   out,
		FrameStride: 5,
		Sentinel:    gps.DefaultSentinel,
		Limit:       2,
	})
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, "first", summaries[0].Name)
	assert.Equal(t, 20, summaries[0].Samples)
	assert.Equal(t, 1, summaries[0].Corrected)
	assert.Equal(t, 4, summaries[0].Frames)
	assert.Equal(t, 2, summaries[1].Frames)

	data, err := os.ReadFile(filepath.Join(out, "first", TrajectoryFile))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 20)
	assert.FileExists(t, filepath.Join(out, "second", export.RouteDir, "5.dat"))
}

func TestRunReckonErrors(t *testing.T) {
	_, err := RunReckon(context.Background(), ReckonJob{})
	assert.Error(t, err)

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.dat")
	require.NoError(t, os.WriteFile(bad, []byte("1 2 3\n"), 0o644))
	_, err = RunReckon(context.Background(), ReckonJob{
		Inputs:  []string{bad},
		Options: reckon.RunOptions{Options: reckon.Options{Hz: 100}},
	})
	var perr *sensorlog.ParseError
	assert.ErrorAs(t, err, &perr)

	good := filepath.Join(dir, "good.dat")
	require.NoError(t, sensorlog.WriteFile(good, straightRun(3), gps.DefaultSentinel))
	_, err = RunReckon(context.Background(), ReckonJob{
		Inputs:    []string{good},
		Options:   reckon.RunOptions{Options: reckon.Options{Hz: 0}},
		OutputDir: dir,
	})
	assert.ErrorIs(t, err, reckon.ErrInvalidRate)
}

func TestRunSimulation(t *testing.T) {
	sc := sim.DefaultScenario()
	sc.Laps = 1
	sc.Seed = 3
	dir := t.TempDir()

	res, err := RunSimulation(sc, dir, gps.DefaultSentinel)
	require.NoError(t, err)

	samples, err := sensorlog.Load(filepath.Join(dir, SensorLogFile), sensorlog.Options{})
	require.NoError(t, err)
	require.Len(t, samples, len(res.Samples))
	assert.Equal(t, res.Samples[1].HasFix(), samples[1].HasFix())
	require.NotNil(t, samples[0].FixY)
	assert.InDelta(t, *res.Samples[0].FixY, *samples[0].FixY, 1e-6)
	assert.FileExists(t, filepath.Join(dir, TruthFile))
}

func TestPrintPoints(t *testing.T) {
	points := make([]reckon.Point, 10)
	for i := range points {
		points[i].T = float64(i)
	}
	tick := make(chan time.Time, 10)
	for i := 0; i < 10; i++ {
		tick <- time.Now()
	}

	var buf bytes.Buffer
	require.NoError(t, printPoints(context.Background(), &buf, points, 4, tick))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[2], "t=   8.000")
}

func TestProgressLogger(t *testing.T) {
	// must not panic on an empty run
	progressLogger("test", "empty", 0)(0)
	p := progressLogger("test", "run", 20)
	for i := 0; i < 20; i++ {
		p(i)
	}
}
