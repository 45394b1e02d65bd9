package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/relabs-tech/dead_reckoning/internal/export"
	"github.com/relabs-tech/dead_reckoning/internal/imu"
	"github.com/relabs-tech/dead_reckoning/internal/reckon"
	"github.com/relabs-tech/dead_reckoning/internal/sensorlog"
)

// TrajectoryFile is the per-run output written by RunReckon.
const TrajectoryFile = "trajectory.dat"

// ReckonJob describes an offline run over one or more sensor logs.
type ReckonJob struct {
	Inputs      []string
	Options     reckon.RunOptions
	Log         sensorlog.Options
	OutputDir   string
	FrameStride int     // 0 skips the frame files
	Sentinel    float64 // absent-fix value in frame files
	Limit       int     // logs integrated at once, 0 = all
}

// RunSummary reports one integrated log.
type RunSummary struct {
	Name      string
	Dir       string
	Samples   int
	Corrected int
	Frames    int
	Final     reckon.Point
}

// progressLogger returns a callback logging every 10 % of total.
func progressLogger(component, name string, total int) func(i int) {
	last := 0
	return func(i int) {
		if total <= 0 {
			return
		}
		pct := (i + 1) * 100 / total
		if pct/10 > last/10 {
			last = pct
			log.Printf("%s: %s %d%%", component, name, pct)
		}
	}
}

// runNames derives one output directory name per input from its base name,
// suffixing repeats until the name is unused by any earlier input.
func runNames(inputs []string) []string {
	names := make([]string, len(inputs))
	used := make(map[string]bool)
	for i, in := range inputs {
		base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
		name := base
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s-%d", base, n)
		}
		used[name] = true
		names[i] = name
	}
	return names
}

// RunReckon integrates every input log and writes, under
// OutputDir/<name>/, the trajectory and optionally the frame files.
// Independent logs are integrated concurrently.
func RunReckon(ctx context.Context, job ReckonJob) ([]RunSummary, error) {
	if len(job.Inputs) == 0 {
		return nil, errors.New("reckon: no input logs")
	}

	names := runNames(job.Inputs)
	batches := make([]reckon.Batch, len(job.Inputs))
	for i, path := range job.Inputs {
		samples, err := sensorlog.Load(path, job.Log)
		if err != nil {
			return nil, err
		}
		log.Printf("reckon: loaded %d samples from %s", len(samples), path)
		batches[i] = reckon.Batch{Name: names[i], Samples: samples, Options: job.Options}
	}

	results, err := reckon.IntegrateBatch(ctx, batches, job.Limit)
	if err != nil {
		return nil, err
	}

	summaries := make([]RunSummary, len(batches))
	for i, b := range batches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sum, err := writeRun(b.Name, job, b.Samples, results[i])
		if err != nil {
			return nil, err
		}
		summaries[i] = sum
		log.Printf("reckon: %s done: %d points, %d corrected, final x=%.3f y=%.3f",
			sum.Name, sum.Samples, sum.Corrected, sum.Final.X, sum.Final.Y)
	}
	return summaries, nil
}

func writeRun(name string, job ReckonJob, samples []imu.Sample, points []reckon.Point) (RunSummary, error) {
	dir := filepath.Join(job.OutputDir, name)
	sum := RunSummary{Name: name, Dir: dir, Samples: len(points), Final: points[len(points)-1]}
	for _, p := range points {
		if p.Corrected {
			sum.Corrected++
		}
	}

	if err := export.WriteTrajectory(filepath.Join(dir, TrajectoryFile), points); err != nil {
		return sum, fmt.Errorf("reckon: %s: %w", name, err)
	}

	if job.FrameStride > 0 {
		n, err := export.WriteFrames(dir, samples, points, export.FrameOptions{
			Stride:   job.FrameStride,
			Sentinel: job.Sentinel,
			Progress: progressLogger("reckon", name+" frames", len(points)),
		})
		if err != nil {
			return sum, fmt.Errorf("reckon: %s: %w", name, err)
		}
		sum.Frames = n
	}
	return sum, nil
}
