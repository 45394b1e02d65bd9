// Package export writes estimated trajectories to disk for external viewers.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/relabs-tech/dead_reckoning/internal/gps"
	"github.com/relabs-tech/dead_reckoning/internal/imu"
	"github.com/relabs-tech/dead_reckoning/internal/reckon"
)

const (
	PositionDir = "position"
	RouteDir    = "route"
)

// WriteTrajectory writes one "t x y heading" row per point to path.
func WriteTrajectory(path string, points []reckon.Point) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	w, err := newTableWriter(path)
	if err != nil {
		return err
	}
	for _, p := range points {
		if err := w.writeRow(p.T, p.X, p.Y, p.Heading); err != nil {
			w.close()
			return fmt.Errorf("write trajectory: %w", err)
		}
	}
	return w.close()
}

// FrameOptions controls WriteFrames.
type FrameOptions struct {
	Stride   int     // write every Stride-th index; <= 1 writes all
	Sentinel float64 // written for absent fix channels
	// Progress, when set, is called after each frame with the index written.
	Progress func(i int)
}

// WriteFrames writes, for each selected index i, position/i.dat holding the
// single row "t x y" and route/i.dat holding rows 0..i as
// "t x y fix_x fix_y". samples may be nil, in which case the fix columns
// carry the sentinel.
func WriteFrames(dir string, samples []imu.Sample, points []reckon.Point, opts FrameOptions) (int, error) {
	if samples != nil && len(samples) != len(points) {
		return 0, errors.New("export: samples and points differ in length")
	}

	posDir := filepath.Join(dir, PositionDir)
	routeDir := filepath.Join(dir, RouteDir)
	for _, d := range []string{posDir, routeDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return 0, fmt.Errorf("create frame dir: %w", err)
		}
	}

	stride := opts.Stride
	if stride < 1 {
		stride = 1
	}

	written := 0
	for i := 0; i < len(points); i += stride {
		if err := writePosition(filepath.Join(posDir, fmt.Sprintf("%d.dat", i)), points[i]); err != nil {
			return written, err
		}
		if err := writeRoute(filepath.Join(routeDir, fmt.Sprintf("%d.dat", i)), samples, points[:i+1], opts.Sentinel); err != nil {
			return written, err
		}
		written++
		if opts.Progress != nil {
			opts.Progress(i)
		}
	}
	return written, nil
}

func writePosition(path string, p reckon.Point) error {
	w, err := newTableWriter(path)
	if err != nil {
		return err
	}
	if err := w.writeRow(p.T, p.X, p.Y); err != nil {
		w.close()
		return fmt.Errorf("write position: %w", err)
	}
	return w.close()
}

func writeRoute(path string, samples []imu.Sample, points []reckon.Point, sentinel float64) error {
	w, err := newTableWriter(path)
	if err != nil {
		return err
	}
	for i, p := range points {
		fx, fy := sentinel, sentinel
		if samples != nil {
			fx = gps.Encode(samples[i].FixX, sentinel)
			fy = gps.Encode(samples[i].FixY, sentinel)
		}
		if err := w.writeRow(p.T, p.X, p.Y, fx, fy); err != nil {
			w.close()
			return fmt.Errorf("write route: %w", err)
		}
	}
	return w.close()
}
