package app

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/relabs-tech/dead_reckoning/internal/export"
	"github.com/relabs-tech/dead_reckoning/internal/sensorlog"
	"github.com/relabs-tech/dead_reckoning/internal/sim"
)

// Files written by RunSimulation.
const (
	SensorLogFile = "sensor_log.dat"
	TruthFile     = "truth.dat"
)

// RunSimulation synthesizes a skidpad run and writes the sensor log (in the
// format RunReckon reads) and the ground-truth trajectory to outDir.
func RunSimulation(sc sim.Scenario, outDir string, sentinel float64) (*sim.Result, error) {
	res, err := sim.Run(sc)
	if err != nil {
		return nil, err
	}
	t1, t2, t3 := sc.Phases()
	log.Printf("simulate: %d samples, skidpad %.2fs-%.2fs, end %.2fs, seed %d",
		len(res.Samples), t1, t2, t3, res.Seed)

	logPath := filepath.Join(outDir, SensorLogFile)
	if err := sensorlog.WriteFile(logPath, res.Samples, sentinel); err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}
	truthPath := filepath.Join(outDir, TruthFile)
	if err := export.WriteTrajectory(truthPath, res.Truth); err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}
	log.Printf("simulate: wrote %s and %s", logPath, truthPath)
	return res, nil
}
