package main

import (
	"errors"
	"flag"
	"io/fs"
	"log"

	"github.com/relabs-tech/dead_reckoning/internal/app"
	"github.com/relabs-tech/dead_reckoning/internal/config"
	"github.com/relabs-tech/dead_reckoning/internal/sim"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to configuration file")
	scenarioPath := flag.String("scenario", "", "YAML scenario (default: the standard skidpad)")
	out := flag.String("out", "", "output directory (overrides OUTPUT_DIR)")
	seed := flag.Uint64("seed", 0, "noise seed (overrides the scenario; 0 keeps it)")
	flag.Parse()

	log.Println("starting skidpad simulator")

	cfg, err := config.Load(*configPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	sc := sim.DefaultScenario()
	if *scenarioPath != "" {
		loaded, err := sim.LoadScenario(*scenarioPath)
		if err != nil {
			log.Fatalf("failed to load scenario: %v", err)
		}
		sc = *loaded
	}
	if *seed != 0 {
		sc.Seed = *seed
	}

	dir := cfg.OutputDir
	if *out != "" {
		dir = *out
	}

	if _, err := app.RunSimulation(sc, dir, cfg.FixSentinel); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
