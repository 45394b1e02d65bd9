// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/relabs-tech/dead_reckoning/internal/app"
	"github.com/relabs-tech/dead_reckoning/internal/config"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to configuration file")
	hz := flag.Float64("hz", 0, "sample rate in Hz (overrides SAMPLE_RATE_HZ)")
	fixMin := flag.Float64("fix-min", 0, "lowest fix value read as a real fix (overrides FIX_MIN_VALID)")
	smooth := flag.Bool("smooth", false, "apply the moving-average pre-filter (overrides SMOOTHING_ENABLED)")
	window := flag.Int("window", 0, "moving-average window, odd (overrides SMOOTHING_WINDOW)")
	offset := flag.Float64("offset", 0, "constant added to smoothed values (overrides SMOOTHING_OFFSET)")
	out := flag.String("out", "", "output directory (overrides OUTPUT_DIR)")
	frames := flag.Bool("frames", false, "write position/ and route/ frame files")
	stride := flag.Int("stride", 0, "frame stride (overrides FRAME_STRIDE)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] sensor_log...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	log.Println("starting dead-reckoning offline integrator")

	cfg, err := config.Load(*configPath)
	if errors.Is(err, fs.ErrNotExist) && !isSet("config") {
		log.Printf("no %s found, using defaults", *configPath)
		cfg, err = config.Default(), nil
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "hz":
			cfg.SampleRateHz = *hz
		case "fix-min":
			cfg.FixMinValid = *fixMin
		case "smooth":
			cfg.SmoothingEnabled = *smooth
		case "window":
			cfg.SmoothingWindow = *window
			cfg.SmoothingEnabled = true
		case "offset":
			cfg.SmoothingOffset = *offset
		case "out":
			cfg.OutputDir = *out
		case "stride":
			cfg.FrameStride = *stride
		}
	})
	if *frames && cfg.FrameStride == 0 {
		cfg.FrameStride = 1
	}
	if isSet("frames") && !*frames {
		cfg.FrameStride = 0
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	inputs := flag.Args()
	if len(inputs) == 0 && cfg.InputPath != "" {
		inputs = []string{cfg.InputPath}
	}

	limit := cfg.BatchLimit
	if limit == 0 {
		limit = runtime.NumCPU()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summaries, err := app.RunReckon(ctx, app.ReckonJob{
		Inputs:      inputs,
		Options:     cfg.RunOptions(),
		Log:         cfg.LogOptions(),
		OutputDir:   cfg.OutputDir,
		FrameStride: cfg.FrameStride,
		Sentinel:    cfg.FixSentinel,
		Limit:       limit,
	})
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	for _, s := range summaries {
		log.Printf("%s: %d points -> %s", s.Name, s.Samples, s.Dir)
	}
}

func isSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
