// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/relabs-tech/dead_reckoning/internal/config"
	"github.com/relabs-tech/dead_reckoning/internal/reckon"
	"github.com/relabs-tech/dead_reckoning/internal/sensorlog"
)

// printPoints writes one line per stride points, one line per tick.
func printPoints(ctx context.Context, w io.Writer, points []reckon.Point, stride int, tick <-chan time.Time) error {
	if stride < 1 {
		stride = 1
	}
	for i := 0; i < len(points); i += stride {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
		}
		if _, err := fmt.Fprintln(w, formatPoint(points[i])); err != nil {
			return err
		}
	}
	return nil
}

// RunReplayConsole integrates a sensor log without a broker and prints the
// trajectory at roughly the pace it was recorded.
func RunReplayConsole(w io.Writer, path string) error {
	cfg := config.Get()
	if path == "" {
		path = cfg.InputPath
	}
	if path == "" {
		return errors.New("console: no sensor log given")
	}

	samples, err := sensorlog.Load(path, cfg.LogOptions())
	if err != nil {
		return err
	}
	points, err := reckon.Run(samples, cfg.RunOptions())
	if err != nil {
		return err
	}

	interval := time.Duration(cfg.ConsoleLogInterval) * time.Millisecond
	stride := int(interval.Seconds() * cfg.SampleRateHz)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, stop := signalContext()
	defer stop()
	return printPoints(ctx, w, points, stride, ticker.C)
}
