package reckon

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/dead_reckoning/internal/imu"
)

// Batch is one independent run.
type Batch struct {
	Name    string
	Samples []imu.Sample
	Options RunOptions
}

// IntegrateBatch runs independent batches concurrently, at most limit at a
// time (limit <= 0 means no limit). Results are in input order. The first
// failure cancels batches that have not started yet.
func IntegrateBatch(ctx context.Context, batches []Batch, limit int) ([][]Point, error) {
	results := make([][]Point, len(batches))

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i := range batches {
		b := batches[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			points, err := Run(b.Samples, b.Options)
			if err != nil {
				return fmt.Errorf("run %q: %w", b.Name, err)
			}
			results[i] = points
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
