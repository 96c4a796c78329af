package optimizer

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/limaJavier/weektable/pkg/fitness"
	"github.com/limaJavier/weektable/pkg/grid"
	"github.com/limaJavier/weektable/pkg/model"
	"github.com/limaJavier/weektable/pkg/progress"

	appErrors "github.com/limaJavier/weektable/pkg/errors"
)

// Parallel runs independent optimizer instances on copies of the input grid
// and keeps the best result. build returns the instance of one worker; each
// must own its random source. Ties go to the lowest worker index, so a run is
// reproducible for fixed seeds.
func Parallel(ctx context.Context, workers int, build func(worker int) Optimizer, input *grid.Grid, lessons []model.Lesson, reporter *progress.Reporter) (Result, int, error) {
	workers = max(1, workers)
	reporter = reporter.Synchronized()

	results := make([]Result, workers)
	failures := make([]error, workers)
	group, groupCtx := errgroup.WithContext(ctx)
	for worker, n := 0, workers; worker < n; worker++ {
		worker := worker
		optimizer := build(worker)
		start := input.Clone()
		group.Go(func() error {
			result, err := optimizer.Optimize(groupCtx, start, lessons, reporter)
			if err != nil {
				if isCancellation(err) {
					return err
				}
				failures[worker] = err
				return nil
			}
			results[worker] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Result{}, -1, err
	}

	winner := -1
	for worker, result := range results {
		if failures[worker] != nil || result.Grid == nil {
			continue
		}
		if winner < 0 || fitness.Better(result.Fitness, results[winner].Fitness) {
			winner = worker
		}
	}
	if winner < 0 {
		for _, err := range failures {
			if err != nil {
				return Result{}, -1, err
			}
		}
		return Result{}, -1, appErrors.Clone(appErrors.ErrOptimizerRejected, "no worker produced a grid")
	}
	return results[winner], winner, nil
}
