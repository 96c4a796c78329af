package optimizer

import (
	"context"
	"math"

	"github.com/limaJavier/weektable/pkg/fitness"
	"github.com/limaJavier/weektable/pkg/grid"
	"github.com/limaJavier/weektable/pkg/model"
	"github.com/limaJavier/weektable/pkg/progress"
)

const NameAnnealing = "annealing"

// annealing walks one grid through random moves, always accepting
// improvements and accepting a loss of Δ with probability exp(-Δ/T). The
// temperature cools geometrically down to its floor.
type annealing struct {
	toolkit Toolkit
}

func NewAnnealing(toolkit Toolkit) Optimizer {
	return &annealing{toolkit: toolkit}
}

func (optimizer *annealing) Name() string { return NameAnnealing }

func (optimizer *annealing) Optimize(ctx context.Context, input *grid.Grid, _ []model.Lesson, reporter *progress.Reporter) (Result, error) {
	toolkit := optimizer.toolkit
	params := toolkit.Params
	inputScore := toolkit.score(input)

	current := input.Clone()
	currentScore := inputScore
	best, bestScore := current.Clone(), currentScore
	temperature := params.InitialTemperature
	floor := max(params.MinTemperature, 1e-9)

	iteration := 0
	for ; iteration < toolkit.Iterations; iteration++ {
		if err := reporter.Checkpoint(ctx); err != nil {
			return toolkit.guard(NameAnnealing, input, inputScore, Result{Grid: best, Fitness: bestScore, Iterations: iteration}), err
		}

		move, ok := toolkit.Moves.Random(current)
		if !ok {
			break
		}
		backup, err := toolkit.Moves.Apply(current, move)
		if err != nil {
			continue
		}

		candidateScore := toolkit.score(current)
		delta := currentScore.Total - candidateScore.Total
		if delta <= 0 || toolkit.Rng.Float64() < math.Exp(-delta/max(temperature, floor)) {
			currentScore = candidateScore
			if fitness.Better(currentScore, bestScore) {
				best, bestScore = current.Clone(), currentScore
			}
		} else {
			_ = current.Restore(backup)
		}

		temperature = max(temperature*params.CoolingRate, floor)
		if (iteration+1)%progressEvery(toolkit.Iterations) == 0 {
			reporter.Report(progress.Event{Optimizer: NameAnnealing, Iteration: iteration + 1, Total: toolkit.Iterations, BestFitness: bestScore.Total})
		}
	}

	return toolkit.guard(NameAnnealing, input, inputScore, Result{Grid: best, Fitness: bestScore, Iterations: iteration}), nil
}

// progressEvery spaces progress events so a run emits about twenty.
func progressEvery(iterations int) int {
	return max(1, iterations/20)
}
