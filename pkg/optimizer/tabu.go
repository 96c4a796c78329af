package optimizer

import (
	"context"
	"slices"

	"github.com/samber/lo"

	"github.com/limaJavier/weektable/pkg/fitness"
	"github.com/limaJavier/weektable/pkg/grid"
	"github.com/limaJavier/weektable/pkg/model"
	"github.com/limaJavier/weektable/pkg/neighborhood"
	"github.com/limaJavier/weektable/pkg/progress"
)

const NameTabu = "tabu"

// tabu samples candidate moves each iteration and takes the best admissible
// one even when it loses fitness. The inverse of a taken move stays
// forbidden for a tenure that grows with the lesson's block count and for
// critical subjects; a forbidden move is admissible when it beats the best
// grid seen (aspiration).
type tabu struct {
	toolkit Toolkit
}

func NewTabu(toolkit Toolkit) Optimizer {
	return &tabu{toolkit: toolkit}
}

func (optimizer *tabu) Name() string { return NameTabu }

func (optimizer *tabu) Optimize(ctx context.Context, input *grid.Grid, lessons []model.Lesson, reporter *progress.Reporter) (Result, error) {
	toolkit := optimizer.toolkit
	params := toolkit.Params
	sample := max(1, params.TabuSample)
	iterations := max(1, toolkit.Iterations/sample)
	inputScore := toolkit.score(input)

	lessonIndex := lo.KeyBy(lessons, func(lesson model.Lesson) string { return lesson.Id })
	current := input.Clone()
	currentScore := inputScore
	best, bestScore := current.Clone(), currentScore
	forbidden := make(map[string]int) // Move key -> last iteration it stays forbidden

	iteration := 0
	for ; iteration < iterations; iteration++ {
		if err := reporter.Checkpoint(ctx); err != nil {
			return toolkit.guard(NameTabu, input, inputScore, Result{Grid: best, Fitness: bestScore, Iterations: iteration}), err
		}

		var (
			chosen      neighborhood.Move
			chosenScore fitness.Score
			found       bool
		)
		for _, move := range toolkit.Moves.Sample(current, sample) {
			backup, err := toolkit.Moves.Apply(current, move)
			if err != nil {
				continue
			}
			score := toolkit.score(current)
			_ = current.Restore(backup)

			isTabu := forbidden[move.Key()] >= iteration
			if isTabu && !fitness.Better(score, bestScore) {
				continue
			}
			if !found || fitness.Better(score, chosenScore) {
				chosen, chosenScore, found = move, score, true
			}
		}
		if !found {
			continue
		}

		if _, err := toolkit.Moves.Apply(current, chosen); err != nil {
			continue
		}
		currentScore = chosenScore
		forbidden[chosen.InverseKey()] = iteration + optimizer.tenure(lessonIndex[chosen.LessonId])
		if fitness.Better(currentScore, bestScore) {
			best, bestScore = current.Clone(), currentScore
		}

		if (iteration+1)%progressEvery(iterations) == 0 {
			reporter.Report(progress.Event{Optimizer: NameTabu, Iteration: iteration + 1, Total: iterations, BestFitness: bestScore.Total})
		}
	}

	return toolkit.guard(NameTabu, input, inputScore, Result{Grid: best, Fitness: bestScore, Iterations: iteration}), nil
}

// tenure is the base tenure plus half the lesson's block count, plus two for
// critical subjects. Swaps use the base tenure.
func (optimizer *tabu) tenure(lesson model.Lesson) int {
	params := optimizer.toolkit.Params
	tenure := max(1, params.TabuTenure)
	if lesson.Id == "" {
		return tenure
	}
	tenure += len(lesson.BlockStructure) / 2
	if slices.Contains(params.CriticalSubjects, lesson.Subject) {
		tenure += 2
	}
	return tenure
}
