package optimizer

import (
	"context"
	"slices"

	"github.com/samber/lo"

	"github.com/limaJavier/weektable/pkg/fitness"
	"github.com/limaJavier/weektable/pkg/grid"
	"github.com/limaJavier/weektable/pkg/model"
	"github.com/limaJavier/weektable/pkg/progress"
)

const NameGenetic = "genetic"

// genetic evolves a population of full grids. Crossover takes whole classes
// from either parent; mutation applies a bounded number of random moves;
// the best individuals survive unchanged.
type genetic struct {
	toolkit Toolkit
}

func NewGenetic(toolkit Toolkit) Optimizer {
	return &genetic{toolkit: toolkit}
}

func (optimizer *genetic) Name() string { return NameGenetic }

type individual struct {
	grid  *grid.Grid
	score fitness.Score
}

func (optimizer *genetic) Optimize(ctx context.Context, input *grid.Grid, lessons []model.Lesson, reporter *progress.Reporter) (Result, error) {
	toolkit := optimizer.toolkit
	params := toolkit.Params
	size := max(2, params.PopulationSize)
	elites := min(max(1, params.EliteCount), size-1)
	generations := max(1, toolkit.Iterations/size)
	inputScore := toolkit.score(input)

	//** Initial population: the input plus perturbed copies
	population := make([]individual, size)
	population[0] = individual{grid: input.Clone(), score: inputScore}
	for i := 1; i < size; i++ {
		child := input.Clone()
		toolkit.perturb(child, max(1, params.MutationMoves)*2)
		population[i] = individual{grid: child, score: toolkit.score(child)}
	}
	best := bestOf(population)

	generation := 0
	for ; generation < generations; generation++ {
		if err := reporter.Checkpoint(ctx); err != nil {
			return toolkit.guard(NameGenetic, input, inputScore, Result{Grid: best.grid, Fitness: best.score, Iterations: generation}), err
		}

		sortPopulation(population)
		next := make([]individual, 0, size)
		for _, elite := range population[:elites] {
			next = append(next, individual{grid: elite.grid.Clone(), score: elite.score})
		}

		weights := shifted(lo.Map(population, func(member individual, _ int) float64 { return member.score.Total }))
		for len(next) < size {
			first := population[roulette(toolkit.Rng, weights)]
			second := population[roulette(toolkit.Rng, weights)]

			child := optimizer.crossover(first.grid, second.grid, lessons)
			toolkit.perturb(child, 1+toolkit.Rng.Intn(max(1, params.MutationMoves)))
			next = append(next, individual{grid: child, score: toolkit.score(child)})
		}
		population = next

		if candidate := bestOf(population); fitness.Better(candidate.score, best.score) {
			best = individual{grid: candidate.grid.Clone(), score: candidate.score}
		}
		reporter.Report(progress.Event{Optimizer: NameGenetic, Iteration: generation + 1, Total: generations, BestFitness: best.score.Total})
	}

	return toolkit.guard(NameGenetic, input, inputScore, Result{Grid: best.grid, Fitness: best.score, Iterations: generation}), nil
}

// crossover starts from the first parent and copies every class from the
// second parent with probability one half. Blocks broken by teacher clashes
// are removed whole and their hours placed again.
func (optimizer *genetic) crossover(first, second *grid.Grid, lessons []model.Lesson) *grid.Grid {
	toolkit := optimizer.toolkit
	child := first.Clone()

	broken := make(map[string]bool)
	for _, classId := range child.ClassIds() {
		if toolkit.Rng.Intn(2) == 0 {
			continue
		}
		for _, slot := range child.CopyClass(second, classId) {
			broken[slot.LessonId] = true
		}
	}

	for lessonId := range broken {
		for _, blockSlots := range child.LessonBlocks(lessonId) {
			if len(blockSlots) == blockSlots[0].Block.Size {
				continue
			}
			for _, slot := range blockSlots {
				if !child.IsLocked(slot.ClassId, slot.Day, slot.Hour) {
					child.Remove(slot.ClassId, slot.Day, slot.Hour)
				}
			}
		}
	}
	toolkit.fill(child, lessons)
	return child
}

func sortPopulation(population []individual) {
	slices.SortStableFunc(population, func(a, b individual) int {
		switch {
		case fitness.Better(a.score, b.score):
			return -1
		case fitness.Better(b.score, a.score):
			return 1
		default:
			return 0
		}
	})
}

func bestOf(population []individual) individual {
	best := population[0]
	for _, member := range population[1:] {
		if fitness.Better(member.score, best.score) {
			best = member
		}
	}
	return best
}
