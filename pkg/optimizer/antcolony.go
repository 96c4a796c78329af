package optimizer

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/samber/lo"

	"github.com/limaJavier/weektable/pkg/block"
	"github.com/limaJavier/weektable/pkg/fitness"
	"github.com/limaJavier/weektable/pkg/grid"
	"github.com/limaJavier/weektable/pkg/model"
	"github.com/limaJavier/weektable/pkg/progress"
)

const NameAntColony = "antcolony"

// antColony lets each ant rebuild the unlocked part of the grid from scratch.
// A block window is chosen with probability proportional to τ^α × η^β, where
// τ is the mean pheromone over the window's hours and η the placer's
// heuristic score. After every round the trails evaporate and each ant
// deposits pheromone in proportion to its normalized fitness.
type antColony struct {
	toolkit Toolkit
}

func NewAntColony(toolkit Toolkit) Optimizer {
	return &antColony{toolkit: toolkit}
}

func (optimizer *antColony) Name() string { return NameAntColony }

// trail maps (lesson, day, hour) to its pheromone level.
type trail map[string]float64

func trailKey(lessonId string, day, hour int) string {
	return fmt.Sprintf("%v|%v|%v", lessonId, day, hour)
}

func (pheromone trail) level(lessonId string, day, start, size int) float64 {
	total := 0.0
	for hour := start; hour < start+size; hour++ {
		level, ok := pheromone[trailKey(lessonId, day, hour)]
		if !ok {
			level = 1
		}
		total += level
	}
	return total / float64(size)
}

func (optimizer *antColony) Optimize(ctx context.Context, input *grid.Grid, lessons []model.Lesson, reporter *progress.Reporter) (Result, error) {
	toolkit := optimizer.toolkit
	params := toolkit.Params
	ants := max(1, params.Ants)
	rounds := max(1, toolkit.Iterations/ants)
	evaporation := min(max(params.Evaporation, 0), 1)
	inputScore := toolkit.score(input)

	pheromone := make(trail)
	best, bestScore := input.Clone(), inputScore

	round := 0
	for ; round < rounds; round++ {
		if err := reporter.Checkpoint(ctx); err != nil {
			return toolkit.guard(NameAntColony, input, inputScore, Result{Grid: best, Fitness: bestScore, Iterations: round}), err
		}

		colony := make([]individual, ants)
		for ant, n := 0, ants; ant < n; ant++ {
			g := optimizer.construct(input, lessons, pheromone)
			colony[ant] = individual{grid: g, score: toolkit.score(g)}
		}

		//** Evaporation
		for key, level := range pheromone {
			pheromone[key] = max(level*(1-evaporation), 0.01)
		}

		//** Deposit
		totals := lo.Map(colony, func(member individual, _ int) float64 { return member.score.Total })
		floor, ceiling := lo.Min(totals), lo.Max(totals)
		for _, member := range colony {
			amount := 1.0
			if ceiling > floor {
				amount = (member.score.Total - floor) / (ceiling - floor)
			}
			for _, slot := range member.grid.Slots() {
				key := trailKey(slot.LessonId, slot.Day, slot.Hour)
				level, ok := pheromone[key]
				if !ok {
					level = 1
				}
				pheromone[key] = level + amount
			}
		}

		if candidate := bestOf(colony); fitness.Better(candidate.score, bestScore) {
			best, bestScore = candidate.grid, candidate.score
		}
		reporter.Report(progress.Event{Optimizer: NameAntColony, Iteration: round + 1, Total: rounds, BestFitness: bestScore.Total})
	}

	return toolkit.guard(NameAntColony, input, inputScore, Result{Grid: best, Fitness: bestScore, Iterations: round}), nil
}

// construct clears every unlocked cell of a copy of the input and places the
// lessons again by priority, guided by the pheromone trail.
func (optimizer *antColony) construct(input *grid.Grid, lessons []model.Lesson, pheromone trail) *grid.Grid {
	toolkit := optimizer.toolkit
	g := input.Clone()
	for _, slot := range g.Slots() {
		if !g.IsLocked(slot.ClassId, slot.Day, slot.Hour) {
			g.Remove(slot.ClassId, slot.Day, slot.Hour)
		}
	}

	for _, lesson := range toolkit.byPriority(lessons) {
		placed := g.PlacedBlocks(lesson.Id)
		pending := lo.Filter(lo.Range(len(lesson.BlockStructure)), func(index int, _ int) bool {
			return !slices.Contains(placed, index)
		})
		slices.SortStableFunc(pending, func(a, b int) int {
			return cmp.Compare(lesson.BlockStructure[b], lesson.BlockStructure[a])
		})

		for _, blockIndex := range pending {
			if g.PlacedHours(lesson.Id)+lesson.BlockStructure[blockIndex] > lesson.WeeklyHours {
				continue
			}
			candidates := toolkit.Placer.Candidates(lesson, blockIndex, g)
			if len(candidates) == 0 {
				continue
			}
			candidate := optimizer.choose(lesson, candidates, pheromone)
			_ = placeCandidate(g, lesson, blockIndex, candidate)
		}

		for g.PlacedHours(lesson.Id) < lesson.WeeklyHours {
			if _, err := toolkit.Placer.PlaceHour(lesson, g); err != nil {
				break
			}
		}
	}
	return g
}

// choose draws a candidate with probability τ^α × η^β.
func (optimizer *antColony) choose(lesson model.Lesson, candidates []block.Candidate, pheromone trail) block.Candidate {
	params := optimizer.toolkit.Params
	heuristic := shifted(lo.Map(candidates, func(candidate block.Candidate, _ int) float64 { return candidate.Score }))
	weights := lo.Map(candidates, func(candidate block.Candidate, i int) float64 {
		tau := pheromone.level(lesson.Id, candidate.Day, candidate.Start, candidate.Size)
		return math.Pow(tau, params.Alpha) * math.Pow(heuristic[i], params.Beta)
	})
	return candidates[roulette(optimizer.toolkit.Rng, weights)]
}

// placeCandidate writes an already validated window into the grid, all hours
// or none.
func placeCandidate(g *grid.Grid, lesson model.Lesson, blockIndex int, candidate block.Candidate) error {
	cells := lo.Map(lo.Range(candidate.Size), func(position int, _ int) grid.Cell {
		return grid.Cell{ClassId: lesson.ClassId, Day: candidate.Day, Hour: candidate.Start + position}
	})
	backup := g.Snapshot(cells...)
	for position, n := 0, candidate.Size; position < n; position++ {
		meta := grid.BlockMeta{Index: blockIndex, Position: position, Size: candidate.Size}
		if err := g.Place(lesson, lesson.ClassId, candidate.Day, candidate.Start+position, meta); err != nil {
			_ = g.Restore(backup)
			return err
		}
	}
	return nil
}
