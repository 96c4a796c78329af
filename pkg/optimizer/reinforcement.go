package optimizer

import (
	"context"
	"fmt"
	"math"

	"github.com/samber/lo"

	"github.com/limaJavier/weektable/pkg/fitness"
	"github.com/limaJavier/weektable/pkg/grid"
	"github.com/limaJavier/weektable/pkg/model"
	"github.com/limaJavier/weektable/pkg/neighborhood"
	"github.com/limaJavier/weektable/pkg/progress"
)

const NameReinforcement = "reinforcement"

type action string

const (
	actionRelocate action = "relocate"
	actionSwap     action = "swap"
	actionRebuild  action = "rebuild"
	actionFill     action = "fill"
)

var actions = []action{actionRelocate, actionSwap, actionRebuild, actionFill}

// reinforcement learns online which kind of move pays off in which state of
// the grid. Values are kept per (state feature, action), actions are chosen
// ε-greedily and the reward is the normalized fitness delta. Worsening steps
// are undone after the update.
type reinforcement struct {
	toolkit Toolkit
}

func NewReinforcement(toolkit Toolkit) Optimizer {
	return &reinforcement{toolkit: toolkit}
}

func (optimizer *reinforcement) Name() string { return NameReinforcement }

type qTable map[string]map[action]float64

func (table qTable) values(state string) map[action]float64 {
	values, ok := table[state]
	if !ok {
		values = make(map[action]float64, len(actions))
		table[state] = values
	}
	return values
}

// greedy returns the highest valued action; ties go to the earlier action.
func (table qTable) greedy(state string) (action, float64) {
	values := table.values(state)
	best := actions[0]
	for _, candidate := range actions[1:] {
		if values[candidate] > values[best] {
			best = candidate
		}
	}
	return best, values[best]
}

// stateOf buckets the grid into a coarse feature string: any HARD violation,
// the SOFT violation band and any missing hour.
func stateOf(score fitness.Score) string {
	band := "none"
	switch {
	case score.SoftViolations > 10:
		band = "many"
	case score.SoftViolations > 3:
		band = "some"
	case score.SoftViolations > 0:
		band = "few"
	}
	return fmt.Sprintf("hard=%v|soft=%v|missing=%v", score.HardViolations > 0, band, score.PlacedHours < score.RequiredHours)
}

func (optimizer *reinforcement) Optimize(ctx context.Context, input *grid.Grid, lessons []model.Lesson, reporter *progress.Reporter) (Result, error) {
	toolkit := optimizer.toolkit
	params := toolkit.Params
	inputScore := toolkit.score(input)

	table := make(qTable)
	current, currentScore := input.Clone(), inputScore
	best, bestScore := current.Clone(), currentScore

	iteration := 0
	for ; iteration < toolkit.Iterations; iteration++ {
		if err := reporter.Checkpoint(ctx); err != nil {
			return toolkit.guard(NameReinforcement, input, inputScore, Result{Grid: best, Fitness: bestScore, Iterations: iteration}), err
		}

		state := stateOf(currentScore)
		chosen, _ := table.greedy(state)
		if toolkit.Rng.Float64() < params.Epsilon {
			chosen = actions[toolkit.Rng.Intn(len(actions))]
		}

		previous := current.Clone()
		if !optimizer.perform(chosen, current, lessons) {
			table.values(state)[chosen] -= params.LearningRate * 0.1
			continue
		}
		score := toolkit.score(current)

		reward := (score.Total - currentScore.Total) / math.Max(1, math.Abs(currentScore.Total))
		if score.HardViolations > currentScore.HardViolations {
			reward = -1
		}
		_, future := table.greedy(stateOf(score))
		values := table.values(state)
		values[chosen] += params.LearningRate * (reward + params.Discount*future - values[chosen])

		if score.HardViolations > currentScore.HardViolations || score.Total < currentScore.Total {
			current = previous
			continue
		}
		currentScore = score
		if fitness.Better(currentScore, bestScore) {
			best, bestScore = current.Clone(), currentScore
		}

		if (iteration+1)%progressEvery(toolkit.Iterations) == 0 {
			reporter.Report(progress.Event{Optimizer: NameReinforcement, Iteration: iteration + 1, Total: toolkit.Iterations, BestFitness: bestScore.Total})
		}
	}

	return toolkit.guard(NameReinforcement, input, inputScore, Result{Grid: best, Fitness: bestScore, Iterations: iteration}), nil
}

// perform applies the action to the grid and reports whether anything was
// attempted.
func (optimizer *reinforcement) perform(chosen action, g *grid.Grid, lessons []model.Lesson) bool {
	toolkit := optimizer.toolkit
	rng := toolkit.Rng
	movable := neighborhood.Movable(g)

	switch chosen {
	case actionRelocate:
		if len(movable) == 0 {
			return false
		}
		slot := movable[rng.Intn(len(movable))]
		move := toolkit.Moves.RelocateTo(slot, rng.Intn(g.Days())+1, rng.Intn(g.Hours()-slot.Block.Size+1)+1)
		_, err := toolkit.Moves.Apply(g, move)
		return err == nil
	case actionSwap:
		singles := lo.Filter(movable, func(slot grid.Slot, _ int) bool { return slot.Block.Size == 1 })
		if len(singles) == 0 {
			return false
		}
		slot := singles[rng.Intn(len(singles))]
		other := grid.Cell{ClassId: slot.ClassId, Day: rng.Intn(g.Days()) + 1, Hour: rng.Intn(g.Hours()) + 1}
		_, err := toolkit.Moves.Swap(g, slot.ClassId, slot.Cell(), other)
		return err == nil
	case actionRebuild:
		if len(lessons) == 0 {
			return false
		}
		return toolkit.rebuild(g, lessons[rng.Intn(len(lessons))])
	case actionFill:
		before := g.TotalPlaced()
		toolkit.fill(g, lessons)
		return g.TotalPlaced() > before
	}
	return false
}
