package optimizer

import (
	"context"

	"github.com/samber/lo"

	"github.com/limaJavier/weektable/pkg/fitness"
	"github.com/limaJavier/weektable/pkg/grid"
	"github.com/limaJavier/weektable/pkg/model"
	"github.com/limaJavier/weektable/pkg/neighborhood"
	"github.com/limaJavier/weektable/pkg/progress"
)

const NameFuzzy = "fuzzy"

// fuzzySample is the number of candidate moves rated per iteration.
const fuzzySample = 4

// triangle is a triangular membership function rising from A to a peak at B
// and falling back to zero at C.
type triangle struct {
	A, B, C float64
}

func (set triangle) membership(x float64) float64 {
	switch {
	case x <= set.A || x >= set.C:
		return 0
	case x == set.B:
		return 1
	case x < set.B:
		return (x - set.A) / (set.B - set.A)
	default:
		return (set.C - x) / (set.C - set.B)
	}
}

// Input sets over rates in [0,1].
var (
	rateLow    = triangle{-0.5, 0, 0.5}
	rateMedium = triangle{0, 0.5, 1}
	rateHigh   = triangle{0.5, 1, 1.5}
)

// Output sets over quality in [0,1].
var (
	qualityPoor      = triangle{-0.25, 0, 0.35}
	qualityFair      = triangle{0.15, 0.4, 0.65}
	qualityGood      = triangle{0.4, 0.65, 0.9}
	qualityExcellent = triangle{0.65, 1, 1.25}
)

// fuzzyInputs are the crisp rates a candidate grid is rated on.
type fuzzyInputs struct {
	violationRate  float64
	preferenceRate float64
	gapRate        float64
}

type fuzzyRule struct {
	strength func(inputs fuzzyInputs) float64
	output   triangle
}

var fuzzyRules = []fuzzyRule{
	{func(in fuzzyInputs) float64 { return rateHigh.membership(in.violationRate) }, qualityPoor},
	{func(in fuzzyInputs) float64 { return rateHigh.membership(in.gapRate) }, qualityPoor},
	{func(in fuzzyInputs) float64 { return rateMedium.membership(in.violationRate) }, qualityFair},
	{func(in fuzzyInputs) float64 {
		return min(rateMedium.membership(in.preferenceRate), rateMedium.membership(in.gapRate))
	}, qualityFair},
	{func(in fuzzyInputs) float64 {
		return min(rateLow.membership(in.violationRate), rateLow.membership(in.preferenceRate))
	}, qualityFair},
	{func(in fuzzyInputs) float64 {
		return min(rateLow.membership(in.violationRate), rateLow.membership(in.gapRate))
	}, qualityGood},
	{func(in fuzzyInputs) float64 {
		return min(rateLow.membership(in.violationRate), rateHigh.membership(in.preferenceRate))
	}, qualityExcellent},
}

// infer fires the rule base (min for AND, clipped outputs aggregated by max)
// and defuzzifies by centroid. It returns 0.5 when no rule fires.
func infer(inputs fuzzyInputs) float64 {
	strengths := lo.Map(fuzzyRules, func(rule fuzzyRule, _ int) float64 { return rule.strength(inputs) })

	numerator, denominator := 0.0, 0.0
	for step := 0; step <= 100; step++ {
		x := float64(step) / 100
		mu := 0.0
		for i, rule := range fuzzyRules {
			mu = max(mu, min(strengths[i], rule.output.membership(x)))
		}
		numerator += x * mu
		denominator += mu
	}
	if denominator == 0 {
		return 0.5
	}
	return numerator / denominator
}

// fuzzy rates sampled moves with a fuzzy quality judgment on top of the raw
// fitness and takes the move with the best adjusted score when it beats the
// current grid.
type fuzzy struct {
	toolkit Toolkit
}

func NewFuzzy(toolkit Toolkit) Optimizer {
	return &fuzzy{toolkit: toolkit}
}

func (optimizer *fuzzy) Name() string { return NameFuzzy }

func (optimizer *fuzzy) Optimize(ctx context.Context, input *grid.Grid, _ []model.Lesson, reporter *progress.Reporter) (Result, error) {
	toolkit := optimizer.toolkit
	inputScore := toolkit.score(input)

	current, currentScore := input.Clone(), inputScore
	currentAdjusted := optimizer.adjusted(current, currentScore)
	best, bestScore := current.Clone(), currentScore

	iteration := 0
	for ; iteration < toolkit.Iterations; iteration++ {
		if err := reporter.Checkpoint(ctx); err != nil {
			return toolkit.guard(NameFuzzy, input, inputScore, Result{Grid: best, Fitness: bestScore, Iterations: iteration}), err
		}

		var (
			chosen         neighborhood.Move
			chosenScore    fitness.Score
			chosenAdjusted float64
			found          bool
		)
		for _, move := range toolkit.Moves.Sample(current, fuzzySample) {
			backup, err := toolkit.Moves.Apply(current, move)
			if err != nil {
				continue
			}
			score := toolkit.score(current)
			adjusted := optimizer.adjusted(current, score)
			_ = current.Restore(backup)

			if score.HardViolations > currentScore.HardViolations {
				continue
			}
			if !found || adjusted > chosenAdjusted {
				chosen, chosenScore, chosenAdjusted, found = move, score, adjusted, true
			}
		}

		if found && chosenAdjusted > currentAdjusted {
			if _, err := toolkit.Moves.Apply(current, chosen); err == nil {
				currentScore, currentAdjusted = chosenScore, chosenAdjusted
				if fitness.Better(currentScore, bestScore) {
					best, bestScore = current.Clone(), currentScore
				}
			}
		}

		if (iteration+1)%progressEvery(toolkit.Iterations) == 0 {
			reporter.Report(progress.Event{Optimizer: NameFuzzy, Iteration: iteration + 1, Total: toolkit.Iterations, BestFitness: bestScore.Total})
		}
	}

	return toolkit.guard(NameFuzzy, input, inputScore, Result{Grid: best, Fitness: bestScore, Iterations: iteration}), nil
}

// adjusted shifts the fitness by the fuzzy quality, centred on 0.5 and scaled
// by the SOFT_HIGH weight.
func (optimizer *fuzzy) adjusted(g *grid.Grid, score fitness.Score) float64 {
	scale := optimizer.toolkit.Engine.Evaluator().Weights().SoftHigh
	return score.Total + (infer(optimizer.inputs(g, score))-0.5)*scale
}

func (optimizer *fuzzy) inputs(g *grid.Grid, score fitness.Score) fuzzyInputs {
	placed := g.TotalPlaced()
	if placed == 0 {
		return fuzzyInputs{}
	}
	input := optimizer.toolkit.Engine.Evaluator().Input()
	teachers := lo.KeyBy(input.Teachers, func(teacher model.Teacher) string { return teacher.Id })

	rated, matched := 0, 0
	for _, slot := range g.Slots() {
		for _, teacherId := range slot.TeacherIds {
			preferred := teachers[teacherId].Preferences.PreferredHours
			if len(preferred) == 0 {
				continue
			}
			rated++
			if teachers[teacherId].Preferences.Prefers(slot.Hour) {
				matched++
			}
		}
	}
	preferenceRate := 0.5
	if rated > 0 {
		preferenceRate = float64(matched) / float64(rated)
	}

	gaps := lo.SumBy(g.TeacherIds(), g.TeacherGaps)
	return fuzzyInputs{
		violationRate:  min(1, float64(score.HardViolations+score.SoftViolations)/float64(placed)),
		preferenceRate: preferenceRate,
		gapRate:        min(1, float64(gaps)/float64(placed)),
	}
}
