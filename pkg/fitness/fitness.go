package fitness

import (
	"github.com/samber/lo"

	"github.com/limaJavier/weektable/pkg/config"
	"github.com/limaJavier/weektable/pkg/constraint"
	"github.com/limaJavier/weektable/pkg/grid"
)

// ObjectiveWeights weighs the four objectives of the multi-objective score.
type ObjectiveWeights struct {
	Compliance float64
	Fairness   float64
	Efficiency float64
	Quality    float64
}

type Settings struct {
	Baseline           float64
	CompletenessBonus  float64
	MissingHourPenalty float64
	GapVarianceFactor  float64
	LoadVarianceFactor float64
	Objectives         ObjectiveWeights
}

func DefaultSettings() Settings {
	return Settings{
		Baseline:           1000,
		CompletenessBonus:  500,
		MissingHourPenalty: 200,
		GapVarianceFactor:  5,
		LoadVarianceFactor: 1,
		Objectives:         ObjectiveWeights{Compliance: 0.4, Fairness: 0.3, Efficiency: 0.2, Quality: 0.1},
	}
}

func SettingsFromConfig(cfg config.FitnessConfig) Settings {
	return Settings{
		Baseline:           cfg.Baseline,
		CompletenessBonus:  cfg.CompletenessBonus,
		MissingHourPenalty: cfg.MissingHourPenalty,
		GapVarianceFactor:  cfg.GapVarianceFactor,
		LoadVarianceFactor: cfg.LoadVarianceFactor,
		Objectives: ObjectiveWeights{
			Compliance: cfg.ComplianceWeight,
			Fairness:   cfg.FairnessWeight,
			Efficiency: cfg.EfficiencyWeight,
			Quality:    cfg.QualityWeight,
		},
	}
}

// Score is the fitness of a grid with its component breakdown. Component
// scores other than Total and Completeness are on a 0-100 scale.
type Score struct {
	Total          float64 `json:"total"`
	Completeness   float64 `json:"completeness"` // Placed over required hours, 0-1
	Fairness       float64 `json:"fairness"`
	Efficiency     float64 `json:"efficiency"`
	Compliance     float64 `json:"compliance"`
	Balance        float64 `json:"balance"`
	Quality        float64 `json:"quality"`
	MultiObjective float64 `json:"multiObjective"`
	HardViolations int     `json:"hardViolations"`
	SoftViolations int     `json:"softViolations"`
	PlacedHours    int     `json:"placedHours"`
	RequiredHours  int     `json:"requiredHours"`
}

// Engine scores grids. Every method is a pure function of the grid.
type Engine interface {
	// Fitness computes the full score breakdown.
	Fitness(grid *grid.Grid) Score
	// Evaluate is the scalar fitness used to compare grids.
	Evaluate(grid *grid.Grid) float64
	// Fairness rates how evenly gaps and weekly load are spread over teachers.
	Fairness(grid *grid.Grid) float64
	MultiObjective(grid *grid.Grid) float64
	Evaluator() constraint.Evaluator
	Settings() Settings
}

func NewEngine(evaluator constraint.Evaluator, settings Settings) Engine {
	return &engineImplementation{
		evaluator: evaluator,
		settings:  settings,
	}
}

type engineImplementation struct {
	evaluator constraint.Evaluator
	settings  Settings
}

func (engine *engineImplementation) Evaluator() constraint.Evaluator { return engine.evaluator }
func (engine *engineImplementation) Settings() Settings              { return engine.settings }

func (engine *engineImplementation) Evaluate(g *grid.Grid) float64 {
	return engine.Fitness(g).Total
}

func (engine *engineImplementation) MultiObjective(g *grid.Grid) float64 {
	return engine.Fitness(g).MultiObjective
}

func (engine *engineImplementation) Fitness(g *grid.Grid) Score {
	report := engine.evaluator.Scan(g)
	return engine.score(g, report)
}

// FromReport scores a grid whose scan report is already at hand.
func FromReport(engine Engine, g *grid.Grid, report constraint.Report) Score {
	if implementation, ok := engine.(*engineImplementation); ok {
		return implementation.score(g, report)
	}
	return engine.Fitness(g)
}

func (engine *engineImplementation) score(g *grid.Grid, report constraint.Report) Score {
	settings := engine.settings
	input := engine.evaluator.Input()

	required := input.RequiredHours()
	placed := required - report.MissingHours()
	completeness := 0.0
	if required > 0 {
		completeness = float64(placed) / float64(required)
	}

	hard := report.HardCount()
	soft := len(report.Violations) - hard

	score := Score{
		Completeness:   completeness,
		Fairness:       engine.Fairness(g),
		Efficiency:     efficiency(g),
		Compliance:     compliance(hard, soft, placed),
		Balance:        engine.balance(g),
		Quality:        quality(report, engine.evaluator.Weights(), placed),
		HardViolations: hard,
		SoftViolations: soft,
		PlacedHours:    placed,
		RequiredHours:  required,
	}

	score.Total = settings.Baseline +
		report.Bonus - report.Penalty +
		settings.CompletenessBonus*completeness -
		settings.MissingHourPenalty*float64(required-placed)

	objectives := settings.Objectives
	score.MultiObjective = objectives.Compliance*score.Compliance +
		objectives.Fairness*score.Fairness +
		objectives.Efficiency*score.Efficiency +
		objectives.Quality*score.Quality

	return score
}

func (engine *engineImplementation) Fairness(g *grid.Grid) float64 {
	teachers := engine.evaluator.Input().TeacherIds()
	gaps := lo.Map(teachers, func(teacherId string, _ int) float64 { return float64(g.TeacherGaps(teacherId)) })
	loads := lo.Map(teachers, func(teacherId string, _ int) float64 { return float64(g.TeacherWeeklyLoad(teacherId)) })

	return clamp(100 -
		engine.settings.GapVarianceFactor*variance(gaps) -
		engine.settings.LoadVarianceFactor*variance(loads))
}

// balance rates how evenly each class spreads its hours over the week.
func (engine *engineImplementation) balance(g *grid.Grid) float64 {
	classes := g.ClassIds()
	if len(classes) == 0 {
		return 100
	}
	spread := lo.SumBy(classes, func(classId string) float64 {
		loads := lo.Map(lo.RangeFrom(1, g.Days()), func(day int, _ int) float64 { return float64(g.ClassDailyLoad(classId, day)) })
		return variance(loads)
	}) / float64(len(classes))
	return clamp(100 - engine.settings.GapVarianceFactor*spread)
}

// efficiency is the share of class hours that are not followed by an idle gap.
func efficiency(g *grid.Grid) float64 {
	placed := g.TotalPlaced()
	if placed == 0 {
		return 100
	}
	gaps := lo.SumBy(g.ClassIds(), func(classId string) int { return g.ClassGaps(classId) })
	return clamp(100 * (1 - float64(gaps)/float64(placed)))
}

// compliance drops with hard violations and, ten times slower, soft ones.
func compliance(hard, soft, placed int) float64 {
	return clamp(100 * (1 - (float64(hard)+0.1*float64(soft))/float64(max(1, placed))))
}

// quality measures preference satisfaction: soft penalties against the
// preferred-hour bonus, normalized by one SOFT_HIGH per placed hour.
func quality(report constraint.Report, weights constraint.Weights, placed int) float64 {
	softPenalty := lo.SumBy(report.Violations, func(violation constraint.Violation) float64 {
		if violation.Severity == constraint.Hard {
			return 0
		}
		return violation.Weight
	})
	if weights.SoftHigh <= 0 {
		return 100
	}
	return clamp(100 * (1 - (softPenalty-report.Bonus)/(weights.SoftHigh*float64(max(1, placed)))))
}

// Better reports whether a beats b: fewer hard violations first, then a
// higher total.
func Better(a, b Score) bool {
	if a.HardViolations != b.HardViolations {
		return a.HardViolations < b.HardViolations
	}
	return a.Total > b.Total
}

func variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := lo.Sum(values) / float64(len(values))
	return lo.SumBy(values, func(value float64) float64 { return (value - mean) * (value - mean) }) / float64(len(values))
}

func clamp(value float64) float64 {
	return min(100, max(0, value))
}
