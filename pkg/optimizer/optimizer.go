package optimizer

import (
	"context"
	"math/rand"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/limaJavier/weektable/pkg/block"
	"github.com/limaJavier/weektable/pkg/config"
	"github.com/limaJavier/weektable/pkg/fitness"
	"github.com/limaJavier/weektable/pkg/grid"
	"github.com/limaJavier/weektable/pkg/model"
	"github.com/limaJavier/weektable/pkg/neighborhood"
	"github.com/limaJavier/weektable/pkg/progress"
)

// Optimizer refines a grid. Optimize never mutates the given grid and never
// returns a grid with more HARD violations than it.
type Optimizer interface {
	Name() string
	Optimize(ctx context.Context, grid *grid.Grid, lessons []model.Lesson, reporter *progress.Reporter) (Result, error)
}

type Result struct {
	Grid       *grid.Grid
	Fitness    fitness.Score
	Iterations int
}

// Params carries the per-algorithm parameters.
type Params struct {
	PopulationSize     int
	EliteCount         int
	MutationMoves      int
	InitialTemperature float64
	CoolingRate        float64
	MinTemperature     float64
	TabuTenure         int
	TabuSample         int
	CriticalSubjects   []string
	Ants               int
	Evaporation        float64
	Alpha              float64
	Beta               float64
	LearningRate       float64
	Discount           float64
	Epsilon            float64
}

func DefaultParams() Params {
	return Params{
		PopulationSize:     12,
		EliteCount:         2,
		MutationMoves:      3,
		InitialTemperature: 100,
		CoolingRate:        0.97,
		MinTemperature:     0.01,
		TabuTenure:         7,
		TabuSample:         20,
		Ants:               6,
		Evaporation:        0.1,
		Alpha:              1,
		Beta:               2,
		LearningRate:       0.3,
		Discount:           0.5,
		Epsilon:            0.2,
	}
}

func ParamsFromConfig(cfg config.OptimizerConfig) Params {
	return Params{
		PopulationSize:     cfg.PopulationSize,
		EliteCount:         cfg.EliteCount,
		MutationMoves:      cfg.MutationMoves,
		InitialTemperature: cfg.InitialTemperature,
		CoolingRate:        cfg.CoolingRate,
		MinTemperature:     cfg.MinTemperature,
		TabuTenure:         cfg.TabuTenure,
		TabuSample:         cfg.TabuSample,
		CriticalSubjects:   cfg.CriticalSubjects,
		Ants:               cfg.Ants,
		Evaporation:        cfg.Evaporation,
		Alpha:              cfg.Alpha,
		Beta:               cfg.Beta,
		LearningRate:       cfg.LearningRate,
		Discount:           cfg.Discount,
		Epsilon:            cfg.Epsilon,
	}
}

// Toolkit is what every optimizer works through: scoring, placement, moves
// and the injected random source.
type Toolkit struct {
	Engine     fitness.Engine
	Placer     block.Placer
	Moves      *neighborhood.Neighborhood
	Rng        *rand.Rand
	Logger     *zap.Logger
	Params     Params
	Iterations int
}

// NewToolkit wires a toolkit whose placer and moves share one random source
// seeded with seed.
func NewToolkit(engine fitness.Engine, scoring block.Scoring, params Params, iterations int, seed int64, logger *zap.Logger) Toolkit {
	if logger == nil {
		logger = zap.NewNop()
	}
	rng := rand.New(rand.NewSource(seed))
	evaluator := engine.Evaluator()
	return Toolkit{
		Engine:     engine,
		Placer:     block.NewPlacer(evaluator, scoring, rng, logger),
		Moves:      neighborhood.New(evaluator, rng),
		Rng:        rng,
		Logger:     logger,
		Params:     params,
		Iterations: max(1, iterations),
	}
}

// Budget scales the base iteration count by the algorithm power (1-10, 5 is
// neutral).
func Budget(maxIterations, power int) int {
	if power <= 0 {
		power = 5
	}
	return max(1, maxIterations*power/5)
}

//** Shared helpers

func (toolkit Toolkit) score(g *grid.Grid) fitness.Score {
	return toolkit.Engine.Fitness(g)
}

// perturb applies up to count random moves, skipping rejected ones.
func (toolkit Toolkit) perturb(g *grid.Grid, count int) int {
	applied := 0
	for i, n := 0, count; i < n; i++ {
		move, ok := toolkit.Moves.Random(g)
		if !ok {
			break
		}
		if _, err := toolkit.Moves.Apply(g, move); err == nil {
			applied++
		}
	}
	return applied
}

// fill places the missing hours of every lesson, block lessons first.
func (toolkit Toolkit) fill(g *grid.Grid, lessons []model.Lesson) {
	for _, lesson := range toolkit.byPriority(lessons) {
		if g.PlacedHours(lesson.Id) >= lesson.WeeklyHours {
			continue
		}
		_, _ = block.PlaceWithPolicy(toolkit.Placer, lesson, g, block.PolicyFallback)
	}
}

// clearLesson removes every unlocked slot of the lesson.
func clearLesson(g *grid.Grid, lessonId string) {
	for _, slot := range g.LessonSlots(lessonId) {
		if !g.IsLocked(slot.ClassId, slot.Day, slot.Hour) {
			g.Remove(slot.ClassId, slot.Day, slot.Hour)
		}
	}
}

// rebuild removes the lesson's unlocked hours and places them again. The grid
// is restored when the lesson ends with fewer placed hours than before.
func (toolkit Toolkit) rebuild(g *grid.Grid, lesson model.Lesson) bool {
	cells := g.LessonCells(lesson.Id)
	before := g.PlacedHours(lesson.Id)
	backup := g.Snapshot(cells...)

	clearLesson(g, lesson.Id)
	_, _ = block.PlaceWithPolicy(toolkit.Placer, lesson, g, block.PolicyFallback)

	if g.PlacedHours(lesson.Id) < before {
		clearLesson(g, lesson.Id)
		_ = g.Restore(backup)
		return false
	}
	return true
}

// guard returns the candidate unless it has more HARD violations than the
// input, in which case the input is returned unchanged.
func (toolkit Toolkit) guard(name string, input *grid.Grid, inputScore fitness.Score, candidate Result) Result {
	if candidate.Grid == nil || candidate.Fitness.HardViolations > inputScore.HardViolations {
		toolkit.Logger.Warn("optimizer result discarded",
			zap.String("optimizer", name),
			zap.Int("inputHard", inputScore.HardViolations),
			zap.Int("resultHard", candidate.Fitness.HardViolations),
		)
		return Result{Grid: input, Fitness: inputScore, Iterations: candidate.Iterations}
	}
	return candidate
}

// byPriority orders lessons the way the initial placement does.
func (toolkit Toolkit) byPriority(lessons []model.Lesson) []model.Lesson {
	return toolkit.Engine.Evaluator().Input().Prioritize(lessons)
}

// roulette picks an index with probability proportional to weight.
func roulette(rng *rand.Rand, weights []float64) int {
	total := lo.Sum(weights)
	if total <= 0 {
		return rng.Intn(len(weights))
	}
	pick := rng.Float64() * total
	for i, weight := range weights {
		if pick < weight {
			return i
		}
		pick -= weight
	}
	return len(weights) - 1
}

// shifted maps fitness values to positive roulette weights.
func shifted(values []float64) []float64 {
	floor := lo.Min(values)
	return lo.Map(values, func(value float64, _ int) float64 { return value - floor + 1 })
}
