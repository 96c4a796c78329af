package optimizer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limaJavier/weektable/pkg/block"
	"github.com/limaJavier/weektable/pkg/constraint"
	"github.com/limaJavier/weektable/pkg/fitness"
	"github.com/limaJavier/weektable/pkg/grid"
	"github.com/limaJavier/weektable/pkg/metrics"
	"github.com/limaJavier/weektable/pkg/model"
	"github.com/limaJavier/weektable/pkg/progress"

	appErrors "github.com/limaJavier/weektable/pkg/errors"
)

func newTestInput(t *testing.T) model.ModelInput {
	t.Helper()
	teachers := []model.Teacher{
		{Id: "t-math", Preferences: model.Preference{PreferredHours: []int{1, 2, 3}}},
		{Id: "t-hist", Blocked: []model.TimeSlot{{Day: 1, Hour: 1}, {Day: 1, Hour: 2}}},
		{Id: "t-lit", Preferences: model.Preference{AvoidedHours: []int{6}, DailyMax: 3}},
		{Id: "t-pe", Preferences: model.Preference{OffDay: 5}},
	}
	classes := []model.Class{{Id: "A"}, {Id: "B"}, {Id: "C"}}
	lessons := []model.Lesson{
		{Id: "math-a", Subject: "MATH", TeacherIds: []string{"t-math"}, ClassId: "A", WeeklyHours: 6, BlockStructure: []int{2, 2, 2}, SpecialRule: model.RuleMinDayGap, MinDayGap: 2},
		{Id: "math-b", Subject: "MATH", TeacherIds: []string{"t-math"}, ClassId: "B", WeeklyHours: 4, BlockStructure: []int{2, 2}, SpecialRule: model.RuleNoSameDay},
		{Id: "hist-a", Subject: "HISTORY", TeacherIds: []string{"t-hist"}, ClassId: "A", WeeklyHours: 3},
		{Id: "hist-c", Subject: "HISTORY", TeacherIds: []string{"t-hist"}, ClassId: "C", WeeklyHours: 2, BlockStructure: []int{1, 1}},
		{Id: "lit-b", Subject: "LITERATURE", TeacherIds: []string{"t-lit"}, ClassId: "B", WeeklyHours: 4},
		{Id: "lit-c", Subject: "LITERATURE", TeacherIds: []string{"t-lit"}, ClassId: "C", WeeklyHours: 3},
		{Id: "pe-a", Subject: "PE", TeacherIds: []string{"t-pe"}, ClassId: "A", WeeklyHours: 2, BlockStructure: []int{1, 1}},
		{Id: "pe-c", Subject: "PE", TeacherIds: []string{"t-pe"}, ClassId: "C", WeeklyHours: 2, BlockStructure: []int{2}},
	}
	manual := []model.ManualPlacement{{ClassId: "C", Day: 3, Hour: 6, LessonId: "lit-c"}}
	input, err := model.NewModelInput(5, 6, teachers, lessons, classes, manual)
	require.NoError(t, err)
	return input
}

func newTestToolkit(input model.ModelInput, iterations int, seed int64) Toolkit {
	evaluator := constraint.NewEvaluator(input, constraint.DefaultWeights(), constraint.Rules{DefaultMinDayGap: 2})
	engine := fitness.NewEngine(evaluator, fitness.DefaultSettings())
	params := DefaultParams()
	params.PopulationSize = 4
	params.Ants = 2
	params.TabuSample = 5
	return NewToolkit(engine, block.DefaultScoring(), params, iterations, seed, nil)
}

// newTestGrid places the manual lock and fills every lesson greedily.
func newTestGrid(t *testing.T, input model.ModelInput, toolkit Toolkit) *grid.Grid {
	t.Helper()
	g := grid.FromInput(input)
	require.Empty(t, block.PlaceManual(input, g))
	toolkit.fill(g, input.Lessons)
	return g
}

func TestOptimizersAreSafe(t *testing.T) {
	input := newTestInput(t)

	for _, name := range DefaultSequence {
		t.Run(name, func(t *testing.T) {
			//** Arrange
			toolkit := newTestToolkit(input, 30, 7)
			g := newTestGrid(t, input, toolkit)
			before := g.Clone()
			inputScore := toolkit.Engine.Fitness(g)
			optimizers, err := DefaultRegistry().Resolve([]string{name}, toolkit)
			require.NoError(t, err)

			//** Act
			result, err := optimizers[0].Optimize(context.Background(), g, input.Lessons, nil)

			//** Assert
			require.NoError(t, err)
			require.NotNil(t, result.Grid)
			assert.Equal(t, before, g, "input grid must not be mutated")
			assert.LessOrEqual(t, result.Fitness.HardViolations, inputScore.HardViolations)
			assert.InDelta(t, toolkit.Engine.Fitness(result.Grid).Total, result.Fitness.Total, 1e-6)

			lockedLesson, ok := result.Grid.LockedLesson("C", 3, 6)
			require.True(t, ok)
			assert.Equal(t, "lit-c", lockedLesson)
			slot, ok := result.Grid.Slot("C", 3, 6)
			require.True(t, ok)
			assert.Equal(t, "lit-c", slot.LessonId)
		})
	}
}

func TestOptimizersAreReproducible(t *testing.T) {
	input := newTestInput(t)

	for _, name := range DefaultSequence {
		t.Run(name, func(t *testing.T) {
			run := func() Result {
				toolkit := newTestToolkit(input, 20, 11)
				g := newTestGrid(t, input, toolkit)
				optimizers, err := DefaultRegistry().Resolve([]string{name}, toolkit)
				require.NoError(t, err)
				result, err := optimizers[0].Optimize(context.Background(), g, input.Lessons, nil)
				require.NoError(t, err)
				return result
			}

			first, second := run(), run()
			assert.Equal(t, first.Fitness, second.Fitness)
			assert.Equal(t, first.Grid.Slots(), second.Grid.Slots())
		})
	}
}

func TestGuardReturnsInputOnMoreHardViolations(t *testing.T) {
	//** Arrange
	input := newTestInput(t)
	toolkit := newTestToolkit(input, 1, 1)
	g := newTestGrid(t, input, toolkit)
	inputScore := toolkit.score(g)
	worse := inputScore
	worse.HardViolations = inputScore.HardViolations + 1

	//** Act
	result := toolkit.guard("test", g, inputScore, Result{Grid: grid.FromInput(input), Fitness: worse, Iterations: 3})

	//** Assert
	assert.Same(t, g, result.Grid)
	assert.Equal(t, inputScore, result.Fitness)
	assert.Equal(t, 3, result.Iterations)
}

func TestOptimizerStopsOnCancel(t *testing.T) {
	//** Arrange
	input := newTestInput(t)
	toolkit := newTestToolkit(input, 1000, 3)
	g := newTestGrid(t, input, toolkit)
	control := progress.NewControl()
	control.Cancel()
	reporter := progress.NewReporter(nil, control)

	//** Act
	result, err := NewAnnealing(toolkit).Optimize(context.Background(), g, input.Lessons, reporter)

	//** Assert
	assert.True(t, errors.Is(err, appErrors.ErrCancelled))
	assert.Zero(t, result.Iterations)
	assert.NotNil(t, result.Grid)
}

func TestRegistry(t *testing.T) {
	toolkit := newTestToolkit(newTestInput(t), 1, 1)

	t.Run("default sequence", func(t *testing.T) {
		optimizers, err := DefaultRegistry().Resolve(nil, toolkit)
		require.NoError(t, err)
		names := make([]string, len(optimizers))
		for i, optimizer := range optimizers {
			names[i] = optimizer.Name()
		}
		assert.Equal(t, DefaultSequence, names)
	})

	t.Run("unknown optimizer", func(t *testing.T) {
		_, err := DefaultRegistry().Resolve([]string{NameGenetic, "quantum"}, toolkit)
		assert.True(t, errors.Is(err, appErrors.ErrNotRegistered))
	})

	t.Run("register keeps order", func(t *testing.T) {
		registry := NewRegistry()
		registry.Register("b", NewFuzzy)
		registry.Register("a", NewTabu)
		registry.Register("b", NewAnnealing)
		assert.Equal(t, []string{"b", "a"}, registry.Names())

		optimizers, err := registry.Resolve([]string{"b"}, toolkit)
		require.NoError(t, err)
		assert.Equal(t, NameAnnealing, optimizers[0].Name())
	})
}

func TestBudget(t *testing.T) {
	assert.Equal(t, 500, Budget(500, 5))
	assert.Equal(t, 1000, Budget(500, 10))
	assert.Equal(t, 100, Budget(500, 1))
	assert.Equal(t, 500, Budget(500, 0))
	assert.Equal(t, 1, Budget(0, 5))
}

func TestFuzzyInference(t *testing.T) {
	good := infer(fuzzyInputs{violationRate: 0, preferenceRate: 1, gapRate: 0})
	bad := infer(fuzzyInputs{violationRate: 1, preferenceRate: 0, gapRate: 1})

	assert.Greater(t, good, 0.6)
	assert.Less(t, bad, 0.3)
	assert.InDelta(t, 1.0, rateHigh.membership(1), 1e-9)
	assert.Zero(t, rateLow.membership(0.5))
	assert.InDelta(t, 0.5, rateMedium.membership(0.25), 1e-9)
}

// stubOptimizer returns a fixed result and counts its runs.
type stubOptimizer struct {
	name   string
	result func(input *grid.Grid) (Result, error)
	runs   int
}

func (stub *stubOptimizer) Name() string { return stub.name }

func (stub *stubOptimizer) Optimize(_ context.Context, input *grid.Grid, _ []model.Lesson, _ *progress.Reporter) (Result, error) {
	stub.runs++
	return stub.result(input)
}

func TestController(t *testing.T) {
	input := newTestInput(t)
	toolkit := newTestToolkit(input, 1, 1)
	g := newTestGrid(t, input, toolkit)
	inputScore := toolkit.score(g)

	better := func(gain float64, hard int) func(*grid.Grid) (Result, error) {
		return func(current *grid.Grid) (Result, error) {
			score := toolkit.score(current)
			score.Total += gain
			score.HardViolations = hard
			return Result{Grid: current.Clone(), Fitness: score, Iterations: 1}, nil
		}
	}

	t.Run("accepts only safe improvements", func(t *testing.T) {
		//** Arrange
		improving := &stubOptimizer{name: "improving", result: better(10, inputScore.HardViolations)}
		unsafe := &stubOptimizer{name: "unsafe", result: better(500, inputScore.HardViolations+1)}
		failing := &stubOptimizer{name: "failing", result: func(*grid.Grid) (Result, error) {
			return Result{}, errors.New("boom")
		}}
		recorder := metrics.NewRecorder()
		controller := NewController([]Optimizer{improving, unsafe, failing}, toolkit.Engine, ControllerSettings{MaxPasses: 1}, recorder, nil)

		//** Act
		result, err := controller.Optimize(context.Background(), g, input.Lessons, nil)

		//** Assert
		require.NoError(t, err)
		assert.InDelta(t, inputScore.Total+10, result.Fitness.Total, 1e-9)
		statistics := controller.Statistics()
		assert.Equal(t, 1, statistics[0].Accepted)
		assert.Equal(t, 1, statistics[1].Rejected)
		assert.Equal(t, 1, statistics[2].Failed)
	})

	t.Run("stops below the improvement threshold", func(t *testing.T) {
		//** Arrange
		stagnant := &stubOptimizer{name: "stagnant", result: better(0, inputScore.HardViolations)}
		controller := NewController([]Optimizer{stagnant}, toolkit.Engine, ControllerSettings{MaxPasses: 5, ImprovementThreshold: 1}, nil, nil)

		//** Act
		_, err := controller.Optimize(context.Background(), g, input.Lessons, nil)

		//** Assert
		require.NoError(t, err)
		assert.Equal(t, 1, stagnant.runs)
	})

	t.Run("adaptive order follows gain", func(t *testing.T) {
		//** Arrange
		order := make([]string, 0)
		record := func(name string, gain float64) *stubOptimizer {
			stub := &stubOptimizer{name: name}
			stub.result = func(current *grid.Grid) (Result, error) {
				order = append(order, name)
				score := toolkit.score(current)
				score.Total += gain
				return Result{Grid: current, Fitness: score}, nil
			}
			return stub
		}
		controller := NewController(
			[]Optimizer{record("small", 2), record("large", 50)},
			toolkit.Engine,
			ControllerSettings{MaxPasses: 2, ImprovementThreshold: 1, Adaptive: true},
			nil, nil,
		)

		//** Act
		_, err := controller.Optimize(context.Background(), g, input.Lessons, nil)

		//** Assert
		require.NoError(t, err)
		assert.Equal(t, []string{"small", "large", "large", "small"}, order)
	})
}

func TestParallel(t *testing.T) {
	input := newTestInput(t)
	base := newTestToolkit(input, 1, 1)
	g := newTestGrid(t, input, base)
	build := func(worker int) Optimizer {
		return NewAnnealing(newTestToolkit(input, 25, int64(100+worker)))
	}

	//** Act
	first, firstWinner, err := Parallel(context.Background(), 3, build, g, input.Lessons, nil)
	require.NoError(t, err)
	second, secondWinner, err := Parallel(context.Background(), 3, build, g, input.Lessons, nil)
	require.NoError(t, err)

	//** Assert
	assert.Equal(t, firstWinner, secondWinner)
	assert.Equal(t, first.Fitness, second.Fitness)
	assert.LessOrEqual(t, first.Fitness.HardViolations, base.score(g).HardViolations)
	assert.GreaterOrEqual(t, first.Fitness.Total, base.score(g).Total)
}
