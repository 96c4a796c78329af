package solver

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limaJavier/weektable/pkg/grid"
	"github.com/limaJavier/weektable/pkg/metrics"
	"github.com/limaJavier/weektable/pkg/model"
	"github.com/limaJavier/weektable/pkg/progress"

	appErrors "github.com/limaJavier/weektable/pkg/errors"
)

const schoolFile = "testdata/school.json"

func newTestSolver(t *testing.T) (*Solver, model.ModelInput) {
	t.Helper()
	input, err := model.InputFromJson(schoolFile)
	require.NoError(t, err)
	return New(input, DefaultDependencies()), input
}

func newTestOptions() Options {
	options := DefaultOptions()
	options.MaxIterations = 40
	options.AlgorithmPower = 5
	options.Seed = 7
	return options
}

func TestSolve(t *testing.T) {
	t.Run("builds a valid timetable", func(t *testing.T) {
		//** Arrange
		solver, input := newTestSolver(t)

		//** Act
		result, err := solver.Solve(context.Background(), newTestOptions())

		//** Assert
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.NotEmpty(t, result.RunId)
		assert.Zero(t, result.ViolationsBySeverity["HARD"])
		assert.Zero(t, result.Fitness.HardViolations)
		assert.Empty(t, result.MissingLessons)
		assert.NotEmpty(t, result.Statistics)
		require.NotNil(t, result.Grid)
		assert.Equal(t, input.RequiredHours(), result.Grid.TotalPlaced())

		locked, ok := result.Grid.Slot("9B", 2, 1)
		require.True(t, ok)
		assert.Equal(t, "hist-9b", locked.LessonId)
		assert.True(t, result.Grid.IsLocked("9B", 2, 1))
	})

	t.Run("is reproducible for a seed", func(t *testing.T) {
		//** Arrange
		solver, _ := newTestSolver(t)

		//** Act
		first, err := solver.Solve(context.Background(), newTestOptions())
		require.NoError(t, err)
		second, err := solver.Solve(context.Background(), newTestOptions())
		require.NoError(t, err)

		//** Assert
		assert.Equal(t, first.Fitness, second.Fitness)
		assert.Equal(t, slotsOf(first.Grid), slotsOf(second.Grid))
		assert.NotEqual(t, first.RunId, second.RunId)
	})

	t.Run("runs parallel workers", func(t *testing.T) {
		//** Arrange
		solver, _ := newTestSolver(t)
		options := newTestOptions()
		options.Parallel = 3
		options.Algorithms = []string{"annealing", "tabu"}

		//** Act
		result, err := solver.Solve(context.Background(), options)

		//** Assert
		require.NoError(t, err)
		assert.True(t, result.Success)
		require.Len(t, result.Statistics, 2)
		assert.Equal(t, "annealing", result.Statistics[0].Name)
	})

	t.Run("rejects unknown optimizers", func(t *testing.T) {
		//** Arrange
		solver, _ := newTestSolver(t)
		options := newTestOptions()
		options.Algorithms = []string{"genetic", "quantum"}

		//** Act
		_, err := solver.Solve(context.Background(), options)

		//** Assert
		assert.ErrorIs(t, err, appErrors.ErrNotRegistered)
	})

	t.Run("rejects invalid options", func(t *testing.T) {
		//** Arrange
		solver, _ := newTestSolver(t)
		options := newTestOptions()
		options.AlgorithmPower = 11

		//** Act
		_, err := solver.Solve(context.Background(), options)

		//** Assert
		assert.ErrorIs(t, err, appErrors.ErrValidation)
	})

	t.Run("stops when cancelled", func(t *testing.T) {
		//** Arrange
		solver, _ := newTestSolver(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		//** Act
		result, err := solver.Solve(ctx, newTestOptions())

		//** Assert
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, result.Success)
	})
}

func TestCustomPipeline(t *testing.T) {
	t.Run("runs without the optimization stage", func(t *testing.T) {
		//** Arrange
		solver, _ := newTestSolver(t)
		pipeline := solver.NewPipeline(newTestOptions())
		require.NoError(t, pipeline.Disable(StageOptimization))

		//** Act
		result, err := solver.Run(context.Background(), pipeline)

		//** Assert
		require.NoError(t, err)
		assert.Empty(t, result.Statistics)
		assert.Zero(t, result.Fitness.HardViolations)
	})

	t.Run("runs an added stage", func(t *testing.T) {
		//** Arrange
		solver, _ := newTestSolver(t)
		pipeline := solver.NewPipeline(newTestOptions())
		var seen int
		require.NoError(t, pipeline.InsertAfter(StageInitialSolution, Stage{
			Name:    "inspect",
			Enabled: true,
			Run: func(ctx context.Context, state *State) error {
				seen = state.Grid.TotalPlaced()
				return nil
			},
		}))

		//** Act
		_, err := solver.Run(context.Background(), pipeline)

		//** Assert
		require.NoError(t, err)
		assert.Positive(t, seen)
	})

	t.Run("exposes the default stage order", func(t *testing.T) {
		//** Arrange
		solver, _ := newTestSolver(t)

		//** Act
		pipeline := solver.NewPipeline(DefaultOptions())

		//** Assert
		assert.Equal(t, []string{
			StagePreprocessing,
			StageInitialSolution,
			StageOptimization,
			StageRepair,
			StageStabilize,
			StageValidation,
		}, pipeline.Names())
	})
}

func TestPreprocessing(t *testing.T) {
	//** Arrange
	solver, input := newTestSolver(t)
	state := NewState(input)

	//** Act
	err := solver.preprocess(context.Background(), &state)

	//** Assert
	require.NoError(t, err)
	require.Len(t, state.Lessons, len(input.Lessons))
	assert.True(t, state.Lessons[0].IsBlockLesson())
	// t-hist is blocked at (1,1), (1,2) and (3,8)
	assert.Len(t, state.Domains["hist-9a"], input.Days*input.Hours-3)
	assert.NotContains(t, state.Domains["hist-9a"], model.TimeSlot{Day: 1, Hour: 1})
	assert.Len(t, state.Domains["lit-9a"], input.Days*input.Hours)
}

func TestSolveReportsProgressAndMetrics(t *testing.T) {
	//** Arrange
	input, err := model.InputFromJson(schoolFile)
	require.NoError(t, err)
	var events atomic.Int64
	dependencies := DefaultDependencies()
	dependencies.Recorder = metrics.NewRecorder()
	dependencies.Observer = progress.ObserverFunc(func(event progress.Event) { events.Add(1) })
	dependencies.Control = progress.NewControl()
	solver := New(input, dependencies)

	//** Act
	_, err = solver.Solve(context.Background(), newTestOptions())

	//** Assert
	require.NoError(t, err)
	assert.Positive(t, events.Load())
	families, err := dependencies.Recorder.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func slotsOf(g *grid.Grid) []grid.Slot {
	if g == nil {
		return nil
	}
	return g.Slots()
}
