package solver

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/limaJavier/weektable/pkg/block"
	"github.com/limaJavier/weektable/pkg/constraint"
	"github.com/limaJavier/weektable/pkg/fitness"
	"github.com/limaJavier/weektable/pkg/grid"
	"github.com/limaJavier/weektable/pkg/model"
	"github.com/limaJavier/weektable/pkg/optimizer"
	"github.com/limaJavier/weektable/pkg/progress"
	"github.com/limaJavier/weektable/pkg/repair"
)

// Solver builds weekly timetables for one validated input.
type Solver struct {
	input        model.ModelInput
	dependencies Dependencies
	evaluator    constraint.Evaluator
	engine       fitness.Engine
	logger       *zap.Logger
}

func New(input model.ModelInput, dependencies Dependencies) *Solver {
	if dependencies.Logger == nil {
		dependencies.Logger = zap.NewNop()
	}
	if dependencies.Registry == nil {
		dependencies.Registry = optimizer.DefaultRegistry()
	}
	evaluator := constraint.NewEvaluator(input, dependencies.Weights, dependencies.Rules)
	return &Solver{
		input:        input,
		dependencies: dependencies,
		evaluator:    evaluator,
		engine:       fitness.NewEngine(evaluator, dependencies.Fitness),
		logger:       dependencies.Logger,
	}
}

func (solver *Solver) Evaluator() constraint.Evaluator { return solver.evaluator }
func (solver *Solver) Engine() fitness.Engine          { return solver.engine }

// Solve runs the default pipeline for the options.
func (solver *Solver) Solve(ctx context.Context, options Options) (SolveResult, error) {
	options = options.normalized()
	if err := options.Validate(); err != nil {
		return SolveResult{}, err
	}
	// Unknown optimizers fail the run before any work is done
	if _, err := solver.dependencies.Registry.Resolve(options.Algorithms, solver.toolkit(options, 0)); err != nil {
		return SolveResult{}, err
	}
	return solver.Run(ctx, solver.NewPipeline(options))
}

// Run executes a pipeline, default or customized, and summarizes its final
// state.
func (solver *Solver) Run(ctx context.Context, pipeline *Pipeline) (SolveResult, error) {
	runId := uuid.NewString()
	start := time.Now()
	logger := solver.logger.With(zap.String("run", runId))
	logger.Info("solve started",
		zap.Int("classes", len(solver.input.Classes)),
		zap.Int("lessons", len(solver.input.Lessons)),
		zap.Strings("stages", pipeline.Names()),
	)

	state, err := pipeline.Run(ctx, NewState(solver.input))
	result := solver.summarize(runId, state, time.Since(start), err)
	solver.dependencies.Recorder.ObserveSolve(result.Success, result.Fitness.Total, lo.SumBy(result.MissingLessons, func(missing constraint.MissingLesson) int {
		return missing.Hours()
	}), result.ViolationsBySeverity)

	if err != nil {
		logger.Error("solve failed", zap.Error(err), zap.Int64("durationMs", result.DurationMs))
		return result, err
	}
	logger.Info("solve finished",
		zap.Bool("success", result.Success),
		zap.Float64("fitness", result.Fitness.Total),
		zap.Int("hard", result.Fitness.HardViolations),
		zap.Int("missingLessons", len(result.MissingLessons)),
		zap.Int64("durationMs", result.DurationMs),
	)
	return result, nil
}

// NewPipeline returns the default stages configured for the options. Callers
// may add, remove, reorder or toggle stages before running it.
func (solver *Solver) NewPipeline(options Options) *Pipeline {
	options = options.normalized()
	settings := solver.dependencies.Pipeline
	pipeline := NewPipeline(solver.dependencies.Recorder, solver.logger)

	stage := func(name string, required, enabled bool, run StageFunc) Stage {
		return Stage{
			Name:       name,
			Enabled:    enabled,
			Required:   required,
			Timeout:    settings.StageTimeout,
			MaxRetries: settings.StageRetries,
			Backoff:    settings.RetryBackoff,
			Run:        run,
		}
	}

	repairStage := stage(StageRepair, false, options.EnableRepair, solver.repair)
	repairStage.Condition = func(state State) bool { return solver.evaluator.CountHard(state.Grid) > 0 }
	stabilizeStage := stage(StageStabilize, false, options.EnableStabilize, solver.stabilize)
	stabilizeStage.Condition = func(state State) bool { return state.Grid.TotalPlaced() < state.Input.RequiredHours() }

	for _, s := range []Stage{
		stage(StagePreprocessing, true, true, solver.preprocess),
		stage(StageInitialSolution, true, true, func(ctx context.Context, state *State) error {
			return solver.initialSolution(ctx, state, options)
		}),
		stage(StageOptimization, false, true, func(ctx context.Context, state *State) error {
			return solver.optimize(ctx, state, options)
		}),
		repairStage,
		stabilizeStage,
		stage(StageValidation, true, true, solver.validate),
	} {
		_ = pipeline.Add(s)
	}
	return pipeline
}

//** Stages

// preprocess orders the lessons by priority and computes every lesson's
// candidate domain: the hours none of its teachers has blocked.
func (solver *Solver) preprocess(ctx context.Context, state *State) error {
	input := state.Input
	generator := model.NewDomainGenerator(input.Days, input.Hours)
	state.Lessons = input.Prioritize(input.Lessons)
	state.Domains = make(map[string][]model.TimeSlot, len(state.Lessons))

	for _, lesson := range state.Lessons {
		if err := ctx.Err(); err != nil {
			return err
		}
		teachers := lo.FilterMap(lesson.TeacherIds, func(teacherId string, _ int) (model.Teacher, bool) {
			return input.Teacher(teacherId)
		})
		domain := generator.ConstrainedPermutations([]func(permutation []int) bool{
			func(permutation []int) bool {
				day, hour := permutation[0], permutation[1]
				if day == math.MaxInt || hour == math.MaxInt {
					return true
				}
				return !lo.SomeBy(teachers, func(teacher model.Teacher) bool { return teacher.IsBlocked(day, hour) })
			},
		})
		state.Domains[lesson.Id] = domain

		if len(domain) < lesson.WeeklyHours {
			state.Warnings = append(state.Warnings, fmt.Sprintf("lesson %v has %v legal hours for %v weekly hours", lesson.Id, len(domain), lesson.WeeklyHours))
		}
	}
	return nil
}

// initialSolution places the manual locks, then every lesson in priority order
// on its best-scoring legal windows.
func (solver *Solver) initialSolution(ctx context.Context, state *State, options Options) error {
	g := grid.FromInput(state.Input)
	for _, failure := range block.PlaceManual(state.Input, g) {
		solver.logger.Warn("manual placement rejected", zap.String("lesson", failure.Placement.LessonId), zap.Error(failure.Err))
		state.Warnings = append(state.Warnings, failure.Err.Error())
	}

	scoring := solver.dependencies.Scoring
	scoring.TopN = 1
	placer := block.NewPlacer(solver.evaluator, scoring, rand.New(rand.NewSource(options.Seed)), solver.logger)

	failures := make([]block.PlacementFailure, 0)
	for _, lesson := range state.Lessons {
		if err := ctx.Err(); err != nil {
			return err
		}
		lessonFailures, err := block.PlaceWithPolicy(placer, lesson, g, options.FailurePolicy)
		if err != nil {
			return err
		}
		failures = append(failures, lessonFailures...)
	}

	if missing := block.MissingHours(failures); missing > 0 {
		solver.logger.Info("initial solution incomplete", zap.Int("missingHours", missing))
	}
	state.Grid = g
	state.Failures = failures
	return nil
}

func (solver *Solver) optimize(ctx context.Context, state *State, options Options) error {
	registry := solver.dependencies.Registry
	reporter := progress.NewReporter(solver.dependencies.Observer, solver.dependencies.Control).WithStage(StageOptimization)
	settings := optimizer.ControllerSettings{
		MaxPasses:            options.MaxPasses,
		ImprovementThreshold: options.ImprovementThreshold,
		Adaptive:             options.Adaptive,
	}

	if _, err := registry.Resolve(options.Algorithms, solver.toolkit(options, 0)); err != nil {
		return err
	}

	controllers := make([]*optimizer.Controller, options.Parallel)
	build := func(worker int) optimizer.Optimizer {
		optimizers, _ := registry.Resolve(options.Algorithms, solver.toolkit(options, worker))
		controllers[worker] = optimizer.NewController(optimizers, solver.engine, settings, solver.dependencies.Recorder, solver.logger)
		return controllers[worker]
	}

	var (
		result optimizer.Result
		winner int
		err    error
	)
	if options.Parallel > 1 {
		result, winner, err = optimizer.Parallel(ctx, options.Parallel, build, state.Grid, state.Lessons, reporter)
	} else {
		result, err = build(0).Optimize(ctx, state.Grid, state.Lessons, reporter)
	}
	if err != nil {
		return err
	}

	state.Grid = result.Grid
	state.Statistics = controllers[winner].Statistics()
	return nil
}

func (solver *Solver) repair(ctx context.Context, state *State) error {
	outcome, err := solver.repairEngine(state).Repair(ctx, state.Grid, state.Lessons)
	if err != nil {
		return err
	}
	state.Repair = outcome
	return nil
}

func (solver *Solver) stabilize(ctx context.Context, state *State) error {
	placed, err := solver.repairEngine(state).Stabilize(ctx, state.Grid, state.Lessons)
	if err != nil {
		return err
	}
	state.Stabilized += placed
	return nil
}

func (solver *Solver) validate(ctx context.Context, state *State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	state.Report = solver.evaluator.Scan(state.Grid)
	state.Fitness = fitness.FromReport(solver.engine, state.Grid, state.Report)
	return nil
}

//** Helpers

func (solver *Solver) toolkit(options Options, worker int) optimizer.Toolkit {
	iterations := optimizer.Budget(options.MaxIterations, options.AlgorithmPower)
	return optimizer.NewToolkit(solver.engine, solver.dependencies.Scoring, solver.dependencies.Params, iterations, options.Seed+int64(worker), solver.logger)
}

func (solver *Solver) repairEngine(state *State) repair.Engine {
	seed := int64(state.Grid.TotalPlaced())
	placer := block.NewPlacer(solver.evaluator, solver.dependencies.Scoring, rand.New(rand.NewSource(seed)), solver.logger)
	return repair.NewEngine(placer, solver.dependencies.Repair, solver.dependencies.Recorder, solver.logger)
}
