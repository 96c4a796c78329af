package solver

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/limaJavier/weektable/pkg/config"
	"github.com/limaJavier/weektable/pkg/metrics"

	appErrors "github.com/limaJavier/weektable/pkg/errors"
)

const (
	StagePreprocessing   = "preprocessing"
	StageInitialSolution = "initial-solution"
	StageOptimization    = "optimization"
	StageRepair          = "repair"
	StageStabilize       = "stabilize"
	StageValidation      = "validation"
)

// StageFunc mutates the state handed to it. The pipeline hands every attempt
// its own copy, so a failed attempt leaves nothing behind.
type StageFunc func(ctx context.Context, state *State) error

type Stage struct {
	Name     string
	Enabled  bool
	Required bool
	// Timeout bounds one attempt; zero means no bound.
	Timeout    time.Duration
	MaxRetries int
	// Backoff is the delay before the first retry; it doubles on every
	// further retry.
	Backoff time.Duration
	// Condition, when set, skips the stage if it returns false.
	Condition func(state State) bool
	Run       StageFunc
}

// StageError reports a required stage that exhausted its retries.
type StageError struct {
	Stage    string
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %v failed after %v attempt(s): %v", e.Stage, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func (e *StageError) Is(target error) bool {
	return errors.Is(appErrors.ErrStageFailed, target)
}

// PipelineSettings are the per-stage defaults applied by the solver.
type PipelineSettings struct {
	StageTimeout time.Duration
	StageRetries int
	RetryBackoff time.Duration
}

func DefaultPipelineSettings() PipelineSettings {
	return PipelineSettings{StageTimeout: 2 * time.Minute, StageRetries: 2, RetryBackoff: 50 * time.Millisecond}
}

func PipelineSettingsFromConfig(cfg config.PipelineConfig) PipelineSettings {
	return PipelineSettings{
		StageTimeout: cfg.StageTimeout,
		StageRetries: cfg.StageRetries,
		RetryBackoff: cfg.RetryBackoff,
	}
}

// Pipeline is an ordered registry of stages keyed by name.
type Pipeline struct {
	stages   []Stage
	recorder *metrics.Recorder
	logger   *zap.Logger
}

func NewPipeline(recorder *metrics.Recorder, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{stages: make([]Stage, 0), recorder: recorder, logger: logger}
}

//** Registry

func (pipeline *Pipeline) Names() []string {
	names := make([]string, len(pipeline.stages))
	for i, stage := range pipeline.stages {
		names[i] = stage.Name
	}
	return names
}

func (pipeline *Pipeline) Stage(name string) (Stage, bool) {
	index := pipeline.indexOf(name)
	if index < 0 {
		return Stage{}, false
	}
	return pipeline.stages[index], true
}

// Add appends a stage. Names are unique.
func (pipeline *Pipeline) Add(stage Stage) error {
	return pipeline.insert(len(pipeline.stages), stage)
}

func (pipeline *Pipeline) InsertBefore(name string, stage Stage) error {
	index := pipeline.indexOf(name)
	if index < 0 {
		return unknownStage(name)
	}
	return pipeline.insert(index, stage)
}

func (pipeline *Pipeline) InsertAfter(name string, stage Stage) error {
	index := pipeline.indexOf(name)
	if index < 0 {
		return unknownStage(name)
	}
	return pipeline.insert(index+1, stage)
}

func (pipeline *Pipeline) Remove(name string) error {
	index := pipeline.indexOf(name)
	if index < 0 {
		return unknownStage(name)
	}
	pipeline.stages = slices.Delete(pipeline.stages, index, index+1)
	return nil
}

// Reorder puts the stages in the given order; names must be a permutation of
// the registered stages.
func (pipeline *Pipeline) Reorder(names []string) error {
	if len(names) != len(pipeline.stages) {
		return appErrors.Clonef(appErrors.ErrValidation, "reorder needs %v stage names, got %v", len(pipeline.stages), len(names))
	}
	reordered := make([]Stage, 0, len(names))
	for _, name := range names {
		index := pipeline.indexOf(name)
		if index < 0 {
			return unknownStage(name)
		}
		if slices.ContainsFunc(reordered, func(stage Stage) bool { return stage.Name == name }) {
			return appErrors.Clonef(appErrors.ErrValidation, "stage \"%v\" listed twice", name)
		}
		reordered = append(reordered, pipeline.stages[index])
	}
	pipeline.stages = reordered
	return nil
}

func (pipeline *Pipeline) Enable(name string) error {
	return pipeline.setEnabled(name, true)
}

func (pipeline *Pipeline) Disable(name string) error {
	return pipeline.setEnabled(name, false)
}

func (pipeline *Pipeline) setEnabled(name string, enabled bool) error {
	index := pipeline.indexOf(name)
	if index < 0 {
		return unknownStage(name)
	}
	pipeline.stages[index].Enabled = enabled
	return nil
}

func (pipeline *Pipeline) insert(index int, stage Stage) error {
	if stage.Name == "" || stage.Run == nil {
		return appErrors.Clone(appErrors.ErrValidation, "stage needs a name and a run function")
	}
	if pipeline.indexOf(stage.Name) >= 0 {
		return appErrors.Clonef(appErrors.ErrValidation, "stage \"%v\" already registered", stage.Name)
	}
	pipeline.stages = slices.Insert(pipeline.stages, index, stage)
	return nil
}

func (pipeline *Pipeline) indexOf(name string) int {
	return slices.IndexFunc(pipeline.stages, func(stage Stage) bool { return stage.Name == name })
}

func unknownStage(name string) error {
	return appErrors.Clonef(appErrors.ErrNotRegistered, "stage \"%v\" is not registered", name)
}

//** Execution

// Run executes the enabled stages in order. A required stage that exhausts
// its retries stops the run with a *StageError; an optional one is recorded
// as a warning and the state before it passes through. Cancellation of ctx
// stops the run at once.
func (pipeline *Pipeline) Run(ctx context.Context, state State) (State, error) {
	for _, stage := range pipeline.stages {
		if !stage.Enabled {
			pipeline.logger.Debug("stage disabled", zap.String("stage", stage.Name))
			continue
		}
		if stage.Condition != nil && !stage.Condition(state) {
			pipeline.logger.Debug("stage condition not met", zap.String("stage", stage.Name))
			continue
		}

		next, attempts, err := pipeline.runStage(ctx, stage, state)
		if err == nil {
			state = next
			continue
		}
		if ctx.Err() != nil {
			return state, ctx.Err()
		}
		if errors.Is(err, appErrors.ErrCancelled) {
			return state, err
		}
		if stage.Required {
			return state, &StageError{Stage: stage.Name, Attempts: attempts, Err: err}
		}
		pipeline.logger.Warn("optional stage failed", zap.String("stage", stage.Name), zap.Int("attempts", attempts), zap.Error(err))
		state.Warnings = append(state.Warnings, fmt.Sprintf("stage %v skipped after %v attempt(s): %v", stage.Name, attempts, err))
	}
	return state, nil
}

func (pipeline *Pipeline) runStage(ctx context.Context, stage Stage, state State) (State, int, error) {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= max(0, stage.MaxRetries); attempt++ {
		if attempt > 0 {
			pipeline.recorder.IncStageRetry(stage.Name)
			delay := stage.Backoff * time.Duration(1<<(attempt-1))
			pipeline.logger.Info("retrying stage",
				zap.String("stage", stage.Name),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := sleep(ctx, delay); err != nil {
				return state, attempts, err
			}
		}

		attempts++
		start := time.Now()
		candidate := state.Clone()
		err := pipeline.attempt(ctx, stage, &candidate)
		if err == nil {
			pipeline.recorder.ObserveStage(stage.Name, "success", time.Since(start))
			pipeline.logger.Debug("stage finished", zap.String("stage", stage.Name), zap.Duration("took", time.Since(start)))
			return candidate, attempts, nil
		}

		pipeline.recorder.ObserveStage(stage.Name, "failure", time.Since(start))
		lastErr = err
		if ctx.Err() != nil || errors.Is(err, appErrors.ErrCancelled) {
			return state, attempts, err
		}
	}
	return state, attempts, lastErr
}

// attempt runs the stage under its timeout. A stage that outlives the
// timeout is abandoned along with the copy of the state it was given.
func (pipeline *Pipeline) attempt(ctx context.Context, stage Stage, state *State) error {
	if stage.Timeout <= 0 {
		return stage.Run(ctx, state)
	}

	stageCtx, cancel := context.WithTimeout(ctx, stage.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- stage.Run(stageCtx, state)
	}()

	select {
	case err := <-done:
		return err
	case <-stageCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("stage %v timed out after %v: %w", stage.Name, stage.Timeout, stageCtx.Err())
	}
}

func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
