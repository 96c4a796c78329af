package optimizer

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/limaJavier/weektable/pkg/config"
	"github.com/limaJavier/weektable/pkg/fitness"
	"github.com/limaJavier/weektable/pkg/grid"
	"github.com/limaJavier/weektable/pkg/metrics"
	"github.com/limaJavier/weektable/pkg/model"
	"github.com/limaJavier/weektable/pkg/progress"

	appErrors "github.com/limaJavier/weektable/pkg/errors"
)

const NameController = "controller"

type ControllerSettings struct {
	MaxPasses            int
	ImprovementThreshold float64
	Adaptive             bool
}

func DefaultControllerSettings() ControllerSettings {
	return ControllerSettings{MaxPasses: 2, ImprovementThreshold: 1}
}

func ControllerSettingsFromConfig(cfg config.SolverConfig) ControllerSettings {
	return ControllerSettings{
		MaxPasses:            cfg.MaxPasses,
		ImprovementThreshold: cfg.ImprovementThreshold,
		Adaptive:             cfg.Adaptive,
	}
}

// Statistics is what the controller observed of one optimizer.
type Statistics struct {
	Name       string  `json:"name" csv:"optimizer"`
	Runs       int     `json:"runs" csv:"runs"`
	Accepted   int     `json:"accepted" csv:"accepted"`
	Rejected   int     `json:"rejected" csv:"rejected"`
	Failed     int     `json:"failed" csv:"failed"`
	Iterations int     `json:"iterations" csv:"iterations"`
	TotalGain  float64 `json:"totalGain" csv:"total_gain"`
	DurationMs int64   `json:"durationMs" csv:"duration_ms"`
}

func (statistics Statistics) AverageGain() float64 {
	if statistics.Runs == 0 {
		return 0
	}
	return statistics.TotalGain / float64(statistics.Runs)
}

// Controller runs optimizers in passes over one grid. A result is accepted
// only when it has no more HARD violations than the current grid and scores
// better. Passes stop once a whole pass gains less than the improvement
// threshold. In adaptive mode every pass after the first orders the
// optimizers by their average observed gain.
type Controller struct {
	optimizers []Optimizer
	engine     fitness.Engine
	settings   ControllerSettings
	recorder   *metrics.Recorder
	logger     *zap.Logger
	statistics map[string]*Statistics
}

func NewController(optimizers []Optimizer, engine fitness.Engine, settings ControllerSettings, recorder *metrics.Recorder, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.MaxPasses < 1 {
		settings.MaxPasses = 1
	}
	statistics := make(map[string]*Statistics, len(optimizers))
	for _, optimizer := range optimizers {
		statistics[optimizer.Name()] = &Statistics{Name: optimizer.Name()}
	}
	return &Controller{
		optimizers: optimizers,
		engine:     engine,
		settings:   settings,
		recorder:   recorder,
		logger:     logger,
		statistics: statistics,
	}
}

func (controller *Controller) Name() string { return NameController }

// Statistics lists the per-optimizer statistics in configured order.
func (controller *Controller) Statistics() []Statistics {
	statistics := make([]Statistics, 0, len(controller.optimizers))
	for _, optimizer := range controller.optimizers {
		statistics = append(statistics, *controller.statistics[optimizer.Name()])
	}
	return statistics
}

func (controller *Controller) Optimize(ctx context.Context, input *grid.Grid, lessons []model.Lesson, reporter *progress.Reporter) (Result, error) {
	current := Result{Grid: input, Fitness: controller.engine.Fitness(input)}

	for pass, n := 0, controller.settings.MaxPasses; pass < n; pass++ {
		order := controller.order(pass)
		passGain := 0.0

		for _, optimizer := range order {
			if err := reporter.Checkpoint(ctx); err != nil {
				return current, err
			}

			accepted, gain, err := controller.step(ctx, optimizer, &current, lessons, reporter)
			if err != nil && isCancellation(err) {
				return current, err
			}
			if accepted {
				passGain += gain
			}
		}

		controller.logger.Debug("optimization pass finished",
			zap.Int("pass", pass+1),
			zap.Float64("gain", passGain),
			zap.Float64("fitness", current.Fitness.Total),
		)
		if passGain < controller.settings.ImprovementThreshold {
			break
		}
	}
	return current, nil
}

// step runs one optimizer against the current grid and accepts its result
// when it is safe and better.
func (controller *Controller) step(ctx context.Context, optimizer Optimizer, current *Result, lessons []model.Lesson, reporter *progress.Reporter) (bool, float64, error) {
	name := optimizer.Name()
	statistics := controller.statistics[name]
	start := time.Now()
	result, err := optimizer.Optimize(ctx, current.Grid, lessons, reporter)
	statistics.Runs++
	statistics.Iterations += result.Iterations
	statistics.DurationMs += time.Since(start).Milliseconds()

	if err != nil && !isCancellation(err) {
		statistics.Failed++
		controller.recorder.ObserveOptimizer(name, metrics.OutcomeFailed, 0)
		controller.logger.Warn("optimizer failed", zap.String("optimizer", name), zap.Error(err))
		return false, 0, err
	}

	if result.Grid == nil || result.Fitness.HardViolations > current.Fitness.HardViolations || !fitness.Better(result.Fitness, current.Fitness) {
		statistics.Rejected++
		controller.recorder.ObserveOptimizer(name, metrics.OutcomeRejected, 0)
		return false, 0, err
	}

	gain := result.Fitness.Total - current.Fitness.Total
	statistics.Accepted++
	statistics.TotalGain += gain
	controller.recorder.ObserveOptimizer(name, metrics.OutcomeAccepted, gain)
	controller.logger.Info("optimizer result accepted",
		zap.String("optimizer", name),
		zap.Float64("gain", gain),
		zap.Float64("fitness", result.Fitness.Total),
		zap.Int("hard", result.Fitness.HardViolations),
	)
	*current = Result{Grid: result.Grid, Fitness: result.Fitness, Iterations: current.Iterations + result.Iterations}
	return true, gain, err
}

func (controller *Controller) order(pass int) []Optimizer {
	order := slices.Clone(controller.optimizers)
	if !controller.settings.Adaptive || pass == 0 {
		return order
	}
	slices.SortStableFunc(order, func(a, b Optimizer) int {
		gainA := controller.statistics[a.Name()].AverageGain()
		gainB := controller.statistics[b.Name()].AverageGain()
		switch {
		case gainA > gainB:
			return -1
		case gainA < gainB:
			return 1
		default:
			return 0
		}
	})
	return order
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, appErrors.ErrCancelled)
}
