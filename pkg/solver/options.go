package solver

import (
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/limaJavier/weektable/pkg/block"
	"github.com/limaJavier/weektable/pkg/config"
	"github.com/limaJavier/weektable/pkg/constraint"
	"github.com/limaJavier/weektable/pkg/fitness"
	"github.com/limaJavier/weektable/pkg/metrics"
	"github.com/limaJavier/weektable/pkg/optimizer"
	"github.com/limaJavier/weektable/pkg/progress"
	"github.com/limaJavier/weektable/pkg/repair"

	appErrors "github.com/limaJavier/weektable/pkg/errors"
)

// Options are the knobs of one solve run.
type Options struct {
	MaxIterations        int `validate:"min=1"`
	AlgorithmPower       int `validate:"min=1,max=10"`
	EnableRepair         bool
	EnableStabilize      bool
	Seed                 int64
	Algorithms           []string
	Adaptive             bool
	Parallel             int                 `validate:"min=1,max=64"`
	MaxPasses            int                 `validate:"min=1"`
	ImprovementThreshold float64             `validate:"min=0"`
	FailurePolicy        block.FailurePolicy `validate:"oneof=skip fallback abort"`
}

var validate = validator.New()

func DefaultOptions() Options {
	return Options{
		MaxIterations:        500,
		AlgorithmPower:       5,
		EnableRepair:         true,
		EnableStabilize:      true,
		Seed:                 1,
		Algorithms:           optimizer.DefaultSequence,
		Parallel:             1,
		MaxPasses:            2,
		ImprovementThreshold: 1,
		FailurePolicy:        block.PolicyFallback,
	}
}

func OptionsFromConfig(cfg config.SolverConfig) (Options, error) {
	policy, err := block.ParseFailurePolicy(cfg.FailurePolicy)
	if err != nil {
		return Options{}, err
	}
	options := Options{
		MaxIterations:        cfg.MaxIterations,
		AlgorithmPower:       cfg.AlgorithmPower,
		EnableRepair:         cfg.EnableRepair,
		EnableStabilize:      cfg.EnableStabilize,
		Seed:                 cfg.Seed,
		Algorithms:           cfg.Algorithms,
		Adaptive:             cfg.Adaptive,
		Parallel:             cfg.Parallel,
		MaxPasses:            cfg.MaxPasses,
		ImprovementThreshold: cfg.ImprovementThreshold,
		FailurePolicy:        policy,
	}
	return options.normalized(), nil
}

// normalized fills zero values with the defaults.
func (options Options) normalized() Options {
	defaults := DefaultOptions()
	if options.MaxIterations == 0 {
		options.MaxIterations = defaults.MaxIterations
	}
	if options.AlgorithmPower == 0 {
		options.AlgorithmPower = defaults.AlgorithmPower
	}
	if len(options.Algorithms) == 0 {
		options.Algorithms = defaults.Algorithms
	}
	if options.Parallel == 0 {
		options.Parallel = defaults.Parallel
	}
	if options.MaxPasses == 0 {
		options.MaxPasses = defaults.MaxPasses
	}
	if options.FailurePolicy == "" {
		options.FailurePolicy = defaults.FailurePolicy
	}
	return options
}

func (options Options) Validate() error {
	if err := validate.Struct(options); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, "invalid solve options")
	}
	return nil
}

// Dependencies are the tunables and collaborators shared by every run of a
// solver.
type Dependencies struct {
	Weights  constraint.Weights
	Rules    constraint.Rules
	Scoring  block.Scoring
	Fitness  fitness.Settings
	Params   optimizer.Params
	Pipeline PipelineSettings
	Repair   repair.Settings
	Registry *optimizer.Registry
	Recorder *metrics.Recorder
	Logger   *zap.Logger
	Observer progress.Observer
	Control  *progress.Control
}

func DefaultDependencies() Dependencies {
	return Dependencies{
		Weights:  constraint.DefaultWeights(),
		Rules:    constraint.Rules{DefaultMinDayGap: 2},
		Scoring:  block.DefaultScoring(),
		Fitness:  fitness.DefaultSettings(),
		Params:   optimizer.DefaultParams(),
		Pipeline: DefaultPipelineSettings(),
		Repair:   repair.DefaultSettings(),
		Registry: optimizer.DefaultRegistry(),
	}
}

// DependenciesFromConfig builds the tunables from the loaded configuration.
// Logger, Recorder, Observer and Control are left to the caller.
func DependenciesFromConfig(cfg *config.Config) Dependencies {
	dependencies := DefaultDependencies()
	dependencies.Weights = constraint.WeightsFromConfig(cfg.Weights)
	dependencies.Rules = constraint.RulesFromConfig(cfg.Block)
	dependencies.Scoring = block.ScoringFromConfig(cfg.Block)
	dependencies.Fitness = fitness.SettingsFromConfig(cfg.Fitness)
	dependencies.Params = optimizer.ParamsFromConfig(cfg.Optimizer)
	dependencies.Pipeline = PipelineSettingsFromConfig(cfg.Pipeline)
	return dependencies
}
