package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env string

	Log       LogConfig
	Grid      GridConfig
	Solver    SolverConfig
	Pipeline  PipelineConfig
	Weights   WeightsConfig
	Block     BlockConfig
	Fitness   FitnessConfig
	Optimizer OptimizerConfig
}

type LogConfig struct {
	Level  string
	Format string
}

// GridConfig bounds the weekly grid.
type GridConfig struct {
	Days  int
	Hours int
}

// SolverConfig carries the defaults of a solve run.
type SolverConfig struct {
	MaxIterations        int
	AlgorithmPower       int
	EnableRepair         bool
	EnableStabilize      bool
	Seed                 int64
	Algorithms           []string
	Adaptive             bool
	Parallel             int
	MaxPasses            int
	ImprovementThreshold float64
	FailurePolicy        string
}

// PipelineConfig tunes stage retries and timeouts.
type PipelineConfig struct {
	StageTimeout time.Duration
	StageRetries int
	RetryBackoff time.Duration
}

// WeightsConfig is the severity weight table.
type WeightsConfig struct {
	Hard           float64
	SoftHigh       float64
	SoftMedium     float64
	SoftLow        float64
	PreferredBonus float64
}

// BlockConfig tunes block window scoring.
type BlockConfig struct {
	TopN              int
	MorningWeight     float64
	BalanceWeight     float64
	GapPenalty        float64
	MondayBonus       float64
	FridayPenalty     float64
	PreferenceWeight  float64
	TeacherLoadWeight float64
	RuleBonus         float64
	DefaultMinDayGap  int
	SubjectRules      map[string]string
}

// FitnessConfig tunes the fitness and fairness model.
type FitnessConfig struct {
	Baseline           float64
	CompletenessBonus  float64
	MissingHourPenalty float64
	GapVarianceFactor  float64
	LoadVarianceFactor float64
	ComplianceWeight   float64
	FairnessWeight     float64
	EfficiencyWeight   float64
	QualityWeight      float64
}

// OptimizerConfig carries per-algorithm parameters.
type OptimizerConfig struct {
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

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Env: v.GetString("ENV"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Grid = GridConfig{
		Days:  v.GetInt("GRID_DAYS"),
		Hours: v.GetInt("GRID_HOURS"),
	}

	cfg.Solver = SolverConfig{
		MaxIterations:        v.GetInt("SOLVER_MAX_ITERATIONS"),
		AlgorithmPower:       v.GetInt("SOLVER_ALGORITHM_POWER"),
		EnableRepair:         v.GetBool("SOLVER_ENABLE_REPAIR"),
		EnableStabilize:      v.GetBool("SOLVER_ENABLE_STABILIZE"),
		Seed:                 v.GetInt64("SOLVER_SEED"),
		Algorithms:           splitAndTrim(v.GetString("SOLVER_ALGORITHMS")),
		Adaptive:             v.GetBool("SOLVER_ADAPTIVE"),
		Parallel:             v.GetInt("SOLVER_PARALLEL"),
		MaxPasses:            v.GetInt("SOLVER_MAX_PASSES"),
		ImprovementThreshold: v.GetFloat64("SOLVER_IMPROVEMENT_THRESHOLD"),
		FailurePolicy:        v.GetString("SOLVER_FAILURE_POLICY"),
	}

	cfg.Pipeline = PipelineConfig{
		StageTimeout: parseDuration(v.GetString("PIPELINE_STAGE_TIMEOUT"), 2*time.Minute),
		StageRetries: v.GetInt("PIPELINE_STAGE_RETRIES"),
		RetryBackoff: parseDuration(v.GetString("PIPELINE_RETRY_BACKOFF"), 50*time.Millisecond),
	}

	cfg.Weights = WeightsConfig{
		Hard:           v.GetFloat64("WEIGHT_HARD"),
		SoftHigh:       v.GetFloat64("WEIGHT_SOFT_HIGH"),
		SoftMedium:     v.GetFloat64("WEIGHT_SOFT_MEDIUM"),
		SoftLow:        v.GetFloat64("WEIGHT_SOFT_LOW"),
		PreferredBonus: v.GetFloat64("WEIGHT_PREFERRED_BONUS"),
	}

	cfg.Block = BlockConfig{
		TopN:              v.GetInt("BLOCK_TOP_N"),
		MorningWeight:     v.GetFloat64("BLOCK_MORNING_WEIGHT"),
		BalanceWeight:     v.GetFloat64("BLOCK_BALANCE_WEIGHT"),
		GapPenalty:        v.GetFloat64("BLOCK_GAP_PENALTY"),
		MondayBonus:       v.GetFloat64("BLOCK_MONDAY_BONUS"),
		FridayPenalty:     v.GetFloat64("BLOCK_FRIDAY_PENALTY"),
		PreferenceWeight:  v.GetFloat64("BLOCK_PREFERENCE_WEIGHT"),
		TeacherLoadWeight: v.GetFloat64("BLOCK_TEACHER_LOAD_WEIGHT"),
		RuleBonus:         v.GetFloat64("BLOCK_RULE_BONUS"),
		DefaultMinDayGap:  v.GetInt("BLOCK_DEFAULT_MIN_DAY_GAP"),
		SubjectRules:      parsePairs(v.GetString("BLOCK_SUBJECT_RULES")),
	}

	cfg.Fitness = FitnessConfig{
		Baseline:           v.GetFloat64("FITNESS_BASELINE"),
		CompletenessBonus:  v.GetFloat64("FITNESS_COMPLETENESS_BONUS"),
		MissingHourPenalty: v.GetFloat64("FITNESS_MISSING_HOUR_PENALTY"),
		GapVarianceFactor:  v.GetFloat64("FITNESS_GAP_VARIANCE_FACTOR"),
		LoadVarianceFactor: v.GetFloat64("FITNESS_LOAD_VARIANCE_FACTOR"),
		ComplianceWeight:   v.GetFloat64("FITNESS_COMPLIANCE_WEIGHT"),
		FairnessWeight:     v.GetFloat64("FITNESS_FAIRNESS_WEIGHT"),
		EfficiencyWeight:   v.GetFloat64("FITNESS_EFFICIENCY_WEIGHT"),
		QualityWeight:      v.GetFloat64("FITNESS_QUALITY_WEIGHT"),
	}

	cfg.Optimizer = OptimizerConfig{
		PopulationSize:     v.GetInt("GA_POPULATION_SIZE"),
		EliteCount:         v.GetInt("GA_ELITE_COUNT"),
		MutationMoves:      v.GetInt("GA_MUTATION_MOVES"),
		InitialTemperature: v.GetFloat64("SA_INITIAL_TEMPERATURE"),
		CoolingRate:        v.GetFloat64("SA_COOLING_RATE"),
		MinTemperature:     v.GetFloat64("SA_MIN_TEMPERATURE"),
		TabuTenure:         v.GetInt("TABU_TENURE"),
		TabuSample:         v.GetInt("TABU_SAMPLE"),
		CriticalSubjects:   splitAndTrim(v.GetString("TABU_CRITICAL_SUBJECTS")),
		Ants:               v.GetInt("ACO_ANTS"),
		Evaporation:        v.GetFloat64("ACO_EVAPORATION"),
		Alpha:              v.GetFloat64("ACO_ALPHA"),
		Beta:               v.GetFloat64("ACO_BETA"),
		LearningRate:       v.GetFloat64("RL_LEARNING_RATE"),
		Discount:           v.GetFloat64("RL_DISCOUNT"),
		Epsilon:            v.GetFloat64("RL_EPSILON"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")

	v.SetDefault("GRID_DAYS", 5)
	v.SetDefault("GRID_HOURS", 8)

	v.SetDefault("SOLVER_MAX_ITERATIONS", 500)
	v.SetDefault("SOLVER_ALGORITHM_POWER", 5)
	v.SetDefault("SOLVER_ENABLE_REPAIR", true)
	v.SetDefault("SOLVER_ENABLE_STABILIZE", true)
	v.SetDefault("SOLVER_SEED", 1)
	v.SetDefault("SOLVER_ALGORITHMS", "genetic,annealing,tabu,reinforcement,antcolony,fuzzy")
	v.SetDefault("SOLVER_ADAPTIVE", false)
	v.SetDefault("SOLVER_PARALLEL", 1)
	v.SetDefault("SOLVER_MAX_PASSES", 2)
	v.SetDefault("SOLVER_IMPROVEMENT_THRESHOLD", 1.0)
	v.SetDefault("SOLVER_FAILURE_POLICY", "fallback")

	v.SetDefault("PIPELINE_STAGE_TIMEOUT", "2m")
	v.SetDefault("PIPELINE_STAGE_RETRIES", 2)
	v.SetDefault("PIPELINE_RETRY_BACKOFF", "50ms")

	v.SetDefault("WEIGHT_HARD", 1000)
	v.SetDefault("WEIGHT_SOFT_HIGH", 100)
	v.SetDefault("WEIGHT_SOFT_MEDIUM", 50)
	v.SetDefault("WEIGHT_SOFT_LOW", 10)
	v.SetDefault("WEIGHT_PREFERRED_BONUS", 20)

	v.SetDefault("BLOCK_TOP_N", 3)
	v.SetDefault("BLOCK_MORNING_WEIGHT", 10)
	v.SetDefault("BLOCK_BALANCE_WEIGHT", 4)
	v.SetDefault("BLOCK_GAP_PENALTY", 15)
	v.SetDefault("BLOCK_MONDAY_BONUS", 5)
	v.SetDefault("BLOCK_FRIDAY_PENALTY", 5)
	v.SetDefault("BLOCK_PREFERENCE_WEIGHT", 0.2)
	v.SetDefault("BLOCK_TEACHER_LOAD_WEIGHT", 3)
	v.SetDefault("BLOCK_RULE_BONUS", 8)
	v.SetDefault("BLOCK_DEFAULT_MIN_DAY_GAP", 2)
	v.SetDefault("BLOCK_SUBJECT_RULES", "")

	v.SetDefault("FITNESS_BASELINE", 1000)
	v.SetDefault("FITNESS_COMPLETENESS_BONUS", 500)
	v.SetDefault("FITNESS_MISSING_HOUR_PENALTY", 200)
	v.SetDefault("FITNESS_GAP_VARIANCE_FACTOR", 5)
	v.SetDefault("FITNESS_LOAD_VARIANCE_FACTOR", 1)
	v.SetDefault("FITNESS_COMPLIANCE_WEIGHT", 0.4)
	v.SetDefault("FITNESS_FAIRNESS_WEIGHT", 0.3)
	v.SetDefault("FITNESS_EFFICIENCY_WEIGHT", 0.2)
	v.SetDefault("FITNESS_QUALITY_WEIGHT", 0.1)

	v.SetDefault("GA_POPULATION_SIZE", 12)
	v.SetDefault("GA_ELITE_COUNT", 2)
	v.SetDefault("GA_MUTATION_MOVES", 3)
	v.SetDefault("SA_INITIAL_TEMPERATURE", 100)
	v.SetDefault("SA_COOLING_RATE", 0.97)
	v.SetDefault("SA_MIN_TEMPERATURE", 0.01)
	v.SetDefault("TABU_TENURE", 7)
	v.SetDefault("TABU_SAMPLE", 20)
	v.SetDefault("TABU_CRITICAL_SUBJECTS", "")
	v.SetDefault("ACO_ANTS", 6)
	v.SetDefault("ACO_EVAPORATION", 0.1)
	v.SetDefault("ACO_ALPHA", 1)
	v.SetDefault("ACO_BETA", 2)
	v.SetDefault("RL_LEARNING_RATE", 0.3)
	v.SetDefault("RL_DISCOUNT", 0.5)
	v.SetDefault("RL_EPSILON", 0.2)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// parsePairs reads "key=value,key=value" lists.
func parsePairs(raw string) map[string]string {
	pairs := make(map[string]string)
	for _, part := range splitAndTrim(raw) {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if key != "" && value != "" {
			pairs[key] = value
		}
	}
	return pairs
}
