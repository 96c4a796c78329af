package metrics

import (
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the Prometheus collectors of the solver on a private
// registry. A nil Recorder is valid and records nothing.
type Recorder struct {
	registry       *prometheus.Registry
	stageDuration  *prometheus.HistogramVec
	stageRetries   *prometheus.CounterVec
	optimizerRuns  *prometheus.CounterVec
	optimizerGain  *prometheus.HistogramVec
	violations     *prometheus.GaugeVec
	fitness        prometheus.Gauge
	missingHours   prometheus.Gauge
	solves         *prometheus.CounterVec
	repairAttempts *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()

	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "weektable_stage_duration_seconds",
		Help:    "Duration of solver pipeline stages in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage", "status"})

	stageRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "weektable_stage_retries_total",
		Help: "Total number of stage retries",
	}, []string{"stage"})

	optimizerRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "weektable_optimizer_runs_total",
		Help: "Optimizer runs by outcome",
	}, []string{"optimizer", "outcome"})

	optimizerGain := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "weektable_optimizer_gain",
		Help:    "Fitness gained by accepted optimizer runs",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"optimizer"})

	violations := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "weektable_violations",
		Help: "Violations of the last solved grid by severity",
	}, []string{"severity"})

	fitness := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "weektable_fitness",
		Help: "Fitness of the last solved grid",
	})

	missingHours := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "weektable_missing_hours",
		Help: "Required hours left unplaced by the last solve",
	})

	solves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "weektable_solves_total",
		Help: "Solve runs by result",
	}, []string{"result"})

	repairAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "weektable_repair_attempts_total",
		Help: "Repair attempts by outcome",
	}, []string{"outcome"})

	registry.MustRegister(stageDuration, stageRetries, optimizerRuns, optimizerGain, violations, fitness, missingHours, solves, repairAttempts)

	return &Recorder{
		registry:       registry,
		stageDuration:  stageDuration,
		stageRetries:   stageRetries,
		optimizerRuns:  optimizerRuns,
		optimizerGain:  optimizerGain,
		violations:     violations,
		fitness:        fitness,
		missingHours:   missingHours,
		solves:         solves,
		repairAttempts: repairAttempts,
	}
}

// Registry exposes the private registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) ObserveStage(stage, status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
}

func (r *Recorder) IncStageRetry(stage string) {
	if r == nil {
		return
	}
	r.stageRetries.WithLabelValues(stage).Inc()
}

// ObserveOptimizer records one optimizer run; gain is only observed for
// accepted runs.
func (r *Recorder) ObserveOptimizer(optimizer, outcome string, gain float64) {
	if r == nil {
		return
	}
	r.optimizerRuns.WithLabelValues(optimizer, outcome).Inc()
	if outcome == OutcomeAccepted {
		r.optimizerGain.WithLabelValues(optimizer).Observe(gain)
	}
}

func (r *Recorder) IncRepair(outcome string) {
	if r == nil {
		return
	}
	r.repairAttempts.WithLabelValues(outcome).Inc()
}

// ObserveSolve records the final state of a solve.
func (r *Recorder) ObserveSolve(success bool, fitness float64, missingHours int, violations map[string]int) {
	if r == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	r.solves.WithLabelValues(result).Inc()
	r.fitness.Set(fitness)
	r.missingHours.Set(float64(missingHours))

	severities := make([]string, 0, len(violations))
	for severity := range violations {
		severities = append(severities, severity)
	}
	sort.Strings(severities)
	for _, severity := range severities {
		r.violations.WithLabelValues(severity).Set(float64(violations[severity]))
	}
}

// Optimizer and repair outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeFixed    = "fixed"
	OutcomeUnfixed  = "unfixed"
)
