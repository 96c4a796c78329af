package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	//** Arrange
	recorder := NewRecorder()

	//** Act
	recorder.ObserveStage("optimization", "ok", 120*time.Millisecond)
	recorder.IncStageRetry("optimization")
	recorder.IncStageRetry("optimization")
	recorder.ObserveOptimizer("tabu", OutcomeAccepted, 42)
	recorder.ObserveOptimizer("genetic", OutcomeRejected, 0)
	recorder.IncRepair(OutcomeFixed)
	recorder.ObserveSolve(true, 1234.5, 2, map[string]int{"HARD": 0, "SOFT_LOW": 3})

	//** Assert
	assert.Equal(t, 2.0, testutil.ToFloat64(recorder.stageRetries.WithLabelValues("optimization")))
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.optimizerRuns.WithLabelValues("tabu", OutcomeAccepted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.optimizerRuns.WithLabelValues("genetic", OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.repairAttempts.WithLabelValues(OutcomeFixed)))
	assert.Equal(t, 1234.5, testutil.ToFloat64(recorder.fitness))
	assert.Equal(t, 2.0, testutil.ToFloat64(recorder.missingHours))
	assert.Equal(t, 3.0, testutil.ToFloat64(recorder.violations.WithLabelValues("SOFT_LOW")))
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.solves.WithLabelValues("success")))
	assert.Equal(t, 1, testutil.CollectAndCount(recorder.optimizerGain))

	families, err := recorder.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilRecorder(t *testing.T) {
	var recorder *Recorder

	assert.NotPanics(t, func() {
		recorder.ObserveStage("x", "ok", time.Second)
		recorder.IncStageRetry("x")
		recorder.ObserveOptimizer("x", OutcomeAccepted, 1)
		recorder.IncRepair(OutcomeUnfixed)
		recorder.ObserveSolve(false, 0, 0, nil)
	})
	assert.Nil(t, recorder.Registry())
}
