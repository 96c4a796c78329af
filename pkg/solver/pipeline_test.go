package solver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limaJavier/weektable/pkg/metrics"
	"github.com/limaJavier/weektable/pkg/model"

	appErrors "github.com/limaJavier/weektable/pkg/errors"
)

// recordingStage appends its name to the state warnings so tests can read the
// execution order back.
func recordingStage(name string) Stage {
	return Stage{
		Name:    name,
		Enabled: true,
		Run: func(ctx context.Context, state *State) error {
			state.Warnings = append(state.Warnings, name)
			return nil
		},
	}
}

func newTestPipeline(t *testing.T, names ...string) *Pipeline {
	t.Helper()
	pipeline := NewPipeline(nil, nil)
	for _, name := range names {
		require.NoError(t, pipeline.Add(recordingStage(name)))
	}
	return pipeline
}

func TestPipelineRegistry(t *testing.T) {
	t.Run("adds and inserts stages by name", func(t *testing.T) {
		//** Arrange
		pipeline := newTestPipeline(t, "a", "c")

		//** Act
		require.NoError(t, pipeline.InsertBefore("c", recordingStage("b")))
		require.NoError(t, pipeline.InsertAfter("c", recordingStage("d")))

		//** Assert
		assert.Equal(t, []string{"a", "b", "c", "d"}, pipeline.Names())
	})

	t.Run("rejects duplicate and unknown names", func(t *testing.T) {
		//** Arrange
		pipeline := newTestPipeline(t, "a")

		//** Act & Assert
		assert.ErrorIs(t, pipeline.Add(recordingStage("a")), appErrors.ErrValidation)
		assert.ErrorIs(t, pipeline.InsertBefore("missing", recordingStage("b")), appErrors.ErrNotRegistered)
		assert.ErrorIs(t, pipeline.Remove("missing"), appErrors.ErrNotRegistered)
		assert.ErrorIs(t, pipeline.Add(Stage{Name: "no-run"}), appErrors.ErrValidation)
	})

	t.Run("removes and reorders", func(t *testing.T) {
		//** Arrange
		pipeline := newTestPipeline(t, "a", "b", "c")

		//** Act
		require.NoError(t, pipeline.Remove("b"))
		require.NoError(t, pipeline.Reorder([]string{"c", "a"}))

		//** Assert
		assert.Equal(t, []string{"c", "a"}, pipeline.Names())
		assert.ErrorIs(t, pipeline.Reorder([]string{"c"}), appErrors.ErrValidation)
		assert.ErrorIs(t, pipeline.Reorder([]string{"c", "c"}), appErrors.ErrValidation)
	})

	t.Run("disabled stages are skipped", func(t *testing.T) {
		//** Arrange
		pipeline := newTestPipeline(t, "a", "b", "c")
		require.NoError(t, pipeline.Disable("b"))

		//** Act
		state, err := pipeline.Run(context.Background(), State{})

		//** Assert
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c"}, state.Warnings)

		require.NoError(t, pipeline.Enable("b"))
		state, err = pipeline.Run(context.Background(), State{})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, state.Warnings)
	})

	t.Run("conditions gate stages on the current state", func(t *testing.T) {
		//** Arrange
		pipeline := newTestPipeline(t, "a")
		gated := recordingStage("b")
		gated.Condition = func(state State) bool { return len(state.Warnings) > 5 }
		require.NoError(t, pipeline.Add(gated))

		//** Act
		state, err := pipeline.Run(context.Background(), State{})

		//** Assert
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, state.Warnings)
	})
}

func TestPipelineFailures(t *testing.T) {
	failure := errors.New("boom")

	t.Run("retries a failing stage before succeeding", func(t *testing.T) {
		//** Arrange
		recorder := metrics.NewRecorder()
		pipeline := NewPipeline(recorder, nil)
		calls := 0
		require.NoError(t, pipeline.Add(Stage{
			Name:       "flaky",
			Enabled:    true,
			Required:   true,
			MaxRetries: 2,
			Backoff:    time.Millisecond,
			Run: func(ctx context.Context, state *State) error {
				calls++
				if calls < 3 {
					state.Warnings = append(state.Warnings, "partial")
					return failure
				}
				state.Warnings = append(state.Warnings, "done")
				return nil
			},
		}))

		//** Act
		state, err := pipeline.Run(context.Background(), State{})

		//** Assert
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []string{"done"}, state.Warnings, "failed attempts must not leak into the state")
	})

	t.Run("a required stage stops the run", func(t *testing.T) {
		//** Arrange
		pipeline := newTestPipeline(t, "a")
		require.NoError(t, pipeline.Add(Stage{
			Name:       "broken",
			Enabled:    true,
			Required:   true,
			MaxRetries: 1,
			Run:        func(ctx context.Context, state *State) error { return failure },
		}))
		require.NoError(t, pipeline.Add(recordingStage("after")))

		//** Act
		state, err := pipeline.Run(context.Background(), State{})

		//** Assert
		require.Error(t, err)
		assert.ErrorIs(t, err, appErrors.ErrStageFailed)
		assert.ErrorIs(t, err, failure)
		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.Equal(t, "broken", stageErr.Stage)
		assert.Equal(t, 2, stageErr.Attempts)
		assert.Equal(t, []string{"a"}, state.Warnings)
	})

	t.Run("an optional stage becomes a warning", func(t *testing.T) {
		//** Arrange
		pipeline := NewPipeline(nil, nil)
		require.NoError(t, pipeline.Add(Stage{
			Name:    "optional",
			Enabled: true,
			Run:     func(ctx context.Context, state *State) error { return failure },
		}))
		require.NoError(t, pipeline.Add(recordingStage("after")))

		//** Act
		state, err := pipeline.Run(context.Background(), State{})

		//** Assert
		require.NoError(t, err)
		require.Len(t, state.Warnings, 2)
		assert.Contains(t, state.Warnings[0], "optional")
		assert.Equal(t, "after", state.Warnings[1])
	})

	t.Run("a stage outliving its timeout fails", func(t *testing.T) {
		//** Arrange
		pipeline := NewPipeline(nil, nil)
		require.NoError(t, pipeline.Add(Stage{
			Name:     "slow",
			Enabled:  true,
			Required: true,
			Timeout:  10 * time.Millisecond,
			Run: func(ctx context.Context, state *State) error {
				<-ctx.Done()
				return ctx.Err()
			},
		}))

		//** Act
		_, err := pipeline.Run(context.Background(), State{})

		//** Assert
		assert.ErrorIs(t, err, appErrors.ErrStageFailed)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("cancellation stops the run", func(t *testing.T) {
		//** Arrange
		ctx, cancel := context.WithCancel(context.Background())
		pipeline := NewPipeline(nil, nil)
		require.NoError(t, pipeline.Add(Stage{
			Name:       "cancelling",
			Enabled:    true,
			MaxRetries: 3,
			Run: func(ctx context.Context, state *State) error {
				cancel()
				return ctx.Err()
			},
		}))
		require.NoError(t, pipeline.Add(recordingStage("after")))

		//** Act
		state, err := pipeline.Run(ctx, State{})

		//** Assert
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, state.Warnings)
	})
}

func TestStateClone(t *testing.T) {
	//** Arrange
	state := State{
		Lessons:  []model.Lesson{{Id: "math"}},
		Domains:  map[string][]model.TimeSlot{"math": {{Day: 1, Hour: 1}}},
		Warnings: []string{"first"},
	}

	//** Act
	clone := state.Clone()
	clone.Lessons[0].Id = "changed"
	clone.Domains["history"] = nil
	clone.Warnings = append(clone.Warnings, "second")

	//** Assert
	assert.Equal(t, "math", state.Lessons[0].Id)
	assert.NotContains(t, state.Domains, "history")
	assert.Equal(t, []string{"first"}, state.Warnings)
}
