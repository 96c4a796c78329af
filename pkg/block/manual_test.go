package block

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limaJavier/weektable/pkg/constraint"
	"github.com/limaJavier/weektable/pkg/grid"
	"github.com/limaJavier/weektable/pkg/model"

	appErrors "github.com/limaJavier/weektable/pkg/errors"
)

func TestPlaceManual(t *testing.T) {
	teachers := []model.Teacher{{Id: "t1"}, {Id: "t2"}}
	lessons := []model.Lesson{
		{Id: "math", Subject: "MATH", TeacherIds: []string{"t1"}, ClassId: "c1", WeeklyHours: 5, BlockStructure: []int{2, 2, 1}},
		{Id: "art", Subject: "ART", TeacherIds: []string{"t2"}, ClassId: "c1", WeeklyHours: 3, BlockStructure: []int{3}},
		{Id: "art-2", Subject: "ART", TeacherIds: []string{"t2"}, ClassId: "c2", WeeklyHours: 1},
	}
	manual := []model.ManualPlacement{
		{ClassId: "c1", Day: 2, Hour: 4, LessonId: "math"},
		{ClassId: "c1", Day: 2, Hour: 3, LessonId: "math"},
		{ClassId: "c1", Day: 4, Hour: 1, LessonId: "art"},
		{ClassId: "c2", Day: 4, Hour: 1, LessonId: "art-2"},
	}
	input, err := model.NewModelInput(5, 6, teachers, lessons, []model.Class{{Id: "c1"}, {Id: "c2"}}, manual)
	require.NoError(t, err)

	//** Act
	g := grid.FromInput(input)
	failures := PlaceManual(input, g)

	//** Assert
	t.Run("consecutive hours become a block", func(t *testing.T) {
		first, ok := g.Slot("c1", 2, 3)
		require.True(t, ok)
		second, ok := g.Slot("c1", 2, 4)
		require.True(t, ok)
		assert.Equal(t, grid.BlockMeta{Index: 0, Position: 0, Size: 2}, first.Block)
		assert.Equal(t, grid.BlockMeta{Index: 0, Position: 1, Size: 2}, second.Block)
		assert.True(t, g.IsLocked("c1", 2, 3))
		assert.True(t, g.IsLocked("c1", 2, 4))
	})

	t.Run("unmatched hour becomes a fallback single", func(t *testing.T) {
		slot, ok := g.Slot("c1", 4, 1)
		require.True(t, ok)
		assert.Equal(t, grid.Single(1), slot.Block)
	})

	t.Run("clash is reported", func(t *testing.T) {
		require.Len(t, failures, 1)
		assert.Equal(t, "art-2", failures[0].Placement.LessonId)
		assert.True(t, errors.Is(failures[0].Err, appErrors.ErrManualLock))
		assert.False(t, g.IsOccupied("c2", 4, 1))
	})

	t.Run("placement completes around locked hours", func(t *testing.T) {
		placer := newPlacer(t, input, constraint.Rules{}, 3)
		math, _ := input.Lesson("math")

		failures, err := PlaceWithPolicy(placer, math, g, PolicyFallback)

		require.NoError(t, err)
		assert.Empty(t, failures)
		assert.Equal(t, 5, g.PlacedHours("math"))
		assert.ElementsMatch(t, []int{0, 1, 2}, g.PlacedBlocks("math"))
	})
}
