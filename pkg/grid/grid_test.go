package grid

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limaJavier/weektable/pkg/model"

	appErrors "github.com/limaJavier/weektable/pkg/errors"
)

var (
	math9a = model.Lesson{Id: "math-9a", Subject: "MATH", TeacherIds: []string{"t-math"}, ClassId: "9A", WeeklyHours: 4, BlockStructure: []int{2, 2}}
	math9b = model.Lesson{Id: "math-9b", Subject: "MATH", TeacherIds: []string{"t-math"}, ClassId: "9B", WeeklyHours: 2, BlockStructure: []int{2}}
	pe9ab  = model.Lesson{Id: "pe-9ab", Subject: "PE", TeacherIds: []string{"t-pe", "t-lit"}, ClassId: "9A", WeeklyHours: 1, BlockStructure: []int{1}}
	lit9b  = model.Lesson{Id: "lit-9b", Subject: "LIT", TeacherIds: []string{"t-lit"}, ClassId: "9B", WeeklyHours: 2, BlockStructure: []int{1, 1}}
)

func TestIndexer(t *testing.T) {
	const (
		testCount = 100
		maxValue  = 50
	)

	for i, n := 0, testCount; i < n; i++ {
		classes, days, hours := rand.Intn(maxValue)+1, rand.Intn(maxValue)+1, rand.Intn(maxValue)+1
		indexer := newIndexer(classes, days, hours)
		class, day, hour := rand.Intn(classes), rand.Intn(days), rand.Intn(hours)

		index := indexer.Index(class, day, hour)
		actualClass, actualDay, actualHour := indexer.Attributes(index)

		assert.Less(t, index, indexer.Size())
		assert.Equal(t, class, actualClass)
		assert.Equal(t, day, actualDay)
		assert.Equal(t, hour, actualHour)
	}
}

func TestPlace(t *testing.T) {
	t.Run("placement updates caches", func(t *testing.T) {
		//** Arrange
		grid := New(5, 8, []string{"9A", "9B"})

		//** Act
		require.NoError(t, grid.Place(math9a, "9A", 1, 1, BlockMeta{Index: 0, Position: 0, Size: 2}))
		require.NoError(t, grid.Place(math9a, "9A", 1, 2, BlockMeta{Index: 0, Position: 1, Size: 2}))
		require.NoError(t, grid.Place(math9a, "9A", 1, 4, Single(1)))

		//** Assert
		assert.True(t, grid.IsOccupied("9A", 1, 1))
		assert.True(t, grid.IsTeacherBusy("t-math", 1, 2))
		assert.False(t, grid.IsTeacherBusy("t-math", 1, 3))
		assert.Equal(t, 3, grid.PlacedHours("math-9a"))
		assert.Equal(t, 3, grid.TeacherWeeklyLoad("t-math"))
		assert.Equal(t, 3, grid.TeacherDailyLoad("t-math", 1))
		assert.Equal(t, 1, grid.TeacherGaps("t-math"))
		assert.Equal(t, 1, grid.ClassGaps("9A"))
		assert.Equal(t, []int{1, 2, 4}, grid.ClassDayHours("9A", 1))
		assert.Equal(t, []int{0, 1}, grid.PlacedBlocks("math-9a"))
		assert.Len(t, grid.LessonBlocks("math-9a")[0], 2)
		assert.Equal(t, []string{"t-math"}, grid.TeacherIds())
	})

	t.Run("rejects occupied cells and double-booked teachers", func(t *testing.T) {
		//** Arrange
		grid := New(5, 8, []string{"9A", "9B"})
		require.NoError(t, grid.Place(math9a, "9A", 2, 3, Single(0)))

		//** Act
		occupied := grid.Place(pe9ab, "9A", 2, 3, Single(0))
		conflict := grid.Place(math9b, "9B", 2, 3, Single(0))

		//** Assert
		assert.True(t, errors.Is(occupied, appErrors.ErrSlotOccupied))
		assert.True(t, errors.Is(conflict, appErrors.ErrTeacherConflict))
		assert.False(t, grid.IsOccupied("9B", 2, 3))
	})

	t.Run("multi-teacher lessons book every teacher", func(t *testing.T) {
		//** Arrange
		grid := New(5, 8, []string{"9A", "9B"})
		require.NoError(t, grid.Place(pe9ab, "9A", 3, 1, Single(0)))

		//** Act
		err := grid.Place(lit9b, "9B", 3, 1, Single(0))

		//** Assert
		assert.True(t, errors.Is(err, appErrors.ErrTeacherConflict))
		class, busy := grid.TeacherAt("t-lit", 3, 1)
		assert.True(t, busy)
		assert.Equal(t, "9A", class)
	})

	t.Run("rejects unknown classes and out of bounds cells", func(t *testing.T) {
		grid := New(5, 8, []string{"9A"})

		assert.True(t, errors.Is(grid.Place(math9a, "9Z", 1, 1, Single(0)), appErrors.ErrUnknownClass))
		assert.True(t, errors.Is(grid.Place(math9a, "9A", 6, 1, Single(0)), appErrors.ErrOutOfBounds))
		assert.True(t, errors.Is(grid.Place(math9a, "9A", 1, 0, Single(0)), appErrors.ErrOutOfBounds))
		assert.Equal(t, 0, grid.TotalPlaced())
	})
}

func TestRemove(t *testing.T) {
	//** Arrange
	empty := New(5, 8, []string{"9A", "9B"})
	grid := empty.Clone()
	require.NoError(t, grid.Place(pe9ab, "9A", 1, 1, Single(0)))

	//** Act
	slot, ok := grid.Remove("9A", 1, 1)
	_, again := grid.Remove("9A", 1, 1)

	//** Assert
	assert.True(t, ok)
	assert.False(t, again)
	assert.Equal(t, "pe-9ab", slot.LessonId)
	assert.Equal(t, empty, grid)
}

func TestSnapshotRestore(t *testing.T) {
	t.Run("place then restore is deep-equal", func(t *testing.T) {
		//** Arrange
		grid := New(5, 8, []string{"9A", "9B"})
		require.NoError(t, grid.Place(math9a, "9A", 1, 1, Single(0)))
		before := grid.Clone()
		cells := []Cell{{"9A", 1, 1}, {"9A", 2, 2}, {"9B", 2, 2}}

		//** Act
		backup := grid.Snapshot(cells...)
		grid.Remove("9A", 1, 1)
		require.NoError(t, grid.Place(math9a, "9A", 2, 2, Single(0)))
		require.NoError(t, grid.Place(lit9b, "9B", 2, 2, Single(0)))
		err := grid.Restore(backup)

		//** Assert
		require.NoError(t, err)
		assert.Equal(t, 3, backup.Cells())
		assert.Equal(t, before, grid)
	})

	t.Run("restore reports slots whose teacher is booked elsewhere", func(t *testing.T) {
		//** Arrange
		grid := New(5, 8, []string{"9A", "9B"})
		require.NoError(t, grid.Place(math9a, "9A", 1, 1, Single(0)))
		backup := grid.Snapshot(Cell{"9A", 1, 1})
		grid.Remove("9A", 1, 1)
		require.NoError(t, grid.Place(math9b, "9B", 1, 1, Single(0)))

		//** Act
		err := grid.Restore(backup)

		//** Assert
		assert.True(t, errors.Is(err, appErrors.ErrTeacherConflict))
		assert.False(t, grid.IsOccupied("9A", 1, 1))
	})

	t.Run("class snapshot", func(t *testing.T) {
		grid := New(2, 3, []string{"9A"})
		before := grid.Clone()
		backup := grid.SnapshotClass("9A")
		require.NoError(t, grid.Place(math9a, "9A", 2, 3, Single(0)))

		require.NoError(t, grid.Restore(backup))
		assert.Equal(t, 6, backup.Cells())
		assert.Equal(t, before, grid)
	})
}

func TestLock(t *testing.T) {
	//** Arrange
	grid := New(5, 8, []string{"9A"})
	require.NoError(t, grid.Place(math9a, "9A", 1, 1, Single(0)))

	//** Act
	lockErr := grid.Lock("9A", 1, 1)
	emptyErr := grid.Lock("9A", 1, 2)

	//** Assert
	require.NoError(t, lockErr)
	assert.True(t, errors.Is(emptyErr, appErrors.ErrEmptySlot))
	assert.True(t, grid.IsLocked("9A", 1, 1))
	lesson, ok := grid.LockedLesson("9A", 1, 1)
	assert.True(t, ok)
	assert.Equal(t, "math-9a", lesson)
	assert.Equal(t, []Cell{{"9A", 1, 1}}, grid.LockedCells())
}

func TestClone(t *testing.T) {
	//** Arrange
	grid := New(5, 8, []string{"9A", "9B"})
	require.NoError(t, grid.Place(math9a, "9A", 1, 1, Single(0)))
	require.NoError(t, grid.Lock("9A", 1, 1))

	//** Act
	clone := grid.Clone()
	require.NoError(t, clone.Place(math9b, "9B", 1, 2, Single(0)))
	clone.Remove("9A", 1, 1)

	//** Assert
	assert.True(t, grid.IsOccupied("9A", 1, 1))
	assert.False(t, grid.IsOccupied("9B", 1, 2))
	assert.Equal(t, 1, grid.TeacherWeeklyLoad("t-math"))
	assert.Equal(t, 1, clone.TeacherWeeklyLoad("t-math"))
	assert.True(t, clone.IsLocked("9A", 1, 1))
}

func TestCopyClass(t *testing.T) {
	//** Arrange
	source := New(5, 8, []string{"9A", "9B"})
	require.NoError(t, source.Place(math9b, "9B", 1, 1, Single(0)))
	require.NoError(t, source.Place(lit9b, "9B", 1, 2, Single(0)))

	target := New(5, 8, []string{"9A", "9B"})
	require.NoError(t, target.Place(math9a, "9A", 1, 1, Single(0)))
	require.NoError(t, target.Place(lit9b, "9B", 3, 3, Single(1)))

	//** Act
	skipped := target.CopyClass(source, "9B")

	//** Assert
	require.Len(t, skipped, 1)
	assert.Equal(t, "math-9b", skipped[0].LessonId)
	assert.False(t, target.IsOccupied("9B", 3, 3))
	assert.True(t, target.IsOccupied("9B", 1, 2))
	assert.Equal(t, 1, target.PlacedHours("lit-9b"))
}

func TestCountGaps(t *testing.T) {
	assert.Equal(t, 0, CountGaps(nil))
	assert.Equal(t, 0, CountGaps([]int{3}))
	assert.Equal(t, 0, CountGaps([]int{1, 2, 3}))
	assert.Equal(t, 3, CountGaps([]int{1, 3, 6}))
}
