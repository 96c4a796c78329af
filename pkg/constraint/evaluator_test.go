package constraint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limaJavier/weektable/pkg/grid"
	"github.com/limaJavier/weektable/pkg/model"
)

func newTestInput(t *testing.T) model.ModelInput {
	t.Helper()
	teachers := []model.Teacher{
		{Id: "t-math", Preferences: model.Preference{OffDay: 5, PreferredHours: []int{1, 2}}},
		{Id: "t-hist", Blocked: []model.TimeSlot{{Day: 1, Hour: 3}}, HardDailyMax: 2},
		{Id: "t-lit", Preferences: model.Preference{AvoidedHours: []int{8}, DailyMax: 2, DailyMin: 2, MaxWeeklyGaps: 1}},
		{Id: "t-pe"},
	}
	classes := []model.Class{{Id: "9A"}, {Id: "9B", MaxDailyHours: 3}}
	lessons := []model.Lesson{
		{Id: "math-9a", Subject: "MATH", TeacherIds: []string{"t-math"}, ClassId: "9A", WeeklyHours: 6, BlockStructure: []int{2, 2, 2}, SpecialRule: model.RuleMinDayGap, MinDayGap: 2},
		{Id: "math-9b", Subject: "MATH", TeacherIds: []string{"t-math"}, ClassId: "9B", WeeklyHours: 2, BlockStructure: []int{1, 1}},
		{Id: "hist-9a", Subject: "HISTORY", TeacherIds: []string{"t-hist"}, ClassId: "9A", WeeklyHours: 3, BlockStructure: []int{3}},
		{Id: "lit-9b", Subject: "LITERATURE", TeacherIds: []string{"t-lit"}, ClassId: "9B", WeeklyHours: 4, BlockStructure: []int{1, 1, 1, 1}},
		{Id: "pe-9a", Subject: "PE", TeacherIds: []string{"t-pe", "t-lit"}, ClassId: "9A", WeeklyHours: 1},
	}
	input, err := model.NewModelInput(5, 8, teachers, lessons, classes, nil)
	require.NoError(t, err)
	return input
}

func newTestEvaluator(t *testing.T) (Evaluator, model.ModelInput) {
	input := newTestInput(t)
	return NewEvaluator(input, DefaultWeights(), Rules{DefaultMinDayGap: 2}), input
}

func lesson(t *testing.T, input model.ModelInput, id string) model.Lesson {
	t.Helper()
	lesson, ok := input.Lesson(id)
	require.True(t, ok)
	return lesson
}

func single(lesson model.Lesson, classId string, day, hour, blockIndex int) Placement {
	return Placement{Lesson: lesson, ClassId: classId, Day: day, Hour: hour, Block: grid.Single(blockIndex)}
}

func TestValidateHardChecks(t *testing.T) {
	evaluator, input := newTestEvaluator(t)
	math9a, math9b := lesson(t, input, "math-9a"), lesson(t, input, "math-9b")
	hist9a, lit9b, pe9a := lesson(t, input, "hist-9a"), lesson(t, input, "lit-9b"), lesson(t, input, "pe-9a")

	t.Run("manual lock comes first", func(t *testing.T) {
		//** Arrange
		g := grid.FromInput(input)
		require.NoError(t, g.Place(pe9a, "9A", 2, 2, grid.Single(0)))
		require.NoError(t, g.Lock("9A", 2, 2))

		//** Act
		result := evaluator.Validate(single(hist9a, "9A", 2, 2, 0), g)

		//** Assert
		assert.False(t, result.Valid)
		assert.Equal(t, Hard, result.Severity)
		assert.Equal(t, KindManualLock, result.Kind)
		assert.Equal(t, -1000.0, evaluator.CalculateViolationScore(result))
	})

	t.Run("class slot occupied", func(t *testing.T) {
		g := grid.FromInput(input)
		require.NoError(t, g.Place(pe9a, "9A", 2, 2, grid.Single(0)))

		result := evaluator.Validate(single(hist9a, "9A", 2, 2, 0), g)

		assert.Equal(t, KindSlotOccupied, result.Kind)
	})

	t.Run("teacher blocked hour", func(t *testing.T) {
		result := evaluator.Validate(single(hist9a, "9A", 1, 3, 0), grid.FromInput(input))

		assert.False(t, result.Valid)
		assert.Equal(t, KindTeacherBlocked, result.Kind)
	})

	t.Run("double booking of any teacher of a multi-teacher lesson", func(t *testing.T) {
		g := grid.FromInput(input)
		require.NoError(t, g.Place(lit9b, "9B", 3, 4, grid.Single(0)))

		result := evaluator.Validate(single(pe9a, "9A", 3, 4, 0), g)

		assert.Equal(t, KindTeacherConflict, result.Kind)
		assert.Equal(t, "t-lit", result.Violations[0].TeacherId)
	})

	t.Run("blocks of one lesson never share a day", func(t *testing.T) {
		g := grid.FromInput(input)
		require.NoError(t, g.Place(math9b, "9B", 2, 1, grid.Single(0)))

		result := evaluator.Validate(single(math9b, "9B", 2, 5, 1), g)

		assert.Equal(t, KindBlockSameDay, result.Kind)
	})

	t.Run("minimum day gap", func(t *testing.T) {
		g := grid.FromInput(input)
		require.NoError(t, g.Place(math9a, "9A", 1, 1, grid.BlockMeta{Index: 0, Position: 0, Size: 2}))
		require.NoError(t, g.Place(math9a, "9A", 1, 2, grid.BlockMeta{Index: 0, Position: 1, Size: 2}))

		tooClose := evaluator.ValidateRun(math9a, "9A", 2, 1, 1, 2, g)
		farEnough := evaluator.ValidateRun(math9a, "9A", 3, 1, 1, 2, g)

		assert.Equal(t, KindMinDayGap, tooClose.Kind)
		assert.True(t, farEnough.Valid)
	})

	t.Run("block contiguity", func(t *testing.T) {
		g := grid.FromInput(input)
		require.NoError(t, g.Place(math9a, "9A", 1, 1, grid.BlockMeta{Index: 0, Position: 0, Size: 2}))

		split := evaluator.Validate(Placement{Lesson: math9a, ClassId: "9A", Day: 2, Hour: 2, Block: grid.BlockMeta{Index: 0, Position: 1, Size: 2}}, g)
		gapped := evaluator.Validate(Placement{Lesson: math9a, ClassId: "9A", Day: 1, Hour: 3, Block: grid.BlockMeta{Index: 0, Position: 1, Size: 2}}, g)
		next := evaluator.Validate(Placement{Lesson: math9a, ClassId: "9A", Day: 1, Hour: 2, Block: grid.BlockMeta{Index: 0, Position: 1, Size: 2}}, g)

		assert.Equal(t, KindBlockContiguity, split.Kind)
		assert.Equal(t, KindBlockContiguity, gapped.Kind)
		assert.True(t, next.Valid)
	})

	t.Run("daily ceilings", func(t *testing.T) {
		g := grid.FromInput(input)
		require.NoError(t, g.Place(math9b, "9B", 4, 1, grid.Single(0)))
		require.NoError(t, g.Place(lit9b, "9B", 4, 2, grid.Single(0)))
		require.NoError(t, g.Place(math9b, "9B", 4, 3, grid.Single(1)))

		// Index past the block structure skips the day-distance rules
		classCeiling := evaluator.Validate(single(lit9b, "9B", 4, 4, 4), g)
		teacherCeiling := evaluator.ValidateRun(hist9a, "9A", 2, 1, 0, 3, grid.FromInput(input))

		assert.Equal(t, KindClassCeiling, classCeiling.Kind)
		assert.Equal(t, KindTeacherCeiling, teacherCeiling.Kind)
	})

	t.Run("outside the grid", func(t *testing.T) {
		g := grid.FromInput(input)

		assert.Equal(t, KindOutOfBounds, evaluator.Validate(single(pe9a, "9A", 6, 1, 0), g).Kind)
		assert.Equal(t, KindOutOfBounds, evaluator.ValidateRun(math9a, "9A", 1, 8, 0, 2, g).Kind)
	})
}

func TestValidateSoftChecks(t *testing.T) {
	evaluator, input := newTestEvaluator(t)
	math9b, lit9b, pe9a := lesson(t, input, "math-9b"), lesson(t, input, "lit-9b"), lesson(t, input, "pe-9a")

	t.Run("off-day plus preferred hour", func(t *testing.T) {
		//** Act
		result := evaluator.Validate(single(math9b, "9B", 5, 1, 0), grid.FromInput(input))

		//** Assert
		assert.True(t, result.Valid)
		assert.Equal(t, SoftHigh, result.Severity)
		assert.Equal(t, KindOffDay, result.Kind)
		assert.Equal(t, 20.0, result.Bonus)
		assert.Equal(t, -80.0, evaluator.CalculateViolationScore(result))
	})

	t.Run("avoided hour and daily limit accumulate", func(t *testing.T) {
		g := grid.FromInput(input)
		require.NoError(t, g.Place(lit9b, "9B", 1, 1, grid.Single(0)))
		require.NoError(t, g.Place(lit9b, "9B", 1, 2, grid.Single(1)))

		result := evaluator.Validate(single(pe9a, "9A", 1, 8, 0), g)

		assert.True(t, result.Valid)
		require.Len(t, result.Violations, 2)
		assert.Equal(t, SoftMedium, result.Severity)
		assert.Equal(t, 60.0, result.Weight)
		assert.Equal(t, -60.0, evaluator.CalculateViolationScore(result))
	})

	t.Run("clean placement", func(t *testing.T) {
		result := evaluator.Validate(single(math9b, "9B", 2, 5, 0), grid.FromInput(input))

		assert.True(t, result.Valid)
		assert.Equal(t, SeverityNone, result.Severity)
		assert.Zero(t, evaluator.CalculateViolationScore(result))
	})
}

func TestRules(t *testing.T) {
	rules := Rules{SubjectRules: map[string]string{"MATH": model.RuleMinDayGap}, DefaultMinDayGap: 3}

	assert.Equal(t, 3, rules.MinDayGap(model.Lesson{Subject: "MATH"}))
	assert.Equal(t, 2, rules.MinDayGap(model.Lesson{Subject: "MATH", MinDayGap: 2}))
	assert.Equal(t, 1, rules.MinDayGap(model.Lesson{Subject: "ART"}))
	assert.Equal(t, 1, rules.MinDayGap(model.Lesson{Subject: "MATH", SpecialRule: model.RuleNoSameDay}))
	assert.Equal(t, 2, Rules{}.MinDayGap(model.Lesson{SpecialRule: model.RuleMinDayGap}))
	assert.True(t, IsStructural(model.Lesson{BlockStructure: []int{2, 2}}, 1))
	assert.False(t, IsStructural(model.Lesson{BlockStructure: []int{2, 2}}, 2))
}
