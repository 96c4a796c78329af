package constraint

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/limaJavier/weektable/pkg/grid"
	"github.com/limaJavier/weektable/pkg/model"
)

// Evaluator answers whether a placement is legal on a grid and how much it
// costs. It never mutates the grid.
type Evaluator interface {
	// Validate checks a single-hour placement. HARD checks run in a fixed order
	// and stop at the first failure; soft checks accumulate.
	Validate(placement Placement, grid *grid.Grid) ValidationResult
	// ValidateRun checks every hour of a block placed as one contiguous run
	// starting at the given hour.
	ValidateRun(lesson model.Lesson, classId string, day, start, blockIndex, size int, grid *grid.Grid) ValidationResult
	// CalculateViolationScore turns a result into a score contribution:
	// negative for violations, positive for preferred-hour matches.
	CalculateViolationScore(result ValidationResult) float64
	// Scan re-checks the whole grid.
	Scan(grid *grid.Grid) Report
	CountHard(grid *grid.Grid) int

	Input() model.ModelInput
	Weights() Weights
	Rules() Rules
}

func NewEvaluator(input model.ModelInput, weights Weights, rules Rules) Evaluator {
	return &evaluatorImplementation{
		input:   input,
		weights: weights,
		rules:   rules,
	}
}

type evaluatorImplementation struct {
	input   model.ModelInput
	weights Weights
	rules   Rules
}

func (evaluator *evaluatorImplementation) Input() model.ModelInput { return evaluator.input }
func (evaluator *evaluatorImplementation) Weights() Weights        { return evaluator.weights }
func (evaluator *evaluatorImplementation) Rules() Rules            { return evaluator.rules }

func (evaluator *evaluatorImplementation) Validate(placement Placement, grid *grid.Grid) ValidationResult {
	return evaluator.validate(placement, grid, 0)
}

func (evaluator *evaluatorImplementation) ValidateRun(lesson model.Lesson, classId string, day, start, blockIndex, size int, g *grid.Grid) ValidationResult {
	if start < 1 || start+size-1 > g.Hours() {
		violation := evaluator.violation(KindOutOfBounds, Hard, classId, day, start, lesson.Id, "",
			fmt.Sprintf("block of %v hour(s) starting at %v does not fit a %v-hour day", size, start, g.Hours()))
		return failed(violation)
	}

	combined := ValidationResult{Valid: true}
	for position, n := 0, size; position < n; position++ {
		placement := Placement{
			Lesson:  lesson,
			ClassId: classId,
			Day:     day,
			Hour:    start + position,
			Block:   grid.BlockMeta{Index: blockIndex, Position: position, Size: size},
		}
		result := evaluator.validate(placement, g, position)
		if !result.Valid {
			return result
		}
		combined = merge(combined, result)
	}
	return combined
}

func (evaluator *evaluatorImplementation) CalculateViolationScore(result ValidationResult) float64 {
	return result.Bonus - result.Weight
}

func (evaluator *evaluatorImplementation) CountHard(grid *grid.Grid) int {
	return evaluator.Scan(grid).HardCount()
}

// validate checks the placement assuming pending more hours of the same run
// are already placed on that day.
func (evaluator *evaluatorImplementation) validate(placement Placement, grid *grid.Grid, pending int) ValidationResult {
	if violation, found := evaluator.hardViolation(placement, grid, pending); found {
		return failed(violation)
	}
	return evaluator.softResult(placement, grid, pending)
}

func (evaluator *evaluatorImplementation) hardViolation(placement Placement, g *grid.Grid, pending int) (Violation, bool) {
	lesson := placement.Lesson
	classId, day, hour := placement.ClassId, placement.Day, placement.Hour
	hard := func(kind Kind, teacherId, message string) (Violation, bool) {
		return evaluator.violation(kind, Hard, classId, day, hour, lesson.Id, teacherId, message), true
	}

	if _, inside := g.Slot(classId, day, hour); !inside {
		return hard(KindOutOfBounds, "", fmt.Sprintf("(%v,%v) of class %v is outside the grid", day, hour, classId))
	}

	//** Manual lock
	if lockedLesson, locked := g.LockedLesson(classId, day, hour); locked && lockedLesson != lesson.Id {
		return hard(KindManualLock, "", fmt.Sprintf("cell is locked to %v", lockedLesson))
	}

	//** Class slot
	if slot, _ := g.Slot(classId, day, hour); !slot.IsEmpty() {
		return hard(KindSlotOccupied, "", fmt.Sprintf("class %v already has %v", classId, slot.LessonId))
	}

	//** Teacher hard-blocked hours
	for _, teacherId := range lesson.TeacherIds {
		if teacher, ok := evaluator.input.Teacher(teacherId); ok && teacher.IsBlocked(day, hour) {
			return hard(KindTeacherBlocked, teacherId, fmt.Sprintf("teacher %v is unavailable at (%v,%v)", teacherId, day, hour))
		}
	}

	//** Teacher double-booking
	for _, teacherId := range lesson.TeacherIds {
		if busyClass, busy := g.TeacherAt(teacherId, day, hour); busy {
			return hard(KindTeacherConflict, teacherId, fmt.Sprintf("teacher %v already teaches %v at (%v,%v)", teacherId, busyClass, day, hour))
		}
	}

	//** Block structure
	if kind, message, broken := evaluator.blockRule(placement, g); broken {
		return hard(kind, "", message)
	}

	//** Daily ceilings
	for _, teacherId := range lesson.TeacherIds {
		teacher, ok := evaluator.input.Teacher(teacherId)
		if ok && teacher.HardDailyMax > 0 && g.TeacherDailyLoad(teacherId, day)+pending+1 > teacher.HardDailyMax {
			return hard(KindTeacherCeiling, teacherId, fmt.Sprintf("teacher %v would exceed %v hours on day %v", teacherId, teacher.HardDailyMax, day))
		}
	}
	if class, ok := evaluator.input.Class(classId); ok && class.MaxDailyHours > 0 && g.ClassDailyLoad(classId, day)+pending+1 > class.MaxDailyHours {
		return hard(KindClassCeiling, "", fmt.Sprintf("class %v would exceed %v hours on day %v", classId, class.MaxDailyHours, day))
	}

	return Violation{}, false
}

// blockRule checks that the placement keeps its block contiguous on one day
// and away from the lesson's other blocks.
func (evaluator *evaluatorImplementation) blockRule(placement Placement, g *grid.Grid) (Kind, string, bool) {
	lesson, meta := placement.Lesson, placement.Block
	start := placement.Hour - meta.Position

	if meta.Size > 1 && (start < 1 || start+meta.Size-1 > g.Hours()) {
		return KindBlockContiguity, fmt.Sprintf("block %v of %v does not fit day %v", meta.Index, lesson.Id, placement.Day), true
	}

	for _, slot := range g.BlockSlots(lesson.Id, meta.Index) {
		switch {
		case slot.Day != placement.Day:
			return KindBlockContiguity, fmt.Sprintf("block %v of %v would be split across days %v and %v", meta.Index, lesson.Id, slot.Day, placement.Day), true
		case slot.Block.Position == meta.Position, slot.Hour-slot.Block.Position != start:
			return KindBlockContiguity, fmt.Sprintf("block %v of %v would not be consecutive", meta.Index, lesson.Id), true
		}
	}

	if !IsStructural(lesson, meta.Index) {
		return "", "", false
	}
	gap := evaluator.rules.MinDayGap(lesson)
	days := g.LessonDays(lesson.Id)
	blocks := lo.Keys(days)
	slices.Sort(blocks)
	for _, blockIndex := range blocks {
		if blockIndex == meta.Index || !IsStructural(lesson, blockIndex) {
			continue
		}
		day := days[blockIndex]
		distance := day - placement.Day
		if distance < 0 {
			distance = -distance
		}
		if distance == 0 {
			return KindBlockSameDay, fmt.Sprintf("block %v of %v already uses day %v", blockIndex, lesson.Id, day), true
		}
		if distance < gap {
			return KindMinDayGap, fmt.Sprintf("blocks of %v must be at least %v days apart (block %v is on day %v)", lesson.Id, gap, blockIndex, day), true
		}
	}
	return "", "", false
}

func (evaluator *evaluatorImplementation) softResult(placement Placement, g *grid.Grid, pending int) ValidationResult {
	lesson := placement.Lesson
	classId, day, hour := placement.ClassId, placement.Day, placement.Hour
	result := ValidationResult{Valid: true}

	for _, teacherId := range lesson.TeacherIds {
		teacher, ok := evaluator.input.Teacher(teacherId)
		if !ok {
			continue
		}
		preferences := teacher.Preferences

		if preferences.OffDay == day {
			result = add(result, evaluator.violation(KindOffDay, SoftHigh, classId, day, hour, lesson.Id, teacherId,
				fmt.Sprintf("day %v is the off-day of %v", day, teacherId)))
		}
		if preferences.Avoids(hour) {
			result = add(result, evaluator.violation(KindAvoidedHour, SoftMedium, classId, day, hour, lesson.Id, teacherId,
				fmt.Sprintf("%v avoids hour %v", teacherId, hour)))
		}
		if preferences.Prefers(hour) {
			result.Bonus += evaluator.weights.PreferredBonus
		}
		if preferences.DailyMax > 0 && g.TeacherDailyLoad(teacherId, day)+pending+1 > preferences.DailyMax {
			result = add(result, evaluator.violation(KindDailyLimit, SoftLow, classId, day, hour, lesson.Id, teacherId,
				fmt.Sprintf("%v prefers at most %v hours a day", teacherId, preferences.DailyMax)))
		}
	}
	return result
}

func (evaluator *evaluatorImplementation) violation(kind Kind, severity Severity, classId string, day, hour int, lessonId, teacherId, message string) Violation {
	return Violation{
		Kind:      kind,
		Severity:  severity,
		ClassId:   classId,
		Day:       day,
		Hour:      hour,
		LessonId:  lessonId,
		TeacherId: teacherId,
		Weight:    evaluator.weights.Of(severity),
		Message:   message,
	}
}

func failed(violation Violation) ValidationResult {
	return ValidationResult{
		Valid:      false,
		Severity:   violation.Severity,
		Kind:       violation.Kind,
		Weight:     violation.Weight,
		Reason:     violation.Message,
		Violations: []Violation{violation},
	}
}

func add(result ValidationResult, violation Violation) ValidationResult {
	result.Violations = append(result.Violations, violation)
	result.Weight += violation.Weight
	if violation.Severity > result.Severity {
		result.Severity = violation.Severity
		result.Kind = violation.Kind
	}
	result.Reason = strings.Join(lo.Map(result.Violations, func(violation Violation, _ int) string { return violation.Message }), "; ")
	return result
}

func merge(into, from ValidationResult) ValidationResult {
	for _, violation := range from.Violations {
		into = add(into, violation)
	}
	into.Bonus += from.Bonus
	return into
}
