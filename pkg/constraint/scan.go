package constraint

import (
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/limaJavier/weektable/pkg/grid"
)

// MissingLesson is a lesson with fewer placed hours than required.
type MissingLesson struct {
	LessonId string `json:"lessonId" csv:"lesson"`
	ClassId  string `json:"classId" csv:"class"`
	Subject  string `json:"subject" csv:"subject"`
	Required int    `json:"required" csv:"required"`
	Placed   int    `json:"placed" csv:"placed"`
}

func (missing MissingLesson) Hours() int {
	return missing.Required - missing.Placed
}

// Report is the result of a full grid scan.
type Report struct {
	Violations []Violation
	BySeverity map[Severity]int
	Missing    []MissingLesson
	Penalty    float64 // Sum of violation weights
	Bonus      float64 // Preferred-hour matches
}

func (report Report) Count(severity Severity) int {
	return report.BySeverity[severity]
}

func (report Report) HardCount() int {
	return report.Count(Hard)
}

func (report Report) MissingHours() int {
	return lo.SumBy(report.Missing, func(missing MissingLesson) int { return missing.Hours() })
}

// Counts returns the violation counts keyed by severity name, every severity
// present.
func (report Report) Counts() map[string]int {
	counts := make(map[string]int, len(Severities))
	for _, severity := range Severities {
		counts[severity.String()] = report.BySeverity[severity]
	}
	return counts
}

// Filter returns the violations matching the predicate.
func (report Report) Filter(predicate func(Violation) bool) []Violation {
	return lo.Filter(report.Violations, func(violation Violation, _ int) bool { return predicate(violation) })
}

type scanner struct {
	evaluator *evaluatorImplementation
	grid      *grid.Grid
	report    Report
}

func (evaluator *evaluatorImplementation) Scan(g *grid.Grid) Report {
	scanner := &scanner{
		evaluator: evaluator,
		grid:      g,
		report:    Report{BySeverity: make(map[Severity]int)},
	}

	scanner.scanSlots()
	scanner.scanLocks()
	scanner.scanLessons()
	scanner.scanCeilings()
	scanner.scanTeacherPreferences()

	return scanner.report
}

func (scanner *scanner) add(kind Kind, severity Severity, classId string, day, hour int, lessonId, teacherId, message string) {
	violation := scanner.evaluator.violation(kind, severity, classId, day, hour, lessonId, teacherId, message)
	scanner.report.Violations = append(scanner.report.Violations, violation)
	scanner.report.BySeverity[severity]++
	scanner.report.Penalty += violation.Weight
}

// scanSlots checks every placed hour against teacher availability and
// per-hour preferences.
func (scanner *scanner) scanSlots() {
	input := scanner.evaluator.input
	type teacherTime struct {
		teacherId string
		day, hour int
	}
	seen := make(map[teacherTime]string)

	for _, slot := range scanner.grid.Slots() {
		for _, teacherId := range slot.TeacherIds {
			key := teacherTime{teacherId, slot.Day, slot.Hour}
			if otherClass, found := seen[key]; found && otherClass != slot.ClassId {
				scanner.add(KindTeacherConflict, Hard, slot.ClassId, slot.Day, slot.Hour, slot.LessonId, teacherId,
					fmt.Sprintf("teacher %v teaches %v and %v at (%v,%v)", teacherId, otherClass, slot.ClassId, slot.Day, slot.Hour))
			}
			seen[key] = slot.ClassId

			teacher, ok := input.Teacher(teacherId)
			if !ok {
				continue
			}
			if teacher.IsBlocked(slot.Day, slot.Hour) {
				scanner.add(KindTeacherBlocked, Hard, slot.ClassId, slot.Day, slot.Hour, slot.LessonId, teacherId,
					fmt.Sprintf("teacher %v is unavailable at (%v,%v)", teacherId, slot.Day, slot.Hour))
			}
			if teacher.Preferences.OffDay == slot.Day {
				scanner.add(KindOffDay, SoftHigh, slot.ClassId, slot.Day, slot.Hour, slot.LessonId, teacherId,
					fmt.Sprintf("day %v is the off-day of %v", slot.Day, teacherId))
			}
			if teacher.Preferences.Avoids(slot.Hour) {
				scanner.add(KindAvoidedHour, SoftMedium, slot.ClassId, slot.Day, slot.Hour, slot.LessonId, teacherId,
					fmt.Sprintf("%v avoids hour %v", teacherId, slot.Hour))
			}
			if teacher.Preferences.Prefers(slot.Hour) {
				scanner.report.Bonus += scanner.evaluator.weights.PreferredBonus
			}
		}
	}
}

func (scanner *scanner) scanLocks() {
	for _, cell := range scanner.grid.LockedCells() {
		lockedLesson, _ := scanner.grid.LockedLesson(cell.ClassId, cell.Day, cell.Hour)
		slot, _ := scanner.grid.Slot(cell.ClassId, cell.Day, cell.Hour)
		if slot.LessonId != lockedLesson {
			scanner.add(KindManualLock, Hard, cell.ClassId, cell.Day, cell.Hour, lockedLesson, "",
				fmt.Sprintf("locked lesson %v was displaced", lockedLesson))
		}
	}
}

// scanLessons checks hour conservation and block structure of every lesson
// present in the grid, and collects missing hours.
func (scanner *scanner) scanLessons() {
	input := scanner.evaluator.input
	rules := scanner.evaluator.rules

	for _, lesson := range input.Lessons {
		placed := scanner.grid.PlacedHours(lesson.Id)
		if placed < lesson.WeeklyHours {
			scanner.report.Missing = append(scanner.report.Missing, MissingLesson{
				LessonId: lesson.Id,
				ClassId:  lesson.ClassId,
				Subject:  lesson.Subject,
				Required: lesson.WeeklyHours,
				Placed:   placed,
			})
		}
		if placed > lesson.WeeklyHours {
			scanner.add(KindOverPlacement, Hard, lesson.ClassId, 0, 0, lesson.Id, "",
				fmt.Sprintf("%v has %v hours placed but needs %v", lesson.Id, placed, lesson.WeeklyHours))
		}
		if placed == 0 {
			continue
		}

		blocks := scanner.grid.LessonBlocks(lesson.Id)
		indices := lo.Keys(blocks)
		slices.Sort(indices)

		blockDays := make(map[int]int, len(blocks))
		for _, index := range indices {
			slots := blocks[index]
			first := slots[0]
			blockDays[index] = first.Day
			if !contiguous(slots) {
				scanner.add(KindBlockContiguity, Hard, first.ClassId, first.Day, first.Hour, lesson.Id, "",
					fmt.Sprintf("block %v of %v is split or not consecutive", index, lesson.Id))
			}
		}

		gap := rules.MinDayGap(lesson)
		for i, a := range indices {
			if !IsStructural(lesson, a) {
				continue
			}
			for _, b := range indices[i+1:] {
				if !IsStructural(lesson, b) {
					continue
				}
				distance := blockDays[a] - blockDays[b]
				if distance < 0 {
					distance = -distance
				}
				switch {
				case distance == 0:
					scanner.add(KindBlockSameDay, Hard, lesson.ClassId, blockDays[a], 0, lesson.Id, "",
						fmt.Sprintf("blocks %v and %v of %v share day %v", a, b, lesson.Id, blockDays[a]))
				case distance < gap:
					scanner.add(KindMinDayGap, Hard, lesson.ClassId, blockDays[b], 0, lesson.Id, "",
						fmt.Sprintf("blocks %v and %v of %v are %v day(s) apart, need %v", a, b, lesson.Id, distance, gap))
				}
			}
		}
	}

	for _, slot := range scanner.grid.Slots() {
		if _, known := input.Lesson(slot.LessonId); !known {
			scanner.add(KindUnknownLesson, Hard, slot.ClassId, slot.Day, slot.Hour, slot.LessonId, "",
				fmt.Sprintf("lesson %v is not part of the input", slot.LessonId))
		}
	}
}

// contiguous reports whether the slots of one block sit on one day, on
// consecutive hours matching their positions, and fill the whole block.
func contiguous(slots []grid.Slot) bool {
	first := slots[0]
	start := first.Hour - first.Block.Position
	if len(slots) != first.Block.Size {
		return false
	}
	positions := make(map[int]bool, len(slots))
	for _, slot := range slots {
		if slot.Day != first.Day || slot.Hour-slot.Block.Position != start || positions[slot.Block.Position] {
			return false
		}
		positions[slot.Block.Position] = true
	}
	return true
}

func (scanner *scanner) scanCeilings() {
	input := scanner.evaluator.input
	for day := 1; day <= scanner.grid.Days(); day++ {
		for _, teacher := range input.Teachers {
			load := scanner.grid.TeacherDailyLoad(teacher.Id, day)
			if teacher.HardDailyMax > 0 && load > teacher.HardDailyMax {
				scanner.add(KindTeacherCeiling, Hard, "", day, 0, "", teacher.Id,
					fmt.Sprintf("teacher %v teaches %v hours on day %v, ceiling is %v", teacher.Id, load, day, teacher.HardDailyMax))
			}
		}
		for _, class := range input.Classes {
			load := scanner.grid.ClassDailyLoad(class.Id, day)
			if class.MaxDailyHours > 0 && load > class.MaxDailyHours {
				scanner.add(KindClassCeiling, Hard, class.Id, day, 0, "", "",
					fmt.Sprintf("class %v has %v hours on day %v, ceiling is %v", class.Id, load, day, class.MaxDailyHours))
			}
		}
	}
}

// scanTeacherPreferences checks the daily load band and the weekly gap limit.
// Every hour above the daily maximum counts as one violation.
func (scanner *scanner) scanTeacherPreferences() {
	for _, teacher := range scanner.evaluator.input.Teachers {
		preferences := teacher.Preferences
		for day := 1; day <= scanner.grid.Days(); day++ {
			load := scanner.grid.TeacherDailyLoad(teacher.Id, day)
			if preferences.DailyMax > 0 {
				for i, n := 0, load-preferences.DailyMax; i < n; i++ {
					scanner.add(KindDailyLimit, SoftLow, "", day, 0, "", teacher.Id,
						fmt.Sprintf("%v teaches %v hours on day %v, prefers at most %v", teacher.Id, load, day, preferences.DailyMax))
				}
			}
			if preferences.DailyMin > 0 && load > 0 && load < preferences.DailyMin {
				scanner.add(KindDailyMinimum, SoftLow, "", day, 0, "", teacher.Id,
					fmt.Sprintf("%v teaches %v hours on day %v, prefers at least %v", teacher.Id, load, day, preferences.DailyMin))
			}
		}
		if gaps := scanner.grid.TeacherGaps(teacher.Id); preferences.MaxWeeklyGaps > 0 && gaps > preferences.MaxWeeklyGaps {
			scanner.add(KindWeeklyGaps, SoftMedium, "", 0, 0, "", teacher.Id,
				fmt.Sprintf("%v has %v gaps a week, prefers at most %v", teacher.Id, gaps, preferences.MaxWeeklyGaps))
		}
	}
}
