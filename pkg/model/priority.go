package model

import (
	"cmp"
	"slices"

	"github.com/samber/lo"
)

// Prioritize orders lessons for placement: block lessons first, then lessons
// taught by a constrained teacher, then larger weekly load, then by id.
func (input ModelInput) Prioritize(lessons []Lesson) []Lesson {
	constrained := func(lesson Lesson) bool {
		return lo.SomeBy(lesson.TeacherIds, func(teacherId string) bool {
			teacher, ok := input.Teacher(teacherId)
			return ok && teacher.IsConstrained()
		})
	}

	ordered := slices.Clone(lessons)
	slices.SortStableFunc(ordered, func(a, b Lesson) int {
		if a.IsBlockLesson() != b.IsBlockLesson() {
			return boolFirst(a.IsBlockLesson())
		}
		if constrainedA, constrainedB := constrained(a), constrained(b); constrainedA != constrainedB {
			return boolFirst(constrainedA)
		}
		if a.WeeklyHours != b.WeeklyHours {
			return cmp.Compare(b.WeeklyHours, a.WeeklyHours)
		}
		return cmp.Compare(a.Id, b.Id)
	})
	return ordered
}

func boolFirst(value bool) int {
	if value {
		return -1
	}
	return 1
}
