package model

import (
	"slices"

	"github.com/samber/lo"
)

// DefaultBlockStructure splits weekly hours into ceil(weekly/2) blocks, capped at
// the number of days, with sizes as even as possible and larger blocks first
// (6 -> [2,2,2], 5 -> [2,2,1], 11 over 5 days -> [3,2,2,2,2]).
func DefaultBlockStructure(weeklyHours, days int) []int {
	if weeklyHours <= 0 {
		return nil
	}
	blocks := (weeklyHours + 1) / 2
	if days > 0 && blocks > days {
		blocks = days
	}

	structure := make([]int, blocks)
	for i := range structure {
		structure[i] = weeklyHours / blocks
	}
	for i, n := 0, weeklyHours%blocks; i < n; i++ {
		structure[i]++
	}
	return structure
}

// IsBlockLesson reports whether the lesson needs the block placement subsystem,
// i.e. it has more than one block or a block longer than one hour.
func (lesson Lesson) IsBlockLesson() bool {
	return len(lesson.BlockStructure) > 1 || lo.SomeBy(lesson.BlockStructure, func(size int) bool { return size > 1 })
}

func (lesson Lesson) HasTeacher(teacherId string) bool {
	return slices.Contains(lesson.TeacherIds, teacherId)
}

// BlockSize returns the size of the given block, or 0 when the index is unknown.
func (lesson Lesson) BlockSize(blockIndex int) int {
	if blockIndex < 0 || blockIndex >= len(lesson.BlockStructure) {
		return 0
	}
	return lesson.BlockStructure[blockIndex]
}

func (teacher Teacher) IsBlocked(day, hour int) bool {
	return slices.Contains(teacher.Blocked, TimeSlot{Day: day, Hour: hour})
}

func (teacher Teacher) IsConstrained() bool {
	preferences := teacher.Preferences
	return len(teacher.Blocked) > 0 ||
		teacher.HardDailyMax > 0 ||
		preferences.OffDay > 0 ||
		len(preferences.AvoidedHours) > 0 ||
		preferences.DailyMax > 0
}

func (preference Preference) Avoids(hour int) bool {
	return slices.Contains(preference.AvoidedHours, hour)
}

func (preference Preference) Prefers(hour int) bool {
	return slices.Contains(preference.PreferredHours, hour)
}
