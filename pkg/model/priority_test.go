package model

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrioritize(t *testing.T) {
	//** Arrange
	teachers := []Teacher{
		{Id: "t-free"},
		{Id: "t-busy", Blocked: []TimeSlot{{Day: 1, Hour: 1}}},
	}
	classes := []Class{{Id: "c1"}}
	lessons := []Lesson{
		{Id: "music", Subject: "MUSIC", TeacherIds: []string{"t-free"}, ClassId: "c1", WeeklyHours: 1},
		{Id: "art", Subject: "ART", TeacherIds: []string{"t-free"}, ClassId: "c1", WeeklyHours: 1},
		{Id: "hist", Subject: "HISTORY", TeacherIds: []string{"t-busy"}, ClassId: "c1", WeeklyHours: 1},
		{Id: "bio", Subject: "BIOLOGY", TeacherIds: []string{"t-free"}, ClassId: "c1", WeeklyHours: 2, BlockStructure: []int{2}},
		{Id: "math", Subject: "MATH", TeacherIds: []string{"t-free"}, ClassId: "c1", WeeklyHours: 4, BlockStructure: []int{2, 2}},
	}
	input, err := NewModelInput(5, 8, teachers, lessons, classes, nil)
	require.NoError(t, err)

	//** Act
	ordered := input.Prioritize(input.Lessons)

	//** Assert
	assert.Equal(t, []string{"math", "bio", "hist", "art", "music"}, lo.Map(ordered, func(lesson Lesson, _ int) string { return lesson.Id }))
	assert.Equal(t, "music", input.Lessons[0].Id, "the input order is left untouched")
}
