package model

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"

	appErrors "github.com/limaJavier/weektable/pkg/errors"
)

const (
	DefaultDays  = 5
	DefaultHours = 8
)

// Special rule tags a lesson may carry.
const (
	RuleNone      = ""
	RuleNoSameDay = "no-same-day"
	RuleMinDayGap = "min-day-gap"
)

type TimeSlot struct {
	Day  int
	Hour int
}

type Preference struct {
	OffDay         int   `validate:"min=0"` // 0 means no off-day
	AvoidedHours   []int `validate:"dive,min=1"`
	PreferredHours []int `validate:"dive,min=1"`
	DailyMin       int   `validate:"min=0"`
	DailyMax       int   `validate:"min=0"` // 0 means unbounded
	MaxWeeklyGaps  int   `validate:"min=0"` // 0 means unbounded
}

type Teacher struct {
	Id           string `validate:"required"`
	Name         string
	Blocked      []TimeSlot
	Preferences  Preference
	HardDailyMax int `validate:"min=0"` // 0 means unbounded
}

type Lesson struct {
	Id             string   `validate:"required"`
	Subject        string   `validate:"required"`
	TeacherIds     []string `validate:"required,min=1,dive,required"`
	ClassId        string   `validate:"required"`
	WeeklyHours    int      `validate:"min=1"`
	BlockStructure []int    `validate:"dive,min=1"`
	SpecialRule    string   `validate:"omitempty,oneof=no-same-day min-day-gap"`
	MinDayGap      int      `validate:"min=0"`
}

type Class struct {
	Id            string `validate:"required"`
	Name          string
	MaxDailyHours int `validate:"min=0"` // 0 means unbounded
}

type ManualPlacement struct {
	ClassId  string `validate:"required"`
	Day      int    `validate:"min=1"`
	Hour     int    `validate:"min=1"`
	LessonId string `validate:"required"`
}

type RawModelInput struct {
	Days             int
	Hours            int
	Teachers         []Teacher
	Lessons          []Lesson
	Classes          []Class
	Constraints      map[string]map[string][]int // teacherId -> day -> blocked hours
	Preferences      map[string]Preference       // teacherId -> preference
	ManualPlacements []ManualPlacement
}

type ModelInput struct {
	Days             int
	Hours            int
	Teachers         []Teacher
	Lessons          []Lesson
	Classes          []Class
	ManualPlacements []ManualPlacement

	teacherIndex map[string]int
	lessonIndex  map[string]int
	classIndex   map[string]int
}

var validate = validator.New()

func InputFromJson(file string) (ModelInput, error) {
	bytes, err := os.ReadFile(file)
	if err != nil {
		return ModelInput{}, err
	}
	var inputJson map[string]any
	if err := json.Unmarshal(bytes, &inputJson); err != nil {
		return ModelInput{}, err
	}

	var rawInput RawModelInput
	if err := mapstructure.Decode(inputJson, &rawInput); err != nil {
		return ModelInput{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, "cannot decode input")
	}
	return ProcessRawInput(rawInput)
}

func ProcessRawInput(rawInput RawModelInput) (ModelInput, error) {
	days, hours := rawInput.Days, rawInput.Hours
	if days == 0 {
		days = DefaultDays
	}
	if hours == 0 {
		hours = DefaultHours
	}

	teachers := make([]Teacher, len(rawInput.Teachers))
	for i, teacher := range rawInput.Teachers {
		//** Merge hard constraints
		for dayStr, blockedHours := range rawInput.Constraints[teacher.Id] {
			day, err := strconv.Atoi(dayStr)
			if err != nil {
				return ModelInput{}, appErrors.Clonef(appErrors.ErrValidation, "teacher \"%v\" has a non-numeric blocked day \"%v\"", teacher.Id, dayStr)
			}
			for _, hour := range blockedHours {
				teacher.Blocked = append(teacher.Blocked, TimeSlot{Day: day, Hour: hour})
			}
		}
		slices.SortFunc(teacher.Blocked, compareTimeSlots)
		teacher.Blocked = slices.Compact(teacher.Blocked)

		//** Merge soft preferences
		if preference, ok := rawInput.Preferences[teacher.Id]; ok {
			teacher.Preferences = preference
		}
		teachers[i] = teacher
	}

	// Every referenced constraint must belong to a known teacher
	for teacherId := range rawInput.Constraints {
		if !lo.SomeBy(teachers, func(teacher Teacher) bool { return teacher.Id == teacherId }) {
			return ModelInput{}, appErrors.Clonef(appErrors.ErrValidation, "constraints reference unknown teacher \"%v\"", teacherId)
		}
	}

	return NewModelInput(days, hours, teachers, rawInput.Lessons, rawInput.Classes, rawInput.ManualPlacements)
}

// NewModelInput validates and indexes already-decoded records. Lessons without a
// block structure get the default one.
func NewModelInput(days, hours int, teachers []Teacher, lessons []Lesson, classes []Class, manual []ManualPlacement) (ModelInput, error) {
	if days <= 0 || hours <= 0 {
		return ModelInput{}, appErrors.Clonef(appErrors.ErrValidation, "grid bounds must be positive: %vx%v", days, hours)
	}

	input := ModelInput{
		Days:             days,
		Hours:            hours,
		Teachers:         slices.Clone(teachers),
		Lessons:          make([]Lesson, len(lessons)),
		Classes:          slices.Clone(classes),
		ManualPlacements: slices.Clone(manual),
		teacherIndex:     make(map[string]int),
		lessonIndex:      make(map[string]int),
		classIndex:       make(map[string]int),
	}

	//** Classes
	for i, class := range input.Classes {
		if err := validate.Struct(class); err != nil {
			return ModelInput{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, fmt.Sprintf("invalid class #%d", i))
		}
		if _, ok := input.classIndex[class.Id]; ok {
			return ModelInput{}, appErrors.Clonef(appErrors.ErrValidation, "duplicate class \"%v\"", class.Id)
		}
		input.classIndex[class.Id] = i
	}

	//** Teachers
	for i, teacher := range input.Teachers {
		if err := validate.Struct(teacher); err != nil {
			return ModelInput{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, fmt.Sprintf("invalid teacher #%d", i))
		}
		if _, ok := input.teacherIndex[teacher.Id]; ok {
			return ModelInput{}, appErrors.Clonef(appErrors.ErrValidation, "duplicate teacher \"%v\"", teacher.Id)
		}
		if slot, ok := lo.Find(teacher.Blocked, func(slot TimeSlot) bool { return !inBounds(slot.Day, slot.Hour, days, hours) }); ok {
			return ModelInput{}, appErrors.Clonef(appErrors.ErrValidation, "teacher \"%v\" blocks (%v,%v) outside the grid", teacher.Id, slot.Day, slot.Hour)
		}
		if teacher.Preferences.OffDay > days {
			return ModelInput{}, appErrors.Clonef(appErrors.ErrValidation, "teacher \"%v\" prefers off-day %v outside the grid", teacher.Id, teacher.Preferences.OffDay)
		}
		input.teacherIndex[teacher.Id] = i
	}

	//** Lessons
	for i, lesson := range lessons {
		if err := validate.Struct(lesson); err != nil {
			return ModelInput{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, fmt.Sprintf("invalid lesson #%d", i))
		}
		if _, ok := input.lessonIndex[lesson.Id]; ok {
			return ModelInput{}, appErrors.Clonef(appErrors.ErrValidation, "duplicate lesson \"%v\"", lesson.Id)
		}
		if _, ok := input.classIndex[lesson.ClassId]; !ok {
			return ModelInput{}, appErrors.Clonef(appErrors.ErrValidation, "lesson \"%v\" references unknown class \"%v\"", lesson.Id, lesson.ClassId)
		}
		if teacherId, ok := lo.Find(lesson.TeacherIds, func(id string) bool { _, ok := input.teacherIndex[id]; return !ok }); ok {
			return ModelInput{}, appErrors.Clonef(appErrors.ErrValidation, "lesson \"%v\" references unknown teacher \"%v\"", lesson.Id, teacherId)
		}

		lesson.TeacherIds = lo.Uniq(lesson.TeacherIds)
		if len(lesson.BlockStructure) == 0 {
			lesson.BlockStructure = DefaultBlockStructure(lesson.WeeklyHours, days)
		} else {
			lesson.BlockStructure = slices.Clone(lesson.BlockStructure)
		}
		if sum := lo.Sum(lesson.BlockStructure); sum != lesson.WeeklyHours {
			return ModelInput{}, appErrors.Clonef(appErrors.ErrValidation, "lesson \"%v\" block structure %v sums to %v instead of %v", lesson.Id, lesson.BlockStructure, sum, lesson.WeeklyHours)
		}
		if size := slices.Max(lesson.BlockStructure); size > hours {
			return ModelInput{}, appErrors.Clonef(appErrors.ErrValidation, "lesson \"%v\" has a block of %v hours in a %v-hour day", lesson.Id, size, hours)
		}
		if len(lesson.BlockStructure) > days {
			return ModelInput{}, appErrors.Clonef(appErrors.ErrValidation, "lesson \"%v\" has %v blocks but the week has %v days", lesson.Id, len(lesson.BlockStructure), days)
		}

		input.Lessons[i] = lesson
		input.lessonIndex[lesson.Id] = i
	}

	//** Manual placements
	type cellKey struct {
		classId   string
		day, hour int
	}
	occupied := make(map[cellKey]bool)
	for _, placement := range input.ManualPlacements {
		if err := validate.Struct(placement); err != nil {
			return ModelInput{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, "invalid manual placement")
		}
		lesson, ok := input.Lesson(placement.LessonId)
		if !ok {
			return ModelInput{}, appErrors.Clonef(appErrors.ErrValidation, "manual placement references unknown lesson \"%v\"", placement.LessonId)
		}
		if lesson.ClassId != placement.ClassId {
			return ModelInput{}, appErrors.Clonef(appErrors.ErrValidation, "manual placement of \"%v\" targets class \"%v\" but the lesson belongs to \"%v\"", lesson.Id, placement.ClassId, lesson.ClassId)
		}
		if !inBounds(placement.Day, placement.Hour, days, hours) {
			return ModelInput{}, appErrors.Clonef(appErrors.ErrValidation, "manual placement of \"%v\" at (%v,%v) is outside the grid", lesson.Id, placement.Day, placement.Hour)
		}
		key := cellKey{placement.ClassId, placement.Day, placement.Hour}
		if occupied[key] {
			return ModelInput{}, appErrors.Clonef(appErrors.ErrValidation, "two manual placements share class \"%v\" at (%v,%v)", placement.ClassId, placement.Day, placement.Hour)
		}
		occupied[key] = true
	}
	for _, lesson := range input.Lessons {
		locked := lo.CountBy(input.ManualPlacements, func(placement ManualPlacement) bool { return placement.LessonId == lesson.Id })
		if locked > lesson.WeeklyHours {
			return ModelInput{}, appErrors.Clonef(appErrors.ErrValidation, "lesson \"%v\" has %v manual hours but only %v weekly hours", lesson.Id, locked, lesson.WeeklyHours)
		}
	}

	return input, nil
}

func (input ModelInput) Teacher(id string) (Teacher, bool) {
	if input.teacherIndex == nil {
		return lo.Find(input.Teachers, func(teacher Teacher) bool { return teacher.Id == id })
	}
	index, ok := input.teacherIndex[id]
	if !ok {
		return Teacher{}, false
	}
	return input.Teachers[index], true
}

func (input ModelInput) Lesson(id string) (Lesson, bool) {
	if input.lessonIndex == nil {
		return lo.Find(input.Lessons, func(lesson Lesson) bool { return lesson.Id == id })
	}
	index, ok := input.lessonIndex[id]
	if !ok {
		return Lesson{}, false
	}
	return input.Lessons[index], true
}

func (input ModelInput) Class(id string) (Class, bool) {
	if input.classIndex == nil {
		return lo.Find(input.Classes, func(class Class) bool { return class.Id == id })
	}
	index, ok := input.classIndex[id]
	if !ok {
		return Class{}, false
	}
	return input.Classes[index], true
}

// WithLessons returns a copy of the input whose lessons are replaced, keeping
// every other record and rebuilding the lesson index.
func (input ModelInput) WithLessons(lessons []Lesson) ModelInput {
	input.Lessons = slices.Clone(lessons)
	input.lessonIndex = make(map[string]int, len(lessons))
	for i, lesson := range input.Lessons {
		input.lessonIndex[lesson.Id] = i
	}
	return input
}

func (input ModelInput) ClassIds() []string {
	return lo.Map(input.Classes, func(class Class, _ int) string { return class.Id })
}

func (input ModelInput) TeacherIds() []string {
	return lo.Map(input.Teachers, func(teacher Teacher, _ int) string { return teacher.Id })
}

// RequiredHours is the total number of weekly hours across all lessons.
func (input ModelInput) RequiredHours() int {
	return lo.SumBy(input.Lessons, func(lesson Lesson) int { return lesson.WeeklyHours })
}

func inBounds(day, hour, days, hours int) bool {
	return day >= 1 && day <= days && hour >= 1 && hour <= hours
}

func compareTimeSlots(a, b TimeSlot) int {
	if a.Day != b.Day {
		return a.Day - b.Day
	}
	return a.Hour - b.Hour
}
