package constraint

import (
	"fmt"

	"github.com/limaJavier/weektable/pkg/config"
	"github.com/limaJavier/weektable/pkg/grid"
	"github.com/limaJavier/weektable/pkg/model"
)

type Severity int

const (
	SeverityNone Severity = iota
	SoftLow
	SoftMedium
	SoftHigh
	Hard
)

var severityNames = map[Severity]string{
	SeverityNone: "NONE",
	SoftLow:      "SOFT_LOW",
	SoftMedium:   "SOFT_MEDIUM",
	SoftHigh:     "SOFT_HIGH",
	Hard:         "HARD",
}

func (severity Severity) String() string {
	if name, ok := severityNames[severity]; ok {
		return name
	}
	return fmt.Sprintf("Severity(%d)", int(severity))
}

func (severity Severity) MarshalText() ([]byte, error) {
	return []byte(severity.String()), nil
}

// Severities lists every real severity from the most to the least severe.
var Severities = []Severity{Hard, SoftHigh, SoftMedium, SoftLow}

type Kind string

const (
	KindOutOfBounds     Kind = "out-of-bounds"
	KindManualLock      Kind = "manual-lock"
	KindSlotOccupied    Kind = "slot-occupied"
	KindTeacherBlocked  Kind = "teacher-blocked"
	KindTeacherConflict Kind = "teacher-conflict"
	KindBlockContiguity Kind = "block-contiguity"
	KindBlockSameDay    Kind = "block-same-day"
	KindMinDayGap       Kind = "min-day-gap"
	KindTeacherCeiling  Kind = "teacher-daily-ceiling"
	KindClassCeiling    Kind = "class-daily-ceiling"
	KindOverPlacement   Kind = "over-placement"
	KindUnknownLesson   Kind = "unknown-lesson"
	KindOffDay          Kind = "off-day"
	KindAvoidedHour     Kind = "avoided-hour"
	KindDailyLimit      Kind = "daily-limit"
	KindDailyMinimum    Kind = "daily-minimum"
	KindWeeklyGaps      Kind = "weekly-gaps"
)

// IsBlockRule reports whether the kind is one of the block structure rules.
func (kind Kind) IsBlockRule() bool {
	return kind == KindBlockContiguity || kind == KindBlockSameDay || kind == KindMinDayGap
}

type Violation struct {
	Kind      Kind     `json:"kind" csv:"kind"`
	Severity  Severity `json:"severity" csv:"severity"`
	ClassId   string   `json:"classId,omitempty" csv:"class"`
	Day       int      `json:"day,omitempty" csv:"day"`
	Hour      int      `json:"hour,omitempty" csv:"hour"`
	LessonId  string   `json:"lessonId,omitempty" csv:"lesson"`
	TeacherId string   `json:"teacherId,omitempty" csv:"teacher"`
	Weight    float64  `json:"weight" csv:"weight"`
	Message   string   `json:"message" csv:"message"`
}

// Placement is a proposed (lesson, cell, block position) assignment.
type Placement struct {
	Lesson  model.Lesson
	ClassId string
	Day     int
	Hour    int
	Block   grid.BlockMeta
}

func (placement Placement) Cell() grid.Cell {
	return grid.Cell{ClassId: placement.ClassId, Day: placement.Day, Hour: placement.Hour}
}

type ValidationResult struct {
	Valid      bool
	Severity   Severity
	Kind       Kind
	Weight     float64 // Sum of the violation weights
	Reason     string
	Violations []Violation
	Bonus      float64 // Preferred-hour matches
}

// Weights is the severity weight table.
type Weights struct {
	Hard           float64
	SoftHigh       float64
	SoftMedium     float64
	SoftLow        float64
	PreferredBonus float64
}

func DefaultWeights() Weights {
	return Weights{Hard: 1000, SoftHigh: 100, SoftMedium: 50, SoftLow: 10, PreferredBonus: 20}
}

func WeightsFromConfig(cfg config.WeightsConfig) Weights {
	return Weights{
		Hard:           cfg.Hard,
		SoftHigh:       cfg.SoftHigh,
		SoftMedium:     cfg.SoftMedium,
		SoftLow:        cfg.SoftLow,
		PreferredBonus: cfg.PreferredBonus,
	}
}

func (weights Weights) Of(severity Severity) float64 {
	switch severity {
	case Hard:
		return weights.Hard
	case SoftHigh:
		return weights.SoftHigh
	case SoftMedium:
		return weights.SoftMedium
	case SoftLow:
		return weights.SoftLow
	default:
		return 0
	}
}

const defaultMinDayGap = 2

// Rules resolves the special rule of a lesson: its own tag first, then the
// subject table.
type Rules struct {
	SubjectRules     map[string]string
	DefaultMinDayGap int
}

func RulesFromConfig(cfg config.BlockConfig) Rules {
	return Rules{SubjectRules: cfg.SubjectRules, DefaultMinDayGap: cfg.DefaultMinDayGap}
}

func (rules Rules) Rule(lesson model.Lesson) string {
	if lesson.SpecialRule != model.RuleNone {
		return lesson.SpecialRule
	}
	return rules.SubjectRules[lesson.Subject]
}

// MinDayGap is the minimum distance in days between two blocks of the lesson.
// Blocks of one lesson never share a day, so the minimum is 1.
func (rules Rules) MinDayGap(lesson model.Lesson) int {
	if rules.Rule(lesson) != model.RuleMinDayGap {
		return 1
	}
	if lesson.MinDayGap > 0 {
		return lesson.MinDayGap
	}
	if rules.DefaultMinDayGap > 0 {
		return rules.DefaultMinDayGap
	}
	return defaultMinDayGap
}

// IsStructural reports whether the block index belongs to the lesson's block
// structure. Single-hour fallback placements get indices past the structure
// and are exempt from the day-distance rules.
func IsStructural(lesson model.Lesson, blockIndex int) bool {
	return blockIndex >= 0 && blockIndex < len(lesson.BlockStructure)
}
