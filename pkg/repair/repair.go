package repair

import (
	"context"
	"slices"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/limaJavier/weektable/pkg/block"
	"github.com/limaJavier/weektable/pkg/constraint"
	"github.com/limaJavier/weektable/pkg/grid"
	"github.com/limaJavier/weektable/pkg/metrics"
	"github.com/limaJavier/weektable/pkg/model"
)

type Settings struct {
	// MaxRounds bounds the scan-and-fix rounds of one Repair call.
	MaxRounds int
}

func DefaultSettings() Settings {
	return Settings{MaxRounds: 3}
}

// Attempt records one repair task and whether it removed HARD violations.
type Attempt struct {
	Kind     constraint.Kind `json:"kind" csv:"kind"`
	ClassId  string          `json:"classId" csv:"class_id"`
	LessonId string          `json:"lessonId,omitempty" csv:"lesson_id"`
	Hours    int             `json:"hours" csv:"hours"`
	Fixed    bool            `json:"fixed" csv:"fixed"`
}

type Outcome struct {
	Attempts  []Attempt
	Fixed     int
	Unfixed   int
	Remaining []constraint.Violation
}

// Engine removes HARD violations from a grid. Every attempt is
// snapshot-protected: it is kept only when it lowers the HARD count without
// losing hours it was meant to keep, and rolled back otherwise. Locked cells
// are never touched.
type Engine interface {
	Repair(ctx context.Context, grid *grid.Grid, lessons []model.Lesson) (Outcome, error)
	// Stabilize places the missing hours of every lesson and returns how many
	// hours it placed.
	Stabilize(ctx context.Context, grid *grid.Grid, lessons []model.Lesson) (int, error)
}

func NewEngine(placer block.Placer, settings Settings, recorder *metrics.Recorder, logger *zap.Logger) Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.MaxRounds < 1 {
		settings.MaxRounds = 1
	}
	return &engineImplementation{
		placer:    placer,
		evaluator: placer.Evaluator(),
		settings:  settings,
		recorder:  recorder,
		logger:    logger,
	}
}

type engineImplementation struct {
	placer    block.Placer
	evaluator constraint.Evaluator
	settings  Settings
	recorder  *metrics.Recorder
	logger    *zap.Logger
}

// task is one unit of repair work, always local to one class.
type task struct {
	kind     constraint.Kind
	classId  string
	lessonId string
	hours    int
	run      func(g *grid.Grid) bool
}

func (engine *engineImplementation) Repair(ctx context.Context, g *grid.Grid, lessons []model.Lesson) (Outcome, error) {
	outcome := Outcome{Attempts: make([]Attempt, 0)}

	for round, n := 0, engine.settings.MaxRounds; round < n; round++ {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		hard := engine.evaluator.Scan(g).Filter(func(violation constraint.Violation) bool {
			return violation.Severity == constraint.Hard
		})
		if len(hard) == 0 {
			break
		}

		fixed := 0
		for _, task := range engine.plan(hard, g) {
			if err := ctx.Err(); err != nil {
				return outcome, err
			}
			attempt := engine.attempt(task, g)
			outcome.Attempts = append(outcome.Attempts, attempt)
			if attempt.Fixed {
				fixed++
				outcome.Fixed++
				engine.recorder.IncRepair(metrics.OutcomeFixed)
			} else {
				outcome.Unfixed++
				engine.recorder.IncRepair(metrics.OutcomeUnfixed)
			}
		}

		engine.logger.Debug("repair round finished",
			zap.Int("round", round+1),
			zap.Int("hard", len(hard)),
			zap.Int("fixed", fixed),
		)
		if fixed == 0 {
			break
		}
	}

	outcome.Remaining = engine.evaluator.Scan(g).Filter(func(violation constraint.Violation) bool {
		return violation.Severity == constraint.Hard
	})
	if len(outcome.Remaining) > 0 {
		engine.logger.Warn("unfixable violations remain", zap.Int("count", len(outcome.Remaining)))
	}
	return outcome, nil
}

// attempt runs the task on a snapshot of its class and keeps the result only
// when the grid has fewer HARD violations afterwards.
func (engine *engineImplementation) attempt(task task, g *grid.Grid) Attempt {
	attempt := Attempt{Kind: task.kind, ClassId: task.classId, LessonId: task.lessonId, Hours: task.hours}
	if task.run == nil {
		return attempt
	}

	before := engine.evaluator.CountHard(g)
	backup := g.SnapshotClass(task.classId)
	if task.run(g) && engine.evaluator.CountHard(g) < before {
		attempt.Fixed = true
		return attempt
	}
	if err := g.Restore(backup); err != nil {
		engine.logger.Error("repair rollback failed", zap.String("class", task.classId), zap.Error(err))
	}
	return attempt
}

//** Planning

// plan turns HARD violations into class-local tasks. Violations that only a
// change to a locked cell could fix become tasks without work.
func (engine *engineImplementation) plan(violations []constraint.Violation, g *grid.Grid) []task {
	input := engine.evaluator.Input()
	tasks := make([]task, 0)
	seen := make(map[string]bool)
	displaced := make(map[string][]displacedHour)
	displacedKind := make(map[string]constraint.Kind)

	addOnce := func(key string, t task) {
		if seen[key] {
			return
		}
		seen[key] = true
		tasks = append(tasks, t)
	}
	displace := func(kind constraint.Kind, slot grid.Slot, avoidDay int) {
		if g.IsLocked(slot.ClassId, slot.Day, slot.Hour) {
			addOnce("locked|"+cellKey(slot.Cell()), task{kind: kind, classId: slot.ClassId, lessonId: slot.LessonId, hours: 1})
			return
		}
		if slot.Block.Size > 1 {
			addOnce("block|"+blockKey(slot), engine.relocateBlockTask(kind, slot))
			return
		}
		if seen["single|"+cellKey(slot.Cell())] {
			return
		}
		seen["single|"+cellKey(slot.Cell())] = true
		if _, ok := displacedKind[slot.ClassId]; !ok {
			displacedKind[slot.ClassId] = kind
		}
		displaced[slot.ClassId] = append(displaced[slot.ClassId], displacedHour{slot: slot, avoidDay: avoidDay})
	}

	for _, violation := range violations {
		switch {
		case violation.Kind == constraint.KindManualLock:
			tasks = append(tasks, task{kind: violation.Kind, classId: violation.ClassId, lessonId: violation.LessonId, hours: 1})

		case violation.Kind.IsBlockRule():
			lesson, ok := input.Lesson(violation.LessonId)
			if ok {
				addOnce("lesson|"+lesson.Id, engine.rebuildTask(violation.Kind, lesson))
			}

		case violation.Kind == constraint.KindOverPlacement:
			lesson, ok := input.Lesson(violation.LessonId)
			if ok {
				addOnce("trim|"+lesson.Id, engine.trimTask(lesson))
			}

		case violation.Kind == constraint.KindUnknownLesson:
			cell := grid.Cell{ClassId: violation.ClassId, Day: violation.Day, Hour: violation.Hour}
			addOnce("unknown|"+cellKey(cell), unknownTask(cell, violation.LessonId))

		case violation.Kind == constraint.KindTeacherCeiling:
			teacher, _ := input.Teacher(violation.TeacherId)
			slots := lo.Filter(g.Slots(), func(slot grid.Slot, _ int) bool {
				return slot.Day == violation.Day && slices.Contains(slot.TeacherIds, teacher.Id)
			})
			for _, slot := range excess(slots, len(slots)-teacher.HardDailyMax, g) {
				displace(violation.Kind, slot, violation.Day)
			}

		case violation.Kind == constraint.KindClassCeiling:
			class, _ := input.Class(violation.ClassId)
			slots := lo.Filter(g.ClassSlots(class.Id), func(slot grid.Slot, _ int) bool { return slot.Day == violation.Day })
			for _, slot := range excess(slots, len(slots)-class.MaxDailyHours, g) {
				displace(violation.Kind, slot, violation.Day)
			}

		default:
			if slot, ok := g.Slot(violation.ClassId, violation.Day, violation.Hour); ok {
				displace(violation.Kind, slot, 0)
			}
		}
	}

	classIds := lo.Keys(displaced)
	slices.Sort(classIds)
	for _, classId := range classIds {
		classId := classId
		hours := displaced[classId]
		tasks = append(tasks, task{
			kind:    displacedKind[classId],
			classId: classId,
			hours:   len(hours),
			run:     func(g *grid.Grid) bool { return engine.relocateSingles(g, classId, hours) },
		})
	}
	return tasks
}

// displacedHour is a single hour to move, optionally off a whole day.
type displacedHour struct {
	slot     grid.Slot
	avoidDay int
}

// excess picks count hours to move off an overloaded day: unlocked single
// hours from the latest hour backwards, then blocks.
func excess(slots []grid.Slot, count int, g *grid.Grid) []grid.Slot {
	movable := lo.Filter(slots, func(slot grid.Slot, _ int) bool { return !g.IsLocked(slot.ClassId, slot.Day, slot.Hour) })
	slices.SortStableFunc(movable, func(a, b grid.Slot) int {
		if (a.Block.Size == 1) != (b.Block.Size == 1) {
			if a.Block.Size == 1 {
				return -1
			}
			return 1
		}
		return b.Hour - a.Hour
	})
	return movable[:min(max(count, 0), len(movable))]
}
