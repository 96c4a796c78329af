package repair

import (
	"fmt"

	"github.com/onsi/gomega/matchers/support/goraph/bipartitegraph"
	"github.com/samber/lo"

	"github.com/limaJavier/weektable/pkg/block"
	"github.com/limaJavier/weektable/pkg/constraint"
	"github.com/limaJavier/weektable/pkg/grid"
	"github.com/limaJavier/weektable/pkg/model"
)

func cellKey(cell grid.Cell) string {
	return fmt.Sprintf("%v|%v|%v", cell.ClassId, cell.Day, cell.Hour)
}

func blockKey(slot grid.Slot) string {
	return fmt.Sprintf("%v|%v", slot.LessonId, slot.Block.Index)
}

// relocateSingles moves the displaced single hours of one class to free cells.
// Hours and free cells form a bipartite graph joined where the evaluator
// accepts the placement; a maximum matching assigns as many hours as
// possible and the rest go back to where they were.
func (engine *engineImplementation) relocateSingles(g *grid.Grid, classId string, hours []displacedHour) bool {
	input := engine.evaluator.Input()
	for _, hour := range hours {
		g.Remove(hour.slot.ClassId, hour.slot.Day, hour.slot.Hour)
	}

	free := make([]grid.Cell, 0)
	for day := 1; day <= g.Days(); day++ {
		for hour := 1; hour <= g.Hours(); hour++ {
			if !g.IsOccupied(classId, day, hour) {
				free = append(free, grid.Cell{ClassId: classId, Day: day, Hour: hour})
			}
		}
	}

	// Build neighbors predicate based on evaluator acceptance
	neighbors := func(hourAny any, cellAny any) (bool, error) {
		hour, cell := hourAny.(displacedHour), cellAny.(grid.Cell)
		slot := hour.slot
		if cell == slot.Cell() || cell.Day == hour.avoidDay {
			return false, nil
		}
		lesson, ok := input.Lesson(slot.LessonId)
		if !ok {
			return false, nil
		}
		placement := constraint.Placement{Lesson: lesson, ClassId: classId, Day: cell.Day, Hour: cell.Hour, Block: slot.Block}
		return engine.evaluator.Validate(placement, g).Valid, nil
	}

	hoursAny, freeAny := lo.Map(hours, func(hour displacedHour, _ int) any { return hour }), lo.Map(free, func(cell grid.Cell, _ int) any { return cell })
	graph, err := bipartitegraph.NewBipartiteGraph(hoursAny, freeAny, neighbors)
	if err != nil {
		return false
	}

	targets := make(map[int]grid.Cell, len(hours))
	for _, edge := range graph.LargestMatching() {
		hourIndex, cellIndex := edge.Node1, edge.Node2-len(hours)
		targets[hourIndex] = free[cellIndex]
	}
	if len(targets) == 0 {
		return false
	}

	for i, hour := range hours {
		slot := hour.slot
		target, ok := targets[i]
		if !ok {
			target = slot.Cell()
		}
		lesson, _ := input.Lesson(slot.LessonId)
		if err := g.Place(lesson, classId, target.Day, target.Hour, slot.Block); err != nil {
			return false
		}
	}
	return true
}

// relocateBlockTask moves one multi-hour block to another legal window.
func (engine *engineImplementation) relocateBlockTask(kind constraint.Kind, slot grid.Slot) task {
	lesson, ok := engine.evaluator.Input().Lesson(slot.LessonId)
	t := task{kind: kind, classId: slot.ClassId, lessonId: slot.LessonId, hours: slot.Block.Size}
	if !ok {
		return t
	}
	t.run = func(g *grid.Grid) bool {
		blockSlots := g.BlockSlots(lesson.Id, slot.Block.Index)
		if lo.SomeBy(blockSlots, func(s grid.Slot) bool { return g.IsLocked(s.ClassId, s.Day, s.Hour) }) {
			return false
		}
		for _, s := range blockSlots {
			g.Remove(s.ClassId, s.Day, s.Hour)
		}
		_, err := engine.placer.PlaceBlock(lesson, slot.Block.Index, g)
		return err == nil
	}
	return t
}

// rebuildTask removes every unlocked hour of the lesson and places its blocks
// again. It fails when the lesson ends with fewer hours than before.
func (engine *engineImplementation) rebuildTask(kind constraint.Kind, lesson model.Lesson) task {
	return task{
		kind:     kind,
		classId:  lesson.ClassId,
		lessonId: lesson.Id,
		hours:    lesson.WeeklyHours,
		run: func(g *grid.Grid) bool {
			before := g.PlacedHours(lesson.Id)
			for _, slot := range g.LessonSlots(lesson.Id) {
				if !g.IsLocked(slot.ClassId, slot.Day, slot.Hour) {
					g.Remove(slot.ClassId, slot.Day, slot.Hour)
				}
			}
			_, _ = block.PlaceWithPolicy(engine.placer, lesson, g, block.PolicyFallback)
			return g.PlacedHours(lesson.Id) >= min(before, lesson.WeeklyHours)
		},
	}
}

// trimTask removes whole unlocked blocks, fallback hours first, until the
// lesson no longer exceeds its weekly hours.
func (engine *engineImplementation) trimTask(lesson model.Lesson) task {
	return task{
		kind:     constraint.KindOverPlacement,
		classId:  lesson.ClassId,
		lessonId: lesson.Id,
		hours:    1,
		run: func(g *grid.Grid) bool {
			indices := g.PlacedBlocks(lesson.Id)
			for i := len(indices) - 1; i >= 0 && g.PlacedHours(lesson.Id) > lesson.WeeklyHours; i-- {
				slots := g.BlockSlots(lesson.Id, indices[i])
				locked := lo.SomeBy(slots, func(slot grid.Slot) bool { return g.IsLocked(slot.ClassId, slot.Day, slot.Hour) })
				if locked || g.PlacedHours(lesson.Id)-len(slots) < lesson.WeeklyHours {
					continue
				}
				for _, slot := range slots {
					g.Remove(slot.ClassId, slot.Day, slot.Hour)
				}
			}
			return g.PlacedHours(lesson.Id) <= lesson.WeeklyHours
		},
	}
}

// unknownTask clears a cell holding a lesson the input does not know.
func unknownTask(cell grid.Cell, lessonId string) task {
	return task{
		kind:     constraint.KindUnknownLesson,
		classId:  cell.ClassId,
		lessonId: lessonId,
		hours:    1,
		run: func(g *grid.Grid) bool {
			if g.IsLocked(cell.ClassId, cell.Day, cell.Hour) {
				return false
			}
			_, removed := g.Remove(cell.ClassId, cell.Day, cell.Hour)
			return removed
		},
	}
}
