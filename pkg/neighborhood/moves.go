package neighborhood

import (
	"fmt"
	"math/rand"

	"github.com/samber/lo"

	"github.com/limaJavier/weektable/pkg/constraint"
	"github.com/limaJavier/weektable/pkg/grid"

	appErrors "github.com/limaJavier/weektable/pkg/errors"
)

type Kind string

const (
	// Relocate moves a whole block to another window of its class.
	Relocate Kind = "relocate"
	// Swap exchanges the content of two single-hour cells of one class.
	Swap Kind = "swap"
)

type Move struct {
	Kind    Kind
	ClassId string

	// Relocate
	LessonId   string
	BlockIndex int
	Size       int
	FromDay    int
	FromStart  int
	ToDay      int
	ToStart    int

	// Swap
	A grid.Cell
	B grid.Cell
}

// Key identifies the move; applying a move and then the move whose Key equals
// its InverseKey returns the grid to its previous state.
func (move Move) Key() string {
	if move.Kind == Swap {
		return swapKey(move.ClassId, move.A, move.B)
	}
	return fmt.Sprintf("R|%v|%v|%v|%v", move.LessonId, move.BlockIndex, move.ToDay, move.ToStart)
}

func (move Move) InverseKey() string {
	if move.Kind == Swap {
		return swapKey(move.ClassId, move.A, move.B)
	}
	return fmt.Sprintf("R|%v|%v|%v|%v", move.LessonId, move.BlockIndex, move.FromDay, move.FromStart)
}

func swapKey(classId string, a, b grid.Cell) string {
	if a.Day > b.Day || (a.Day == b.Day && a.Hour > b.Hour) {
		a, b = b, a
	}
	return fmt.Sprintf("S|%v|%v.%v|%v.%v", classId, a.Day, a.Hour, b.Day, b.Hour)
}

// Neighborhood applies moves through the evaluator so that a move either
// keeps every HARD rule or leaves the grid untouched.
type Neighborhood struct {
	evaluator constraint.Evaluator
	rng       *rand.Rand
}

func New(evaluator constraint.Evaluator, rng *rand.Rand) *Neighborhood {
	return &Neighborhood{evaluator: evaluator, rng: rng}
}

func (neighborhood *Neighborhood) Evaluator() constraint.Evaluator {
	return neighborhood.evaluator
}

// Apply performs the move and returns the backup that undoes it. A rejected
// move returns an error and leaves the grid as it was.
func (neighborhood *Neighborhood) Apply(g *grid.Grid, move Move) (grid.Backup, error) {
	switch move.Kind {
	case Relocate:
		return neighborhood.RelocateBlock(g, move.LessonId, move.BlockIndex, move.ToDay, move.ToStart)
	case Swap:
		return neighborhood.Swap(g, move.ClassId, move.A, move.B)
	default:
		return grid.Backup{}, appErrors.Clonef(appErrors.ErrInternal, "unknown move kind \"%v\"", move.Kind)
	}
}

// RelocateBlock moves the block to the window starting at (day, start).
func (neighborhood *Neighborhood) RelocateBlock(g *grid.Grid, lessonId string, blockIndex, day, start int) (grid.Backup, error) {
	lesson, ok := neighborhood.evaluator.Input().Lesson(lessonId)
	if !ok {
		return grid.Backup{}, appErrors.Clonef(appErrors.ErrValidation, "unknown lesson %v", lessonId)
	}
	slots := g.BlockSlots(lessonId, blockIndex)
	if len(slots) == 0 {
		return grid.Backup{}, appErrors.Clonef(appErrors.ErrEmptySlot, "block %v of %v is not placed", blockIndex, lessonId)
	}
	if lo.SomeBy(slots, func(slot grid.Slot) bool { return g.IsLocked(slot.ClassId, slot.Day, slot.Hour) }) {
		return grid.Backup{}, appErrors.Clonef(appErrors.ErrManualLock, "block %v of %v is locked", blockIndex, lessonId)
	}

	size := slots[0].Block.Size
	cells := lo.Map(slots, func(slot grid.Slot, _ int) grid.Cell { return slot.Cell() })
	for hour := start; hour < start+size; hour++ {
		cells = append(cells, grid.Cell{ClassId: lesson.ClassId, Day: day, Hour: hour})
	}
	backup := g.Snapshot(cells...)

	for _, slot := range slots {
		g.Remove(slot.ClassId, slot.Day, slot.Hour)
	}
	result := neighborhood.evaluator.ValidateRun(lesson, lesson.ClassId, day, start, blockIndex, size, g)
	if !result.Valid {
		_ = g.Restore(backup)
		return grid.Backup{}, rejection(result)
	}
	for position, n := 0, size; position < n; position++ {
		meta := grid.BlockMeta{Index: blockIndex, Position: position, Size: size}
		if err := g.Place(lesson, lesson.ClassId, day, start+position, meta); err != nil {
			_ = g.Restore(backup)
			return grid.Backup{}, err
		}
	}
	return backup, nil
}

// Swap exchanges the content of two cells of one class. Either cell may be
// empty; occupied cells must hold single-hour blocks.
func (neighborhood *Neighborhood) Swap(g *grid.Grid, classId string, a, b grid.Cell) (grid.Backup, error) {
	a.ClassId, b.ClassId = classId, classId
	first, okA := g.Slot(classId, a.Day, a.Hour)
	second, okB := g.Slot(classId, b.Day, b.Hour)
	switch {
	case !okA || !okB:
		return grid.Backup{}, appErrors.Clonef(appErrors.ErrOutOfBounds, "cannot swap %v and %v in class %v", a, b, classId)
	case first.IsEmpty() && second.IsEmpty():
		return grid.Backup{}, appErrors.Clonef(appErrors.ErrEmptySlot, "both cells are empty")
	case g.IsLocked(classId, a.Day, a.Hour) || g.IsLocked(classId, b.Day, b.Hour):
		return grid.Backup{}, appErrors.Clonef(appErrors.ErrManualLock, "cannot swap a locked cell")
	case first.Block.Size > 1 || second.Block.Size > 1:
		return grid.Backup{}, appErrors.Clonef(appErrors.ErrBlockRule, "cannot swap an hour out of a multi-hour block")
	}

	backup := g.Snapshot(a, b)
	g.Remove(classId, a.Day, a.Hour)
	g.Remove(classId, b.Day, b.Hour)

	if err := neighborhood.put(g, first, b); err != nil {
		_ = g.Restore(backup)
		return grid.Backup{}, err
	}
	if err := neighborhood.put(g, second, a); err != nil {
		_ = g.Restore(backup)
		return grid.Backup{}, err
	}
	return backup, nil
}

// put validates and places the slot's lesson in the target cell, keeping its
// block metadata.
func (neighborhood *Neighborhood) put(g *grid.Grid, slot grid.Slot, target grid.Cell) error {
	if slot.IsEmpty() {
		return nil
	}
	lesson, ok := neighborhood.evaluator.Input().Lesson(slot.LessonId)
	if !ok {
		return appErrors.Clonef(appErrors.ErrValidation, "unknown lesson %v", slot.LessonId)
	}
	placement := constraint.Placement{Lesson: lesson, ClassId: target.ClassId, Day: target.Day, Hour: target.Hour, Block: slot.Block}
	if result := neighborhood.evaluator.Validate(placement, g); !result.Valid {
		return rejection(result)
	}
	return g.Place(lesson, target.ClassId, target.Day, target.Hour, slot.Block)
}

// rejection turns a failed validation into the matching typed error.
func rejection(result constraint.ValidationResult) error {
	base := appErrors.ErrHardViolation
	switch {
	case result.Kind == constraint.KindTeacherConflict:
		base = appErrors.ErrTeacherConflict
	case result.Kind == constraint.KindSlotOccupied:
		base = appErrors.ErrSlotOccupied
	case result.Kind == constraint.KindManualLock:
		base = appErrors.ErrManualLock
	case result.Kind == constraint.KindOutOfBounds:
		base = appErrors.ErrOutOfBounds
	case result.Kind.IsBlockRule():
		base = appErrors.ErrBlockRule
	}
	return appErrors.Clone(base, result.Reason)
}

//** Move generation

// Movable lists the occupied cells that are not locked.
func Movable(g *grid.Grid) []grid.Slot {
	return lo.Filter(g.Slots(), func(slot grid.Slot, _ int) bool {
		return !g.IsLocked(slot.ClassId, slot.Day, slot.Hour)
	})
}

// Random draws a candidate move around a random movable slot. The move is not
// validated; Apply decides.
func (neighborhood *Neighborhood) Random(g *grid.Grid) (Move, bool) {
	movable := Movable(g)
	if len(movable) == 0 {
		return Move{}, false
	}
	return neighborhood.around(g, movable[neighborhood.rng.Intn(len(movable))]), true
}

// Sample draws up to count distinct candidate moves.
func (neighborhood *Neighborhood) Sample(g *grid.Grid, count int) []Move {
	movable := Movable(g)
	if len(movable) == 0 {
		return nil
	}
	seen := make(map[string]bool, count)
	moves := make([]Move, 0, count)
	for attempt := 0; attempt < 3*count && len(moves) < count; attempt++ {
		move := neighborhood.around(g, movable[neighborhood.rng.Intn(len(movable))])
		if seen[move.Key()] {
			continue
		}
		seen[move.Key()] = true
		moves = append(moves, move)
	}
	return moves
}

func (neighborhood *Neighborhood) around(g *grid.Grid, slot grid.Slot) Move {
	if slot.Block.Size == 1 && neighborhood.rng.Intn(2) == 0 {
		other := grid.Cell{ClassId: slot.ClassId, Day: neighborhood.rng.Intn(g.Days()) + 1, Hour: neighborhood.rng.Intn(g.Hours()) + 1}
		return Move{Kind: Swap, ClassId: slot.ClassId, A: slot.Cell(), B: other}
	}
	return neighborhood.RelocateTo(slot, neighborhood.rng.Intn(g.Days())+1, neighborhood.rng.Intn(g.Hours()-slot.Block.Size+1)+1)
}

// RelocateTo builds the move taking the slot's block to (day, start).
func (neighborhood *Neighborhood) RelocateTo(slot grid.Slot, day, start int) Move {
	return Move{
		Kind:       Relocate,
		ClassId:    slot.ClassId,
		LessonId:   slot.LessonId,
		BlockIndex: slot.Block.Index,
		Size:       slot.Block.Size,
		FromDay:    slot.Day,
		FromStart:  slot.Hour - slot.Block.Position,
		ToDay:      day,
		ToStart:    start,
	}
}
