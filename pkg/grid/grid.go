package grid

import (
	"slices"

	"github.com/samber/lo"

	"github.com/limaJavier/weektable/pkg/model"

	appErrors "github.com/limaJavier/weektable/pkg/errors"
)

// Cell addresses one (class, day, hour) position. Days and hours are 1-based.
type Cell struct {
	ClassId string
	Day     int
	Hour    int
}

// BlockMeta locates a slot inside its lesson's block structure.
type BlockMeta struct {
	Index    int // Block index within the lesson's block structure
	Position int // Zero-based position inside the block
	Size     int
}

// Single is the metadata of a one-hour block.
func Single(index int) BlockMeta {
	return BlockMeta{Index: index, Position: 0, Size: 1}
}

type Slot struct {
	LessonId   string
	Subject    string
	TeacherIds []string
	ClassId    string
	Day        int
	Hour       int
	Block      BlockMeta
}

func (slot Slot) IsEmpty() bool {
	return slot.LessonId == ""
}

func (slot Slot) Cell() Cell {
	return Cell{ClassId: slot.ClassId, Day: slot.Day, Hour: slot.Hour}
}

// Grid is the schedule table: a fixed-shape array of cells indexed by
// (class, day, hour). Teacher busy maps, teacher loads and per-lesson placed
// hours are caches maintained by put/clear only.
type Grid struct {
	days, hours int
	classes     []string
	classIndex  map[string]int
	indexer     indexer
	cells       []Slot

	teacherBusy map[string][]int // Teacher -> (day, hour) -> class index + 1 (0 means free)
	teacherLoad map[string]int
	placedHours map[string]int
	locked      map[int]string // Cell index -> locked lesson
}

func New(days, hours int, classIds []string) *Grid {
	classes := lo.Uniq(classIds)
	classIndex := make(map[string]int, len(classes))
	for i, class := range classes {
		classIndex[class] = i
	}

	indexer := newIndexer(len(classes), days, hours)
	return &Grid{
		days:        days,
		hours:       hours,
		classes:     classes,
		classIndex:  classIndex,
		indexer:     indexer,
		cells:       make([]Slot, indexer.Size()),
		teacherBusy: make(map[string][]int),
		teacherLoad: make(map[string]int),
		placedHours: make(map[string]int),
		locked:      make(map[int]string),
	}
}

// FromInput builds an empty grid shaped after the input's bounds and classes.
func FromInput(input model.ModelInput) *Grid {
	return New(input.Days, input.Hours, input.ClassIds())
}

func (grid *Grid) Days() int  { return grid.days }
func (grid *Grid) Hours() int { return grid.hours }

func (grid *Grid) ClassIds() []string {
	return slices.Clone(grid.classes)
}

// TeacherIds lists every teacher with at least one placed hour, sorted.
func (grid *Grid) TeacherIds() []string {
	ids := lo.Keys(grid.teacherLoad)
	slices.Sort(ids)
	return ids
}

// Place puts one hour of the lesson in the cell. The grid only enforces that a
// cell holds a single slot and that no teacher is in two places at once; every
// other rule belongs to the constraint evaluator.
func (grid *Grid) Place(lesson model.Lesson, classId string, day, hour int, meta BlockMeta) error {
	index, err := grid.index(classId, day, hour)
	if err != nil {
		return err
	}
	if !grid.cells[index].IsEmpty() {
		return appErrors.Clonef(appErrors.ErrSlotOccupied, "class %v is already taught %v at (%v,%v)", classId, grid.cells[index].LessonId, day, hour)
	}
	for _, teacherId := range lesson.TeacherIds {
		if busyClass, busy := grid.TeacherAt(teacherId, day, hour); busy {
			return appErrors.Clonef(appErrors.ErrTeacherConflict, "teacher %v already teaches class %v at (%v,%v)", teacherId, busyClass, day, hour)
		}
	}

	grid.put(index, Slot{
		LessonId:   lesson.Id,
		Subject:    lesson.Subject,
		TeacherIds: lesson.TeacherIds,
		ClassId:    classId,
		Day:        day,
		Hour:       hour,
		Block:      meta,
	})
	return nil
}

// Remove empties the cell and returns what it held.
func (grid *Grid) Remove(classId string, day, hour int) (Slot, bool) {
	index, err := grid.index(classId, day, hour)
	if err != nil || grid.cells[index].IsEmpty() {
		return Slot{}, false
	}
	return grid.clear(index), true
}

func (grid *Grid) IsOccupied(classId string, day, hour int) bool {
	slot, ok := grid.Slot(classId, day, hour)
	return ok && !slot.IsEmpty()
}

func (grid *Grid) IsTeacherBusy(teacherId string, day, hour int) bool {
	_, busy := grid.TeacherAt(teacherId, day, hour)
	return busy
}

// TeacherAt returns the class the teacher is teaching at (day, hour), if any.
func (grid *Grid) TeacherAt(teacherId string, day, hour int) (string, bool) {
	busy, ok := grid.teacherBusy[teacherId]
	if !ok || !grid.inBounds(day, hour) {
		return "", false
	}
	class := busy[grid.timeIndex(day, hour)]
	if class == 0 {
		return "", false
	}
	return grid.classes[class-1], true
}

// Slot returns the content of the cell; ok is false for cells outside the grid.
func (grid *Grid) Slot(classId string, day, hour int) (Slot, bool) {
	index, err := grid.index(classId, day, hour)
	if err != nil {
		return Slot{}, false
	}
	return grid.cells[index], true
}

//** Locks

// Lock marks an occupied cell as manually fixed.
func (grid *Grid) Lock(classId string, day, hour int) error {
	index, err := grid.index(classId, day, hour)
	if err != nil {
		return err
	}
	if grid.cells[index].IsEmpty() {
		return appErrors.Clonef(appErrors.ErrEmptySlot, "cannot lock empty cell %v (%v,%v)", classId, day, hour)
	}
	grid.locked[index] = grid.cells[index].LessonId
	return nil
}

func (grid *Grid) IsLocked(classId string, day, hour int) bool {
	_, ok := grid.LockedLesson(classId, day, hour)
	return ok
}

func (grid *Grid) LockedLesson(classId string, day, hour int) (string, bool) {
	index, err := grid.index(classId, day, hour)
	if err != nil {
		return "", false
	}
	lessonId, ok := grid.locked[index]
	return lessonId, ok
}

// LockedCells returns every locked cell in index order.
func (grid *Grid) LockedCells() []Cell {
	indices := lo.Keys(grid.locked)
	slices.Sort(indices)
	return lo.Map(indices, func(index int, _ int) Cell { return grid.cell(index) })
}

//** Views

// Slots returns every occupied slot ordered by class, day and hour.
func (grid *Grid) Slots() []Slot {
	return lo.Filter(grid.cells, func(slot Slot, _ int) bool { return !slot.IsEmpty() })
}

func (grid *Grid) ClassSlots(classId string) []Slot {
	class, ok := grid.classIndex[classId]
	if !ok {
		return nil
	}
	from := grid.indexer.Index(class, 0, 0)
	to := from + grid.days*grid.hours
	return lo.Filter(grid.cells[from:to], func(slot Slot, _ int) bool { return !slot.IsEmpty() })
}

func (grid *Grid) LessonSlots(lessonId string) []Slot {
	if grid.placedHours[lessonId] == 0 {
		return nil
	}
	return lo.Filter(grid.cells, func(slot Slot, _ int) bool { return slot.LessonId == lessonId })
}

func (grid *Grid) LessonCells(lessonId string) []Cell {
	return lo.Map(grid.LessonSlots(lessonId), func(slot Slot, _ int) Cell { return slot.Cell() })
}

// BlockSlots returns the slots of one block ordered by hour.
func (grid *Grid) BlockSlots(lessonId string, blockIndex int) []Slot {
	return lo.Filter(grid.LessonSlots(lessonId), func(slot Slot, _ int) bool { return slot.Block.Index == blockIndex })
}

// PlacedBlocks returns the sorted block indices of the lesson present in the grid.
func (grid *Grid) PlacedBlocks(lessonId string) []int {
	blocks := lo.Uniq(lo.Map(grid.LessonSlots(lessonId), func(slot Slot, _ int) int { return slot.Block.Index }))
	slices.Sort(blocks)
	return blocks
}

// LessonBlocks groups the placed slots of the lesson by block index.
func (grid *Grid) LessonBlocks(lessonId string) map[int][]Slot {
	return lo.GroupBy(grid.LessonSlots(lessonId), func(slot Slot) int { return slot.Block.Index })
}

// LessonDays returns the days each placed block of the lesson occupies.
func (grid *Grid) LessonDays(lessonId string) map[int]int {
	days := make(map[int]int)
	for _, slot := range grid.LessonSlots(lessonId) {
		days[slot.Block.Index] = slot.Day
	}
	return days
}

func (grid *Grid) PlacedHours(lessonId string) int {
	return grid.placedHours[lessonId]
}

func (grid *Grid) TotalPlaced() int {
	return lo.Sum(lo.Values(grid.placedHours))
}

func (grid *Grid) TeacherWeeklyLoad(teacherId string) int {
	return grid.teacherLoad[teacherId]
}

func (grid *Grid) TeacherDailyLoad(teacherId string, day int) int {
	return len(grid.TeacherDayHours(teacherId, day))
}

// TeacherDayHours returns the hours the teacher teaches on the day, ascending.
func (grid *Grid) TeacherDayHours(teacherId string, day int) []int {
	busy, ok := grid.teacherBusy[teacherId]
	if !ok || day < 1 || day > grid.days {
		return nil
	}
	hours := make([]int, 0, grid.hours)
	for hour := 1; hour <= grid.hours; hour++ {
		if busy[grid.timeIndex(day, hour)] != 0 {
			hours = append(hours, hour)
		}
	}
	return hours
}

// TeacherGaps counts idle hours between the first and last lesson of each day.
func (grid *Grid) TeacherGaps(teacherId string) int {
	gaps := 0
	for day := 1; day <= grid.days; day++ {
		gaps += countGaps(grid.TeacherDayHours(teacherId, day))
	}
	return gaps
}

func (grid *Grid) ClassDayHours(classId string, day int) []int {
	class, ok := grid.classIndex[classId]
	if !ok || day < 1 || day > grid.days {
		return nil
	}
	hours := make([]int, 0, grid.hours)
	for hour := 1; hour <= grid.hours; hour++ {
		if !grid.cells[grid.indexer.Index(class, day-1, hour-1)].IsEmpty() {
			hours = append(hours, hour)
		}
	}
	return hours
}

func (grid *Grid) ClassDailyLoad(classId string, day int) int {
	return len(grid.ClassDayHours(classId, day))
}

func (grid *Grid) ClassGaps(classId string) int {
	gaps := 0
	for day := 1; day <= grid.days; day++ {
		gaps += countGaps(grid.ClassDayHours(classId, day))
	}
	return gaps
}

// CountGaps counts the empty hours between the first and last occupied hour of
// an ascending hour list.
func CountGaps(hours []int) int {
	return countGaps(hours)
}

func countGaps(hours []int) int {
	if len(hours) < 2 {
		return 0
	}
	return hours[len(hours)-1] - hours[0] + 1 - len(hours)
}

//** Copying

// Clone returns a deep copy sharing no mutable state with the receiver.
func (grid *Grid) Clone() *Grid {
	clone := &Grid{
		days:        grid.days,
		hours:       grid.hours,
		classes:     slices.Clone(grid.classes),
		classIndex:  make(map[string]int, len(grid.classIndex)),
		indexer:     newIndexer(len(grid.classes), grid.days, grid.hours),
		cells:       slices.Clone(grid.cells),
		teacherBusy: make(map[string][]int, len(grid.teacherBusy)),
		teacherLoad: make(map[string]int, len(grid.teacherLoad)),
		placedHours: make(map[string]int, len(grid.placedHours)),
		locked:      make(map[int]string, len(grid.locked)),
	}
	for class, index := range grid.classIndex {
		clone.classIndex[class] = index
	}
	for teacher, busy := range grid.teacherBusy {
		clone.teacherBusy[teacher] = slices.Clone(busy)
	}
	for teacher, load := range grid.teacherLoad {
		clone.teacherLoad[teacher] = load
	}
	for lesson, hours := range grid.placedHours {
		clone.placedHours[lesson] = hours
	}
	for index, lesson := range grid.locked {
		clone.locked[index] = lesson
	}
	return clone
}

// CopyClass replaces the content of one class with the content it has in the
// source grid. Slots that would double-book a teacher are skipped and returned.
// Locks are left untouched.
func (grid *Grid) CopyClass(source *Grid, classId string) []Slot {
	for _, slot := range grid.ClassSlots(classId) {
		grid.Remove(slot.ClassId, slot.Day, slot.Hour)
	}

	skipped := make([]Slot, 0)
	for _, slot := range source.ClassSlots(classId) {
		if !grid.fits(slot) {
			skipped = append(skipped, slot)
			continue
		}
		index, _ := grid.index(slot.ClassId, slot.Day, slot.Hour)
		grid.put(index, slot)
	}
	return skipped
}

//** Internals

func (grid *Grid) index(classId string, day, hour int) (int, error) {
	class, ok := grid.classIndex[classId]
	if !ok {
		return 0, appErrors.Clonef(appErrors.ErrUnknownClass, "class %v is not part of the grid", classId)
	}
	if !grid.inBounds(day, hour) {
		return 0, appErrors.Clonef(appErrors.ErrOutOfBounds, "(%v,%v) is outside the %vx%v grid", day, hour, grid.days, grid.hours)
	}
	return grid.indexer.Index(class, day-1, hour-1), nil
}

func (grid *Grid) cell(index int) Cell {
	class, day, hour := grid.indexer.Attributes(index)
	return Cell{ClassId: grid.classes[class], Day: day + 1, Hour: hour + 1}
}

func (grid *Grid) inBounds(day, hour int) bool {
	return day >= 1 && day <= grid.days && hour >= 1 && hour <= grid.hours
}

func (grid *Grid) timeIndex(day, hour int) int {
	return (day-1)*grid.hours + (hour - 1)
}

// fits reports whether the slot could be stored in its cell without breaking
// the one-slot-per-cell and teacher invariants.
func (grid *Grid) fits(slot Slot) bool {
	index, err := grid.index(slot.ClassId, slot.Day, slot.Hour)
	if err != nil || !grid.cells[index].IsEmpty() {
		return false
	}
	return !lo.SomeBy(slot.TeacherIds, func(teacherId string) bool {
		return grid.IsTeacherBusy(teacherId, slot.Day, slot.Hour)
	})
}

func (grid *Grid) put(index int, slot Slot) {
	grid.cells[index] = slot
	class, _, _ := grid.indexer.Attributes(index)
	time := grid.timeIndex(slot.Day, slot.Hour)
	for _, teacherId := range slot.TeacherIds {
		busy, ok := grid.teacherBusy[teacherId]
		if !ok {
			busy = make([]int, grid.days*grid.hours)
			grid.teacherBusy[teacherId] = busy
		}
		busy[time] = class + 1
		grid.teacherLoad[teacherId]++
	}
	grid.placedHours[slot.LessonId]++
}

func (grid *Grid) clear(index int) Slot {
	slot := grid.cells[index]
	grid.cells[index] = Slot{}
	time := grid.timeIndex(slot.Day, slot.Hour)
	for _, teacherId := range slot.TeacherIds {
		grid.teacherBusy[teacherId][time] = 0
		if grid.teacherLoad[teacherId]--; grid.teacherLoad[teacherId] == 0 {
			delete(grid.teacherLoad, teacherId)
			delete(grid.teacherBusy, teacherId)
		}
	}
	if grid.placedHours[slot.LessonId]--; grid.placedHours[slot.LessonId] == 0 {
		delete(grid.placedHours, slot.LessonId)
	}
	return slot
}
