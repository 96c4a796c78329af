package grid

import (
	"github.com/samber/lo"

	appErrors "github.com/limaJavier/weektable/pkg/errors"
)

// Backup holds the previous content of a set of cells.
type Backup struct {
	entries []backupEntry
}

type backupEntry struct {
	index int
	slot  Slot
}

func (backup Backup) Cells() int {
	return len(backup.entries)
}

// Snapshot records the current content of the given cells. Cells outside the
// grid are ignored and duplicates are recorded once.
func (grid *Grid) Snapshot(cells ...Cell) Backup {
	seen := make(map[int]bool, len(cells))
	entries := make([]backupEntry, 0, len(cells))
	for _, cell := range cells {
		index, err := grid.index(cell.ClassId, cell.Day, cell.Hour)
		if err != nil || seen[index] {
			continue
		}
		seen[index] = true
		entries = append(entries, backupEntry{index: index, slot: grid.cells[index]})
	}
	return Backup{entries: entries}
}

// SnapshotClass records every cell of a class.
func (grid *Grid) SnapshotClass(classId string) Backup {
	cells := make([]Cell, 0, grid.days*grid.hours)
	for day := 1; day <= grid.days; day++ {
		for hour := 1; hour <= grid.hours; hour++ {
			cells = append(cells, Cell{ClassId: classId, Day: day, Hour: hour})
		}
	}
	return grid.Snapshot(cells...)
}

// Restore puts the recorded cells back to their snapshot content. Every
// recorded cell is cleared first so slots moved between recorded cells come
// back in place. A slot whose teacher got booked elsewhere since the snapshot
// is not restored and reported through the returned error.
func (grid *Grid) Restore(backup Backup) error {
	for _, entry := range backup.entries {
		if !grid.cells[entry.index].IsEmpty() {
			grid.clear(entry.index)
		}
	}

	conflicts := make([]Slot, 0)
	for _, entry := range backup.entries {
		if entry.slot.IsEmpty() {
			continue
		}
		if !grid.fits(entry.slot) {
			conflicts = append(conflicts, entry.slot)
			continue
		}
		grid.put(entry.index, entry.slot)
	}

	if len(conflicts) > 0 {
		return appErrors.Clonef(appErrors.ErrTeacherConflict, "could not restore %v slot(s): %v", len(conflicts),
			lo.Map(conflicts, func(slot Slot, _ int) string { return slot.LessonId }))
	}
	return nil
}
