package block

import (
	"slices"

	"github.com/samber/lo"

	"github.com/limaJavier/weektable/pkg/grid"
	"github.com/limaJavier/weektable/pkg/model"

	appErrors "github.com/limaJavier/weektable/pkg/errors"
)

// ManualFailure is a manual placement that could not be written into the grid.
type ManualFailure struct {
	Placement model.ManualPlacement
	Err       error
}

// PlaceManual writes and locks every manual placement. Consecutive manual
// hours of a lesson on one day that match the size of one of its blocks
// become that block; every other manual hour becomes a single hour outside
// the block structure.
func PlaceManual(input model.ModelInput, g *grid.Grid) []ManualFailure {
	failures := make([]ManualFailure, 0)
	byLesson := lo.GroupBy(input.ManualPlacements, func(placement model.ManualPlacement) string { return placement.LessonId })

	for _, lesson := range input.Lessons {
		placements, ok := byLesson[lesson.Id]
		if !ok {
			continue
		}
		for _, run := range manualRuns(placements) {
			index, matched := lo.Find(lo.Range(len(lesson.BlockStructure)), func(index int) bool {
				return lesson.BlockStructure[index] == len(run) && !slices.Contains(g.PlacedBlocks(lesson.Id), index)
			})

			for position, placement := range run {
				meta := grid.BlockMeta{Index: index, Position: position, Size: len(run)}
				if !matched {
					meta = grid.Single(NextFallbackIndex(lesson, g))
				}
				err := g.Place(lesson, placement.ClassId, placement.Day, placement.Hour, meta)
				if err == nil {
					err = g.Lock(placement.ClassId, placement.Day, placement.Hour)
				}
				if err != nil {
					failures = append(failures, ManualFailure{
						Placement: placement,
						Err:       appErrors.Wrap(err, appErrors.ErrManualLock.Code, "cannot place manual hour of "+lesson.Id),
					})
				}
			}
		}
	}
	return failures
}

// manualRuns splits the placements of one lesson into runs of consecutive
// hours on the same day, ordered by day and hour.
func manualRuns(placements []model.ManualPlacement) [][]model.ManualPlacement {
	ordered := slices.Clone(placements)
	slices.SortFunc(ordered, func(a, b model.ManualPlacement) int {
		if a.Day != b.Day {
			return a.Day - b.Day
		}
		return a.Hour - b.Hour
	})

	runs := make([][]model.ManualPlacement, 0)
	for i, placement := range ordered {
		if i > 0 {
			previous := ordered[i-1]
			if previous.Day == placement.Day && previous.Hour+1 == placement.Hour {
				runs[len(runs)-1] = append(runs[len(runs)-1], placement)
				continue
			}
		}
		runs = append(runs, []model.ManualPlacement{placement})
	}
	return runs
}
