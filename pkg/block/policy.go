package block

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/limaJavier/weektable/pkg/grid"
	"github.com/limaJavier/weektable/pkg/model"

	appErrors "github.com/limaJavier/weektable/pkg/errors"
)

// FailurePolicy decides what happens to blocks that found no window.
type FailurePolicy string

const (
	// PolicySkip leaves the block's hours missing.
	PolicySkip FailurePolicy = "skip"
	// PolicyFallback tries to place the block's hours one by one.
	PolicyFallback FailurePolicy = "fallback"
	// PolicyAbort stops the placement with an error.
	PolicyAbort FailurePolicy = "abort"
)

func ParseFailurePolicy(raw string) (FailurePolicy, error) {
	policy := FailurePolicy(strings.ToLower(strings.TrimSpace(raw)))
	switch policy {
	case PolicySkip, PolicyFallback, PolicyAbort:
		return policy, nil
	case "":
		return PolicyFallback, nil
	default:
		return "", appErrors.Clonef(appErrors.ErrValidation, "unknown failure policy \"%v\"", raw)
	}
}

// PlaceWithPolicy places the lesson and applies the policy to the blocks that
// failed. The returned failures are the hours still missing; with PolicyAbort
// the first failure is returned as an error and the grid keeps the blocks
// placed so far.
func PlaceWithPolicy(placer Placer, lesson model.Lesson, g *grid.Grid, policy FailurePolicy) ([]PlacementFailure, error) {
	failures := placer.PlaceLesson(lesson, g)
	if len(failures) == 0 {
		return failures, nil
	}

	switch policy {
	case PolicyAbort:
		failure := failures[0]
		return failures, appErrors.Clonef(appErrors.ErrPlacementFailed, "block %v of %v: %v", failure.BlockIndex, failure.LessonId, failure.Reason)
	case PolicyFallback:
		return fallback(placer, lesson, g, failures), nil
	default:
		return failures, nil
	}
}

// fallback places the hours of failed blocks as single hours, never beyond the
// lesson's weekly hours.
func fallback(placer Placer, lesson model.Lesson, g *grid.Grid, failures []PlacementFailure) []PlacementFailure {
	remaining := make([]PlacementFailure, 0)
	for _, failure := range failures {
		placed := 0
		for i, n := 0, failure.Size; i < n; i++ {
			if g.PlacedHours(lesson.Id) >= lesson.WeeklyHours {
				break
			}
			if _, err := placer.PlaceHour(lesson, g); err != nil {
				break
			}
			placed++
		}
		if placed < failure.Size {
			failure.Size -= placed
			failure.Reason = fmt.Sprintf("%v; %v hour(s) placed as single hours", failure.Reason, placed)
			remaining = append(remaining, failure)
		}
	}
	return remaining
}

// MissingHours sums the hours of the failures.
func MissingHours(failures []PlacementFailure) int {
	return lo.SumBy(failures, func(failure PlacementFailure) int { return failure.Size })
}
