package repair

import (
	"context"

	"go.uber.org/zap"

	"github.com/limaJavier/weektable/pkg/block"
	"github.com/limaJavier/weektable/pkg/grid"
	"github.com/limaJavier/weektable/pkg/model"
)

func (engine *engineImplementation) Stabilize(ctx context.Context, g *grid.Grid, lessons []model.Lesson) (int, error) {
	placed := 0
	for _, lesson := range engine.evaluator.Input().Prioritize(lessons) {
		if err := ctx.Err(); err != nil {
			return placed, err
		}
		before := g.PlacedHours(lesson.Id)
		if before >= lesson.WeeklyHours {
			continue
		}

		hard := engine.evaluator.CountHard(g)
		backup := g.SnapshotClass(lesson.ClassId)
		_, _ = block.PlaceWithPolicy(engine.placer, lesson, g, block.PolicyFallback)
		if engine.evaluator.CountHard(g) > hard {
			_ = g.Restore(backup)
			continue
		}
		placed += g.PlacedHours(lesson.Id) - before
	}

	engine.logger.Debug("stabilize finished", zap.Int("placed", placed))
	return placed, nil
}
