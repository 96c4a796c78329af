package block

import (
	"cmp"
	"math/rand"
	"slices"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/limaJavier/weektable/pkg/config"
	"github.com/limaJavier/weektable/pkg/constraint"
	"github.com/limaJavier/weektable/pkg/grid"
	"github.com/limaJavier/weektable/pkg/model"

	appErrors "github.com/limaJavier/weektable/pkg/errors"
)

// Candidate is a legal window for one block: a contiguous run of Size hours
// starting at Start on Day.
type Candidate struct {
	Day    int
	Start  int
	Size   int
	Score  float64
	Result constraint.ValidationResult
}

// Scoring weighs the window heuristics.
type Scoring struct {
	TopN              int
	MorningWeight     float64
	BalanceWeight     float64
	GapPenalty        float64
	MondayBonus       float64
	FridayPenalty     float64
	PreferenceWeight  float64
	TeacherLoadWeight float64
	RuleBonus         float64
}

func DefaultScoring() Scoring {
	return Scoring{
		TopN:              3,
		MorningWeight:     10,
		BalanceWeight:     4,
		GapPenalty:        15,
		MondayBonus:       5,
		FridayPenalty:     5,
		PreferenceWeight:  0.2,
		TeacherLoadWeight: 3,
		RuleBonus:         8,
	}
}

func ScoringFromConfig(cfg config.BlockConfig) Scoring {
	return Scoring{
		TopN:              cfg.TopN,
		MorningWeight:     cfg.MorningWeight,
		BalanceWeight:     cfg.BalanceWeight,
		GapPenalty:        cfg.GapPenalty,
		MondayBonus:       cfg.MondayBonus,
		FridayPenalty:     cfg.FridayPenalty,
		PreferenceWeight:  cfg.PreferenceWeight,
		TeacherLoadWeight: cfg.TeacherLoadWeight,
		RuleBonus:         cfg.RuleBonus,
	}
}

// PlacementFailure records a block that found no legal window.
type PlacementFailure struct {
	LessonId   string
	ClassId    string
	BlockIndex int
	Size       int
	Reason     string
}

// Placer places lessons block by block as contiguous runs.
type Placer interface {
	// Candidates returns every legal window of the block, best first.
	Candidates(lesson model.Lesson, blockIndex int, grid *grid.Grid) []Candidate
	// Select picks one of the best candidates at random, weighted by score.
	Select(candidates []Candidate) (Candidate, bool)
	// PlaceBlock places one block of the lesson in a selected window.
	PlaceBlock(lesson model.Lesson, blockIndex int, grid *grid.Grid) (Candidate, error)
	// PlaceLesson places every block of the lesson not yet in the grid,
	// largest first, never beyond the weekly hours, and reports the blocks
	// that could not be placed.
	PlaceLesson(lesson model.Lesson, grid *grid.Grid) []PlacementFailure
	// PlaceHour places a single hour of the lesson outside its block structure.
	PlaceHour(lesson model.Lesson, grid *grid.Grid) (grid.Cell, error)
	Evaluator() constraint.Evaluator
}

func NewPlacer(evaluator constraint.Evaluator, scoring Scoring, rng *rand.Rand, logger *zap.Logger) Placer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scoring.TopN < 1 {
		scoring.TopN = 1
	}
	return &placerImplementation{
		evaluator: evaluator,
		scoring:   scoring,
		rng:       rng,
		logger:    logger,
	}
}

type placerImplementation struct {
	evaluator constraint.Evaluator
	scoring   Scoring
	rng       *rand.Rand
	logger    *zap.Logger
}

func (placer *placerImplementation) Evaluator() constraint.Evaluator {
	return placer.evaluator
}

func (placer *placerImplementation) Candidates(lesson model.Lesson, blockIndex int, g *grid.Grid) []Candidate {
	size := lesson.BlockSize(blockIndex)
	if size == 0 {
		size = 1
	}
	return placer.candidates(lesson, blockIndex, size, g)
}

func (placer *placerImplementation) candidates(lesson model.Lesson, blockIndex, size int, g *grid.Grid) []Candidate {
	candidates := make([]Candidate, 0)
	for day := 1; day <= g.Days(); day++ {
		for start := 1; start+size-1 <= g.Hours(); start++ {
			result := placer.evaluator.ValidateRun(lesson, lesson.ClassId, day, start, blockIndex, size, g)
			if !result.Valid {
				continue
			}
			candidates = append(candidates, Candidate{
				Day:    day,
				Start:  start,
				Size:   size,
				Score:  placer.score(lesson, blockIndex, day, start, size, result, g),
				Result: result,
			})
		}
	}

	slices.SortStableFunc(candidates, func(a, b Candidate) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return candidates
}

// score rates a legal window. Higher is better.
func (placer *placerImplementation) score(lesson model.Lesson, blockIndex, day, start, size int, result constraint.ValidationResult, g *grid.Grid) float64 {
	scoring := placer.scoring
	score := 0.0

	//** Morning preference
	score += scoring.MorningWeight * float64(g.Hours()-start+1) / float64(g.Hours())

	//** Class daily load balance
	score -= scoring.BalanceWeight * float64(g.ClassDailyLoad(lesson.ClassId, day))

	//** Gaps created or filled around the run
	before := g.ClassDayHours(lesson.ClassId, day)
	after := slices.Clone(before)
	for hour := start; hour < start+size; hour++ {
		after = append(after, hour)
	}
	slices.Sort(after)
	score -= scoring.GapPenalty * float64(grid.CountGaps(after)-grid.CountGaps(before))

	//** Weekday
	switch day {
	case 1:
		score += scoring.MondayBonus
	case g.Days():
		score -= scoring.FridayPenalty
	}

	//** Teacher preferences
	score += scoring.PreferenceWeight * placer.evaluator.CalculateViolationScore(result)

	//** Teacher load balance
	if len(lesson.TeacherIds) > 0 {
		load := lo.SumBy(lesson.TeacherIds, func(teacherId string) int { return g.TeacherDailyLoad(teacherId, day) })
		score -= scoring.TeacherLoadWeight * float64(load) / float64(len(lesson.TeacherIds))
	}

	//** Special rule
	if constraint.IsStructural(lesson, blockIndex) {
		if placer.evaluator.Rules().Rule(lesson) != model.RuleNone {
			score += scoring.RuleBonus
		}
	} else if lo.Contains(lo.Values(g.LessonDays(lesson.Id)), day) {
		// Spread fallback hours over days the lesson does not use yet
		score -= scoring.GapPenalty
	}

	return score
}

func (placer *placerImplementation) Select(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	top := candidates[:min(placer.scoring.TopN, len(candidates))]
	if len(top) == 1 || placer.rng == nil {
		return top[0], true
	}

	// Shift scores so the worst of the top gets a small positive weight
	floor := lo.MinBy(top, func(a, b Candidate) bool { return a.Score < b.Score }).Score
	weights := lo.Map(top, func(candidate Candidate, _ int) float64 { return candidate.Score - floor + 1 })
	total := lo.Sum(weights)

	pick := placer.rng.Float64() * total
	for i, weight := range weights {
		if pick < weight {
			return top[i], true
		}
		pick -= weight
	}
	return top[len(top)-1], true
}

func (placer *placerImplementation) PlaceBlock(lesson model.Lesson, blockIndex int, g *grid.Grid) (Candidate, error) {
	candidate, ok := placer.Select(placer.Candidates(lesson, blockIndex, g))
	if !ok {
		return Candidate{}, appErrors.Clonef(appErrors.ErrPlacementFailed, "no legal window for block %v (%v hours) of %v", blockIndex, lesson.BlockSize(blockIndex), lesson.Id)
	}
	return candidate, placer.placeRun(lesson, blockIndex, candidate, g)
}

// placeRun writes the candidate into the grid, all hours or none.
func (placer *placerImplementation) placeRun(lesson model.Lesson, blockIndex int, candidate Candidate, g *grid.Grid) error {
	cells := make([]grid.Cell, candidate.Size)
	for position, n := 0, candidate.Size; position < n; position++ {
		cells[position] = grid.Cell{ClassId: lesson.ClassId, Day: candidate.Day, Hour: candidate.Start + position}
	}
	backup := g.Snapshot(cells...)

	for position, n := 0, candidate.Size; position < n; position++ {
		meta := grid.BlockMeta{Index: blockIndex, Position: position, Size: candidate.Size}
		if err := g.Place(lesson, lesson.ClassId, candidate.Day, candidate.Start+position, meta); err != nil {
			_ = g.Restore(backup)
			return err
		}
	}
	return nil
}

func (placer *placerImplementation) PlaceLesson(lesson model.Lesson, g *grid.Grid) []PlacementFailure {
	placed := g.PlacedBlocks(lesson.Id)
	pending := lo.Filter(lo.Range(len(lesson.BlockStructure)), func(index int, _ int) bool {
		return !slices.Contains(placed, index)
	})
	slices.SortStableFunc(pending, func(a, b int) int {
		return cmp.Compare(lesson.BlockStructure[b], lesson.BlockStructure[a])
	})

	failures := make([]PlacementFailure, 0)
	for i, index := range pending {
		// Manual hours may already cover part of the lesson
		if g.PlacedHours(lesson.Id)+lesson.BlockStructure[index] > lesson.WeeklyHours {
			continue
		}
		if err := placer.placeLookingAhead(lesson, index, pending[i+1:], g); err != nil {
			placer.logger.Debug("block placement failed",
				zap.String("lesson", lesson.Id),
				zap.Int("block", index),
				zap.Error(err),
			)
			failures = append(failures, PlacementFailure{
				LessonId:   lesson.Id,
				ClassId:    lesson.ClassId,
				BlockIndex: index,
				Size:       lesson.BlockStructure[index],
				Reason:     err.Error(),
			})
		}
	}
	return failures
}

// placeLookingAhead places the block in a window whose day still leaves room
// for the blocks placed after it, when such a window exists.
func (placer *placerImplementation) placeLookingAhead(lesson model.Lesson, blockIndex int, rest []int, g *grid.Grid) error {
	candidates := placer.Candidates(lesson, blockIndex, g)
	if len(rest) > 0 && len(candidates) > 0 {
		open := placer.windowDays(lesson, rest, g)
		feasible := lo.Filter(candidates, func(candidate Candidate, _ int) bool {
			return placer.leavesRoom(lesson, candidate.Day, len(rest), open, g)
		})
		if len(feasible) > 0 {
			candidates = feasible
		}
	}

	candidate, ok := placer.Select(candidates)
	if !ok {
		return appErrors.Clonef(appErrors.ErrPlacementFailed, "no legal window for block %v (%v hours) of %v", blockIndex, lesson.BlockSize(blockIndex), lesson.Id)
	}
	return placer.placeRun(lesson, blockIndex, candidate, g)
}

// windowDays returns the days holding a legal window for the smallest of the
// given blocks.
func (placer *placerImplementation) windowDays(lesson model.Lesson, blocks []int, g *grid.Grid) []int {
	smallest := lo.MinBy(blocks, func(a, b int) bool { return lesson.BlockSize(a) < lesson.BlockSize(b) })
	size := lesson.BlockSize(smallest)
	return lo.Filter(lo.RangeFrom(1, g.Days()), func(day int, _ int) bool {
		return lo.SomeBy(lo.RangeFrom(1, g.Hours()-size+1), func(start int) bool {
			return placer.evaluator.ValidateRun(lesson, lesson.ClassId, day, start, smallest, size, g).Valid
		})
	})
}

// leavesRoom reports whether count more blocks fit on the open days once the
// lesson also uses day, keeping the minimum day gap between every pair.
func (placer *placerImplementation) leavesRoom(lesson model.Lesson, day, count int, open []int, g *grid.Grid) bool {
	gap := placer.evaluator.Rules().MinDayGap(lesson)
	used := []int{day}
	for blockIndex, usedDay := range g.LessonDays(lesson.Id) {
		if constraint.IsStructural(lesson, blockIndex) {
			used = append(used, usedDay)
		}
	}

	last, fitted := -gap, 0
	for _, candidate := range open {
		tooClose := lo.SomeBy(used, func(usedDay int) bool { return abs(candidate-usedDay) < gap })
		if tooClose || candidate-last < gap {
			continue
		}
		last = candidate
		fitted++
	}
	return fitted >= count
}

func abs(value int) int {
	if value < 0 {
		return -value
	}
	return value
}

func (placer *placerImplementation) PlaceHour(lesson model.Lesson, g *grid.Grid) (grid.Cell, error) {
	index := NextFallbackIndex(lesson, g)
	candidate, ok := placer.Select(placer.candidates(lesson, index, 1, g))
	if !ok {
		return grid.Cell{}, appErrors.Clonef(appErrors.ErrPlacementFailed, "no legal hour left for %v", lesson.Id)
	}
	if err := placer.placeRun(lesson, index, candidate, g); err != nil {
		return grid.Cell{}, err
	}
	return grid.Cell{ClassId: lesson.ClassId, Day: candidate.Day, Hour: candidate.Start}, nil
}

// NextFallbackIndex returns the first block index past both the lesson's block
// structure and every block already in the grid.
func NextFallbackIndex(lesson model.Lesson, g *grid.Grid) int {
	next := len(lesson.BlockStructure)
	if placed := g.PlacedBlocks(lesson.Id); len(placed) > 0 {
		next = max(next, placed[len(placed)-1]+1)
	}
	return next
}
