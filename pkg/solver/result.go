package solver

import (
	"time"

	"github.com/limaJavier/weektable/pkg/constraint"
	"github.com/limaJavier/weektable/pkg/fitness"
	"github.com/limaJavier/weektable/pkg/grid"
	"github.com/limaJavier/weektable/pkg/optimizer"
	"github.com/limaJavier/weektable/pkg/repair"
)

// SolveResult is the summary handed to callers together with the final grid.
type SolveResult struct {
	RunId                string                    `json:"runId"`
	Success              bool                      `json:"success"`
	Fitness              fitness.Score             `json:"fitness"`
	ViolationsBySeverity map[string]int            `json:"violationsBySeverity"`
	Violations           []constraint.Violation    `json:"violations"`
	MissingLessons       []constraint.MissingLesson `json:"missingLessons"`
	DurationMs           int64                     `json:"durationMs"`
	Statistics           []optimizer.Statistics    `json:"statistics"`
	RepairAttempts       []repair.Attempt          `json:"repairAttempts,omitempty"`
	Warnings             []string                  `json:"warnings"`
	Grid                 *grid.Grid                `json:"-"`
}

// summarize turns the final state into a result. A run succeeds when every
// stage it needed finished and the grid has no HARD violation.
func (solver *Solver) summarize(runId string, state State, duration time.Duration, err error) SolveResult {
	if state.Grid == nil {
		state.Grid = grid.FromInput(state.Input)
	}
	report := state.Report
	score := state.Fitness
	if err != nil || report.BySeverity == nil {
		report = solver.evaluator.Scan(state.Grid)
		score = fitness.FromReport(solver.engine, state.Grid, report)
	}

	return SolveResult{
		RunId:                runId,
		Success:              err == nil && report.HardCount() == 0,
		Fitness:              score,
		ViolationsBySeverity: report.Counts(),
		Violations:           report.Violations,
		MissingLessons:       report.Missing,
		DurationMs:           duration.Milliseconds(),
		Statistics:           state.Statistics,
		RepairAttempts:       state.Repair.Attempts,
		Warnings:             state.Warnings,
		Grid:                 state.Grid,
	}
}
