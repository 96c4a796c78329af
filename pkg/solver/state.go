package solver

import (
	"maps"
	"slices"

	"github.com/limaJavier/weektable/pkg/block"
	"github.com/limaJavier/weektable/pkg/constraint"
	"github.com/limaJavier/weektable/pkg/fitness"
	"github.com/limaJavier/weektable/pkg/grid"
	"github.com/limaJavier/weektable/pkg/model"
	"github.com/limaJavier/weektable/pkg/optimizer"
	"github.com/limaJavier/weektable/pkg/repair"
)

// State is what flows from stage to stage.
type State struct {
	Input   model.ModelInput
	Lessons []model.Lesson // In placement priority once preprocessed
	Domains map[string][]model.TimeSlot
	Grid    *grid.Grid

	Failures   []block.PlacementFailure
	Statistics []optimizer.Statistics
	Repair     repair.Outcome
	Stabilized int

	Report   constraint.Report
	Fitness  fitness.Score
	Warnings []string
}

func NewState(input model.ModelInput) State {
	return State{
		Input:   input,
		Lessons: slices.Clone(input.Lessons),
		Domains: make(map[string][]model.TimeSlot),
		Grid:    grid.FromInput(input),
	}
}

// Clone copies everything a stage may mutate.
func (state State) Clone() State {
	clone := state
	clone.Lessons = slices.Clone(state.Lessons)
	clone.Domains = maps.Clone(state.Domains)
	if state.Grid != nil {
		clone.Grid = state.Grid.Clone()
	}
	clone.Failures = slices.Clone(state.Failures)
	clone.Statistics = slices.Clone(state.Statistics)
	clone.Repair.Attempts = slices.Clone(state.Repair.Attempts)
	clone.Repair.Remaining = slices.Clone(state.Repair.Remaining)
	clone.Report.Violations = slices.Clone(state.Report.Violations)
	clone.Report.Missing = slices.Clone(state.Report.Missing)
	clone.Report.BySeverity = maps.Clone(state.Report.BySeverity)
	clone.Warnings = slices.Clone(state.Warnings)
	return clone
}
