package main

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/samber/lo"

	"github.com/limaJavier/weektable/pkg/grid"
	"github.com/limaJavier/weektable/pkg/model"
	"github.com/limaJavier/weektable/pkg/solver"
)

var Days = map[int]string{
	1: "Monday",
	2: "Tuesday",
	3: "Wednesday",
	4: "Thursday",
	5: "Friday",
	6: "Saturday",
	7: "Sunday",
}

// timetableRow is one placed hour of one class.
type timetableRow struct {
	ClassId  string `json:"-" csv:"class"`
	Day      int    `json:"day" csv:"day"`
	DayName  string `json:"dayName" csv:"dayName"`
	Hour     int    `json:"hour" csv:"hour"`
	LessonId string `json:"lessonId" csv:"lesson"`
	Subject  string `json:"subject" csv:"subject"`
	Teachers string `json:"teachers" csv:"teachers"`
	Block    int    `json:"block" csv:"block"`
	Locked   bool   `json:"locked" csv:"locked"`
}

type jsonOutput struct {
	Result    solver.SolveResult        `json:"result"`
	Timetable map[string][]timetableRow `json:"timetable"`
}

func render(format string, input model.ModelInput, result solver.SolveResult) (string, error) {
	rows := timetableRows(result.Grid)
	switch strings.ToLower(format) {
	case "json":
		output := jsonOutput{
			Result:    result,
			Timetable: lo.GroupBy(rows, func(row timetableRow) string { return row.ClassId }),
		}
		for _, class := range input.Classes {
			if _, ok := output.Timetable[class.Id]; !ok {
				output.Timetable[class.Id] = []timetableRow{}
			}
		}
		bytes, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return "", err
		}
		return string(bytes), nil
	case "csv":
		return gocsv.MarshalString(&rows)
	default:
		return "", fmt.Errorf("unknown output format %q", format)
	}
}

// timetableRows lists the placed hours ordered by class, day and hour.
func timetableRows(g *grid.Grid) []timetableRow {
	if g == nil {
		return []timetableRow{}
	}
	rows := lo.Map(g.Slots(), func(slot grid.Slot, _ int) timetableRow {
		return timetableRow{
			ClassId:  slot.ClassId,
			Day:      slot.Day,
			DayName:  Days[slot.Day],
			Hour:     slot.Hour,
			LessonId: slot.LessonId,
			Subject:  slot.Subject,
			Teachers: strings.Join(slot.TeacherIds, "|"),
			Block:    slot.Block.Index,
			Locked:   g.IsLocked(slot.ClassId, slot.Day, slot.Hour),
		}
	})
	slices.SortFunc(rows, func(a, b timetableRow) int {
		if classComparison := strings.Compare(a.ClassId, b.ClassId); classComparison != 0 {
			return classComparison
		}
		if a.Day != b.Day {
			return a.Day - b.Day
		}
		return a.Hour - b.Hour
	})
	return rows
}
