package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/samber/lo"

	"github.com/limaJavier/weektable/pkg/constraint"
	"github.com/limaJavier/weektable/pkg/model"
	"github.com/limaJavier/weektable/pkg/optimizer"
	"github.com/limaJavier/weektable/pkg/solver"
)

const sequence = "sequence"

type TestMetadata struct {
	Name          string `csv:"test"`
	Classes       int    `csv:"classes"`
	Teachers      int    `csv:"teachers"`
	Lessons       int    `csv:"lessons"`
	RequiredHours int    `csv:"requiredHours"`
}

type BenchmarkResult struct {
	Optimizer string `csv:"optimizer"`
	TestMetadata
	Seed         int64   `csv:"seed"`
	Duration     int64   `csv:"duration(ms)"`
	Fitness      float64 `csv:"fitness"`
	Hard         int     `csv:"hard"`
	Soft         int     `csv:"soft"`
	MissingHours int     `csv:"missingHours"`
	Success      bool    `csv:"success"`
}

// Summary aggregates the runs of one optimizer over every test and seed.
type Summary struct {
	Optimizer    string  `csv:"optimizer"`
	Runs         int     `csv:"runs"`
	Successes    int     `csv:"successes"`
	MeanFitness  float64 `csv:"meanFitness"`
	MeanDuration float64 `csv:"meanDuration(ms)"`
	MeanHard     float64 `csv:"meanHard"`
}

func main() {
	directory := flag.String("dir", "../../pkg/solver/testdata", "directory of input JSON files")
	out := flag.String("out", "benchmark_results.csv", "file the per-run results are written to")
	seeds := flag.Int("seeds", 3, "number of seeds per optimizer and test")
	iterations := flag.Int("iterations", 200, "maximum iterations before scaling by power")
	power := flag.Int("power", 5, "algorithm power between 1 and 10")
	flag.Parse()

	tests, inputs := getTests(*directory)
	candidates := append(slices.Clone(optimizer.DefaultSequence), sequence)
	results := make([]BenchmarkResult, 0, len(tests)*len(candidates)*(*seeds))

	for i, test := range tests {
		s := solver.New(inputs[i], solver.DefaultDependencies())
		for _, candidate := range candidates {
			for seed := int64(1); seed <= int64(*seeds); seed++ {
				fmt.Printf("Benchmarking test \"%v\" with optimizer \"%v\" and seed %v\n", test.Name, candidate, seed)
				results = append(results, measure(s, test, candidate, seed, *iterations, *power))
			}
		}
	}

	toCsv(results, *out)
	summaries, err := gocsv.MarshalString(lo.ToPtr(summarize(results)))
	if err != nil {
		log.Fatalf("cannot build summary: %v", err)
	}
	fmt.Print(summaries)
}

func getTests(directory string) ([]TestMetadata, []model.ModelInput) {
	files, err := os.ReadDir(directory)
	if err != nil {
		log.Fatalf("cannot read directory: %v", err)
	}

	tests := make([]TestMetadata, 0, len(files))
	inputs := make([]model.ModelInput, 0, len(files))
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		filename := filepath.Join(directory, file.Name())
		input, err := model.InputFromJson(filename)
		if err != nil {
			log.Fatalf("cannot parse input file: %v", err)
		}

		tests = append(tests, TestMetadata{
			Name:          filename,
			Classes:       len(input.Classes),
			Teachers:      len(input.Teachers),
			Lessons:       len(input.Lessons),
			RequiredHours: input.RequiredHours(),
		})
		inputs = append(inputs, input)
	}
	return tests, inputs
}

// measure runs one solve with a single optimizer, or with the whole default
// sequence when candidate is "sequence".
func measure(s *solver.Solver, test TestMetadata, candidate string, seed int64, iterations, power int) BenchmarkResult {
	options := solver.DefaultOptions()
	options.MaxIterations = iterations
	options.AlgorithmPower = power
	options.Seed = seed
	if candidate != sequence {
		options.Algorithms = []string{candidate}
	}

	start := time.Now()
	result, err := s.Solve(context.Background(), options)
	if err != nil {
		log.Fatalf("an error occurred at test \"%v\" using optimizer \"%v\": %v", test.Name, candidate, err)
	}

	return BenchmarkResult{
		Optimizer:    candidate,
		TestMetadata: test,
		Seed:         seed,
		Duration:     time.Since(start).Milliseconds(),
		Fitness:      result.Fitness.Total,
		Hard:         result.Fitness.HardViolations,
		Soft:         result.Fitness.SoftViolations,
		MissingHours: lo.SumBy(result.MissingLessons, func(missing constraint.MissingLesson) int { return missing.Hours() }),
		Success:      result.Success,
	}
}

func summarize(results []BenchmarkResult) []Summary {
	byOptimizer := lo.GroupBy(results, func(result BenchmarkResult) string { return result.Optimizer })
	names := lo.Keys(byOptimizer)
	slices.Sort(names)

	return lo.Map(names, func(name string, _ int) Summary {
		runs := byOptimizer[name]
		count := float64(len(runs))
		return Summary{
			Optimizer:    name,
			Runs:         len(runs),
			Successes:    lo.CountBy(runs, func(run BenchmarkResult) bool { return run.Success }),
			MeanFitness:  lo.SumBy(runs, func(run BenchmarkResult) float64 { return run.Fitness }) / count,
			MeanDuration: float64(lo.SumBy(runs, func(run BenchmarkResult) int64 { return run.Duration })) / count,
			MeanHard:     float64(lo.SumBy(runs, func(run BenchmarkResult) int { return run.Hard })) / count,
		}
	})
}

func toCsv(results []BenchmarkResult, path string) {
	file, err := os.Create(path)
	if err != nil {
		log.Panicf("cannot create CSV file: %v", err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(&results, file); err != nil {
		log.Panicf("cannot write CSV records: %v", err)
	}
}
