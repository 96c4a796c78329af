package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/limaJavier/weektable/pkg/block"
	"github.com/limaJavier/weektable/pkg/config"
	"github.com/limaJavier/weektable/pkg/logger"
	"github.com/limaJavier/weektable/pkg/metrics"
	"github.com/limaJavier/weektable/pkg/model"
	"github.com/limaJavier/weektable/pkg/optimizer"
	"github.com/limaJavier/weektable/pkg/progress"
	"github.com/limaJavier/weektable/pkg/solver"
)

// Exit codes read by the benchmark.
const (
	exitSolved   = 10
	exitUnsolved = 20
)

var (
	inputFile   string
	outFile     string
	format      string
	metricsFile string
	iterations  int
	power       int
	seed        int64
	parallel    int
	algorithms  string
	policy      string
	noRepair    bool
	noStabilize bool
	adaptive    bool
)

func main() {
	cmdRoot := &cobra.Command{
		Use:   "weektable",
		Short: "Weekly school timetable builder",
		Long: "Builds a weekly timetable for every class from teachers, lessons and manual placements,\n" +
			"then improves it with a sequence of metaheuristics and repairs what is left",
	}
	cmdRoot.PersistentFlags().StringVarP(&inputFile, "file", "f", "", "path to the input JSON file")

	cmdSolve := &cobra.Command{
		Use:   "solve",
		Short: "build and optimize a timetable",
		Run:   commandSolve,
	}
	cmdSolve.Flags().StringVarP(&outFile, "out", "o", "", "file to write the timetable to; standard output when empty")
	cmdSolve.Flags().StringVar(&format, "format", "json", "output format, \"json\" or \"csv\"")
	cmdSolve.Flags().StringVar(&metricsFile, "metrics", "", "file to write the run metrics to in Prometheus text format")
	cmdSolve.Flags().IntVarP(&iterations, "iterations", "i", 0, "maximum iterations per optimizer before scaling by power")
	cmdSolve.Flags().IntVarP(&power, "power", "p", 0, "algorithm power between 1 and 10")
	cmdSolve.Flags().Int64VarP(&seed, "seed", "s", 0, "random seed; the configured seed when 0")
	cmdSolve.Flags().IntVar(&parallel, "parallel", 0, "number of concurrent optimization workers")
	cmdSolve.Flags().StringVarP(&algorithms, "algorithms", "a", "", fmt.Sprintf("comma-separated optimizers to run, from %v", strings.Join(optimizer.DefaultSequence, ", ")))
	cmdSolve.Flags().StringVar(&policy, "policy", "", "what to do with a block that cannot be placed: skip, fallback or abort")
	cmdSolve.Flags().BoolVar(&noRepair, "no-repair", false, "skip the repair stage")
	cmdSolve.Flags().BoolVar(&noStabilize, "no-stabilize", false, "skip the stabilize stage")
	cmdSolve.Flags().BoolVar(&adaptive, "adaptive", false, "reorder optimizers by their average gain after the first pass")
	cmdRoot.AddCommand(cmdSolve)

	cmdValidate := &cobra.Command{
		Use:   "validate",
		Short: "check an input file and report lessons short of legal hours",
		Run:   commandValidate,
	}
	cmdRoot.AddCommand(cmdValidate)

	if err := cmdRoot.Execute(); err != nil {
		os.Exit(1)
	}
}

func commandSolve(cmd *cobra.Command, args []string) {
	cfg, log := setup()
	defer log.Sync()

	input := readInput()
	options, err := solveOptions(cfg)
	if err != nil {
		log.Fatal("invalid options", zap.Error(err))
	}

	recorder := metrics.NewRecorder()
	dependencies := solver.DependenciesFromConfig(cfg)
	dependencies.Logger = log
	dependencies.Recorder = recorder
	dependencies.Control = progress.NewControl()
	dependencies.Observer = progress.ObserverFunc(func(event progress.Event) {
		log.Debug("progress",
			zap.String("stage", event.Stage),
			zap.String("optimizer", event.Optimizer),
			zap.Int("iteration", event.Iteration),
			zap.Int("total", event.Total),
			zap.Float64("best", event.BestFitness),
		)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := solver.New(input, dependencies).Solve(ctx, options)
	if err != nil && result.Grid == nil {
		log.Fatal("solve failed", zap.Error(err))
	}
	if err != nil {
		log.Error("solve did not finish, writing the partial timetable", zap.Error(err))
	}

	output, err := render(format, input, result)
	if err != nil {
		log.Fatal("cannot render the timetable", zap.Error(err))
	}
	if outFile == "" {
		fmt.Println(output)
	} else if err := os.WriteFile(outFile, []byte(output), 0666); err != nil {
		log.Fatal("cannot write the output file", zap.Error(err))
	}

	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, recorder.Registry()); err != nil {
			log.Error("cannot write metrics", zap.Error(err))
		}
	}

	log.Sync()
	if !result.Success {
		os.Exit(exitUnsolved)
	}
	os.Exit(exitSolved)
}

func commandValidate(cmd *cobra.Command, args []string) {
	cfg, log := setup()
	defer log.Sync()

	input := readInput()
	dependencies := solver.DependenciesFromConfig(cfg)
	dependencies.Logger = log
	s := solver.New(input, dependencies)

	options, err := solver.OptionsFromConfig(cfg.Solver)
	if err != nil {
		log.Fatal("invalid options", zap.Error(err))
	}
	pipeline := s.NewPipeline(options)
	for _, name := range pipeline.Names() {
		if name != solver.StagePreprocessing {
			_ = pipeline.Remove(name)
		}
	}

	result, err := s.Run(context.Background(), pipeline)
	if err != nil {
		log.Fatal("validation failed", zap.Error(err))
	}

	capacity := input.Days * input.Hours
	fmt.Printf("Classes: %v\n", len(input.Classes))
	fmt.Printf("Teachers: %v\n", len(input.Teachers))
	fmt.Printf("Lessons: %v\n", len(input.Lessons))
	fmt.Printf("Manual placements: %v\n", len(input.ManualPlacements))
	for _, class := range input.Classes {
		required := 0
		for _, lesson := range input.Lessons {
			if lesson.ClassId == class.Id {
				required += lesson.WeeklyHours
			}
		}
		fmt.Printf("Class %v: %v of %v hours required\n", class.Id, required, capacity)
	}
	for _, warning := range result.Warnings {
		fmt.Printf("Warning: %v\n", warning)
	}
}

//** Helpers

func setup() (*config.Config, *zap.Logger) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("cannot load configuration: %v", err)
	}
	zapLogger, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("cannot build logger: %v", err)
	}
	return cfg, zapLogger
}

func readInput() model.ModelInput {
	if inputFile == "" {
		log.Fatal("an input file must be specified")
	}
	input, err := model.InputFromJson(inputFile)
	if err != nil {
		log.Fatalf("cannot parse input file: %v", err)
	}
	return input
}

// solveOptions layers the command line flags over the configured defaults.
func solveOptions(cfg *config.Config) (solver.Options, error) {
	options, err := solver.OptionsFromConfig(cfg.Solver)
	if err != nil {
		return solver.Options{}, err
	}
	if iterations > 0 {
		options.MaxIterations = iterations
	}
	if power > 0 {
		options.AlgorithmPower = power
	}
	if seed != 0 {
		options.Seed = seed
	}
	if parallel > 0 {
		options.Parallel = parallel
	}
	if algorithms != "" {
		options.Algorithms = strings.Split(algorithms, ",")
		for i := range options.Algorithms {
			options.Algorithms[i] = strings.TrimSpace(options.Algorithms[i])
		}
	}
	if policy != "" {
		parsed, err := block.ParseFailurePolicy(policy)
		if err != nil {
			return solver.Options{}, err
		}
		options.FailurePolicy = parsed
	}
	if noRepair {
		options.EnableRepair = false
	}
	if noStabilize {
		options.EnableStabilize = false
	}
	if adaptive {
		options.Adaptive = true
	}
	return options, options.Validate()
}
