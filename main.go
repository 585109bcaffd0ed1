package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/muesli/termenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"qwop/config"
	"qwop/engine"
	"qwop/experiments"
	"qwop/saver"
	"qwop/searcher"
)

type options struct {
	configPath string
	workers    int
	importDir  string
	experiment string
	logLevel   string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "configs/default.yaml", "Path to the YAML search configuration")
	flag.IntVar(&opts.workers, "workers", 0, "Number of workers for every stage, overriding the configuration")
	flag.StringVar(&opts.importDir, "import", "", "Directory of saved runs to add to the tree before searching")
	flag.StringVar(&opts.experiment, "experiment", "", "Run an experiment instead of the configured stages: parallel or throughput")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level, overriding the configuration")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	if opts.experiment != "" {
		err = runExperiment(ctx, opts)
	} else {
		err = runSearch(ctx, opts)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("qwop search failed")
	}
}

func setLogLevel(level string) error {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}
	zerolog.SetGlobalLevel(l)
	return nil
}

func runExperiment(ctx context.Context, opts options) error {
	level := opts.logLevel
	if level == "" {
		level = zerolog.InfoLevel.String()
	}
	if err := setLogLevel(level); err != nil {
		return err
	}

	sweep := experiments.Sweep{}
	if opts.workers > 0 {
		sweep.Workers = []int{opts.workers}
	}
	var dir string
	var err error
	switch opts.experiment {
	case "parallel":
		dir, err = experiments.RunParallelization(ctx, sweep, 0)
	case "throughput":
		dir, err = experiments.RunThroughput(ctx, sweep, 0)
	default:
		return fmt.Errorf("unknown experiment %q", opts.experiment)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Results stored in %s\n", dir)
	return nil
}

func runSearch(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.workers > 0 {
		cfg.Machine.Workers = opts.workers
		for i := range cfg.Stages {
			cfg.Stages[i].Workers = opts.workers
		}
	}
	if opts.logLevel != "" {
		cfg.Machine.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	zerolog.SetGlobalLevel(cfg.LogLevel())

	rt, err := cfg.Build(nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Error().Err(err).Msg("failed to flush saved runs")
		}
	}()

	root := searcher.NewRoot(engine.InitialState(), rt.Generator)
	if opts.importDir != "" {
		runs, err := saver.ReadRunDir(opts.importDir)
		if err != nil {
			return err
		}
		report, err := searcher.ImportRuns(root, runs, rt.Generator)
		if err != nil {
			log.Warn().Err(err).Msg("some saved runs were not imported")
		}
		log.Info().Int("runs", report.Runs).Int("nodes", report.Created).Msg("seeded tree from saved runs")
	}

	var ran []*searcher.Stage
	current := root
	for _, stage := range rt.Stages {
		if ctx.Err() != nil {
			break
		}
		results, err := stage.Run(ctx, current)
		ran = append(ran, stage)
		if err != nil {
			log.Error().Err(err).Str("stage", stage.Name()).Msg("stage finished with worker failures")
		}
		current = nextRoot(current, results)
	}

	printSummary(ran, root)
	return nil
}

// nextRoot is where the following stage searches from: the stage's first
// result while there is still something to explore below it.
func nextRoot(current *searcher.Node, results []*searcher.Node) *searcher.Node {
	if len(results) == 0 {
		return current
	}
	next := results[0]
	if next.State().Failed || next.FullyExplored() {
		return current
	}
	return next
}

func printSummary(stages []*searcher.Stage, root *searcher.Node) {
	out := termenv.NewOutput(os.Stdout)
	fmt.Fprintln(out, out.String("Search summary").Bold())
	for _, s := range stages {
		m := s.Metric()
		status := out.String("ok").Foreground(out.Color("2"))
		if s.Err() != nil {
			status = out.String("failed").Foreground(out.Color("1"))
		}
		fmt.Fprintf(out, "  %-16s %-6s games=%-8d nodes=%-8d depth=%-4d %s\n",
			s.Name(), status, m.Games, m.Nodes, m.MaxDepth, m.Duration.Round(time.Millisecond))
	}

	best := root.BestLeaf(searcher.EvaluateDistance())
	distance := out.String(fmt.Sprintf("%.2f", best.State().CenterX())).Foreground(out.Color("6")).Bold()
	fmt.Fprintf(out, "Best distance %s at depth %d (%d nodes)\n", distance, best.Depth(), root.Size())
}
