package experiments

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"qwop/engine"
	"qwop/experiments/metrics"
	"qwop/game"
	"qwop/searcher"
)

const (
	ParallelGames   = 2000 // Per stage
	ParallelRepeats = 3
)

var ParallelWorkers = []int{1, 2, 4, 8, 16, 32}

// Sweep runs one stage per worker count and repeat on a fresh tree.
type Sweep struct {
	// Root is the output directory, "experiments" if empty.
	Root      string
	Workers   []int
	Repeats   int
	Generator game.Generator
	NewEngine func() engine.Engine
	Seed      uint64
}

func (s *Sweep) setDefaults() {
	if len(s.Workers) == 0 {
		s.Workers = ParallelWorkers
	}
	if s.Repeats < 1 {
		s.Repeats = ParallelRepeats
	}
	if s.Generator == nil {
		s.Generator = game.DefaultGenerator()
	}
	if s.NewEngine == nil {
		s.NewEngine = func() engine.Engine { return engine.NewLocalEngine() }
	}
}

// RunParallelization measures how search throughput scales with workers: a
// UCB stage plays a fixed number of games for every worker count. Results go
// to <root>/parallel/<timestamp>; the directory is returned.
func RunParallelization(ctx context.Context, sweep Sweep, games int) (string, error) {
	if games < 1 {
		games = ParallelGames
	}
	stage := func(name string, workers int, seed uint64) *searcher.Stage {
		sampler := searcher.NewUCBSampler(searcher.EvaluateDistance(),
			searcher.NewDeltaScoreRollout(searcher.EvaluateDistance(), nil, 200), seed)
		return searcher.NewStage(name, searcher.FixedGames{Games: games}, sampler,
			searcher.WithWorkers(workers),
			searcher.WithSeed(seed),
			searcher.WithEngineFactory(sweep.NewEngine),
			searcher.WithMetrics(metrics.NewCollector()))
	}
	return runExperiment(ctx, "parallel", sweep, metrics.Setup{Games: games}, stage)
}

// RunThroughput measures simulated timesteps per second: random samplers
// search for a fixed wall-clock duration for every worker count.
func RunThroughput(ctx context.Context, sweep Sweep, duration time.Duration) (string, error) {
	if duration <= 0 {
		duration = 10 * time.Second
	}
	stage := func(name string, workers int, seed uint64) *searcher.Stage {
		return searcher.NewStage(name, searcher.SearchForever{}, searcher.NewDistributionSampler(seed),
			searcher.WithWorkers(workers),
			searcher.WithSeed(seed),
			searcher.WithDuration(duration),
			searcher.WithEngineFactory(sweep.NewEngine),
			searcher.WithMetrics(metrics.NewCollector()))
	}
	return runExperiment(ctx, "throughput", sweep, metrics.Setup{StageDuration: duration}, stage)
}

func runExperiment(ctx context.Context, name string, sweep Sweep, setup metrics.Setup,
	newStage func(name string, workers int, seed uint64) *searcher.Stage) (string, error) {
	sweep.setDefaults()
	setup.Workers = sweep.Workers
	setup.Repeats = sweep.Repeats
	setup.StartTime = time.Now()

	log.Info().Msgf("starting %s experiment...", name)

	var results []metrics.StageMetric
	total := len(sweep.Workers) * sweep.Repeats
	for wi, workers := range sweep.Workers {
		for r := 0; r < sweep.Repeats; r++ {
			if err := ctx.Err(); err != nil {
				return "", fmt.Errorf("%s experiment interrupted: %w", name, err)
			}
			run := wi*sweep.Repeats + r + 1
			seed := sweep.Seed + uint64(run)*1000
			root := searcher.NewRoot(sweep.NewEngine().CurrentState(), sweep.Generator)
			stage := newStage(fmt.Sprintf("%s_w%d_r%d", name, workers, r), workers, seed)

			log.Info().Msgf("starting run %d of %d with %d workers...", run, total, workers)
			if _, err := stage.Run(ctx, root); err != nil {
				return "", fmt.Errorf("failed run %d of %s experiment: %w", run, name, err)
			}
			m := stage.Metric()
			results = append(results, m)
			log.Info().Msgf("completed run %d of %d: %d games, %d timesteps in %s",
				run, total, m.Games, m.Timesteps, m.Duration.Round(time.Millisecond))
		}
	}
	setup.EndTime = time.Now()

	log.Info().Msgf("completed %s experiment", name)

	writer, err := metrics.NewWriter(sweep.Root, name)
	if err != nil {
		return "", fmt.Errorf("failed to create experiment writer: %w", err)
	}
	if err := writer.WriteSetup(setup); err != nil {
		return "", fmt.Errorf("failed to store experiment setup: %w", err)
	}
	log.Info().Msg("stored experiment setup")

	path, err := writer.WriteStageMetrics(results)
	if err != nil {
		return "", fmt.Errorf("failed to store stage metrics: %w", err)
	}
	log.Info().Str("path", path).Msg("stored stage metrics")
	return writer.Dir(), nil
}
