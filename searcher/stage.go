package searcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"qwop/engine"
	"qwop/experiments/metrics"
)

const DefaultPollInterval = 500 * time.Millisecond

type StageOption func(s *Stage)

func WithWorkers(workers int) StageOption {
	return func(s *Stage) {
		s.workers = workers
	}
}

// WithDuration bounds the wall-clock time of the stage.
func WithDuration(duration time.Duration) StageOption {
	return func(s *Stage) {
		if duration > 0 {
			s.duration = duration
		}
	}
}

func WithSaver(saver DataSaver) StageOption {
	return func(s *Stage) {
		if saver != nil {
			s.saver = saver
		}
	}
}

func WithMetrics(collector metrics.Collector) StageOption {
	return func(s *Stage) {
		if collector != nil {
			s.metrics = collector
		}
	}
}

func WithEngineFactory(factory func() engine.Engine) StageOption {
	return func(s *Stage) {
		if factory != nil {
			s.newEngine = factory
		}
	}
}

// WithSeed sets the seed of the first worker's sampler. Worker i uses seed+i.
func WithSeed(seed uint64) StageOption {
	return func(s *Stage) {
		s.seed = seed
	}
}

func WithPollInterval(interval time.Duration) StageOption {
	return func(s *Stage) {
		if interval > 0 {
			s.pollInterval = interval
		}
	}
}

// WithValueFunctionUpdate refits vf on every visited node once the stage ends.
func WithValueFunctionUpdate(vf ValueFunction) StageOption {
	return func(s *Stage) {
		s.valueFunction = vf
	}
}

// Stage runs a pool of workers on one subtree until its condition is met.
type Stage struct {
	name          string
	condition     Condition
	sampler       Sampler
	workers       int
	duration      time.Duration
	pollInterval  time.Duration
	seed          uint64
	saver         DataSaver
	metrics       metrics.Collector
	newEngine     func() engine.Engine
	valueFunction ValueFunction

	mu         sync.Mutex
	cancel     context.CancelFunc
	terminated bool
	err        error
	results    []*Node
	metric     metrics.StageMetric
}

func NewStage(name string, condition Condition, sampler Sampler, options ...StageOption) *Stage {
	s := &Stage{ // Default values
		name:         name,
		condition:    condition,
		sampler:      sampler,
		workers:      1,
		pollInterval: DefaultPollInterval,
		saver:        NullSaver{},
		metrics:      metrics.NewDummyCollector(),
		newEngine:    func() engine.Engine { return engine.NewLocalEngine() },
	}
	for _, option := range options {
		option(s)
	}
	if s.workers < 1 {
		panic(fmt.Sprintf("stage %s needs at least one worker, got %d", name, s.workers))
	}
	if condition == nil || sampler == nil {
		panic(fmt.Sprintf("stage %s needs a condition and a sampler", name))
	}
	return s
}

func (s *Stage) Name() string { return s.name }

// Run searches below root until the condition is met, the duration elapses,
// ctx is done, every worker stops, or Terminate is called. It returns the
// condition's results and the joined errors of failed workers.
func (s *Stage) Run(ctx context.Context, root *Node) ([]*Node, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.duration > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, s.duration)
		defer cancelTimeout()
	}

	s.mu.Lock()
	s.cancel = cancel
	if s.terminated {
		cancel()
	}
	s.mu.Unlock()

	log.Info().Str("stage", s.name).Int("workers", s.workers).Stringer("condition", s.condition).Msg("stage started")
	s.metrics.Start(s.name, s.workers)

	var budget chan struct{}
	if n := s.condition.Budget(); n > 0 {
		budget = make(chan struct{}, n)
		for i := 0; i < n; i++ {
			budget <- struct{}{}
		}
		close(budget)
	}

	errs := make([]error, s.workers)
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		w := NewWorker(i, s.sampler.Copy(s.seed+uint64(i)), s.newEngine(), s.saver.Fork(), s.metrics)
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[w.ID()] = w.Run(ctx, root, budget)
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	reason := s.poll(ctx, root, done)
	cancel()
	<-done

	if leaked := releaseAll(root); leaked > 0 {
		log.Warn().Str("stage", s.name).Int("nodes", leaked).Msg("released locks left behind by workers")
	}

	results := s.condition.Results(root)
	s.saver.ReportStageEnding(root, results)
	if s.valueFunction != nil {
		if err := s.valueFunction.Update(visited(root)); err != nil {
			log.Error().Err(err).Str("stage", s.name).Msg("value function update failed")
		}
	}

	s.metrics.SetTree(root.Size(), root.MaxDepth())
	metric := s.metrics.Complete()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	err := errors.Join(failed...)

	s.mu.Lock()
	s.results = results
	s.err = err
	s.metric = metric
	s.mu.Unlock()

	log.Info().Str("stage", s.name).Str("reason", reason).Int("games", metric.Games).
		Int("nodes", metric.Nodes).Int("worker_errors", len(failed)).Msg("stage terminated")
	return results, err
}

func (s *Stage) poll(ctx context.Context, root *Node, done <-chan struct{}) string {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return "workers finished"
		case <-ctx.Done():
			return ctx.Err().Error()
		case <-ticker.C:
			if s.condition.Met(root) {
				return "condition met"
			}
		}
	}
}

// Terminate stops a running stage, or makes the next Run return at once.
// It may be called any number of times.
func (s *Stage) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminated = true
	if s.cancel != nil {
		s.cancel()
	}
}

// Err returns the worker failures of the last run.
func (s *Stage) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stage) Results() []*Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

func (s *Stage) Metric() metrics.StageMetric {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metric
}

// releaseAll releases every lock in root's subtree, deepest first, and
// returns how many nodes were locked.
func releaseAll(root *Node) int {
	locked := root.LockedNodes()
	sort.Slice(locked, func(i, j int) bool { return locked[i].Depth() > locked[j].Depth() })
	for _, n := range locked {
		n.Release()
	}
	return len(locked)
}

func visited(root *Node) []*Node {
	var nodes []*Node
	root.Walk(func(n *Node) bool {
		if n.Visits() > 0 {
			nodes = append(nodes, n)
		}
		return true
	})
	return nodes
}
