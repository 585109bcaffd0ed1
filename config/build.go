package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"qwop/engine"
	"qwop/experiments/metrics"
	"qwop/game"
	"qwop/saver"
	"qwop/searcher"
)

// Runtime holds what a config builds. Stages run in order on one tree.
type Runtime struct {
	Generator     game.Generator
	ValueFunction searcher.ValueFunction
	Stages        []*searcher.Stage
	savers        []*saver.ParquetSaver
}

// Close flushes every saver the runtime opened.
func (r *Runtime) Close() error {
	var errs []error
	for _, s := range r.savers {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build creates the stages of a validated config. A nil newEngine means the
// stages simulate on the local physics engine.
func (c *Config) Build(newEngine func() engine.Engine) (*Runtime, error) {
	gen, err := c.Generator.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build generator: %w", err)
	}
	rt := &Runtime{Generator: gen, ValueFunction: c.ValueFunction.Build()}

	for i, s := range c.Stages {
		seed := c.Machine.Seed + uint64(i)*1000
		sampler, err := s.Sampler.Build(rt.ValueFunction, seed)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to build stage %q: %w", s.Name, err)
		}
		condition, err := s.condition(rt.ValueFunction, seed)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to build stage %q: %w", s.Name, err)
		}

		options := []searcher.StageOption{
			searcher.WithWorkers(s.Workers),
			searcher.WithSeed(seed),
			searcher.WithMetrics(metrics.NewCollector()),
		}
		if s.Duration > 0 {
			options = append(options, searcher.WithDuration(s.Duration))
		}
		if newEngine != nil {
			options = append(options, searcher.WithEngineFactory(newEngine))
		}
		if s.UpdateValueFunction {
			options = append(options, searcher.WithValueFunctionUpdate(rt.ValueFunction))
		}
		if s.Saver.Type == "parquet" {
			ps := s.Saver.Build(s.Name)
			rt.savers = append(rt.savers, ps)
			options = append(options, searcher.WithSaver(ps))
		}

		rt.Stages = append(rt.Stages, searcher.NewStage(s.Name, condition, sampler, options...))
	}
	return rt, nil
}

func (s Stage) condition(vf searcher.ValueFunction, seed uint64) (searcher.Condition, error) {
	switch s.Type {
	case "fixed_games":
		c := searcher.FixedGames{Games: s.MaxGames}
		if s.Evaluator != nil {
			c.Evaluate = s.Evaluator.Build(vf, seed)
		}
		return c, nil
	case "max_depth":
		return searcher.MaxDepth{Depth: s.MaxDepth, Games: s.MaxGames}, nil
	case "min_depth":
		return searcher.MinDepth{Depth: s.MinDepth, Games: s.MaxGames}, nil
	case "search_forever":
		return searcher.SearchForever{}, nil
	default:
		return nil, fmt.Errorf("%q: %w", s.Type, ErrUnknownStage)
	}
}

// Build returns a saver writing under <path>/<stage>.
func (s Saver) Build(stage string) *saver.ParquetSaver {
	var options []saver.Option
	if s.Interval > 0 {
		options = append(options, saver.WithInterval(s.Interval))
	}
	if s.Buffer > 0 {
		options = append(options, saver.WithBuffer(s.Buffer))
	}
	return saver.NewParquetSaver(filepath.Join(s.Path, stage), options...)
}

func (v ValueFunction) Build() searcher.ValueFunction {
	if v.Type == "constant" {
		return searcher.ConstantValueFunction(v.Value)
	}
	return searcher.NewLinearValueFunction(v.Ridge)
}

// Build creates the sampler that stage workers copy from.
func (s Sampler) Build(vf searcher.ValueFunction, seed uint64) (searcher.Sampler, error) {
	eval := s.Evaluator.Build(vf, seed)
	var delay *searcher.DeadlockDelay
	if s.DeadlockDelay != nil {
		delay = &searcher.DeadlockDelay{Initial: s.DeadlockDelay.Initial, Max: s.DeadlockDelay.Max, Retries: s.DeadlockDelay.Retries}
	}

	switch s.Type {
	case "ucb":
		rollout, err := s.Rollout.Build(vf, seed)
		if err != nil {
			return nil, err
		}
		updater, err := s.Updater.Build()
		if err != nil {
			return nil, err
		}
		options := []searcher.UCBOption{searcher.WithUpdater(updater)}
		if s.ExplorationConstant != nil {
			options = append(options, searcher.WithExplorationConstant(*s.ExplorationConstant))
		}
		if s.ExplorationRandomFactor != nil {
			options = append(options, searcher.WithExplorationRandomFactor(*s.ExplorationRandomFactor))
		}
		if delay != nil {
			options = append(options, searcher.WithDeadlockDelay(*delay))
		}
		return searcher.NewUCBSampler(eval, rollout, seed, options...), nil
	case "greedy":
		schedule := searcher.DefaultGreedySchedule
		if g := s.Greedy; g != nil {
			schedule = searcher.GreedySchedule(*g)
		}
		return searcher.NewGreedySampler(eval, schedule, seed), nil
	case "random":
		r := searcher.NewRandomSampler(seed)
		if delay != nil {
			r.DeadlockDelay = *delay
		}
		return r, nil
	case "distribution":
		r := searcher.NewDistributionSampler(seed)
		if delay != nil {
			r.DeadlockDelay = *delay
		}
		return r, nil
	case "fixed_depth":
		r := searcher.NewFixedDepthSampler(s.Depth, seed)
		if delay != nil {
			r.DeadlockDelay = *delay
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%q: %w", s.Type, ErrUnknownSampler)
	}
}

func (e Evaluator) Build(vf searcher.ValueFunction, seed uint64) searcher.Evaluator {
	scale := e.Scale
	if scale == 0 {
		scale = 1
	}
	switch e.Type {
	case "velocity":
		return searcher.EvaluateState(game.EvaluateVelocity(scale))
	case "hand_tuned":
		return searcher.EvaluateState(game.EvaluateHandTuned)
	case "constant":
		return searcher.EvaluateConstant(e.Value)
	case "random":
		return searcher.EvaluateRandom(seed)
	case "value_function":
		return searcher.EvaluateValueFunction(vf)
	default:
		return searcher.EvaluateState(game.EvaluateDistance(scale))
	}
}

func (r Rollout) Build(vf searcher.ValueFunction, seed uint64) (searcher.RolloutPolicy, error) {
	eval := r.Evaluator.Build(vf, seed)
	var policy searcher.RolloutPolicy
	switch r.Type {
	case "delta_score":
		d := searcher.NewDeltaScoreRollout(eval, nil, r.MaxTimesteps)
		if r.FailureMultiplier != nil {
			d.FailureMultiplier = *r.FailureMultiplier
		}
		policy = d
	case "just_evaluate":
		policy = searcher.NewJustEvaluateRollout(eval)
	case "decaying_horizon":
		policy = searcher.NewDecayingHorizonRollout(nil, r.MaxTimesteps)
	case "value_function":
		policy = searcher.NewValueFunctionRollout(vf, nil, r.MaxTimesteps)
	default:
		return nil, fmt.Errorf("%q: %w", r.Type, ErrUnknownRollout)
	}
	if r.Window {
		policy = searcher.NewWindowRollout(policy, eval)
	}
	return policy, nil
}

func (u Updater) Build() (searcher.ValueUpdater, error) {
	switch u.Type {
	case "average":
		return searcher.AverageUpdater{}, nil
	case "hard_set":
		return searcher.HardSetUpdater{}, nil
	case "top_window":
		c, err := criterion(u.Criterion)
		if err != nil {
			return nil, err
		}
		return searcher.NewTopWindowUpdater(u.Window, c), nil
	default:
		return nil, fmt.Errorf("%q: %w", u.Type, ErrUnknownUpdater)
	}
}

func criterion(name string) (searcher.WindowCriterion, error) {
	switch name {
	case "", "worst":
		return searcher.WindowWorst, nil
	case "average_optimistic":
		return searcher.WindowAverageOptimistic, nil
	case "average_pessimistic":
		return searcher.WindowAveragePessimistic, nil
	default:
		return 0, fmt.Errorf("window criterion %q: %w", name, ErrInvalid)
	}
}

// Build creates the tree's action generator.
func (g Generator) Build() (game.Generator, error) {
	var repeated []game.ActionList
	exceptions := map[int]game.ActionList{}
	switch g.Preset {
	case "default":
		repeated = game.DefaultCycle()
		exceptions = game.StartupExceptions()
	case "rollout":
		repeated = game.RolloutCycle()
	}
	for _, slot := range g.Repeated {
		l, err := slot.Build()
		if err != nil {
			return nil, err
		}
		repeated = append(repeated, l)
	}
	if g.Recovery != nil {
		for depth, l := range game.RecoveryExceptions(*g.Recovery) {
			exceptions[depth] = l
		}
	}
	for depth, slots := range g.Exceptions {
		lists := make([]game.ActionList, 0, len(slots))
		for _, slot := range slots {
			l, err := slot.Build()
			if err != nil {
				return nil, err
			}
			lists = append(lists, l)
		}
		exceptions[depth] = game.Merge(lists...)
	}
	if len(repeated) == 0 {
		return nil, fmt.Errorf("generator has no repeated slots: %w", ErrInvalid)
	}
	return game.NewFixedSequenceGenerator(repeated, exceptions), nil
}

func (s Slot) Build() (game.ActionList, error) {
	cmd, err := game.ParseCommand(s.Command)
	if err != nil {
		return game.ActionList{}, fmt.Errorf("slot command: %w", err)
	}
	dist := game.EqualDistribution()
	if s.Distribution.Type == "normal" {
		dist = game.NormalDistribution(s.Distribution.Mean, s.Distribution.Stdev)
	}
	return game.MakeUniformActionList(s.Min, s.Max, cmd, dist), nil
}
