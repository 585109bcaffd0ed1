package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"qwop/engine"
	"qwop/game"
	"qwop/searcher"
)

const minimal = `
stages:
  - type: fixed_games
    max_games: 5
`

func TestParse(t *testing.T) {
	t.Run("defaults fill a minimal config", func(t *testing.T) {
		cfg, err := Parse([]byte(minimal))
		require.NoError(t, err)
		require.Equal(t, 1, cfg.Machine.Workers)
		require.Equal(t, zerolog.InfoLevel, cfg.LogLevel())
		require.Equal(t, "default", cfg.Generator.Preset)

		s := cfg.Stages[0]
		require.Equal(t, "stage_0", s.Name)
		require.Equal(t, 1, s.Workers)
		require.Equal(t, "ucb", s.Sampler.Type)
		require.Equal(t, "distance", s.Sampler.Evaluator.Type)
		require.Equal(t, "delta_score", s.Sampler.Rollout.Type)
		require.Equal(t, 200, s.Sampler.Rollout.MaxTimesteps)
		require.Equal(t, "none", s.Saver.Type)
	})

	t.Run("bundled config loads", func(t *testing.T) {
		cfg, err := Load(filepath.Join("..", "configs", "default.yaml"))
		require.NoError(t, err)
		require.Len(t, cfg.Stages, 2)
		require.Equal(t, 30*time.Second, cfg.Stages[0].Duration)
		require.Equal(t, 8, cfg.Stages[1].Workers, "stages inherit machine workers")
		require.Equal(t, 50*time.Millisecond, cfg.Stages[0].Sampler.DeadlockDelay.Max)
		require.Equal(t, float32(5), *cfg.Stages[0].Sampler.ExplorationConstant)
		require.True(t, cfg.Stages[0].Sampler.Rollout.Window)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"no stages", "machine: {workers: 2}", ErrNoStages},
		{"unknown sampler", "stages: [{type: search_forever, sampler: {type: alphazero}}]", ErrUnknownSampler},
		{"unknown stage", "stages: [{type: forever}]", ErrUnknownStage},
		{"unknown evaluator", "stages: [{type: search_forever, sampler: {evaluator: {type: style}}}]", ErrUnknownEvaluator},
		{"unknown rollout", "stages: [{type: search_forever, sampler: {rollout: {type: long}}}]", ErrUnknownRollout},
		{"unknown saver", "stages: [{type: search_forever, saver: {type: csv}}]", ErrUnknownSaver},
		{"unknown preset", "generator: {preset: fancy}\nstages: [{type: search_forever}]", ErrUnknownGenerator},
		{"unknown updater", "stages: [{type: search_forever, sampler: {updater: {type: max}}}]", ErrUnknownUpdater},
		{"unknown value function", "value_function: {type: deep}\nstages: [{type: search_forever}]", ErrUnknownValueFunction},
		{"negative workers", "machine: {workers: -1}\nstages: [{type: search_forever}]", ErrInvalid},
		{"bad log level", "machine: {log_level: loud}\nstages: [{type: search_forever}]", ErrInvalid},
		{"fixed games without games", "stages: [{type: fixed_games}]", ErrInvalid},
		{"max depth without depth", "stages: [{type: max_depth}]", ErrInvalid},
		{"negative duration", "stages: [{type: search_forever, duration: -1s}]", ErrInvalid},
		{"fixed depth without depth", "stages: [{type: search_forever, sampler: {type: fixed_depth}}]", ErrInvalid},
		{"negative exploration", "stages: [{type: search_forever, sampler: {exploration_constant: -1}}]", ErrInvalid},
		{"parquet without path", "stages: [{type: search_forever, saver: {type: parquet}}]", ErrInvalid},
		{"duplicate names", "stages: [{name: a, type: search_forever}, {name: a, type: search_forever}]", ErrInvalid},
		{"ucb after random", "stages: [{name: a, type: fixed_games, max_games: 3, sampler: {type: random}}, {name: b, type: search_forever}]", ErrInvalid},
		{"empty slot", "generator: {repeated: [{command: QP, min: 5, max: 4}]}\nstages: [{type: search_forever}]", ErrInvalid},
		{"preset and slots", "generator: {preset: default, repeated: [{command: QP, min: 1, max: 4}]}\nstages: [{type: search_forever}]", ErrInvalid},
		{"bad deadlock delay", "stages: [{type: search_forever, sampler: {deadlock_delay: {initial: 5ms, max: 1ms}}}]", ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("bad slot command", func(t *testing.T) {
		_, err := Parse([]byte("generator: {repeated: [{command: QX, min: 1, max: 4}]}\nstages: [{type: search_forever}]"))
		require.ErrorContains(t, err, "unknown key")
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		_, err := Parse([]byte("stages: [{type: search_forever, colour: red}]"))
		require.Error(t, err)
	})
}

func TestBuild(t *testing.T) {
	t.Run("stages in order", func(t *testing.T) {
		cfg, err := Parse([]byte(`
machine: {workers: 2, seed: 3}
stages:
  - {name: a, type: max_depth, max_depth: 3, sampler: {type: ucb, updater: {type: top_window, window: 3, criterion: average_optimistic}}}
  - {name: b, type: fixed_games, max_games: 10, sampler: {type: random}}
  - {name: c, type: min_depth, min_depth: 2, sampler: {type: fixed_depth, depth: 2}}
  - {name: d, type: search_forever, sampler: {type: greedy, greedy: {samples_at_0: 10, depth_n: 2, samples_at_n: 5, samples_at_inf: 2, forward_jump: 1, backwards_jump: 2, backwards_jump_min: 1, backwards_jump_failure_scale: 1.5}}}
`))
		require.NoError(t, err)
		rt, err := cfg.Build(func() engine.Engine { return engine.NewLocalEngine() })
		require.NoError(t, err)
		defer rt.Close()

		require.Len(t, rt.Stages, 4)
		for i, name := range []string{"a", "b", "c", "d"} {
			require.Equal(t, name, rt.Stages[i].Name())
		}
		require.IsType(t, &searcher.LinearValueFunction{}, rt.ValueFunction)
		require.NotNil(t, rt.Generator)
	})

	t.Run("samplers", func(t *testing.T) {
		tests := []struct {
			sampler Sampler
			want    any
		}{
			{Sampler{Type: "random"}, &searcher.RandomSampler{}},
			{Sampler{Type: "distribution"}, &searcher.DistributionSampler{}},
			{Sampler{Type: "fixed_depth", Depth: 2}, &searcher.FixedDepthSampler{}},
			{Sampler{Type: "greedy"}, &searcher.GreedySampler{}},
			{Sampler{Type: "ucb", Rollout: Rollout{Type: "just_evaluate", MaxTimesteps: 1}, Updater: Updater{Type: "hard_set"}}, &searcher.UCBSampler{}},
		}
		for _, tt := range tests {
			t.Run(tt.sampler.Type, func(t *testing.T) {
				s, err := tt.sampler.Build(searcher.ConstantValueFunction(0), 1)
				require.NoError(t, err)
				require.IsType(t, tt.want, s)
			})
		}

		_, err := Sampler{Type: "mystery"}.Build(nil, 1)
		require.ErrorIs(t, err, ErrUnknownSampler)
	})

	t.Run("ucb exploration settings", func(t *testing.T) {
		c, f := float32(3), float32(0)
		s, err := Sampler{
			Type: "ucb", ExplorationConstant: &c, ExplorationRandomFactor: &f,
			Rollout: Rollout{Type: "delta_score", MaxTimesteps: 10}, Updater: Updater{Type: "average"},
		}.Build(nil, 1)
		require.NoError(t, err)
		require.Equal(t, float32(3), s.(*searcher.UCBSampler).C())
	})

	t.Run("evaluators", func(t *testing.T) {
		var s game.State
		s.Bodies[game.Torso].X = 4
		s.Bodies[game.Torso].DX = 2
		n := searcher.NewRoot(s, nil)
		vf := searcher.ConstantValueFunction(9)

		require.Equal(t, float32(8), Evaluator{Type: "distance", Scale: 2}.Build(vf, 1)(n))
		require.Equal(t, float32(4), Evaluator{Type: "distance"}.Build(vf, 1)(n))
		require.Equal(t, float32(2), Evaluator{Type: "velocity"}.Build(vf, 1)(n))
		require.Equal(t, float32(6), Evaluator{Type: "constant", Value: 6}.Build(vf, 1)(n))
		require.Equal(t, float32(9), Evaluator{Type: "value_function"}.Build(vf, 1)(n))
		r := Evaluator{Type: "random"}.Build(vf, 1)(n)
		require.True(t, r >= 0 && r < 1)
	})

	t.Run("rollouts", func(t *testing.T) {
		m := float32(2)
		r, err := Rollout{Type: "delta_score", MaxTimesteps: 10, FailureMultiplier: &m}.Build(nil, 1)
		require.NoError(t, err)
		require.Equal(t, float32(2), r.(*searcher.DeltaScoreRollout).FailureMultiplier)

		for _, name := range []string{"just_evaluate", "decaying_horizon", "value_function"} {
			_, err := Rollout{Type: name, MaxTimesteps: 10}.Build(searcher.ConstantValueFunction(1), 1)
			require.NoError(t, err, name)
		}

		w, err := Rollout{Type: "delta_score", MaxTimesteps: 10, Window: true}.Build(nil, 1)
		require.NoError(t, err)
		require.IsType(t, &searcher.WindowRollout{}, w)
	})

	t.Run("explicit generator", func(t *testing.T) {
		g := Generator{
			Repeated: []Slot{
				{Command: "NONE", Min: 1, Max: 3},
				{Command: "QP", Min: 10, Max: 12, Distribution: Distribution{Type: "normal", Mean: 11, Stdev: 1}},
			},
			Exceptions: map[int][]Slot{
				0: {{Command: "WO", Min: 5, Max: 5}, {Command: "QP", Min: 5, Max: 6}},
			},
		}
		gen, err := g.Build()
		require.NoError(t, err)

		first := gen.PotentialChildActions(0)
		require.Equal(t, 3, first.Len())
		require.True(t, first.Contains(game.NewAction(5, game.WO)))
		require.True(t, gen.PotentialChildActions(1).Contains(game.NewAction(11, game.QP)), "repeated slots cycle by depth")
		require.True(t, gen.PotentialChildActions(2).Contains(game.NewAction(2, game.None)))
		require.False(t, gen.PotentialChildActions(2).Contains(game.NewAction(5, game.WO)), "exceptions only apply at their depth")
	})

	t.Run("preset with recovery", func(t *testing.T) {
		depth := 8
		gen, err := Generator{Preset: "default", Recovery: &depth}.Build()
		require.NoError(t, err)
		require.Equal(t, 49, gen.PotentialChildActions(8).Len())
		require.Equal(t, 24, gen.PotentialChildActions(0).Len(), "startup exceptions stay")
	})
}
