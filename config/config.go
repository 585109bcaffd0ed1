package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"qwop/game"
)

var (
	ErrUnknownSampler       = errors.New("unknown sampler type")
	ErrUnknownStage         = errors.New("unknown stage type")
	ErrUnknownEvaluator     = errors.New("unknown evaluator type")
	ErrUnknownRollout       = errors.New("unknown rollout type")
	ErrUnknownSaver         = errors.New("unknown saver type")
	ErrUnknownGenerator     = errors.New("unknown generator preset")
	ErrUnknownDistribution  = errors.New("unknown distribution type")
	ErrUnknownUpdater       = errors.New("unknown value updater type")
	ErrUnknownValueFunction = errors.New("unknown value function type")
	ErrNoStages             = errors.New("no stages configured")
	ErrInvalid              = errors.New("invalid value")
)

type Config struct {
	Machine       Machine       `yaml:"machine"`
	Generator     Generator     `yaml:"generator"`
	ValueFunction ValueFunction `yaml:"value_function"`
	Stages        []Stage       `yaml:"stages"`
}

type Machine struct {
	Workers  int    `yaml:"workers"`
	LogLevel string `yaml:"log_level"`
	Seed     uint64 `yaml:"seed"`
}

// Generator picks a preset or spells out the repeated slots, one per depth of
// the cycle. Exceptions replace the candidates at single depths, on top of the
// preset's own.
type Generator struct {
	Preset     string         `yaml:"preset"`
	Recovery   *int           `yaml:"recovery_depth"`
	Repeated   []Slot         `yaml:"repeated"`
	Exceptions map[int][]Slot `yaml:"exceptions"`
}

// Slot is a range of durations for one command. Several exception slots at
// the same depth are merged, sampling with the first slot's distribution.
type Slot struct {
	Command      string       `yaml:"command"`
	Min          int          `yaml:"min"`
	Max          int          `yaml:"max"`
	Distribution Distribution `yaml:"distribution"`
}

type Distribution struct {
	Type  string  `yaml:"type"`
	Mean  float64 `yaml:"mean"`
	Stdev float64 `yaml:"stdev"`
}

type ValueFunction struct {
	Type  string  `yaml:"type"`
	Ridge float64 `yaml:"ridge"`
	Value float32 `yaml:"value"`
}

type Stage struct {
	Name                string        `yaml:"name"`
	Type                string        `yaml:"type"`
	MaxDepth            int           `yaml:"max_depth"`
	MinDepth            int           `yaml:"min_depth"`
	MaxGames            int           `yaml:"max_games"`
	Duration            time.Duration `yaml:"duration"`
	Workers             int           `yaml:"workers"`
	UpdateValueFunction bool          `yaml:"update_value_function"`
	Evaluator           *Evaluator    `yaml:"evaluator"`
	Sampler             Sampler       `yaml:"sampler"`
	Saver               Saver         `yaml:"saver"`
}

type Sampler struct {
	Type                    string         `yaml:"type"`
	ExplorationConstant     *float32       `yaml:"exploration_constant"`
	ExplorationRandomFactor *float32       `yaml:"exploration_random_factor"`
	Depth                   int            `yaml:"depth"`
	Evaluator               Evaluator      `yaml:"evaluator"`
	Rollout                 Rollout        `yaml:"rollout"`
	Updater                 Updater        `yaml:"updater"`
	Greedy                  *Greedy        `yaml:"greedy"`
	DeadlockDelay           *DeadlockDelay `yaml:"deadlock_delay"`
}

type Evaluator struct {
	Type  string  `yaml:"type"`
	Scale float32 `yaml:"scale"`
	Value float32 `yaml:"value"`
}

type Rollout struct {
	Type              string    `yaml:"type"`
	MaxTimesteps      int       `yaml:"max_timesteps"`
	FailureMultiplier *float32  `yaml:"failure_multiplier"`
	Evaluator         Evaluator `yaml:"evaluator"`
	// Window also rolls out the two neighbouring durations and keeps the best.
	Window bool `yaml:"window"`
}

type Updater struct {
	Type      string `yaml:"type"`
	Window    int    `yaml:"window"`
	Criterion string `yaml:"criterion"`
}

type Greedy struct {
	SamplesAt0                int     `yaml:"samples_at_0"`
	DepthN                    int     `yaml:"depth_n"`
	SamplesAtN                int     `yaml:"samples_at_n"`
	SamplesAtInf              int     `yaml:"samples_at_inf"`
	ForwardJump               int     `yaml:"forward_jump"`
	BackwardsJump             int     `yaml:"backwards_jump"`
	BackwardsJumpMin          int     `yaml:"backwards_jump_min"`
	BackwardsJumpFailureScale float32 `yaml:"backwards_jump_failure_scale"`
}

type DeadlockDelay struct {
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
	Retries int           `yaml:"retries"`
}

type Saver struct {
	Type     string `yaml:"type"`
	Path     string `yaml:"path"`
	Interval int    `yaml:"interval"`
	Buffer   int    `yaml:"buffer"`
}

// Load reads, defaults and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML, rejecting unknown fields, then defaults and validates.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetDefaults fills in every knob left empty.
func (c *Config) SetDefaults() {
	if c.Machine.Workers == 0 {
		c.Machine.Workers = 1
	}
	if c.Machine.LogLevel == "" {
		c.Machine.LogLevel = zerolog.InfoLevel.String()
	}
	if c.Generator.Preset == "" && len(c.Generator.Repeated) == 0 {
		c.Generator.Preset = "default"
	}
	if c.ValueFunction.Type == "" {
		c.ValueFunction.Type = "linear"
	}
	for i := range c.Stages {
		s := &c.Stages[i]
		if s.Name == "" {
			s.Name = fmt.Sprintf("stage_%d", i)
		}
		if s.Workers == 0 {
			s.Workers = c.Machine.Workers
		}
		if s.Sampler.Type == "" {
			s.Sampler.Type = "ucb"
		}
		if s.Sampler.Evaluator.Type == "" {
			s.Sampler.Evaluator.Type = "distance"
		}
		if s.Sampler.Rollout.Type == "" {
			s.Sampler.Rollout.Type = "delta_score"
		}
		if s.Sampler.Rollout.MaxTimesteps == 0 {
			s.Sampler.Rollout.MaxTimesteps = 200
		}
		if s.Sampler.Rollout.Evaluator.Type == "" {
			s.Sampler.Rollout.Evaluator = s.Sampler.Evaluator
		}
		if s.Sampler.Updater.Type == "" {
			s.Sampler.Updater.Type = "average"
		}
		if s.Saver.Type == "" {
			s.Saver.Type = "none"
		}
	}
}

// Validate checks every type name and knob.
func (c *Config) Validate() error {
	if c.Machine.Workers < 1 {
		return fmt.Errorf("machine.workers %d: %w", c.Machine.Workers, ErrInvalid)
	}
	if _, err := zerolog.ParseLevel(c.Machine.LogLevel); err != nil {
		return fmt.Errorf("machine.log_level %q: %w", c.Machine.LogLevel, ErrInvalid)
	}
	if err := c.Generator.validate(); err != nil {
		return fmt.Errorf("generator: %w", err)
	}
	switch c.ValueFunction.Type {
	case "linear", "constant":
	default:
		return fmt.Errorf("value_function %q: %w", c.ValueFunction.Type, ErrUnknownValueFunction)
	}
	if c.ValueFunction.Ridge < 0 {
		return fmt.Errorf("value_function.ridge %v: %w", c.ValueFunction.Ridge, ErrInvalid)
	}
	if len(c.Stages) == 0 {
		return ErrNoStages
	}
	names := make(map[string]bool, len(c.Stages))
	unscored := ""
	for _, s := range c.Stages {
		if names[s.Name] {
			return fmt.Errorf("stage %q is defined twice: %w", s.Name, ErrInvalid)
		}
		names[s.Name] = true
		if err := s.validate(); err != nil {
			return fmt.Errorf("stage %q: %w", s.Name, err)
		}
		// UCB only descends through visited children, and the other samplers
		// leave the nodes they add unvisited.
		if s.Sampler.Type == "ucb" && unscored != "" {
			return fmt.Errorf("ucb stage %q cannot follow %s: %w", s.Name, unscored, ErrInvalid)
		}
		if s.Sampler.Type != "ucb" && unscored == "" {
			unscored = fmt.Sprintf("%s stage %q", s.Sampler.Type, s.Name)
		}
	}
	return nil
}

// LogLevel is the validated machine log level.
func (c *Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Machine.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func (g Generator) validate() error {
	switch g.Preset {
	case "", "default", "rollout":
	default:
		return fmt.Errorf("%q: %w", g.Preset, ErrUnknownGenerator)
	}
	if (g.Preset == "") == (len(g.Repeated) == 0) {
		return fmt.Errorf("exactly one of preset and repeated slots is needed: %w", ErrInvalid)
	}
	if g.Recovery != nil && *g.Recovery < 0 {
		return fmt.Errorf("recovery_depth %d: %w", *g.Recovery, ErrInvalid)
	}
	for _, slot := range g.Repeated {
		if err := slot.validate(); err != nil {
			return err
		}
	}
	for depth, slots := range g.Exceptions {
		if depth < 0 {
			return fmt.Errorf("exception depth %d: %w", depth, ErrInvalid)
		}
		for _, slot := range slots {
			if err := slot.validate(); err != nil {
				return fmt.Errorf("exception at depth %d: %w", depth, err)
			}
		}
	}
	return nil
}

func (s Slot) validate() error {
	if _, err := game.ParseCommand(s.Command); err != nil {
		return fmt.Errorf("slot command: %w", err)
	}
	if s.Min < 1 || s.Max < s.Min {
		return fmt.Errorf("slot %s durations %d..%d: %w", s.Command, s.Min, s.Max, ErrInvalid)
	}
	switch s.Distribution.Type {
	case "", "equal":
	case "normal":
		if s.Distribution.Stdev < 0 {
			return fmt.Errorf("slot %s stdev %v: %w", s.Command, s.Distribution.Stdev, ErrInvalid)
		}
	default:
		return fmt.Errorf("slot %s distribution %q: %w", s.Command, s.Distribution.Type, ErrUnknownDistribution)
	}
	return nil
}

func (s Stage) validate() error {
	if s.MaxGames < 0 || s.Duration < 0 || s.Workers < 1 {
		return fmt.Errorf("max_games %d, duration %s, workers %d: %w", s.MaxGames, s.Duration, s.Workers, ErrInvalid)
	}
	switch s.Type {
	case "fixed_games":
		if s.MaxGames < 1 {
			return fmt.Errorf("fixed_games needs max_games: %w", ErrInvalid)
		}
	case "max_depth":
		if s.MaxDepth < 1 {
			return fmt.Errorf("max_depth %d: %w", s.MaxDepth, ErrInvalid)
		}
	case "min_depth":
		if s.MinDepth < 1 {
			return fmt.Errorf("min_depth %d: %w", s.MinDepth, ErrInvalid)
		}
	case "search_forever":
	default:
		return fmt.Errorf("%q: %w", s.Type, ErrUnknownStage)
	}
	if s.Evaluator != nil {
		if err := s.Evaluator.validate(); err != nil {
			return err
		}
	}
	if err := s.Sampler.validate(); err != nil {
		return fmt.Errorf("sampler: %w", err)
	}
	switch s.Saver.Type {
	case "none":
	case "parquet":
		if s.Saver.Path == "" || s.Saver.Interval < 0 || s.Saver.Buffer < 0 {
			return fmt.Errorf("parquet saver needs a path and non-negative sizes: %w", ErrInvalid)
		}
	default:
		return fmt.Errorf("saver %q: %w", s.Saver.Type, ErrUnknownSaver)
	}
	return nil
}

func (s Sampler) validate() error {
	switch s.Type {
	case "ucb", "greedy", "random", "distribution":
	case "fixed_depth":
		if s.Depth < 1 {
			return fmt.Errorf("fixed_depth depth %d: %w", s.Depth, ErrInvalid)
		}
	default:
		return fmt.Errorf("%q: %w", s.Type, ErrUnknownSampler)
	}
	if (s.ExplorationConstant != nil && *s.ExplorationConstant < 0) ||
		(s.ExplorationRandomFactor != nil && *s.ExplorationRandomFactor < 0) {
		return fmt.Errorf("exploration settings must be non-negative: %w", ErrInvalid)
	}
	if err := s.Evaluator.validate(); err != nil {
		return err
	}
	if err := s.Rollout.validate(); err != nil {
		return err
	}
	switch s.Updater.Type {
	case "average", "hard_set":
	case "top_window":
		if s.Updater.Window < 1 {
			return fmt.Errorf("top_window size %d: %w", s.Updater.Window, ErrInvalid)
		}
		if _, err := criterion(s.Updater.Criterion); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%q: %w", s.Updater.Type, ErrUnknownUpdater)
	}
	if g := s.Greedy; g != nil {
		if g.SamplesAt0 <= g.SamplesAtN || g.SamplesAtN < g.SamplesAtInf || g.DepthN < 1 || g.ForwardJump < 1 ||
			g.BackwardsJumpMin < 0 || g.BackwardsJumpFailureScale < 1 {
			return fmt.Errorf("greedy schedule %+v: %w", *g, ErrInvalid)
		}
	}
	if d := s.DeadlockDelay; d != nil {
		if d.Initial <= 0 || d.Max < d.Initial || d.Retries < 0 {
			return fmt.Errorf("deadlock_delay %+v: %w", *d, ErrInvalid)
		}
	}
	return nil
}

func (e Evaluator) validate() error {
	switch e.Type {
	case "distance", "velocity", "hand_tuned", "constant", "random", "value_function":
		return nil
	default:
		return fmt.Errorf("%q: %w", e.Type, ErrUnknownEvaluator)
	}
}

func (r Rollout) validate() error {
	switch r.Type {
	case "delta_score", "just_evaluate", "decaying_horizon", "value_function":
	default:
		return fmt.Errorf("%q: %w", r.Type, ErrUnknownRollout)
	}
	if r.MaxTimesteps < 1 {
		return fmt.Errorf("rollout max_timesteps %d: %w", r.MaxTimesteps, ErrInvalid)
	}
	if r.FailureMultiplier != nil && *r.FailureMultiplier < 0 {
		return fmt.Errorf("rollout failure_multiplier %v: %w", *r.FailureMultiplier, ErrInvalid)
	}
	return r.Evaluator.validate()
}
