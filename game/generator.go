package game

import "fmt"

// Generator returns the candidate child actions of a tree node at the given
// depth. Implementations must be safe for concurrent use and return lists the
// caller may mutate.
type Generator interface {
	PotentialChildActions(depth int) ActionList
}

// FixedSequenceGenerator cycles through a repeated list of candidate sets by
// depth, with per-depth exceptions taking precedence.
type FixedSequenceGenerator struct {
	repeated   []ActionList
	exceptions map[int]ActionList
}

func NewFixedSequenceGenerator(repeated []ActionList, exceptions map[int]ActionList) *FixedSequenceGenerator {
	if len(repeated) == 0 {
		panic("fixed sequence generator needs at least one repeated action list")
	}
	g := &FixedSequenceGenerator{
		repeated:   make([]ActionList, len(repeated)),
		exceptions: make(map[int]ActionList, len(exceptions)),
	}
	for i, l := range repeated {
		g.repeated[i] = l.Copy()
	}
	for depth, l := range exceptions {
		if depth < 0 {
			panic(fmt.Sprintf("exception depth must be non-negative, got %d", depth))
		}
		g.exceptions[depth] = l.Copy()
	}
	return g
}

func (g *FixedSequenceGenerator) PotentialChildActions(depth int) ActionList {
	if l, ok := g.exceptions[depth]; ok {
		return l.Copy()
	}
	return g.repeated[depth%len(g.repeated)].Copy()
}

// CycleLength is the number of repeated slots.
func (g *FixedSequenceGenerator) CycleLength() int { return len(g.repeated) }

// FixedActionsGenerator returns the same candidates at every depth.
type FixedActionsGenerator struct {
	actions ActionList
}

func NewFixedActionsGenerator(actions ActionList) *FixedActionsGenerator {
	return &FixedActionsGenerator{actions: actions.Copy()}
}

func (g *FixedActionsGenerator) PotentialChildActions(int) ActionList {
	return g.actions.Copy()
}

// NullGenerator never offers any candidates.
type NullGenerator struct{}

func (NullGenerator) PotentialChildActions(int) ActionList {
	return NewActionList(EqualDistribution())
}

// DefaultGenerator alternates NONE / WO / NONE / QP with startup exceptions
// covering the first four depths.
func DefaultGenerator() *FixedSequenceGenerator {
	return NewFixedSequenceGenerator(DefaultCycle(), StartupExceptions())
}

// DefaultCycle is the repeated part of DefaultGenerator.
func DefaultCycle() []ActionList {
	return []ActionList{
		MakeUniformActionList(1, 24, None, NormalDistribution(10, 2)),
		MakeUniformActionList(5, 19, WO, NormalDistribution(12, 3)),
		MakeUniformActionList(1, 24, None, NormalDistribution(10, 2)),
		MakeUniformActionList(5, 19, QP, NormalDistribution(12, 3)),
	}
}

// StartupExceptions keeps the first stride short. Holding WO much past
// twenty steps from a standing start drops the runner into a split it
// cannot recover from.
func StartupExceptions() map[int]ActionList {
	return map[int]ActionList{
		0: MakeUniformActionList(1, 24, None, NormalDistribution(5, 1)),
		1: MakeUniformActionList(5, 14, WO, NormalDistribution(10, 2)),
		2: MakeUniformActionList(1, 19, None, NormalDistribution(5, 2)),
		3: MakeUniformActionList(5, 19, QP, NormalDistribution(12, 2)),
	}
}

// RecoveryExceptions widens the duration ranges for the four slots that start
// at depth. Each slot keeps the command of its position in the gait cycle, so
// the alternation is unchanged. Used when searching for a way out of a stumble.
func RecoveryExceptions(depth int) map[int]ActionList {
	wide := []ActionList{
		MakeUniformActionList(1, 49, None, NormalDistribution(10, 2)),
		MakeUniformActionList(1, 29, WO, NormalDistribution(12, 3)),
		MakeUniformActionList(1, 49, None, NormalDistribution(10, 2)),
		MakeUniformActionList(1, 29, QP, NormalDistribution(12, 3)),
	}
	out := make(map[int]ActionList, len(wide))
	for i := range wide {
		out[depth+i] = wide[(depth+i)%len(wide)]
	}
	return out
}

// RolloutGenerator offers shorter actions suitable for disposable rollouts.
func RolloutGenerator() *FixedSequenceGenerator {
	return NewFixedSequenceGenerator(RolloutCycle(), nil)
}

func RolloutCycle() []ActionList {
	return []ActionList{
		MakeUniformActionList(2, 19, None, NormalDistribution(12, 5)),
		MakeUniformActionList(4, 14, WO, NormalDistribution(9, 3)),
		MakeUniformActionList(2, 19, None, NormalDistribution(12, 5)),
		MakeUniformActionList(4, 14, QP, NormalDistribution(9, 3)),
	}
}
