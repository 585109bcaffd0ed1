package searcher

import (
	"fmt"

	"golang.org/x/exp/rand"

	"qwop/engine"
	"qwop/game"
)

// RolloutPolicy scores a newly expanded node. Policies that simulate do so
// on transient nodes only, starting from the engine's current state, which
// must be start's state. Policies are shared between workers.
type RolloutPolicy interface {
	Rollout(start *Node, e engine.Engine, rng *rand.Rand) float32
}

// horizon simulates random actions from a generator until failure, the goal,
// or the timestep limit.
type horizon struct {
	generator    game.Generator
	maxTimesteps int
}

func newHorizon(gen game.Generator, maxTimesteps int) horizon {
	if maxTimesteps < 1 {
		panic(fmt.Sprintf("rollout needs at least one timestep, got %d", maxTimesteps))
	}
	if gen == nil {
		gen = game.RolloutGenerator()
	}
	return horizon{generator: gen, maxTimesteps: maxTimesteps}
}

// run returns the transient end node and the number of timesteps simulated.
// onStep, if set, sees every simulated timestep.
func (h horizon) run(start *Node, e engine.Engine, rng *rand.Rand, onStep func(t int, before, after game.State)) (*Node, int) {
	var node *Node
	if action, ok := start.Action(); ok {
		node = start.parent.AddBackwardsLinkedChild(action, start.state, h.generator)
	} else {
		node = NewRoot(start.state, h.generator)
	}

	t := 0
	for !node.state.Failed && t < h.maxTimesteps && node.state.CenterX() < game.GoalDistance {
		candidates := node.Untried()
		if candidates.IsEmpty() {
			break
		}
		action := candidates.Sample(rng)
		before := e.CurrentState()
		for action.HasNext() && !e.Failed() && t < h.maxTimesteps {
			after := e.Step(action.Poll())
			if onStep != nil {
				onStep(t, before, after)
			}
			before = after
			t++
		}
		node = node.AddBackwardsLinkedChild(action, e.CurrentState(), h.generator)
	}
	return node, t
}

// DeltaScoreRollout scores by how much the evaluation improves over the
// rollout. Rollouts ending in failure are scaled by FailureMultiplier.
type DeltaScoreRollout struct {
	horizon
	evaluate          Evaluator
	FailureMultiplier float32
}

func NewDeltaScoreRollout(eval Evaluator, gen game.Generator, maxTimesteps int) *DeltaScoreRollout {
	return &DeltaScoreRollout{
		horizon:           newHorizon(gen, maxTimesteps),
		evaluate:          eval,
		FailureMultiplier: 1,
	}
}

func (r *DeltaScoreRollout) Rollout(start *Node, e engine.Engine, rng *rand.Rand) float32 {
	end, _ := r.run(start, e, rng, nil)
	score := r.evaluate(end) - r.evaluate(start)
	if end.state.Failed {
		score *= r.FailureMultiplier
	}
	return score
}

// JustEvaluateRollout scores the start node without simulating.
type JustEvaluateRollout struct {
	evaluate Evaluator
}

func NewJustEvaluateRollout(eval Evaluator) *JustEvaluateRollout {
	return &JustEvaluateRollout{evaluate: eval}
}

func (r *JustEvaluateRollout) Rollout(start *Node, _ engine.Engine, _ *rand.Rand) float32 {
	return r.evaluate(start)
}

// DecayingHorizonRollout sums the distance gained on each timestep, weighted
// down linearly to zero at the horizon.
type DecayingHorizonRollout struct {
	horizon
}

func NewDecayingHorizonRollout(gen game.Generator, maxTimesteps int) *DecayingHorizonRollout {
	return &DecayingHorizonRollout{horizon: newHorizon(gen, maxTimesteps)}
}

func (r *DecayingHorizonRollout) Rollout(start *Node, e engine.Engine, rng *rand.Rand) float32 {
	var total float32
	r.run(start, e, rng, func(t int, before, after game.State) {
		weight := 1 - float32(t)/float32(r.maxTimesteps)
		total += weight * (after.CenterX() - before.CenterX())
	})
	return total
}

// ValueFunctionRollout simulates a short horizon and scores the end with a
// value function.
type ValueFunctionRollout struct {
	horizon
	vf ValueFunction
}

func NewValueFunctionRollout(vf ValueFunction, gen game.Generator, maxTimesteps int) *ValueFunctionRollout {
	return &ValueFunctionRollout{horizon: newHorizon(gen, maxTimesteps), vf: vf}
}

func (r *ValueFunctionRollout) Rollout(start *Node, e engine.Engine, rng *rand.Rand) float32 {
	end, _ := r.run(start, e, rng, nil)
	return r.vf.Evaluate(end)
}

// WindowRollout scores the expanded node together with its neighbours: the
// same command held one timestep longer and one shorter. Each neighbour runs
// the inner rollout from the parent's state and is credited with its
// evaluation gain over start. The best of the three is returned, so a node
// is not punished for sitting next to a good duration.
//
// The parent's state is reached by one replay from the tree root and then
// restored from a snapshot for the second neighbour. The engine is left
// where the inner rollout of start finished.
type WindowRollout struct {
	inner    RolloutPolicy
	evaluate Evaluator
}

func NewWindowRollout(inner RolloutPolicy, eval Evaluator) *WindowRollout {
	if inner == nil {
		panic("window rollout needs an inner rollout")
	}
	return &WindowRollout{inner: inner, evaluate: eval}
}

func (r *WindowRollout) Rollout(start *Node, e engine.Engine, rng *rand.Rand) float32 {
	action, ok := start.Action()
	if !ok {
		return r.inner.Rollout(start, e, rng)
	}
	startValue := r.evaluate(start)
	best := r.inner.Rollout(start, e, rng)
	end := e.Serialize()

	parent := start.parent
	e.Reset()
	if parent.parent != nil {
		for _, a := range parent.Sequence() {
			for a.HasNext() && !e.Failed() {
				e.Step(a.Poll())
			}
		}
	}
	atParent := e.Serialize()

	for i, duration := range []int{action.Duration() + 1, action.Duration() - 1} {
		if duration < 1 {
			continue
		}
		if i > 0 {
			r.restore(e, atParent)
		}
		neighbour := game.NewAction(duration, action.Command())
		for neighbour.HasNext() && !e.Failed() {
			e.Step(neighbour.Poll())
		}
		node := parent.AddBackwardsLinkedChild(game.NewAction(duration, action.Command()), e.CurrentState(), game.NullGenerator{})
		score := r.inner.Rollout(node, e, rng) + r.evaluate(node) - startValue
		if score > best {
			best = score
		}
	}
	r.restore(e, end)
	return best
}

// restore only fails on a snapshot this engine did not produce.
func (r *WindowRollout) restore(e engine.Engine, data []byte) {
	if err := e.Restore(data); err != nil {
		panic(fmt.Sprintf("window rollout: restoring own snapshot: %v", err))
	}
}
