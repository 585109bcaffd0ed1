package searcher

import (
	"sync"

	"golang.org/x/exp/rand"

	"qwop/game"
)

// Evaluator scores a node. Evaluators are shared between workers and must be
// safe for concurrent use.
type Evaluator func(n *Node) float32

// EvaluateState scores a node by its state alone.
func EvaluateState(eval game.Evaluate) Evaluator {
	return func(n *Node) float32 { return eval(n.State()) }
}

// EvaluateDistance scores by torso position.
func EvaluateDistance() Evaluator { return EvaluateState(game.EvaluateDistance(1)) }

func EvaluateConstant(value float32) Evaluator {
	return func(*Node) float32 { return value }
}

// EvaluateRandom scores uniformly in [0, 1).
func EvaluateRandom(seed uint64) Evaluator {
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(seed))
	return func(*Node) float32 {
		mu.Lock()
		defer mu.Unlock()
		return rng.Float32()
	}
}

// EvaluateValueFunction scores with a learned value function.
func EvaluateValueFunction(vf ValueFunction) Evaluator {
	return vf.Evaluate
}
