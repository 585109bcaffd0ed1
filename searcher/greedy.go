package searcher

import (
	"context"

	"github.com/chewxy/math32"
	"github.com/rs/zerolog/log"

	"qwop/engine"
	"qwop/game"
)

// GreedySchedule controls how long the greedy sampler searches under one
// root and how far it jumps afterward.
type GreedySchedule struct {
	// Samples per root follow a hyperbola through SamplesAt0 at depth 0,
	// SamplesAtN at DepthN, and approach SamplesAtInf.
	SamplesAt0   int
	DepthN       int
	SamplesAtN   int
	SamplesAtInf int

	ForwardJump               int
	BackwardsJump             int
	BackwardsJumpMin          int
	BackwardsJumpFailureScale float32
}

var DefaultGreedySchedule = GreedySchedule{
	SamplesAt0:                1000,
	DepthN:                    5,
	SamplesAtN:                200,
	SamplesAtInf:              75,
	ForwardJump:               1,
	BackwardsJump:             10,
	BackwardsJumpMin:          5,
	BackwardsJumpFailureScale: 1.5,
}

// SamplesAtDepth is the number of failed games to collect under a root at
// the given depth before moving the root.
func (g GreedySchedule) SamplesAtDepth(depth int) int {
	n := float32(g.DepthN)
	a := n * n * float32(g.SamplesAtN-g.SamplesAtInf) / float32(g.SamplesAt0-g.SamplesAtN)
	d := float32(depth)
	samples := a*float32(g.SamplesAt0-g.SamplesAtInf)/(d*d+a) + float32(g.SamplesAtInf)
	return int(math32.Round(samples))
}

// GreedySampler keeps a moving root. It plays random games from that root
// until a depth-dependent budget is spent, then jumps the root toward the
// best leaf found. If the subtree under the root is exhausted it backs up.
type GreedySampler struct {
	phases
	schedule      GreedySchedule
	evaluate      Evaluator
	tree          *DistributionSampler
	currentRoot   *Node
	budget        int
	samples       int
	backwardsJump int
}

func NewGreedySampler(eval Evaluator, schedule GreedySchedule, seed uint64) *GreedySampler {
	return &GreedySampler{
		schedule:      schedule,
		evaluate:      eval,
		tree:          NewDistributionSampler(seed),
		backwardsJump: schedule.BackwardsJump,
	}
}

// CurrentRoot is the node searches currently start from.
func (s *GreedySampler) CurrentRoot() *Node { return s.currentRoot }

func (s *GreedySampler) chooseRoot(n *Node) {
	s.currentRoot = n
	s.budget = s.schedule.SamplesAtDepth(n.Depth())
	s.samples = 0
	log.Debug().Int("depth", n.Depth()).Int("budget", s.budget).Msg("greedy root moved")
}

func (s *GreedySampler) TreePolicy(ctx context.Context, start *Node) (*Node, error) {
	switch {
	case s.currentRoot == nil:
		s.chooseRoot(start)
	case s.currentRoot != start && !s.currentRoot.IsAncestor(start):
		// The stage root moved somewhere that no longer contains our root.
		s.chooseRoot(start)
	}

	if s.currentRoot.FullyExplored() {
		if start.FullyExplored() {
			return nil, ErrTreeExhausted
		}
		moving := s.currentRoot
		for count := 0; moving != start && (moving.FullyExplored() || count < s.backwardsJump); count++ {
			moving = moving.parent
		}
		s.backwardsJump = int(float32(s.backwardsJump) * s.schedule.BackwardsJumpFailureScale)
		s.chooseRoot(moving)
	}
	return s.tree.TreePolicy(ctx, s.currentRoot)
}

func (s *GreedySampler) ExpansionPolicy(n *Node) game.Action {
	untried := mustHaveUntried(n)
	return untried.At(s.tree.rng.Intn(untried.Len()))
}

// ExpansionPolicyDone keeps expanding until a game ends. Each ended game
// counts toward the current root's budget.
func (s *GreedySampler) ExpansionPolicyDone(n *Node) {
	s.treeDone = false
	if !n.State().Failed && n.UntriedCount() > 0 {
		s.expansionDone = false
		return
	}
	s.expansionDone = true
	s.rolloutDone = true
	s.samples++
	if s.samples < s.budget {
		return
	}

	best := s.currentRoot.BestLeaf(s.evaluate)
	for best.Depth() > s.currentRoot.Depth()+s.schedule.ForwardJump {
		best = best.parent
	}
	s.backwardsJump = max(s.backwardsJump-1, s.schedule.BackwardsJumpMin)
	s.chooseRoot(best)
}

func (s *GreedySampler) RolloutPolicy(*Node, engine.Engine) {}

func (s *GreedySampler) DeadlockDelays() int { return s.tree.DeadlockDelays() }

func (s *GreedySampler) Copy(seed uint64) Sampler {
	c := NewGreedySampler(s.evaluate, s.schedule, seed)
	c.tree.DeadlockDelay = s.tree.DeadlockDelay
	return c
}
