package searcher

import (
	"context"

	"github.com/chewxy/math32"
	"golang.org/x/exp/rand"

	"qwop/engine"
	"qwop/game"
)

// Default exploration settings for UCB.
const (
	DefaultExplorationConstant     = 5
	DefaultExplorationRandomFactor = 1
)

func ucb(value float32, visits int, c float32, parentVisits int) float32 {
	if visits == 0 { // Prevent division by zero
		panic("cannot compute UCB: 0 visits")
	}
	return value + c*math32.Sqrt(2*math32.Log(float32(parentVisits))/float32(visits))
}

type UCBOption func(s *UCBSampler)

func WithExplorationConstant(c float32) UCBOption {
	return func(s *UCBSampler) {
		s.explorationConstant = c
	}
}

// WithExplorationRandomFactor sets the width of the per-sampler jitter added
// to the exploration constant.
func WithExplorationRandomFactor(f float32) UCBOption {
	return func(s *UCBSampler) {
		if f >= 0 {
			s.randomFactor = f
		}
	}
}

func WithDeadlockDelay(d DeadlockDelay) UCBOption {
	return func(s *UCBSampler) {
		s.DeadlockDelay = d
	}
}

func WithUpdater(u ValueUpdater) UCBOption {
	return func(s *UCBSampler) {
		if u != nil {
			s.updater = u
		}
	}
}

// UCBSampler selects children by upper confidence bound, expands by the
// candidate distribution and scores new nodes with a rollout policy.
type UCBSampler struct {
	phases
	backoff
	evaluate            Evaluator
	rollout             RolloutPolicy
	updater             ValueUpdater
	explorationConstant float32
	randomFactor        float32
	c                   float32
	rng                 *rand.Rand
	options             []UCBOption
}

func NewUCBSampler(eval Evaluator, rollout RolloutPolicy, seed uint64, options ...UCBOption) *UCBSampler {
	s := &UCBSampler{ // Default values
		backoff:             backoff{DeadlockDelay: DefaultDeadlockDelay},
		evaluate:            eval,
		rollout:             rollout,
		updater:             AverageUpdater{},
		explorationConstant: DefaultExplorationConstant,
		randomFactor:        DefaultExplorationRandomFactor,
		rng:                 newRand(seed),
		options:             options,
	}
	for _, option := range options {
		option(s)
	}
	s.c = s.randomFactor*s.rng.Float32() + s.explorationConstant
	return s
}

// C is this sampler's exploration constant including jitter.
func (s *UCBSampler) C() float32 { return s.c }

func (s *UCBSampler) TreePolicy(ctx context.Context, start *Node) (*Node, error) {
	cur := start
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if start.FullyExplored() {
			return nil, ErrTreeExhausted
		}

		if cur == start && (cur.ChildCount() == 0 || cur.Locked()) {
			if cur.ReserveExpandable() {
				s.reset()
				return cur, nil
			}
			if err := s.wait(ctx); err != nil {
				return nil, err
			}
			continue
		}

		if cur.UntriedCount() > 0 {
			if cur.ReserveExpandable() {
				s.reset()
				return cur, nil
			}
			if cur.UntriedCount() == 0 {
				continue
			}
			if cur != start {
				cur = cur.parent
				continue
			}
			if err := s.wait(ctx); err != nil {
				return nil, err
			}
			continue
		}

		best := s.bestChild(cur)
		if best == nil {
			if err := s.wait(ctx); err != nil {
				return nil, err
			}
			cur = start
			continue
		}
		s.reset()
		cur = best
	}
}

// bestChild returns the unlocked, unexplored, visited child with the highest
// bound, or nil if there is none.
func (s *UCBSampler) bestChild(n *Node) *Node {
	var best *Node
	bestScore := float32(-math32.MaxFloat32)
	parentVisits := n.Visits()
	for _, child := range n.Children() {
		if child.FullyExplored() || child.Locked() || child.Visits() == 0 {
			continue
		}
		if score := ucb(child.Value(), child.Visits(), s.c, parentVisits); score > bestScore {
			best, bestScore = child, score
		}
	}
	return best
}

func (s *UCBSampler) ExpansionPolicy(n *Node) game.Action {
	return mustHaveUntried(n).Sample(s.rng)
}

// ExpansionPolicyDone scores failed or finished nodes right away and skips
// their rollout.
func (s *UCBSampler) ExpansionPolicyDone(n *Node) {
	s.treeDone = false
	s.expansionDone = true
	state := n.State()
	if state.Failed || state.CenterX() >= game.GoalDistance {
		s.rolloutDone = true
		n.Backup(s.evaluate(n), s.updater)
		return
	}
	s.rolloutDone = false
}

func (s *UCBSampler) RolloutPolicy(n *Node, e engine.Engine) {
	if n.State().Failed {
		panic("rollout policy received a node whose state has already failed")
	}
	score := s.rollout.Rollout(n, e, s.rng)
	n.Backup(score, s.updater)
	s.rolloutDone = true
}

func (s *UCBSampler) Copy(seed uint64) Sampler {
	return NewUCBSampler(s.evaluate, s.rollout, seed, s.options...)
}
