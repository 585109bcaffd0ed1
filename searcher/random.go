package searcher

import (
	"context"
	"fmt"

	"golang.org/x/exp/rand"

	"qwop/engine"
	"qwop/game"
)

// RandomSampler descends into random available children and expands a
// uniformly chosen untried action. It does no rollouts.
type RandomSampler struct {
	phases
	backoff
	rng *rand.Rand
}

func NewRandomSampler(seed uint64) *RandomSampler {
	return &RandomSampler{rng: newRand(seed), backoff: backoff{DeadlockDelay: DefaultDeadlockDelay}}
}

func (s *RandomSampler) TreePolicy(ctx context.Context, start *Node) (*Node, error) {
	return randomDescent(ctx, start, s.rng, &s.backoff)
}

func (s *RandomSampler) ExpansionPolicy(n *Node) game.Action {
	untried := mustHaveUntried(n)
	return untried.At(s.rng.Intn(untried.Len()))
}

func (s *RandomSampler) ExpansionPolicyDone(*Node) {
	s.treeDone = false
	s.expansionDone = true
	s.rolloutDone = true
}

func (s *RandomSampler) RolloutPolicy(*Node, engine.Engine) {}

func (s *RandomSampler) Copy(seed uint64) Sampler {
	c := NewRandomSampler(seed)
	c.DeadlockDelay = s.DeadlockDelay
	return c
}

// DistributionSampler is RandomSampler but expands according to each
// candidate list's sampling distribution.
type DistributionSampler struct {
	RandomSampler
}

func NewDistributionSampler(seed uint64) *DistributionSampler {
	return &DistributionSampler{RandomSampler: *NewRandomSampler(seed)}
}

func (s *DistributionSampler) ExpansionPolicy(n *Node) game.Action {
	return mustHaveUntried(n).Sample(s.rng)
}

func (s *DistributionSampler) Copy(seed uint64) Sampler {
	c := NewDistributionSampler(seed)
	c.DeadlockDelay = s.DeadlockDelay
	return c
}

// FixedDepthSampler exhaustively expands the tree to a fixed depth below the
// node its tree policy starts from. Nodes reached at that depth have their
// candidates cleared instead of being expanded.
type FixedDepthSampler struct {
	RandomSampler
	depth int
}

func NewFixedDepthSampler(depth int, seed uint64) *FixedDepthSampler {
	if depth < 1 {
		panic(fmt.Sprintf("fixed depth must be at least 1, got %d", depth))
	}
	return &FixedDepthSampler{RandomSampler: *NewRandomSampler(seed), depth: depth}
}

func (s *FixedDepthSampler) TreePolicy(ctx context.Context, start *Node) (*Node, error) {
	limit := start.Depth() + s.depth
	cur := start
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if start.FullyExplored() {
			return nil, ErrTreeExhausted
		}
		if cur.UntriedCount() > 0 {
			if cur.ReserveExpandable() {
				if cur.Depth() < limit {
					s.reset()
					return cur, nil
				}
				cur.ClearUntried()
				cur.Release()
				cur = start
				continue
			}
			if cur.UntriedCount() == 0 {
				continue
			}
		} else if children := availableChildren(cur); len(children) > 0 {
			cur = children[s.rng.Intn(len(children))]
			continue
		}
		if err := s.wait(ctx); err != nil {
			return nil, err
		}
		cur = start
	}
}

func (s *FixedDepthSampler) Copy(seed uint64) Sampler {
	c := NewFixedDepthSampler(s.depth, seed)
	c.DeadlockDelay = s.DeadlockDelay
	return c
}
