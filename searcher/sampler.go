package searcher

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"

	"qwop/engine"
	"qwop/game"
)

var (
	// ErrTreeExhausted is returned by tree policies once the start node is
	// fully explored.
	ErrTreeExhausted = errors.New("tree is fully explored")
	// ErrDeadlock is returned when a tree policy gives up waiting for locks.
	ErrDeadlock = errors.New("gave up waiting for an unlocked node")
)

// Sampler decides where a worker expands the tree and how the result is
// scored. Each worker owns its own copy; a sampler is never shared.
//
// One cycle runs TreePolicy, ExpansionPolicy and RolloutPolicy in turn. After
// executing each phase the worker reports it done and moves on once the
// phase's guard allows.
type Sampler interface {
	// TreePolicy returns a node under start with expansion rights reserved.
	TreePolicy(ctx context.Context, start *Node) (*Node, error)
	TreePolicyDone(n *Node)
	TreePolicyGuard(n *Node) bool

	// ExpansionPolicy picks one untried action of n. It panics if n has none.
	ExpansionPolicy(n *Node) game.Action
	ExpansionPolicyDone(n *Node)
	ExpansionPolicyGuard(n *Node) bool

	RolloutPolicy(n *Node, e engine.Engine)
	RolloutPolicyGuard(n *Node) bool

	// Copy returns a fresh sampler with the same settings and its own random
	// source.
	Copy(seed uint64) Sampler
}

// phases holds the guard flags shared by every sampler.
type phases struct {
	treeDone      bool
	expansionDone bool
	rolloutDone   bool
}

func (p *phases) TreePolicyDone(*Node) {
	p.treeDone = true
	p.expansionDone = false
}

func (p *phases) TreePolicyGuard(*Node) bool { return p.treeDone }

func (p *phases) ExpansionPolicyGuard(*Node) bool { return p.expansionDone }

func (p *phases) RolloutPolicyGuard(*Node) bool { return p.rolloutDone }

// DeadlockDelay bounds how a tree policy waits when every candidate node is
// locked by other workers. Each consecutive wait doubles from Initial up to
// Max. A positive Retries caps consecutive waits.
type DeadlockDelay struct {
	Initial time.Duration
	Max     time.Duration
	Retries int
}

// DefaultDeadlockDelay waits between 1ms and 50ms, forever.
var DefaultDeadlockDelay = DeadlockDelay{Initial: time.Millisecond, Max: 50 * time.Millisecond}

type backoff struct {
	DeadlockDelay
	current  time.Duration
	attempts int
	total    int
}

func (b *backoff) wait(ctx context.Context) error {
	b.attempts++
	if b.Retries > 0 && b.attempts > b.Retries {
		return ErrDeadlock
	}
	switch {
	case b.current == 0:
		b.current = max(b.Initial, time.Microsecond)
	case b.current < b.Max:
		b.current = min(2*b.current, b.Max)
	}
	b.total++
	log.Debug().Dur("delay", b.current).Int("attempt", b.attempts).Msg("deadlock delay")

	timer := time.NewTimer(b.current)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (b *backoff) reset() {
	b.current = 0
	b.attempts = 0
}

// DeadlockDelays reports how many times the sampler has waited for locks.
func (b *backoff) DeadlockDelays() int { return b.total }

// DelayCounter is implemented by samplers that wait for locks.
type DelayCounter interface {
	DeadlockDelays() int
}

// availableChildren lists children that are neither locked nor fully
// explored.
func availableChildren(n *Node) []*Node {
	var out []*Node
	for _, c := range n.Children() {
		if !c.Locked() && !c.FullyExplored() {
			out = append(out, c)
		}
	}
	return out
}

// randomDescent walks from start into random available children until it
// reserves a node with untried actions. It backs off and restarts at start
// whenever it runs into locks.
func randomDescent(ctx context.Context, start *Node, rng *rand.Rand, delay *backoff) (*Node, error) {
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
				delay.reset()
				return cur, nil
			}
			if cur.UntriedCount() == 0 {
				// Expanded by another worker meanwhile; descend instead.
				continue
			}
		} else if children := availableChildren(cur); len(children) > 0 {
			cur = children[rng.Intn(len(children))]
			continue
		}
		if err := delay.wait(ctx); err != nil {
			return nil, err
		}
		cur = start
	}
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func mustHaveUntried(n *Node) game.ActionList {
	untried := n.Untried()
	if untried.IsEmpty() {
		panic("expansion policy received a node with no untried actions")
	}
	return untried
}
