package searcher

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"qwop/game"
)

// Node is one vertex of the exploration tree. Structure (children and
// untried actions) is guarded by the embedded RWMutex; flags and value
// statistics are atomics so readers never block writers.
type Node struct {
	sync.RWMutex
	parent   *Node
	action   game.Action
	hasAct   bool
	state    game.State
	depth    int
	gen      game.Generator
	children []*Node
	untried  game.ActionList

	explored atomic.Bool
	locked   atomic.Bool
	// implicit is set when the lock was taken because every child became
	// unavailable, not by a worker reservation.
	implicit bool
	lockMu   sync.Mutex

	stats atomic.Uint64
}

// NewRoot creates a tree root. Children inherit gen unless given their own.
func NewRoot(state game.State, gen game.Generator) *Node {
	if gen == nil {
		gen = game.NullGenerator{}
	}
	n := &Node{state: state, gen: gen}
	n.populateUntried()
	if n.untried.IsEmpty() {
		n.explored.Store(true)
	}
	return n
}

func newChild(parent *Node, action game.Action, state game.State, gen game.Generator) *Node {
	if gen == nil {
		gen = parent.gen
	}
	n := &Node{
		parent: parent,
		action: action.Copy(),
		hasAct: true,
		state:  state,
		depth:  parent.depth + 1,
		gen:    gen,
	}
	n.action.Reset()
	n.populateUntried()
	return n
}

func (n *Node) populateUntried() {
	if n.state.Failed {
		n.untried = game.NewActionList(nil)
		return
	}
	n.untried = n.gen.PotentialChildActions(n.depth)
}

// AddDoublyLinkedChild adds a permanent child for action. The action must
// not already have a child here.
func (n *Node) AddDoublyLinkedChild(action game.Action, state game.State) *Node {
	return n.AddDoublyLinkedChildWith(action, state, nil)
}

// AddDoublyLinkedChildWith is AddDoublyLinkedChild with an explicit
// generator for the child's candidates.
func (n *Node) AddDoublyLinkedChildWith(action game.Action, state game.State, gen game.Generator) *Node {
	return n.addChild(action, state, gen, true)
}

func (n *Node) addChild(action game.Action, state game.State, gen game.Generator, warn bool) *Node {
	child := newChild(n, action, state, gen)

	n.Lock()
	for _, c := range n.children {
		if c.action.Equal(action) {
			n.Unlock()
			panic(fmt.Sprintf("node at depth %d already has a child for %s", n.depth, action))
		}
	}
	n.children = append(n.children, child)
	removed := n.untried.Remove(action)
	n.Unlock()

	if !removed && warn {
		log.Warn().Msgf("added child %s that was not an untried action at depth %d", action, n.depth)
	}
	if child.UntriedCount() == 0 {
		child.PropagateExploredLite()
	}
	return child
}

// AddBackwardsLinkedChild creates a transient child that knows its parent
// but is invisible from it. Such nodes are for rollouts only.
func (n *Node) AddBackwardsLinkedChild(action game.Action, state game.State, gen game.Generator) *Node {
	child := newChild(n, action, state, gen)
	if child.state.Failed {
		child.explored.Store(true)
	}
	return child
}

func (n *Node) Parent() *Node { return n.parent }

// Action is the action that reached this node. The root has none.
func (n *Node) Action() (game.Action, bool) { return n.action, n.hasAct }

func (n *Node) State() game.State { return n.state }

func (n *Node) Depth() int { return n.depth }

func (n *Node) Generator() game.Generator { return n.gen }

// Children returns a snapshot of the child list.
func (n *Node) Children() []*Node {
	n.RLock()
	defer n.RUnlock()
	return append([]*Node(nil), n.children...)
}

func (n *Node) ChildCount() int {
	n.RLock()
	defer n.RUnlock()
	return len(n.children)
}

// Child returns the child reached by action, if any.
func (n *Node) Child(action game.Action) *Node {
	n.RLock()
	defer n.RUnlock()
	for _, c := range n.children {
		if c.action.Equal(action) {
			return c
		}
	}
	return nil
}

func (n *Node) UntriedCount() int {
	n.RLock()
	defer n.RUnlock()
	return n.untried.Len()
}

// Untried returns a copy of the untried actions.
func (n *Node) Untried() game.ActionList {
	n.RLock()
	defer n.RUnlock()
	return n.untried.Copy()
}

func (n *Node) FullyExplored() bool { return n.explored.Load() }

func (n *Node) Locked() bool { return n.locked.Load() }

func (n *Node) Root() *Node {
	r := n
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// IsAncestor reports whether other lies strictly above n.
func (n *Node) IsAncestor(other *Node) bool {
	for p := n.parent; p != nil; p = p.parent {
		if p == other {
			return true
		}
	}
	return false
}

// Sequence returns the actions from the tree root down to n.
func (n *Node) Sequence() []game.Action {
	if n.parent == nil {
		panic("cannot get the action sequence of a root node")
	}
	seq := make([]game.Action, n.depth)
	for cur := n; cur.parent != nil; cur = cur.parent {
		seq[cur.depth-1] = cur.action.Copy()
	}
	return seq
}

// CumulativeTimesteps is the number of simulated timesteps from the root.
func (n *Node) CumulativeTimesteps() int {
	total := 0
	for cur := n; cur.parent != nil; cur = cur.parent {
		total += cur.action.Duration()
	}
	return total
}

// Path returns the nodes from the tree root down to n inclusive.
func (n *Node) Path() []*Node {
	path := make([]*Node, n.depth+1)
	for cur := n; cur != nil; cur = cur.parent {
		path[cur.depth] = cur
	}
	return path
}

// Walk visits n and its descendants depth first until fn returns false.
func (n *Node) Walk(fn func(*Node) bool) {
	stack := []*Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(cur) {
			return
		}
		children := cur.Children()
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
}

// Leaves returns every childless node in n's subtree.
func (n *Node) Leaves() []*Node {
	var leaves []*Node
	n.Walk(func(cur *Node) bool {
		if cur.ChildCount() == 0 {
			leaves = append(leaves, cur)
		}
		return true
	})
	return leaves
}

// Size counts the nodes in n's subtree.
func (n *Node) Size() int {
	size := 0
	n.Walk(func(*Node) bool {
		size++
		return true
	})
	return size
}

// MaxDepth is the depth of the deepest node in n's subtree.
func (n *Node) MaxDepth() int {
	deepest := n.depth
	n.Walk(func(cur *Node) bool {
		deepest = max(deepest, cur.depth)
		return true
	})
	return deepest
}

// BestLeaf returns the leaf under n that scores highest.
func (n *Node) BestLeaf(eval Evaluator) *Node {
	best := n
	bestScore := float32(0)
	first := true
	for _, leaf := range n.Leaves() {
		if score := eval(leaf); first || score > bestScore {
			best, bestScore, first = leaf, score, false
		}
	}
	return best
}

func (n *Node) String() string {
	if !n.hasAct {
		return fmt.Sprintf("root{children: %d, untried: %d}", n.ChildCount(), n.UntriedCount())
	}
	return fmt.Sprintf("node{depth: %d, action: %s, x: %.2f, failed: %t, explored: %t, locked: %t}",
		n.depth, n.action, n.state.CenterX(), n.state.Failed, n.FullyExplored(), n.Locked())
}
