package searcher

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// exploredNow recomputes whether n is fully explored from its own untried
// actions and its children's flags.
func (n *Node) exploredNow() bool {
	if n.state.Failed {
		return true
	}
	n.RLock()
	defer n.RUnlock()
	if !n.untried.IsEmpty() {
		return false
	}
	for _, c := range n.children {
		if !c.explored.Load() {
			return false
		}
	}
	return true
}

// PropagateExploredLite marks n fully explored if its children already are,
// continuing toward the root while nodes flip. It is only sound when every
// descendant flag is already correct.
func (n *Node) PropagateExploredLite() {
	for cur := n; cur != nil; cur = cur.parent {
		if !cur.exploredNow() {
			return
		}
		cur.explored.Store(true)
	}
}

// PropagateExploredComplete clears every flag in n's subtree and recomputes
// them from the leaves. Used after bulk changes such as import.
func (n *Node) PropagateExploredComplete() {
	var all []*Node
	n.Walk(func(cur *Node) bool {
		all = append(all, cur)
		return true
	})
	for _, cur := range all {
		cur.explored.Store(false)
	}
	// Children always appear after their parent in the walk, so a reverse pass
	// settles each node after all of its descendants.
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].exploredNow() {
			all[i].explored.Store(true)
		}
	}
	if n.parent != nil && n.explored.Load() {
		n.parent.PropagateExploredLite()
	}
}

// ClearUntried drops n's remaining candidates, then marks it explored if
// every child already is.
func (n *Node) ClearUntried() {
	n.Lock()
	n.untried.Clear()
	n.Unlock()
	n.PropagateExploredLite()
}

// StripUntriedExceptLeaves clears untried actions of every node above
// maxDepth that already has children, so search only extends the frontier.
func (n *Node) StripUntriedExceptLeaves(maxDepth int) {
	if maxDepth < 0 {
		panic(fmt.Sprintf("max depth must be non-negative, got %d", maxDepth))
	}
	n.Walk(func(cur *Node) bool {
		if cur.depth <= maxDepth && cur.ChildCount() > 0 && cur.UntriedCount() > 0 {
			cur.ClearUntried()
		}
		return true
	})
}

// DestroyBelow detaches every child of n and restores n's candidates from
// its generator so the subtree can be searched again.
func (n *Node) DestroyBelow() {
	n.Lock()
	dropped := len(n.children)
	n.children = nil
	n.populateUntried()
	n.Unlock()
	log.Debug().Int("depth", n.depth).Int("children", dropped).Msg("destroyed subtree")

	n.explored.Store(false)
	if n.exploredNow() {
		n.PropagateExploredLite()
		return
	}
	// Ancestors marked explored on n's behalf no longer are.
	for p := n.parent; p != nil; p = p.parent {
		if !p.explored.Load() || p.exploredNow() {
			break
		}
		p.explored.Store(false)
	}
}
