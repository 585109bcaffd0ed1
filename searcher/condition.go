package searcher

import (
	"fmt"
	"sort"
)

// Condition decides when a stage is over and what it produced.
type Condition interface {
	// Budget is the number of games the stage may play, or 0 for no limit.
	Budget() int
	// Met is polled while the stage runs.
	Met(root *Node) bool
	Results(root *Node) []*Node
	String() string
}

// FixedGames stops after a number of games. Its result is the best leaf.
type FixedGames struct {
	Games    int
	Evaluate Evaluator
}

func (c FixedGames) Budget() int { return c.Games }

func (c FixedGames) Met(root *Node) bool { return root.FullyExplored() }

func (c FixedGames) Results(root *Node) []*Node {
	return []*Node{root.BestLeaf(orDistance(c.Evaluate))}
}

func (c FixedGames) String() string { return fmt.Sprintf("fixed_games(%d)", c.Games) }

// MaxDepth stops once any node reaches Depth below the stage root, or after
// Games games if Games is positive. Its result is the deepest node, ties
// going to the one furthest along.
type MaxDepth struct {
	Depth int
	Games int
}

func (c MaxDepth) Budget() int { return c.Games }

func (c MaxDepth) Met(root *Node) bool {
	if root.FullyExplored() {
		return true
	}
	found := false
	root.Walk(func(n *Node) bool {
		found = n.Depth()-root.Depth() >= c.Depth
		return !found
	})
	return found
}

func (c MaxDepth) Results(root *Node) []*Node {
	best := root
	root.Walk(func(n *Node) bool {
		if n.Depth() > best.Depth() || (n.Depth() == best.Depth() && n.State().CenterX() > best.State().CenterX()) {
			best = n
		}
		return true
	})
	return []*Node{best}
}

func (c MaxDepth) String() string { return fmt.Sprintf("max_depth(%d)", c.Depth) }

// MinDepth stops once every path from the stage root has either reached
// Depth or ended in a fully explored node, or after Games games if Games is
// positive. Its results are the unfailed nodes at Depth, furthest first.
type MinDepth struct {
	Depth int
	Games int
}

func (c MinDepth) Budget() int { return c.Games }

func (c MinDepth) Met(root *Node) bool {
	return c.covered(root, root.Depth()+c.Depth)
}

func (c MinDepth) covered(n *Node, target int) bool {
	if n.FullyExplored() || n.Depth() >= target {
		return true
	}
	if n.UntriedCount() > 0 {
		return false
	}
	children := n.Children()
	if len(children) == 0 {
		return false
	}
	for _, child := range children {
		if !c.covered(child, target) {
			return false
		}
	}
	return true
}

func (c MinDepth) Results(root *Node) []*Node {
	target := root.Depth() + c.Depth
	var results []*Node
	root.Walk(func(n *Node) bool {
		if n.Depth() == target && !n.State().Failed {
			results = append(results, n)
		}
		return true
	})
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].State().CenterX() > results[j].State().CenterX()
	})
	return results
}

func (c MinDepth) String() string { return fmt.Sprintf("min_depth(%d)", c.Depth) }

// SearchForever stops only when the stage root is fully explored.
type SearchForever struct{}

func (SearchForever) Budget() int { return 0 }

func (SearchForever) Met(root *Node) bool { return root.FullyExplored() }

func (SearchForever) Results(root *Node) []*Node { return []*Node{root} }

func (SearchForever) String() string { return "search_forever" }

func orDistance(eval Evaluator) Evaluator {
	if eval == nil {
		return EvaluateDistance()
	}
	return eval
}
