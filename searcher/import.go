package searcher

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"qwop/game"
)

// ImportReport counts what ImportRuns did to the tree.
type ImportReport struct {
	Runs    int
	Created int
	Reused  int
	Skipped int
}

// ImportRuns adds saved runs below root. Runs sharing a prefix share nodes.
// New nodes get gen as their generator, a hard value of 0, and explored
// flags are recomputed for the whole tree once all runs are in. Runs that
// fail validation are skipped and reported in the returned error.
func ImportRuns(root *Node, runs []game.Run, gen game.Generator) (*ImportReport, error) {
	report := &ImportReport{}
	var invalid []string
	for _, run := range runs {
		if err := run.Validate(); err != nil {
			log.Warn().Err(err).Str("run", run.ID).Msg("skipping invalid run")
			invalid = append(invalid, run.ID)
			report.Skipped++
			continue
		}
		cur := root
		for i, action := range run.Actions {
			if child := cur.Child(action); child != nil {
				report.Reused++
				cur = child
				continue
			}
			child := cur.addChild(action, run.States[i], gen, false)
			child.UpdateValue(0, HardSetUpdater{})
			report.Created++
			cur = child
		}
		report.Runs++
	}
	root.PropagateExploredComplete()

	log.Info().Int("runs", report.Runs).Int("created", report.Created).Int("reused", report.Reused).Msg("imported runs")
	if len(invalid) > 0 {
		return report, fmt.Errorf("skipped %d invalid runs: %v", len(invalid), invalid)
	}
	return report, nil
}

// Validate checks the structural invariants of n's subtree: unique child
// actions, consistent depths and parents, and sound explored flags.
func (n *Node) Validate() error {
	var err error
	n.Walk(func(cur *Node) bool {
		children := cur.Children()
		for i, c := range children {
			if c.parent != cur {
				err = fmt.Errorf("child %s of %s does not point back to it", c, cur)
				return false
			}
			if c.depth != cur.depth+1 {
				err = fmt.Errorf("child %s has depth %d under parent depth %d", c, c.depth, cur.depth)
				return false
			}
			for _, other := range children[i+1:] {
				if c.action.Equal(other.action) {
					err = fmt.Errorf("node %s has two children for %s", cur, c.action)
					return false
				}
			}
		}
		if cur.FullyExplored() && !cur.state.Failed {
			if cur.UntriedCount() > 0 {
				err = fmt.Errorf("node %s is fully explored with untried actions", cur)
				return false
			}
			for _, c := range children {
				if !c.FullyExplored() {
					err = fmt.Errorf("node %s is fully explored but child %s is not", cur, c)
					return false
				}
			}
		}
		return true
	})
	return err
}
