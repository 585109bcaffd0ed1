package game

import "fmt"

// Run is a persisted path through the tree: States[i] is the state reached
// after executing Actions[i] from the previous state.
type Run struct {
	ID      string
	Actions []Action
	States  []State
}

func (r Run) Validate() error {
	if len(r.Actions) != len(r.States) {
		return fmt.Errorf("run %s has %d actions but %d states", r.ID, len(r.Actions), len(r.States))
	}
	return nil
}
