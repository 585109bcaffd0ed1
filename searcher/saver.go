package searcher

import "qwop/game"

// DataSaver records the games played by a stage. Every worker gets its own
// fork, so a fork is only called from one goroutine. Implementations must
// not block the search.
type DataSaver interface {
	// ReportGameInitialization is called after the engine is reset.
	ReportGameInitialization(initial game.State)
	// ReportTimestep is called after each action of a game finishes executing.
	ReportTimestep(action game.Action, state game.State)
	// ReportGameEnding is called with the last permanent node of a game.
	ReportGameEnding(end *Node)
	// ReportStageEnding is called once by the stage after its workers stop.
	ReportStageEnding(root *Node, results []*Node)
	Fork() DataSaver
	Close() error
}

// NullSaver discards everything.
type NullSaver struct{}

func (NullSaver) ReportGameInitialization(game.State)   {}
func (NullSaver) ReportTimestep(game.Action, game.State) {}
func (NullSaver) ReportGameEnding(*Node)                {}
func (NullSaver) ReportStageEnding(*Node, []*Node)      {}
func (s NullSaver) Fork() DataSaver                     { return s }
func (NullSaver) Close() error                          { return nil }
