package engine

import "qwop/game"

// Engine simulates one runner. Implementations are not safe for concurrent
// use; each search worker owns its own engine.
type Engine interface {
	// Step applies one command for a single timestep and returns the new state.
	Step(cmd game.Command) game.State
	// StepKeys is Step for an explicit Q, W, O, P key slice.
	StepKeys(keys []bool) (game.State, error)
	CurrentState() game.State
	// Failed is sticky until Reset.
	Failed() bool
	Timesteps() int
	// Reset returns the runner to its initial pose.
	Reset()
	// Serialize captures everything needed to resume the simulation exactly.
	Serialize() []byte
	// Restore overwrites the engine with a serialized simulation.
	Restore(data []byte) error
}

var _ Engine = (*LocalEngine)(nil)
