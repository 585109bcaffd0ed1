package searcher

import (
	"encoding/binary"
	"errors"
	"math"

	"qwop/engine"
	"qwop/game"
)

// lineEngine moves the torso forward by command+1 every timestep and falls
// once it passes failX.
type lineEngine struct {
	x      float32
	steps  int
	failed bool
	failX  float32
}

var _ engine.Engine = (*lineEngine)(nil)

func newLineEngine() engine.Engine { return &lineEngine{} }

func (e *lineEngine) Step(cmd game.Command) game.State {
	e.steps++
	e.x += float32(cmd) + 1
	if e.failX > 0 && e.x >= e.failX {
		e.failed = true
	}
	return e.CurrentState()
}

func (e *lineEngine) StepKeys(keys []bool) (game.State, error) {
	cmd, err := game.CommandFromKeys(keys)
	if err != nil {
		return game.State{}, err
	}
	return e.Step(cmd), nil
}

func (e *lineEngine) CurrentState() game.State {
	var s game.State
	s.Bodies[game.Torso].X = e.x
	s.Failed = e.failed
	return s
}

func (e *lineEngine) Failed() bool { return e.failed }

func (e *lineEngine) Timesteps() int { return e.steps }

func (e *lineEngine) Reset() {
	e.x, e.steps, e.failed = 0, 0, false
}

func (e *lineEngine) Serialize() []byte {
	buf := make([]byte, 9)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(e.x))
	binary.LittleEndian.PutUint32(buf[4:], uint32(e.steps))
	if e.failed {
		buf[8] = 1
	}
	return buf
}

func (e *lineEngine) Restore(data []byte) error {
	if len(data) != 9 {
		return errors.New("bad snapshot")
	}
	e.x = math.Float32frombits(binary.LittleEndian.Uint32(data))
	e.steps = int(binary.LittleEndian.Uint32(data[4:]))
	e.failed = data[8] == 1
	return nil
}

// cappedGenerator offers the same candidates down to a maximum depth.
type cappedGenerator struct {
	actions  game.ActionList
	maxDepth int
}

func (g cappedGenerator) PotentialChildActions(depth int) game.ActionList {
	if g.maxDepth > 0 && depth >= g.maxDepth {
		return game.NewActionList(game.EqualDistribution())
	}
	return g.actions.Copy()
}

// threeActions offers Q for one, two and three timesteps.
func threeActions(maxDepth int) game.Generator {
	return cappedGenerator{
		actions: game.NewActionList(game.EqualDistribution(),
			game.NewAction(1, game.Q), game.NewAction(2, game.Q), game.NewAction(3, game.Q)),
		maxDepth: maxDepth,
	}
}

func stateAt(x float32) game.State {
	var s game.State
	s.Bodies[game.Torso].X = x
	return s
}

func failedAt(x float32) game.State {
	s := stateAt(x)
	s.Failed = true
	return s
}

func act(duration int) game.Action { return game.NewAction(duration, game.Q) }
