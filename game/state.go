package game

import (
	"fmt"

	"gonum.org/v1/gonum/blas/blas32"
)

// BodyName indexes the bodies of the runner in State order.
type BodyName int

const (
	Torso BodyName = iota
	Head
	RThigh
	LThigh
	RCalf
	LCalf
	RFoot
	LFoot
	RUArm
	LUArm
	RLArm
	LLArm
	NumBodies
)

// StateSize is the length of a flattened State.
const StateSize = int(NumBodies) * 6

var bodyNames = [NumBodies]string{
	"torso", "head", "rthigh", "lthigh", "rcalf", "lcalf",
	"rfoot", "lfoot", "ruarm", "luarm", "rlarm", "llarm",
}

func (b BodyName) String() string {
	if b < 0 || b >= NumBodies {
		return fmt.Sprintf("body(%d)", int(b))
	}
	return bodyNames[b]
}

// BodyState is the pose and velocity of one rigid body.
type BodyState struct {
	X, Y, Th    float32
	DX, DY, DTh float32
}

// State is an immutable snapshot of every body of the runner.
type State struct {
	Bodies [NumBodies]BodyState
	Failed bool
}

func (s State) Body(name BodyName) BodyState { return s.Bodies[name] }

// CenterX is the horizontal torso position, used as distance travelled.
func (s State) CenterX() float32 { return s.Bodies[Torso].X }

// Flatten returns the 72 state variables in body order. Horizontal positions
// are made relative to the torso.
func (s State) Flatten() []float32 {
	out := make([]float32, 0, StateSize)
	cx := s.CenterX()
	for _, b := range s.Bodies {
		out = append(out, b.X-cx, b.Y, b.Th, b.DX, b.DY, b.DTh)
	}
	return out
}

// Raw returns the 72 state variables without the torso offset.
func (s State) Raw() []float32 {
	out := make([]float32, 0, StateSize)
	for _, b := range s.Bodies {
		out = append(out, b.X, b.Y, b.Th, b.DX, b.DY, b.DTh)
	}
	return out
}

// StateFromRaw is the inverse of Raw.
func StateFromRaw(raw []float32, failed bool) (State, error) {
	if len(raw) != StateSize {
		return State{}, fmt.Errorf("state must have %d values, got %d", StateSize, len(raw))
	}
	var s State
	for i := range s.Bodies {
		v := raw[i*6 : i*6+6]
		s.Bodies[i] = BodyState{X: v[0], Y: v[1], Th: v[2], DX: v[3], DY: v[4], DTh: v[5]}
	}
	s.Failed = failed
	return s, nil
}

func vector(data []float32) blas32.Vector {
	return blas32.Vector{N: len(data), Inc: 1, Data: data}
}

// Add returns s + other elementwise. The failure flag is taken from s.
func (s State) Add(other State) State {
	y := s.Raw()
	blas32.Axpy(1, vector(other.Raw()), vector(y))
	out, _ := StateFromRaw(y, s.Failed)
	return out
}

// Sub returns s - other elementwise. The failure flag is taken from s.
func (s State) Sub(other State) State {
	y := s.Raw()
	blas32.Axpy(-1, vector(other.Raw()), vector(y))
	out, _ := StateFromRaw(y, s.Failed)
	return out
}

// Scale multiplies every variable by k.
func (s State) Scale(k float32) State {
	x := s.Raw()
	blas32.Scal(k, vector(x))
	out, _ := StateFromRaw(x, s.Failed)
	return out
}

func (s State) String() string {
	return fmt.Sprintf("State{x=%.3f failed=%t}", s.CenterX(), s.Failed)
}

// GoalDistance is the torso position of the finish line.
const GoalDistance float32 = 1000
