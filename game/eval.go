package game

import "github.com/chewxy/math32"

// Evaluate scores a state; larger is better.
type Evaluate func(State) float32

// EvaluateDistance scores by horizontal torso position.
func EvaluateDistance(scale float32) Evaluate {
	return func(s State) float32 {
		return s.CenterX() * scale
	}
}

// EvaluateVelocity scores by horizontal torso speed.
func EvaluateVelocity(scale float32) Evaluate {
	return func(s State) float32 {
		return s.Bodies[Torso].DX * scale
	}
}

func EvaluateConstant(value float32) Evaluate {
	return func(State) float32 { return value }
}

// EvaluateHandTuned rewards distance and forward speed and penalizes the torso
// leaning away from its starting angle.
func EvaluateHandTuned(s State) float32 {
	torso := s.Bodies[Torso]
	lean := math32.Abs(torso.Th - initialTorsoAngle)
	return torso.X + 0.5*torso.DX - 2*lean
}

// initialTorsoAngle is the torso angle of the canonical starting pose.
const initialTorsoAngle = -1.251 + 1.651902129
