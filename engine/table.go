package engine

import (
	"github.com/chewxy/math32"

	"qwop/game"
)

// MotorTarget sets a joint's motor speed.
type MotorTarget struct {
	Joint JointID
	Speed float32
}

// LimitTarget replaces a joint's angle limits.
type LimitTarget struct {
	Joint        JointID
	Lower, Upper float32
}

// Key response table. Q and W drive hips and shoulders, O and P drive knees
// and move the hip limits. Q wins over W and O wins over P.
var (
	qSpeeds = []MotorTarget{{LHip, -2.5}, {RHip, 2.5}, {LShoulder, 2}, {RShoulder, -2}}
	wSpeeds = []MotorTarget{{LHip, 2.5}, {RHip, -2.5}, {LShoulder, -2}, {RShoulder, 2}}
	qwIdle  = []MotorTarget{{LHip, 0}, {RHip, 0}, {LShoulder, 0}, {RShoulder, 0}}

	oSpeeds = []MotorTarget{{RKnee, 2.5}, {LKnee, -2.5}}
	pSpeeds = []MotorTarget{{RKnee, -2.5}, {LKnee, 2.5}}
	opIdle  = []MotorTarget{{RKnee, 0}, {LKnee, 0}}

	oLimits = []LimitTarget{{RHip, -1.3, 0.7}, {LHip, -1, 1}}
	pLimits = []LimitTarget{{RHip, -0.8, 1.2}, {LHip, -1.5, 0.5}}
)

const ankleSpeed = 2

// Spring stiffness for the passive joints.
const (
	neckStiffness  = 15
	elbowStiffness = 1
	springSpeed    = 1000
)

// Targets returns the motor and limit changes a command applies. The ankle
// flags report whether each ankle sits left of the right hip.
func Targets(cmd game.Command, rAnkleBehind, lAnkleBehind bool) ([]MotorTarget, []LimitTarget) {
	var motors []MotorTarget
	var limits []LimitTarget

	switch {
	case cmd.Q():
		motors = append(motors, qSpeeds...)
	case cmd.W():
		motors = append(motors, wSpeeds...)
	default:
		motors = append(motors, qwIdle...)
	}

	if cmd.Q() || cmd.W() {
		r, l := float32(ankleSpeed), float32(-ankleSpeed)
		if rAnkleBehind {
			r = -ankleSpeed
		}
		if lAnkleBehind {
			l = ankleSpeed
		}
		motors = append(motors, MotorTarget{RAnkle, r}, MotorTarget{LAnkle, l})
	}

	switch {
	case cmd.O():
		motors = append(motors, oSpeeds...)
		limits = append(limits, oLimits...)
	case cmd.P():
		motors = append(motors, pSpeeds...)
		limits = append(limits, pLimits...)
	default:
		motors = append(motors, opIdle...)
	}
	return motors, limits
}

// Spring returns the motor speed and torque cap that pull a joint back
// toward zero angle with the given stiffness.
func Spring(angle, stiffness float32) (speed, maxTorque float32) {
	torque := -stiffness * angle
	return springSpeed * sign(torque), math32.Abs(torque)
}

func sign(v float32) float32 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
