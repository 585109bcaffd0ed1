package engine

import (
	"qwop/game"
	"qwop/physics"
)

const (
	// Timestep is the simulated time advanced by one Step.
	Timestep float32 = 0.04
	// Iterations is used for both velocity and position solver passes.
	Iterations = 5

	// Torso angles outside (TorsoAngleLower, TorsoAngleUpper) end the run.
	TorsoAngleUpper float32 = 1.2
	TorsoAngleLower float32 = -0.2
)

var (
	gravity = physics.V(0, 10)
	track   = physics.Ground{SurfaceY: 8.90813, Friction: 1, Restitution: 0.2}
)

// bodyLayout is indexed by game.BodyName.
var bodyLayout = [game.NumBodies]physics.BodyDef{
	game.Torso: {
		Position: physics.V(2.525, -1.926), Angle: -1.251 + 1.651902129,
		Mass: 18.668, Inertia: 79.376, Shape: physics.Box(1.5/2, 5/2.0), Friction: 0.2,
	},
	game.Head: {
		Position: physics.V(3.896, -5.679), Angle: 0.058 + 0.201921414,
		Mass: 5.674, Inertia: 5.483, Shape: physics.Circle(1.1), Friction: 0.2,
	},
	game.RThigh: {
		Position: physics.V(1.659, 1.999), Angle: 1.468 - 1.544382589,
		Mass: 10.54, Inertia: 28.067, Shape: physics.Box(0.6/2, 4.19/2), Friction: 0.2,
	},
	game.LThigh: {
		Position: physics.V(2.52, 1.615), Angle: -1.977 + 1.619256373,
		Mass: 10.037, Inertia: 24.546, Shape: physics.Box(0.6/2, 3.56/2), Friction: 0.2,
	},
	game.RCalf: {
		Position: physics.V(0.0850, 5.381), Angle: -0.821 + 1.606188724,
		Mass: 7.407, Inertia: 16.644, Shape: physics.Box(0.4/2, 4.21/2), Friction: 0.2,
	},
	game.LCalf: {
		Position: physics.V(2.986, 5.523), Angle: -1.582 + 1.607108307,
		Mass: 7.464, Inertia: 16.893, Shape: physics.Box(0.4/2, 4.43/2), Friction: 0.2,
	},
	game.RFoot: {
		Position: physics.V(-0.96750, 7.77200), Angle: 0.7498,
		Mass: 11.630, Inertia: 9.017, Shape: physics.Box(2.68750/2, 1.44249/2), Friction: 1.5,
	},
	game.LFoot: {
		Position: physics.V(3.763, 8.101), Angle: 0.1429,
		Mass: 10.895, Inertia: 8.242, Shape: physics.Box(2.695/2, 1.34750/2), Friction: 1.5,
	},
	game.RUArm: {
		Position: physics.V(1.165, -3.616), Angle: -0.466 + 1.571196588,
		Mass: 5.837, Inertia: 8.479, Shape: physics.Box(0.2/2, 2.58/2), Friction: 0.2,
	},
	game.LUArm: {
		Position: physics.V(4.475, -2.911), Angle: 0.843 - 1.690706418,
		Mass: 4.6065, Inertia: 5.85, Shape: physics.Box(0.15/2, 2.68/2), Friction: 0.2,
	},
	game.RLArm: {
		Position: physics.V(0.3662, -1.248), Angle: -1.762 + 1.521319096,
		Mass: 5.99, Inertia: 10.768, Shape: physics.Box(0.15/2, 3.56/2), Friction: 0.2,
	},
	game.LLArm: {
		Position: physics.V(5.899, -3.06), Angle: -1.251 + 1.447045854,
		Mass: 3.8445, Inertia: 4.301, Shape: physics.Box(0.12/2, 2.54/2), Friction: 0.2,
	},
}

// JointID indexes the runner's joints.
type JointID int

const (
	RAnkle JointID = iota
	LAnkle
	RKnee
	LKnee
	RHip
	LHip
	Neck
	RShoulder
	LShoulder
	RElbow
	LElbow
	NumJoints
)

var jointNames = [NumJoints]string{
	"rankle", "lankle", "rknee", "lknee", "rhip", "lhip",
	"neck", "rshoulder", "lshoulder", "relbow", "lelbow",
}

func (j JointID) String() string { return jointNames[j] }

type jointSpec struct {
	a, b           game.BodyName
	anchor         physics.Vec2
	lower, upper   float32
	enableMotor    bool
	motorSpeed     float32
	maxMotorTorque float32
}

// jointLayout is indexed by JointID. Every joint has its limit enabled.
var jointLayout = [NumJoints]jointSpec{
	RAnkle:    {a: game.RFoot, b: game.RCalf, anchor: physics.V(-0.96750, 7.77200), lower: -0.5, upper: 0.5, maxMotorTorque: 2000},
	LAnkle:    {a: game.LFoot, b: game.LCalf, anchor: physics.V(3.763, 8.101), lower: -0.5, upper: 0.5, maxMotorTorque: 2000},
	RKnee:     {a: game.RCalf, b: game.RThigh, anchor: physics.V(1.58, 4.11375), lower: -1.3, upper: 0.3, enableMotor: true, maxMotorTorque: 3000},
	LKnee:     {a: game.LCalf, b: game.LThigh, anchor: physics.V(3.26250, 3.51625), lower: -1.6, upper: 0, enableMotor: true, maxMotorTorque: 3000},
	RHip:      {a: game.RThigh, b: game.Torso, anchor: physics.V(1.260, -0.06750), lower: -1.3, upper: 0.7, enableMotor: true, maxMotorTorque: 6000},
	LHip:      {a: game.LThigh, b: game.Torso, anchor: physics.V(2.01625, 0.18125), lower: -1.5, upper: 0.5, enableMotor: true, maxMotorTorque: 6000},
	Neck:      {a: game.Head, b: game.Torso, anchor: physics.V(3.60400, -4.581), lower: -0.5, upper: 0, enableMotor: true, motorSpeed: 1000},
	RShoulder: {a: game.RUArm, b: game.Torso, anchor: physics.V(2.24375, -4.14250), lower: -0.5, upper: 1.5, enableMotor: true, maxMotorTorque: 1000},
	LShoulder: {a: game.LUArm, b: game.Torso, anchor: physics.V(3.63875, -3.58875), lower: -2, upper: 0, enableMotor: true, maxMotorTorque: 1000},
	RElbow:    {a: game.RLArm, b: game.RUArm, anchor: physics.V(-0.06, -2.985), lower: -0.1, upper: 0.5, enableMotor: true, motorSpeed: 10},
	LElbow:    {a: game.LLArm, b: game.LUArm, anchor: physics.V(5.65125, -1.8125), lower: -0.1, upper: 0.5, enableMotor: true, motorSpeed: 10},
}

// buildWorld creates a fresh world holding the runner in its starting pose.
// Bodies are created in game.BodyName order and joints in JointID order.
func buildWorld(listener physics.ContactListener) (*physics.World, [game.NumBodies]*physics.Body, [NumJoints]*physics.RevoluteJoint) {
	w := physics.NewWorld(gravity, track)
	w.SetContactListener(listener)

	var bodies [game.NumBodies]*physics.Body
	for name := game.BodyName(0); name < game.NumBodies; name++ {
		def := bodyLayout[name]
		def.Name = name.String()
		def.Collides = true
		bodies[name] = w.CreateBody(def)
	}

	var joints [NumJoints]*physics.RevoluteJoint
	for id := JointID(0); id < NumJoints; id++ {
		spec := jointLayout[id]
		joints[id] = w.CreateRevoluteJoint(physics.RevoluteJointDef{
			Name:           id.String(),
			BodyA:          bodies[spec.a],
			BodyB:          bodies[spec.b],
			Anchor:         spec.anchor,
			EnableLimit:    true,
			LowerAngle:     spec.lower,
			UpperAngle:     spec.upper,
			EnableMotor:    spec.enableMotor,
			MotorSpeed:     spec.motorSpeed,
			MaxMotorTorque: spec.maxMotorTorque,
		})
	}
	return w, bodies, joints
}
