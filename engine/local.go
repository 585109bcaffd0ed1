package engine

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"

	"qwop/game"
	"qwop/physics"
)

const (
	engineMagic   = "QWPE"
	engineVersion = 1
)

var ErrSerializedEngine = errors.New("invalid serialized engine")

// LocalEngine runs the ragdoll runner in-process.
type LocalEngine struct {
	world  *physics.World
	bodies [game.NumBodies]*physics.Body
	joints [NumJoints]*physics.RevoluteJoint

	failed        bool
	rightFootDown bool
	leftFootDown  bool
	timesteps     int
}

func NewLocalEngine() *LocalEngine {
	e := &LocalEngine{}
	e.Reset()
	return e
}

var (
	initialOnce  sync.Once
	initialState game.State
)

// InitialState is the state of a freshly reset runner.
func InitialState() game.State {
	initialOnce.Do(func() {
		initialState = NewLocalEngine().CurrentState()
	})
	return initialState
}

// Reset rebuilds the world so no solver history survives.
func (e *LocalEngine) Reset() {
	e.world, e.bodies, e.joints = buildWorld(e)
	e.failed = false
	e.rightFootDown = false
	e.leftFootDown = false
	e.timesteps = 0
}

// BeginContact implements physics.ContactListener.
func (e *LocalEngine) BeginContact(b *physics.Body) {
	switch b {
	case e.bodies[game.RFoot]:
		e.rightFootDown = true
	case e.bodies[game.LFoot]:
		e.leftFootDown = true
	case e.bodies[game.Head], e.bodies[game.RLArm], e.bodies[game.LLArm],
		e.bodies[game.RThigh], e.bodies[game.LThigh]:
		e.failed = true
	}
}

// EndContact implements physics.ContactListener.
func (e *LocalEngine) EndContact(b *physics.Body) {
	switch b {
	case e.bodies[game.RFoot]:
		e.rightFootDown = false
	case e.bodies[game.LFoot]:
		e.leftFootDown = false
	}
}

func (e *LocalEngine) Step(cmd game.Command) game.State {
	for _, id := range []JointID{Neck, RElbow, LElbow} {
		stiffness := float32(elbowStiffness)
		if id == Neck {
			stiffness = neckStiffness
		}
		j := e.joints[id]
		speed, torque := Spring(j.JointAngle(), stiffness)
		j.SetMotorSpeed(speed)
		j.SetMaxMotorTorque(torque)
	}

	hipX := e.joints[RHip].AnchorA().X
	motors, limits := Targets(cmd,
		e.joints[RAnkle].AnchorA().X < hipX,
		e.joints[LAnkle].AnchorA().X < hipX)
	for _, m := range motors {
		e.joints[m.Joint].SetMotorSpeed(m.Speed)
	}
	for _, l := range limits {
		e.joints[l.Joint].SetLimits(l.Lower, l.Upper)
	}

	e.world.Step(Timestep, Iterations, Iterations)

	angle := e.bodies[game.Torso].Angle()
	if angle > TorsoAngleUpper || angle < TorsoAngleLower {
		e.failed = true
	}
	e.timesteps++
	return e.CurrentState()
}

func (e *LocalEngine) StepKeys(keys []bool) (game.State, error) {
	cmd, err := game.CommandFromKeys(keys)
	if err != nil {
		return game.State{}, err
	}
	return e.Step(cmd), nil
}

// HoldKeys repeats cmd for n timesteps.
func (e *LocalEngine) HoldKeys(n int, cmd game.Command) game.State {
	for i := 0; i < n; i++ {
		e.Step(cmd)
	}
	return e.CurrentState()
}

// Execute steps through every remaining command of an action.
func (e *LocalEngine) Execute(a game.Action) game.State {
	a.Reset()
	for a.HasNext() {
		e.Step(a.Poll())
	}
	return e.CurrentState()
}

func (e *LocalEngine) CurrentState() game.State {
	s := game.State{Failed: e.failed}
	for i, b := range e.bodies {
		p, v := b.Position(), b.LinearVelocity()
		s.Bodies[i] = game.BodyState{
			X: p.X, Y: p.Y, Th: b.Angle(),
			DX: v.X, DY: v.Y, DTh: b.AngularVelocity(),
		}
	}
	return s
}

func (e *LocalEngine) Failed() bool { return e.failed }

func (e *LocalEngine) RightFootDown() bool { return e.rightFootDown }

func (e *LocalEngine) LeftFootDown() bool { return e.leftFootDown }

func (e *LocalEngine) Timesteps() int { return e.timesteps }

// Joint exposes a joint for inspection.
func (e *LocalEngine) Joint(id JointID) *physics.RevoluteJoint { return e.joints[id] }

type engineHeader struct {
	Magic         [4]byte
	Version       uint8
	Failed        bool
	RightFootDown bool
	LeftFootDown  bool
	Timesteps     uint32
}

func (e *LocalEngine) Serialize() []byte {
	var buf bytes.Buffer
	h := engineHeader{
		Version:       engineVersion,
		Failed:        e.failed,
		RightFootDown: e.rightFootDown,
		LeftFootDown:  e.leftFootDown,
		Timesteps:     uint32(e.timesteps),
	}
	copy(h.Magic[:], engineMagic)
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		panic(err)
	}
	buf.Write(e.world.Snapshot())
	return buf.Bytes()
}

// Restore replaces the simulation with a serialized one. On error the engine
// is unchanged.
func (e *LocalEngine) Restore(data []byte) error {
	r := bytes.NewReader(data)
	var h engineHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return errors.Wrap(ErrSerializedEngine, err.Error())
	}
	if string(h.Magic[:]) != engineMagic {
		return errors.Wrapf(ErrSerializedEngine, "bad magic %q", h.Magic[:])
	}
	if h.Version != engineVersion {
		return errors.Wrapf(ErrSerializedEngine, "unsupported version %d", h.Version)
	}

	world, bodies, joints := buildWorld(e)
	if err := world.Restore(data[binary.Size(h):]); err != nil {
		return errors.Wrap(err, "failed to restore world")
	}
	e.world, e.bodies, e.joints = world, bodies, joints
	e.failed = h.Failed
	e.rightFootDown = h.RightFootDown
	e.leftFootDown = h.LeftFootDown
	e.timesteps = int(h.Timesteps)
	return nil
}

// Fork returns an independent engine continuing from serialized data.
func Fork(data []byte) (*LocalEngine, error) {
	e := NewLocalEngine()
	if err := e.Restore(data); err != nil {
		return nil, err
	}
	return e, nil
}
