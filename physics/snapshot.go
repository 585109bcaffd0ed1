package physics

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	snapshotMagic   = "QWPW"
	snapshotVersion = 2
)

var (
	ErrSnapshotVersion = errors.New("unsupported world snapshot version")
	ErrSnapshotCorrupt = errors.New("corrupt world snapshot")
)

type snapshotHeader struct {
	Magic     [4]byte
	Version   uint8
	Bodies    uint16
	Joints    uint16
	StepCount uint32
}

type bodyRecord struct {
	X, Y, Angle float32
	VX, VY, W   float32
	Points      uint8
}

type pointRecord struct {
	ID             uint8
	LocalX, LocalY float32
	NormalImpulse  float32
	TangentImpulse float32
}

type jointRecord struct {
	MotorSpeed     float32
	MaxMotorTorque float32
	Lower, Upper   float32
	EnableLimit    bool
	EnableMotor    bool
	PivotX         float32
	PivotY         float32
	MotorImpulse   float32
	LimitImpulse   float32
	State          uint8
}

// Snapshot encodes every mutable quantity of the world, including warm
// starting impulses, so a world restored from it steps identically.
func (w *World) Snapshot() []byte {
	var buf bytes.Buffer
	h := snapshotHeader{
		Version:   snapshotVersion,
		Bodies:    uint16(len(w.bodies)),
		Joints:    uint16(len(w.joints)),
		StepCount: uint32(w.stepCount),
	}
	copy(h.Magic[:], snapshotMagic)
	write(&buf, h)

	for _, b := range w.bodies {
		write(&buf, bodyRecord{
			X: b.position.X, Y: b.position.Y, Angle: b.angle,
			VX: b.linearVelocity.X, VY: b.linearVelocity.Y, W: b.angularVelocity,
			Points: uint8(len(b.manifold.points)),
		})
		for _, cp := range b.manifold.points {
			write(&buf, pointRecord{
				ID:             cp.id,
				LocalX:         cp.localPoint.X,
				LocalY:         cp.localPoint.Y,
				NormalImpulse:  cp.normalImpulse,
				TangentImpulse: cp.tangentImpulse,
			})
		}
	}
	for _, j := range w.joints {
		write(&buf, jointRecord{
			MotorSpeed:     j.motorSpeed,
			MaxMotorTorque: j.maxMotorTorque,
			Lower:          j.lower,
			Upper:          j.upper,
			EnableLimit:    j.enableLimit,
			EnableMotor:    j.enableMotor,
			PivotX:         j.pivotImpulse.X,
			PivotY:         j.pivotImpulse.Y,
			MotorImpulse:   j.motorImpulse,
			LimitImpulse:   j.limitImpulse,
			State:          uint8(j.state),
		})
	}
	return buf.Bytes()
}

func write(buf *bytes.Buffer, v any) {
	// Writes to a bytes.Buffer of fixed-size values cannot fail.
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}
}

// Restore overwrites the world's mutable state from a snapshot taken of a
// world with the same bodies and joints. On error the world is unchanged.
func (w *World) Restore(data []byte) error {
	r := bytes.NewReader(data)
	var h snapshotHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return errors.Wrap(ErrSnapshotCorrupt, err.Error())
	}
	if string(h.Magic[:]) != snapshotMagic {
		return errors.Wrapf(ErrSnapshotCorrupt, "bad magic %q", h.Magic[:])
	}
	if h.Version != snapshotVersion {
		return errors.Wrapf(ErrSnapshotVersion, "got version %d", h.Version)
	}
	if int(h.Bodies) != len(w.bodies) || int(h.Joints) != len(w.joints) {
		return errors.Wrapf(ErrSnapshotCorrupt, "snapshot has %d bodies and %d joints, world has %d and %d",
			h.Bodies, h.Joints, len(w.bodies), len(w.joints))
	}

	bodies := make([]bodyRecord, h.Bodies)
	points := make([][]pointRecord, h.Bodies)
	for i := range bodies {
		if err := binary.Read(r, binary.LittleEndian, &bodies[i]); err != nil {
			return errors.Wrapf(ErrSnapshotCorrupt, "body %d at offset %d: %v", i, offset(data, r), err)
		}
		if int(bodies[i].Points) > maxManifoldPoints {
			return errors.Wrapf(ErrSnapshotCorrupt, "body %d has %d contact points", i, bodies[i].Points)
		}
		points[i] = make([]pointRecord, bodies[i].Points)
		for k := range points[i] {
			if err := binary.Read(r, binary.LittleEndian, &points[i][k]); err != nil {
				return errors.Wrapf(ErrSnapshotCorrupt, "body %d point %d at offset %d: %v", i, k, offset(data, r), err)
			}
		}
	}
	joints := make([]jointRecord, h.Joints)
	for i := range joints {
		if err := binary.Read(r, binary.LittleEndian, &joints[i]); err != nil {
			return errors.Wrapf(ErrSnapshotCorrupt, "joint %d at offset %d: %v", i, offset(data, r), err)
		}
		if joints[i].State > uint8(limitEqual) {
			return errors.Wrapf(ErrSnapshotCorrupt, "joint %d has limit state %d", i, joints[i].State)
		}
	}
	if r.Len() != 0 {
		return errors.Wrapf(ErrSnapshotCorrupt, "%d trailing bytes", r.Len())
	}

	for i, b := range w.bodies {
		rec := bodies[i]
		b.position = Vec2{rec.X, rec.Y}
		b.setAngle(rec.Angle)
		b.linearVelocity = Vec2{rec.VX, rec.VY}
		b.angularVelocity = rec.W
		b.manifold.points = make([]contactPoint, len(points[i]))
		for k, p := range points[i] {
			b.manifold.points[k] = contactPoint{
				id:             p.ID,
				localPoint:     Vec2{p.LocalX, p.LocalY},
				normalImpulse:  p.NormalImpulse,
				tangentImpulse: p.TangentImpulse,
			}
		}
		b.manifold.friction = 0
		b.manifold.restitution = 0
		if len(points[i]) > 0 {
			b.manifold.friction = frictionMix(b.friction, w.ground.Friction)
			b.manifold.restitution = restitutionMix(b.restitution, w.ground.Restitution)
		}
	}
	for i, j := range w.joints {
		rec := joints[i]
		j.motorSpeed = rec.MotorSpeed
		j.maxMotorTorque = rec.MaxMotorTorque
		j.lower, j.upper = rec.Lower, rec.Upper
		j.enableLimit = rec.EnableLimit
		j.enableMotor = rec.EnableMotor
		j.pivotImpulse = Vec2{rec.PivotX, rec.PivotY}
		j.motorImpulse = rec.MotorImpulse
		j.limitImpulse = rec.LimitImpulse
		j.state = limitState(rec.State)
	}
	w.stepCount = int(h.StepCount)
	return nil
}

func offset(data []byte, r *bytes.Reader) int {
	return len(data) - r.Len()
}
