package physics

import "github.com/chewxy/math32"

type limitState uint8

const (
	limitInactive limitState = iota
	limitAtLower
	limitAtUpper
	limitEqual
)

// RevoluteJointDef pins two bodies together at a world anchor. Limits are
// measured relative to the bodies' angle difference at creation.
type RevoluteJointDef struct {
	Name           string
	BodyA, BodyB   *Body
	Anchor         Vec2
	EnableLimit    bool
	LowerAngle     float32
	UpperAngle     float32
	EnableMotor    bool
	MotorSpeed     float32
	MaxMotorTorque float32
}

type RevoluteJoint struct {
	name         string
	bodyA, bodyB *Body
	localAnchorA Vec2
	localAnchorB Vec2
	refAngle     float32

	enableLimit    bool
	lower, upper   float32
	enableMotor    bool
	motorSpeed     float32
	maxMotorTorque float32

	// Solver state carried between steps for warm starting.
	pivotImpulse Vec2
	motorImpulse float32
	limitImpulse float32
	state        limitState

	// Per-step temporaries.
	pivotMass            mat22
	motorMass            float32
	limitPositionImpulse float32
}

func newRevoluteJoint(def RevoluteJointDef) *RevoluteJoint {
	return &RevoluteJoint{
		name:           def.Name,
		bodyA:          def.BodyA,
		bodyB:          def.BodyB,
		localAnchorA:   def.BodyA.LocalPoint(def.Anchor),
		localAnchorB:   def.BodyB.LocalPoint(def.Anchor),
		refAngle:       def.BodyB.angle - def.BodyA.angle,
		enableLimit:    def.EnableLimit,
		lower:          def.LowerAngle,
		upper:          def.UpperAngle,
		enableMotor:    def.EnableMotor,
		motorSpeed:     def.MotorSpeed,
		maxMotorTorque: def.MaxMotorTorque,
	}
}

func (j *RevoluteJoint) Name() string { return j.name }

func (j *RevoluteJoint) BodyA() *Body { return j.bodyA }

func (j *RevoluteJoint) BodyB() *Body { return j.bodyB }

// AnchorA is the anchor in world coordinates as seen by body A.
func (j *RevoluteJoint) AnchorA() Vec2 { return j.bodyA.WorldPoint(j.localAnchorA) }

// AnchorB is the anchor in world coordinates as seen by body B.
func (j *RevoluteJoint) AnchorB() Vec2 { return j.bodyB.WorldPoint(j.localAnchorB) }

func (j *RevoluteJoint) JointAngle() float32 {
	return j.bodyB.angle - j.bodyA.angle - j.refAngle
}

func (j *RevoluteJoint) JointSpeed() float32 {
	return j.bodyB.angularVelocity - j.bodyA.angularVelocity
}

func (j *RevoluteJoint) Limits() (lower, upper float32) { return j.lower, j.upper }

func (j *RevoluteJoint) SetLimits(lower, upper float32) {
	j.lower, j.upper = lower, upper
}

func (j *RevoluteJoint) MotorSpeed() float32 { return j.motorSpeed }

func (j *RevoluteJoint) SetMotorSpeed(speed float32) { j.motorSpeed = speed }

func (j *RevoluteJoint) MaxMotorTorque() float32 { return j.maxMotorTorque }

func (j *RevoluteJoint) SetMaxMotorTorque(torque float32) { j.maxMotorTorque = torque }

func (j *RevoluteJoint) MotorEnabled() bool { return j.enableMotor }

func (j *RevoluteJoint) initVelocityConstraints(warmStart bool) {
	a, b := j.bodyA, j.bodyB
	mA, mB := a.invMass, b.invMass
	iA, iB := a.invInertia, b.invInertia
	rA := a.rot.Apply(j.localAnchorA)
	rB := b.rot.Apply(j.localAnchorB)

	var k mat22
	k.ex.X = mA + mB + iA*rA.Y*rA.Y + iB*rB.Y*rB.Y
	k.ex.Y = -iA*rA.X*rA.Y - iB*rB.X*rB.Y
	k.ey.X = k.ex.Y
	k.ey.Y = mA + mB + iA*rA.X*rA.X + iB*rB.X*rB.X
	j.pivotMass = k.inverse()

	j.motorMass = iA + iB
	if j.motorMass > 0 {
		j.motorMass = 1 / j.motorMass
	}

	if !j.enableMotor {
		j.motorImpulse = 0
	}

	if j.enableLimit {
		angle := j.JointAngle()
		switch {
		case math32.Abs(j.upper-j.lower) < 2*angularSlop:
			j.state = limitEqual
		case angle <= j.lower:
			if j.state != limitAtLower {
				j.limitImpulse = 0
			}
			j.state = limitAtLower
		case angle >= j.upper:
			if j.state != limitAtUpper {
				j.limitImpulse = 0
			}
			j.state = limitAtUpper
		default:
			j.state = limitInactive
			j.limitImpulse = 0
		}
	} else {
		j.limitImpulse = 0
	}
	j.limitPositionImpulse = 0

	if !warmStart {
		j.pivotImpulse = Vec2{}
		j.motorImpulse = 0
		j.limitImpulse = 0
		return
	}
	p := j.pivotImpulse
	angular := j.motorImpulse + j.limitImpulse
	a.linearVelocity = a.linearVelocity.Sub(p.Scale(mA))
	a.angularVelocity -= iA * (rA.Cross(p) + angular)
	b.linearVelocity = b.linearVelocity.Add(p.Scale(mB))
	b.angularVelocity += iB * (rB.Cross(p) + angular)
}

// solveVelocityConstraints solves the pin, then the motor, then the limit,
// each as its own row.
func (j *RevoluteJoint) solveVelocityConstraints(dt float32) {
	a, b := j.bodyA, j.bodyB
	mA, mB := a.invMass, b.invMass
	iA, iB := a.invInertia, b.invInertia
	rA := a.rot.Apply(j.localAnchorA)
	rB := b.rot.Apply(j.localAnchorB)

	cdot := b.linearVelocity.Add(crossSV(b.angularVelocity, rB)).
		Sub(a.linearVelocity).Sub(crossSV(a.angularVelocity, rA))
	p := j.pivotMass.mul(cdot).Neg()
	j.pivotImpulse = j.pivotImpulse.Add(p)
	a.linearVelocity = a.linearVelocity.Sub(p.Scale(mA))
	a.angularVelocity -= iA * rA.Cross(p)
	b.linearVelocity = b.linearVelocity.Add(p.Scale(mB))
	b.angularVelocity += iB * rB.Cross(p)

	if j.enableMotor && j.state != limitEqual {
		motorCdot := b.angularVelocity - a.angularVelocity - j.motorSpeed
		impulse := -j.motorMass * motorCdot
		old := j.motorImpulse
		maxImpulse := dt * j.maxMotorTorque
		j.motorImpulse = clamp(old+impulse, -maxImpulse, maxImpulse)
		impulse = j.motorImpulse - old
		a.angularVelocity -= iA * impulse
		b.angularVelocity += iB * impulse
	}

	if j.enableLimit && j.state != limitInactive {
		impulse := -j.motorMass * (b.angularVelocity - a.angularVelocity)
		old := j.limitImpulse
		switch j.state {
		case limitEqual:
			j.limitImpulse += impulse
		case limitAtLower:
			j.limitImpulse = math32.Max(old+impulse, 0)
		case limitAtUpper:
			j.limitImpulse = math32.Min(old+impulse, 0)
		}
		impulse = j.limitImpulse - old
		a.angularVelocity -= iA * impulse
		b.angularVelocity += iB * impulse
	}
}

// solvePositionConstraints removes pin drift and then limit overshoot. It
// reports whether both errors are within slop.
func (j *RevoluteJoint) solvePositionConstraints() bool {
	a, b := j.bodyA, j.bodyB
	mA, mB := a.invMass, b.invMass
	iA, iB := a.invInertia, b.invInertia

	rA := a.rot.Apply(j.localAnchorA)
	rB := b.rot.Apply(j.localAnchorB)
	c := b.position.Add(rB).Sub(a.position).Sub(rA)
	positionError := c.Length()

	var k mat22
	k.ex.X = mA + mB + iA*rA.Y*rA.Y + iB*rB.Y*rB.Y
	k.ex.Y = -iA*rA.X*rA.Y - iB*rB.X*rB.Y
	k.ey.X = k.ex.Y
	k.ey.Y = mA + mB + iA*rA.X*rA.X + iB*rB.X*rB.X
	impulse := k.solve(c.Neg())

	a.position = a.position.Sub(impulse.Scale(mA))
	a.setAngle(a.angle - iA*rA.Cross(impulse))
	b.position = b.position.Add(impulse.Scale(mB))
	b.setAngle(b.angle + iB*rB.Cross(impulse))

	var angularError float32
	if j.enableLimit && j.state != limitInactive {
		angle := j.JointAngle()
		var limitImpulse float32
		switch j.state {
		case limitEqual:
			c := clamp(angle, -maxAngularCorrection, maxAngularCorrection)
			limitImpulse = -j.motorMass * c
			angularError = math32.Abs(c)
		case limitAtLower:
			c := angle - j.lower
			angularError = math32.Max(0, -c)
			c = clamp(c+angularSlop, -maxAngularCorrection, 0)
			limitImpulse = -j.motorMass * c
			old := j.limitPositionImpulse
			j.limitPositionImpulse = math32.Max(old+limitImpulse, 0)
			limitImpulse = j.limitPositionImpulse - old
		case limitAtUpper:
			c := angle - j.upper
			angularError = math32.Max(0, c)
			c = clamp(c-angularSlop, 0, maxAngularCorrection)
			limitImpulse = -j.motorMass * c
			old := j.limitPositionImpulse
			j.limitPositionImpulse = math32.Min(old+limitImpulse, 0)
			limitImpulse = j.limitPositionImpulse - old
		}
		a.setAngle(a.angle - iA*limitImpulse)
		b.setAngle(b.angle + iB*limitImpulse)
	}

	return positionError <= linearSlop && angularError <= angularSlop
}
