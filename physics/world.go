package physics

import (
	"fmt"

	"github.com/chewxy/math32"
)

const (
	linearSlop           = 0.005
	angularSlop          = 2.0 / 180.0 * math32.Pi
	maxLinearCorrection  = 0.2
	maxAngularCorrection = 8.0 / 180.0 * math32.Pi
	maxLinearVelocity    = 200.0
	maxAngularVelocity   = 250.0
	velocityThreshold    = 1.0
	baumgarte            = 0.2
	maxManifoldPoints    = 2
)

// World is a self-contained rigid-body simulation. It holds no references to
// package-level mutable state, so independent worlds can step concurrently.
type World struct {
	gravity   Vec2
	ground    Ground
	bodies    []*Body
	joints    []*RevoluteJoint
	listener  ContactListener
	warmStart bool
	stepCount int
}

func NewWorld(gravity Vec2, ground Ground) *World {
	return &World{gravity: gravity, ground: ground, warmStart: true}
}

func (w *World) SetContactListener(l ContactListener) { w.listener = l }

func (w *World) SetWarmStarting(enabled bool) { w.warmStart = enabled }

func (w *World) Gravity() Vec2 { return w.gravity }

func (w *World) Ground() Ground { return w.ground }

func (w *World) Bodies() []*Body { return w.bodies }

func (w *World) Joints() []*RevoluteJoint { return w.joints }

// StepCount is the number of completed Step calls.
func (w *World) StepCount() int { return w.stepCount }

func (w *World) CreateBody(def BodyDef) *Body {
	b := newBody(def, len(w.bodies))
	w.bodies = append(w.bodies, b)
	return b
}

func (w *World) CreateRevoluteJoint(def RevoluteJointDef) *RevoluteJoint {
	if def.BodyA == nil || def.BodyB == nil {
		panic(fmt.Sprintf("joint %s needs two bodies", def.Name))
	}
	j := newRevoluteJoint(def)
	w.joints = append(w.joints, j)
	return j
}

// Step advances the world by dt. Contacts are updated first so listeners see
// the configuration produced by the previous step. Within each solver pass
// ground contacts go before joints.
func (w *World) Step(dt float32, velocityIterations, positionIterations int) {
	w.collide()
	if dt <= 0 {
		return
	}

	for _, b := range w.bodies {
		w.integrateVelocity(b, dt)
	}

	for _, b := range w.bodies {
		b.initContactConstraints(w.warmStart)
	}
	for _, j := range w.joints {
		j.initVelocityConstraints(w.warmStart)
	}

	for i := 0; i < velocityIterations; i++ {
		for _, b := range w.bodies {
			b.solveContactVelocity()
		}
		for _, j := range w.joints {
			j.solveVelocityConstraints(dt)
		}
	}

	for _, b := range w.bodies {
		b.position = b.position.Add(b.linearVelocity.Scale(dt))
		b.setAngle(b.angle + dt*b.angularVelocity)
	}

	for i := 0; i < positionIterations; i++ {
		minSeparation := float32(0)
		for _, b := range w.bodies {
			minSeparation = math32.Min(minSeparation, b.solveContactPosition(&w.ground))
		}
		jointsOkay := true
		for _, j := range w.joints {
			if !j.solvePositionConstraints() {
				jointsOkay = false
			}
		}
		if minSeparation >= -1.5*linearSlop && jointsOkay {
			break
		}
	}
	w.stepCount++
}

// integrateVelocity applies gravity and caps runaway speeds.
func (w *World) integrateVelocity(b *Body, dt float32) {
	b.linearVelocity = b.linearVelocity.Add(w.gravity.Scale(dt))
	if b.linearVelocity.Dot(b.linearVelocity) > maxLinearVelocity*maxLinearVelocity {
		b.linearVelocity = b.linearVelocity.Scale(maxLinearVelocity / b.linearVelocity.Length())
	}
	if b.angularVelocity > maxAngularVelocity {
		b.angularVelocity = maxAngularVelocity
	} else if b.angularVelocity < -maxAngularVelocity {
		b.angularVelocity = -maxAngularVelocity
	}
}

func (w *World) collide() {
	for _, b := range w.bodies {
		was, is := b.collide(&w.ground)
		if w.listener == nil || was == is {
			continue
		}
		if is {
			w.listener.BeginContact(b)
		} else {
			w.listener.EndContact(b)
		}
	}
}
