package physics

import (
	"sort"

	"github.com/chewxy/math32"
)

// Ground is a static half-plane whose surface is the line y = SurfaceY.
// The world uses screen coordinates, so the ground lies at larger y.
type Ground struct {
	SurfaceY    float32
	Friction    float32
	Restitution float32
}

// groundNormal points from the ground toward the bodies above it.
var groundNormal = Vec2{0, -1}

// groundTangent is the tangent used for friction impulses.
var groundTangent = Vec2{groundNormal.Y, -groundNormal.X}

// ContactListener receives ground contact transitions during Step.
type ContactListener interface {
	BeginContact(b *Body)
	EndContact(b *Body)
}

type contactPoint struct {
	id             uint8
	localPoint     Vec2
	normalImpulse  float32
	tangentImpulse float32

	// Per-step temporaries.
	r               Vec2
	normalMass      float32
	tangentMass     float32
	velocityBias    float32
	positionImpulse float32
}

type manifold struct {
	points      []contactPoint
	friction    float32
	restitution float32
}

type candidate struct {
	id    uint8
	local Vec2
	sep   float32
}

// collide rebuilds the body's ground manifold, carrying impulses over for
// points that persist. It reports whether the body was touching before and
// after the update.
func (b *Body) collide(g *Ground) (was, is bool) {
	was = len(b.manifold.points) > 0
	if !b.collides {
		b.manifold.points = b.manifold.points[:0]
		return was, false
	}

	var found [4]candidate
	n := 0
	switch b.shape.Kind {
	case CircleShape:
		bottom := b.position.Add(Vec2{0, b.shape.Radius})
		if sep := g.SurfaceY - bottom.Y; sep <= 0 {
			found[0] = candidate{id: 0, local: b.LocalPoint(bottom), sep: sep}
			n = 1
		}
	case BoxShape:
		for i, v := range b.shape.vertices() {
			if sep := g.SurfaceY - b.WorldPoint(v).Y; sep <= 0 {
				found[n] = candidate{id: uint8(i), local: v, sep: sep}
				n++
			}
		}
	}
	cands := found[:n]
	sort.SliceStable(cands, func(i, k int) bool { return cands[i].sep < cands[k].sep })
	if len(cands) > maxManifoldPoints {
		cands = cands[:maxManifoldPoints]
	}

	old := b.manifold.points
	next := make([]contactPoint, 0, len(cands))
	for _, c := range cands {
		cp := contactPoint{id: c.id, localPoint: c.local}
		for _, o := range old {
			if o.id == c.id {
				cp.normalImpulse = o.normalImpulse
				cp.tangentImpulse = o.tangentImpulse
				break
			}
		}
		next = append(next, cp)
	}
	b.manifold.points = next
	b.manifold.friction = frictionMix(b.friction, g.Friction)
	b.manifold.restitution = restitutionMix(b.restitution, g.Restitution)
	return was, len(next) > 0
}

func frictionMix(a, b float32) float32 { return math32.Sqrt(a * b) }

func restitutionMix(a, b float32) float32 { return math32.Max(a, b) }

// contactWorldPoint is where contact point cp currently sits.
func (b *Body) contactWorldPoint(cp *contactPoint) Vec2 {
	return b.WorldPoint(cp.localPoint)
}

func (b *Body) initContactConstraints(warmStart bool) {
	m := &b.manifold
	for i := range m.points {
		cp := &m.points[i]
		cp.r = b.contactWorldPoint(cp).Sub(b.position)

		rn := cp.r.Cross(groundNormal)
		kNormal := b.invMass + b.invInertia*rn*rn
		cp.normalMass = 0
		if kNormal > 0 {
			cp.normalMass = 1 / kNormal
		}
		rt := cp.r.Cross(groundTangent)
		kTangent := b.invMass + b.invInertia*rt*rt
		cp.tangentMass = 0
		if kTangent > 0 {
			cp.tangentMass = 1 / kTangent
		}

		cp.velocityBias = 0
		cp.positionImpulse = 0
		vRel := b.linearVelocity.Add(crossSV(b.angularVelocity, cp.r)).Dot(groundNormal)
		if vRel < -velocityThreshold {
			cp.velocityBias = -m.restitution * vRel
		}

		if !warmStart {
			cp.normalImpulse = 0
			cp.tangentImpulse = 0
			continue
		}
		p := groundNormal.Scale(cp.normalImpulse).Add(groundTangent.Scale(cp.tangentImpulse))
		b.linearVelocity = b.linearVelocity.Add(p.Scale(b.invMass))
		b.angularVelocity += b.invInertia * cp.r.Cross(p)
	}
}

// solveContactVelocity solves every normal row before any friction row, so
// friction is bounded by this iteration's normal impulses.
func (b *Body) solveContactVelocity() {
	m := &b.manifold
	for i := range m.points {
		cp := &m.points[i]
		dv := b.linearVelocity.Add(crossSV(b.angularVelocity, cp.r))
		vn := dv.Dot(groundNormal)
		lambda := -cp.normalMass * (vn - cp.velocityBias)
		newImpulse := math32.Max(cp.normalImpulse+lambda, 0)
		lambda = newImpulse - cp.normalImpulse
		cp.normalImpulse = newImpulse
		p := groundNormal.Scale(lambda)
		b.linearVelocity = b.linearVelocity.Add(p.Scale(b.invMass))
		b.angularVelocity += b.invInertia * cp.r.Cross(p)
	}
	for i := range m.points {
		cp := &m.points[i]
		dv := b.linearVelocity.Add(crossSV(b.angularVelocity, cp.r))
		vt := dv.Dot(groundTangent)
		lambda := -cp.tangentMass * vt
		maxFriction := m.friction * cp.normalImpulse
		newImpulse := clamp(cp.tangentImpulse+lambda, -maxFriction, maxFriction)
		lambda = newImpulse - cp.tangentImpulse
		cp.tangentImpulse = newImpulse
		p := groundTangent.Scale(lambda)
		b.linearVelocity = b.linearVelocity.Add(p.Scale(b.invMass))
		b.angularVelocity += b.invInertia * cp.r.Cross(p)
	}
}

// solveContactPosition pushes the body out of the ground and returns the
// smallest separation seen. The push per point only ever accumulates upward
// within one step.
func (b *Body) solveContactPosition(g *Ground) float32 {
	minSeparation := float32(0)
	for i := range b.manifold.points {
		cp := &b.manifold.points[i]
		p := b.contactWorldPoint(cp)
		r := p.Sub(b.position)
		separation := g.SurfaceY - p.Y
		minSeparation = math32.Min(minSeparation, separation)

		c := baumgarte * clamp(separation+linearSlop, -maxLinearCorrection, 0)
		rn := r.Cross(groundNormal)
		k := b.invMass + b.invInertia*rn*rn
		var impulse float32
		if k > 0 {
			impulse = -c / k
		}
		old := cp.positionImpulse
		cp.positionImpulse = math32.Max(old+impulse, 0)
		impulse = cp.positionImpulse - old

		push := groundNormal.Scale(impulse)
		b.position = b.position.Add(push.Scale(b.invMass))
		b.setAngle(b.angle + b.invInertia*r.Cross(push))
	}
	return minSeparation
}
