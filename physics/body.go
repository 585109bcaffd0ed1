package physics

import "fmt"

type ShapeKind uint8

const (
	BoxShape ShapeKind = iota
	CircleShape
)

// Shape is the collision geometry of a body, centered on its origin.
type Shape struct {
	Kind ShapeKind
	// HalfWidth and HalfHeight are used by boxes.
	HalfWidth, HalfHeight float32
	// Radius is used by circles.
	Radius float32
}

func Box(halfWidth, halfHeight float32) Shape {
	return Shape{Kind: BoxShape, HalfWidth: halfWidth, HalfHeight: halfHeight}
}

func Circle(radius float32) Shape {
	return Shape{Kind: CircleShape, Radius: radius}
}

// vertices returns the box corners in body coordinates.
func (s Shape) vertices() [4]Vec2 {
	hw, hh := s.HalfWidth, s.HalfHeight
	return [4]Vec2{{-hw, -hh}, {hw, -hh}, {hw, hh}, {-hw, hh}}
}

// BodyDef describes a dynamic body. Mass and inertia are given explicitly
// rather than derived from shape density.
type BodyDef struct {
	Name        string
	Position    Vec2
	Angle       float32
	Mass        float32
	Inertia     float32
	Shape       Shape
	Friction    float32
	Restitution float32
	// Collides enables contact with the ground.
	Collides bool
}

// Body is a rigid body owned by exactly one World.
type Body struct {
	name  string
	index int

	position        Vec2
	angle           float32
	rot             Rot
	linearVelocity  Vec2
	angularVelocity float32

	mass, invMass       float32
	inertia, invInertia float32

	shape       Shape
	friction    float32
	restitution float32
	collides    bool

	manifold manifold
}

func newBody(def BodyDef, index int) *Body {
	if def.Mass <= 0 || def.Inertia <= 0 {
		panic(fmt.Sprintf("body %s must have positive mass and inertia", def.Name))
	}
	return &Body{
		name:        def.Name,
		index:       index,
		position:    def.Position,
		angle:       def.Angle,
		rot:         NewRot(def.Angle),
		mass:        def.Mass,
		invMass:     1 / def.Mass,
		inertia:     def.Inertia,
		invInertia:  1 / def.Inertia,
		shape:       def.Shape,
		friction:    def.Friction,
		restitution: def.Restitution,
		collides:    def.Collides,
	}
}

func (b *Body) Name() string { return b.name }

func (b *Body) Index() int { return b.index }

func (b *Body) Position() Vec2 { return b.position }

func (b *Body) Angle() float32 { return b.angle }

func (b *Body) LinearVelocity() Vec2 { return b.linearVelocity }

func (b *Body) AngularVelocity() float32 { return b.angularVelocity }

func (b *Body) Mass() float32 { return b.mass }

func (b *Body) Inertia() float32 { return b.inertia }

func (b *Body) Shape() Shape { return b.shape }

// Touching reports whether the body currently has ground contact points.
func (b *Body) Touching() bool { return len(b.manifold.points) > 0 }

// WorldPoint maps a point in body coordinates to world coordinates.
func (b *Body) WorldPoint(local Vec2) Vec2 {
	return b.position.Add(b.rot.Apply(local))
}

// LocalPoint maps a world point into body coordinates.
func (b *Body) LocalPoint(world Vec2) Vec2 {
	return b.rot.ApplyT(world.Sub(b.position))
}

func (b *Body) setAngle(angle float32) {
	b.angle = angle
	b.rot = NewRot(angle)
}
