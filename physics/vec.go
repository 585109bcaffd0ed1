package physics

import "github.com/chewxy/math32"

type Vec2 struct {
	X, Y float32
}

func V(x, y float32) Vec2 { return Vec2{X: x, Y: y} }

func (a Vec2) Add(b Vec2) Vec2 { return Vec2{a.X + b.X, a.Y + b.Y} }

func (a Vec2) Sub(b Vec2) Vec2 { return Vec2{a.X - b.X, a.Y - b.Y} }

func (a Vec2) Scale(k float32) Vec2 { return Vec2{a.X * k, a.Y * k} }

func (a Vec2) Neg() Vec2 { return Vec2{-a.X, -a.Y} }

func (a Vec2) Dot(b Vec2) float32 { return a.X*b.X + a.Y*b.Y }

func (a Vec2) Length() float32 { return math32.Sqrt(a.X*a.X + a.Y*a.Y) }

// Cross is the scalar 2D cross product a × b.
func (a Vec2) Cross(b Vec2) float32 { return a.X*b.Y - a.Y*b.X }

// crossSV is s × v for a scalar angular velocity s.
func crossSV(s float32, v Vec2) Vec2 { return Vec2{-s * v.Y, s * v.X} }

// Rot is a rotation stored as sine and cosine.
type Rot struct {
	S, C float32
}

func NewRot(angle float32) Rot {
	return Rot{S: math32.Sin(angle), C: math32.Cos(angle)}
}

// Apply rotates v.
func (r Rot) Apply(v Vec2) Vec2 {
	return Vec2{r.C*v.X - r.S*v.Y, r.S*v.X + r.C*v.Y}
}

// ApplyT rotates v by the inverse rotation.
func (r Rot) ApplyT(v Vec2) Vec2 {
	return Vec2{r.C*v.X + r.S*v.Y, -r.S*v.X + r.C*v.Y}
}

// mat22 is a symmetric-capable 2x2 matrix stored by columns.
type mat22 struct {
	ex, ey Vec2
}

// solve returns x with A x = b, or zero if A is singular.
func (m mat22) solve(b Vec2) Vec2 {
	a11, a12, a21, a22 := m.ex.X, m.ey.X, m.ex.Y, m.ey.Y
	det := a11*a22 - a12*a21
	if det != 0 {
		det = 1 / det
	}
	return Vec2{det * (a22*b.X - a12*b.Y), det * (a11*b.Y - a21*b.X)}
}

// inverse returns the inverse of m, or zero if m is singular.
func (m mat22) inverse() mat22 {
	a, b, c, d := m.ex.X, m.ey.X, m.ex.Y, m.ey.Y
	det := a*d - b*c
	if det != 0 {
		det = 1 / det
	}
	return mat22{ex: Vec2{det * d, -det * c}, ey: Vec2{-det * b, det * a}}
}

func (m mat22) mul(v Vec2) Vec2 {
	return Vec2{m.ex.X*v.X + m.ey.X*v.Y, m.ex.Y*v.X + m.ey.Y*v.Y}
}

func clamp(v, lo, hi float32) float32 {
	return math32.Max(lo, math32.Min(v, hi))
}
