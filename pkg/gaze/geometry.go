package gaze

import "math"

// Vec3 is a point or direction in 3D space.
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Cross returns the cross product v × o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// Length returns the Euclidean norm.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.Dot(v))
}

// Normalize returns the unit vector in v's direction.
// The zero vector stays zero.
func (v Vec3) Normalize() Vec3 {
	mag := v.Length()
	if mag < 1e-10 {
		return Vec3{}
	}
	return v.Scale(1 / mag)
}

// Distance returns |v - o|.
func (v Vec3) Distance(o Vec3) float64 {
	return v.Sub(o).Length()
}

// Midpoint returns the point halfway between v and o.
func (v Vec3) Midpoint(o Vec3) Vec3 {
	return v.Add(o).Scale(0.5)
}

// Ray is a half-line with an origin and a unit direction.
type Ray struct {
	Origin    Vec3
	Direction Vec3
}

// At returns the point t units along the ray.
func (r Ray) At(t float64) Vec3 {
	return r.Origin.Add(r.Direction.Scale(t))
}

// ClosestPointsOnTwoRays returns the points of minimum distance between the
// infinite lines through r1 and r2. When the lines are parallel the linear
// system is singular; it then returns two zero points and parallel=true.
func ClosestPointsOnTwoRays(r1, r2 Ray) (p1, p2 Vec3, parallel bool) {
	a := r1.Direction.Dot(r1.Direction)
	b := r1.Direction.Dot(r2.Direction)
	e := r2.Direction.Dot(r2.Direction)

	d := a*e - b*b
	if d == 0 {
		return Vec3{}, Vec3{}, true
	}

	r := r1.Origin.Sub(r2.Origin)
	c := r1.Direction.Dot(r)
	f := r2.Direction.Dot(r)

	s := (b*f - c*e) / d
	t := (a*f - c*b) / d

	return r1.At(s), r2.At(t), false
}

// HeadTransform is a per-tick snapshot of the subject's head in scene space.
type HeadTransform struct {
	Position Vec3
	Forward  Vec3
	Up       Vec3
}

// Right returns the head's right axis (left-handed scene: up × forward).
func (h HeadTransform) Right() Vec3 {
	return h.Up.Cross(h.Forward).Normalize()
}

// ToWorld maps a head-local point into scene coordinates.
func (h HeadTransform) ToWorld(local Vec3) Vec3 {
	fwd := h.Forward.Normalize()
	up := h.Up.Normalize()
	right := h.Right()
	return h.Position.
		Add(right.Scale(local.X)).
		Add(up.Scale(local.Y)).
		Add(fwd.Scale(local.Z))
}

// WorldRay maps a head-local ray into scene coordinates.
func (h HeadTransform) WorldRay(local Ray) Ray {
	origin := h.ToWorld(local.Origin)
	tip := h.ToWorld(local.Origin.Add(local.Direction))
	return Ray{Origin: origin, Direction: tip.Sub(origin).Normalize()}
}

// Hit is the first intersection of a ray with the scene.
type Hit struct {
	Point    Vec3
	Collider string
}

// RayCaster is provided by the rendering/physics substrate.
type RayCaster interface {
	RayCast(ray Ray) (Hit, bool)
}

// RayCasterFunc adapts a function to RayCaster.
type RayCasterFunc func(ray Ray) (Hit, bool)

// RayCast calls f(ray).
func (f RayCasterFunc) RayCast(ray Ray) (Hit, bool) {
	return f(ray)
}

// PlaneCaster intersects rays with an infinite plane; useful as a stand-in
// scene when no physics substrate is attached.
type PlaneCaster struct {
	Point  Vec3
	Normal Vec3
	Name   string
}

// RayCast returns the forward intersection with the plane, if any.
func (p PlaneCaster) RayCast(ray Ray) (Hit, bool) {
	denom := p.Normal.Dot(ray.Direction)
	if math.Abs(denom) < 1e-9 {
		return Hit{}, false
	}
	t := p.Point.Sub(ray.Origin).Dot(p.Normal) / denom
	if t < 0 {
		return Hit{}, false
	}
	return Hit{Point: ray.At(t), Collider: p.Name}, true
}
